package skull

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skull_state_transitions_total",
		Help: "Controller state transitions, including chained ones",
	}, []string{"from", "to"})

	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skull_commands_total",
		Help: "Peer commands handed to the controller",
	}, []string{"command"})

	metricCommandsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skull_commands_dropped_total",
		Help: "Commands dropped because the runtime queue was full",
	})

	metricNotifyDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skull_notifications_dropped_total",
		Help: "Peer notifications dropped because the delivery queue was full",
	})

	metricAudioQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skull_audio_queued_total",
		Help: "Clips handed to the player",
	})

	metricFortunePrints = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skull_fortune_prints_total",
		Help: "Fortune print jobs by result",
	}, []string{"result"})

	metricVisits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skull_visits_total",
		Help: "Visits started from Idle",
	})

	metricTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skull_tick_duration_ms",
		Help:    "Time spent in one controller tick including applying its actions",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
