package peerlink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peerlink_connections",
		Help: "Connected proximity peers",
	})

	metricMessagesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerlink_messages_in_total",
		Help: "Messages received from peers by type",
	}, []string{"type"})

	metricMessagesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerlink_messages_out_total",
		Help: "Messages sent to peers by type",
	}, []string{"type"})

	metricAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerlink_auth_failures_total",
		Help: "Rejected peer connection attempts",
	})
)
