// Package skull runs the interaction controller against the skull's devices.
// A single goroutine owns the controller; everything else talks to it through
// Submit and reads it through Status.
package skull

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"deathteller/skull/internal/audio"
	"deathteller/skull/internal/controller"
	"deathteller/skull/internal/hardware"
	"deathteller/skull/internal/log"
	"deathteller/skull/internal/store"
	"deathteller/skull/internal/uart"
)

const (
	DefaultTick    = 20 * time.Millisecond
	commandBacklog = 32
	notifyBacklog  = 64
	journalTimeout = 2 * time.Second
)

type ClipPlayer interface {
	Enqueue(path string) error
	Events() <-chan audio.Event
}

type FortunePrinter interface {
	IsReady() bool
	PrintFortune(text string) error
}

type VisitJournal interface {
	RecordVisit(ctx context.Context, v store.Visit) error
}

// Notifier receives status events for connected peers.
type Notifier interface {
	Broadcast(ctx context.Context, typ string, payload map[string]any)
}

type Options struct {
	Config controller.ConfigSnapshot
	Tick   time.Duration

	Clock       controller.Clock
	Random      controller.RandomSource
	Audio       controller.AudioPlanner
	Fortune     controller.FortuneService
	Calibration controller.CalibrationDriver

	Player   ClipPlayer
	Printer  FortunePrinter
	Mouth    *hardware.Mouth
	Lights   *hardware.Lights
	Finger   *hardware.Finger
	Store    *store.Store
	Journal  VisitJournal
	Notifier Notifier
}

type note struct {
	typ     string
	payload map[string]any
}

type visit struct {
	id        string
	startedAt time.Time
	trigger   string
	fortune   string
	source    string
	attempted bool
	printed   bool
}

type Runtime struct {
	ctrl  *controller.Controller
	clock controller.Clock
	tick  time.Duration

	player   ClipPlayer
	printer  FortunePrinter
	mouth    *hardware.Mouth
	lights   *hardware.Lights
	finger   *hardware.Finger
	events   *store.Store
	journal  VisitJournal
	notifier Notifier

	cmds  chan uart.Command
	notes chan note

	// owned by the Run goroutine
	visit  *visit
	paused bool

	mu          sync.RWMutex
	status      Status
	lastVisit   *store.Visit
	visitsTotal int
}

// New builds the runtime and initializes the controller in Idle.
func New(opts Options) *Runtime {
	r := &Runtime{
		clock:    opts.Clock,
		tick:     opts.Tick,
		player:   opts.Player,
		printer:  opts.Printer,
		mouth:    opts.Mouth,
		lights:   opts.Lights,
		finger:   opts.Finger,
		events:   opts.Store,
		journal:  opts.Journal,
		notifier: opts.Notifier,
		cmds:     make(chan uart.Command, commandBacklog),
		notes:    make(chan note, notifyBacklog),
	}
	if r.clock == nil {
		r.clock = NewSystemClock()
	}
	if r.tick <= 0 {
		r.tick = DefaultTick
	}
	if r.mouth == nil {
		r.mouth = &hardware.Mouth{}
	}
	if r.lights == nil {
		r.lights = hardware.NewLights(hardware.LightsConfig{}, r.clock.NowMillis)
	}
	if r.finger == nil {
		r.finger = hardware.NewFinger(0, opts.Config.FingerStableMs, r.clock.NowMillis)
	}
	if r.events == nil {
		r.events = store.New()
	}
	if opts.Random == nil {
		opts.Random = Random{}
	}

	deps := controller.Dependencies{
		Clock:        r.clock,
		Random:       opts.Random,
		Log:          log.NewSink(),
		Audio:        opts.Audio,
		Fortune:      opts.Fortune,
		Printer:      opts.Printer,
		Calibration:  opts.Calibration,
		OnTransition: r.onTransition,
	}
	r.ctrl = controller.New(deps)
	r.step(func() { r.ctrl.Initialize(opts.Config) })
	return r
}

// Submit queues a command for the controller without blocking. It reports
// false when the queue is full and the command was dropped.
func (r *Runtime) Submit(cmd uart.Command) bool {
	select {
	case r.cmds <- cmd:
		return true
	default:
		metricCommandsDropped.Inc()
		log.Warn("command dropped; runtime queue full", "command", cmd.String())
		return false
	}
}

// Run drives the controller until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	var audioEvents <-chan audio.Event
	if r.player != nil {
		audioEvents = r.player.Events()
	}

	if r.notifier != nil {
		go r.deliver(ctx)
	}

	log.Info("skull runtime started", "tick", r.tick, "state", r.ctrl.State().String())
	for {
		select {
		case <-ctx.Done():
			log.Info("skull runtime stopped", "state", r.ctrl.State().String())
			return ctx.Err()
		case <-ticker.C:
			r.Tick()
		case cmd := <-r.cmds:
			r.HandleCommand(cmd)
		case evt := <-audioEvents:
			r.HandleAudio(evt)
		}
	}
}

// Tick runs one controller update with the current finger readout. Run calls
// it on every ticker interval; it is exported for single-threaded drivers.
func (r *Runtime) Tick() {
	start := time.Now()
	r.step(func() { r.ctrl.Update(r.clock.NowMillis(), r.finger.Readout()) })
	metricTickDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
}

func (r *Runtime) HandleCommand(cmd uart.Command) {
	metricCommands.WithLabelValues(cmd.String()).Inc()
	r.record("command", map[string]any{"command": cmd.String()})
	r.step(func() { r.ctrl.HandleUartCommand(cmd) })
}

func (r *Runtime) HandleAudio(evt audio.Event) {
	switch evt.Kind {
	case audio.Started:
		r.step(func() { r.ctrl.HandleAudioStarted(evt.Path) })
	case audio.Finished:
		payload := map[string]any{"clip": evt.Path}
		if evt.Err != nil {
			payload["error"] = evt.Err.Error()
		}
		r.record("audio_finished", payload)
		r.step(func() { r.ctrl.HandleAudioFinished(evt.Path) })
	}
}

// step makes one controller call, applies the resulting batch and drains it.
func (r *Runtime) step(call func()) {
	call()
	r.apply(r.ctrl.PendingActions())
	r.ctrl.ClearActions()
	r.syncVisit()
	r.publish()
}

func (r *Runtime) apply(a controller.Actions) {
	if a.Empty() {
		return
	}
	for _, clip := range a.AudioToQueue {
		if r.player == nil {
			log.Warn("no audio player; clip not played", "clip", clip)
			continue
		}
		if err := r.player.Enqueue(clip); err != nil {
			log.Warn("clip not queued", "clip", clip, "error", err)
			continue
		}
		metricAudioQueued.Inc()
		r.record("audio_queued", map[string]any{"clip": clip})
	}

	if a.MouthOpen {
		r.mouth.Open()
	}
	if a.MouthClose {
		r.mouth.Close()
	}
	if a.MouthPulseDisable {
		r.lights.StopPulse()
	}
	if a.MouthPulseEnable {
		r.lights.StartPulse()
	}
	switch {
	case a.LEDFingerDetected:
		r.lights.SetScene(hardware.SceneFingerDetected)
	case a.LEDPrompt:
		r.lights.SetScene(hardware.ScenePrompt)
	case a.LEDIdle:
		r.lights.SetScene(hardware.SceneIdle)
	}

	if a.RemoteDebugPause && !r.paused {
		r.paused = true
		r.notify("debug_paused", nil)
	}
	if a.RemoteDebugResume && r.paused {
		r.paused = false
		r.notify("debug_resumed", nil)
	}

	if a.ResetFortuneState && r.visit != nil {
		r.visit.fortune, r.visit.attempted, r.visit.printed = "", false, false
	}
	if a.PrintRequested {
		r.print(a.FortuneText)
	}
}

func (r *Runtime) print(text string) {
	if r.visit != nil {
		r.visit.attempted = true
	}
	if r.printer == nil {
		metricFortunePrints.WithLabelValues("skipped").Inc()
		return
	}
	if err := r.printer.PrintFortune(text); err != nil {
		metricFortunePrints.WithLabelValues("failed").Inc()
		log.Error("fortune print failed", "error", err)
		r.record("fortune_print_failed", map[string]any{"error": err.Error()})
		return
	}
	metricFortunePrints.WithLabelValues("ok").Inc()
	r.record("fortune_printed", map[string]any{"fortune": text})
	if r.visit != nil {
		r.visit.printed = true
	}
}

// onTransition runs inside controller calls, before the entry actions of the
// new state are built.
func (r *Runtime) onTransition(from, to controller.State, reason string) {
	if from == to {
		return
	}
	metricStateTransitions.WithLabelValues(from.String(), to.String()).Inc()

	if r.visit == nil && to != controller.Idle && to != controller.ManualCalibration {
		r.visit = &visit{id: uuid.NewString(), startedAt: time.Now().UTC(), trigger: reason}
		metricVisits.Inc()
		log.Info("visit started", "visit_id", r.visit.id, "reason", reason)
	}

	payload := map[string]any{"from": from.String(), "to": to.String(), "reason": reason}
	r.record("state_changed", payload)
	r.notify("state", payload)

	if to == controller.Idle && r.visit != nil {
		r.finishVisit(from)
	}
}

func (r *Runtime) syncVisit() {
	if r.visit == nil {
		return
	}
	f := r.ctrl.Fortune()
	if f.Generated {
		r.visit.fortune = f.Text
		r.visit.source = f.TemplateSource
	}
	if f.PrintAttempted {
		r.visit.attempted = true
	}
}

func (r *Runtime) finishVisit(final controller.State) {
	r.syncVisit()
	v := store.Visit{
		ID:             r.visit.id,
		StartedAt:      r.visit.startedAt,
		EndedAt:        time.Now().UTC(),
		Trigger:        r.visit.trigger,
		FinalState:     final.String(),
		Fortune:        r.visit.fortune,
		TemplateSource: r.visit.source,
		PrintAttempted: r.visit.attempted,
		PrintSucceeded: r.visit.printed,
	}
	r.visit = nil
	log.Info("visit finished", "visit_id", v.ID, "final_state", v.FinalState, "printed", v.PrintSucceeded)

	r.mu.Lock()
	r.lastVisit = &v
	r.visitsTotal++
	r.mu.Unlock()

	if r.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := r.journal.RecordVisit(ctx, v); err != nil {
		log.Error("journal write failed", "visit_id", v.ID, "error", err)
	}
}

func (r *Runtime) record(typ string, payload map[string]any) {
	id := ""
	if r.visit != nil {
		id = r.visit.id
	}
	r.events.AppendEvent(id, typ, payload)
}

// notify queues a peer event. Delivery happens on its own goroutine so a
// slow peer never holds up the controller; events are dropped when the
// queue is full.
func (r *Runtime) notify(typ string, payload map[string]any) {
	if r.notifier == nil {
		return
	}
	if r.paused && typ == "state" {
		return
	}
	select {
	case r.notes <- note{typ: typ, payload: payload}:
	default:
		metricNotifyDropped.Inc()
		log.Warn("peer notification dropped; queue full", "type", typ)
	}
}

func (r *Runtime) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-r.notes:
			r.notifier.Broadcast(ctx, n.typ, n.payload)
		}
	}
}
