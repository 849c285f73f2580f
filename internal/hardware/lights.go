// Package hardware simulates the skull's actuators and touch sensor.
package hardware

import (
	"sync"

	"deathteller/skull/internal/log"
)

// Eye brightness for each light scene.
const (
	EyeOff            = 0
	EyeIdle           = 64
	EyePrompt         = 255
	EyeFingerDetected = 160
)

type Scene int

const (
	SceneIdle Scene = iota
	ScenePrompt
	SceneFingerDetected
)

func (s Scene) String() string {
	switch s {
	case ScenePrompt:
		return "prompt"
	case SceneFingerDetected:
		return "finger_detected"
	}
	return "idle"
}

type LightsConfig struct {
	MouthBright   int
	PulseMin      int
	PulseMax      int
	PulsePeriodMs int
	BlinkOnMs     int
	BlinkOffMs    int
}

type blink struct {
	count   int
	onMs    int
	offMs   int
	bright  int
	startMs uint32
}

// Lights tracks eye and mouth LED levels. Pulses and blinks are evaluated
// against the clock rather than driven by a timer.
type Lights struct {
	cfg LightsConfig
	now func() uint32

	mu         sync.Mutex
	scene      Scene
	mouth      int
	pulsing    bool
	pulseStart uint32
	blink      *blink
}

func NewLights(cfg LightsConfig, now func() uint32) *Lights {
	if cfg.PulsePeriodMs <= 0 {
		cfg.PulsePeriodMs = 1500
	}
	if cfg.PulseMax < cfg.PulseMin {
		cfg.PulseMin, cfg.PulseMax = cfg.PulseMax, cfg.PulseMin
	}
	return &Lights{cfg: cfg, now: now}
}

func (l *Lights) SetScene(s Scene) {
	l.mu.Lock()
	l.scene = s
	l.mu.Unlock()
}

func (l *Lights) Scene() Scene {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scene
}

func (l *Lights) EyeLevel() int {
	switch l.Scene() {
	case ScenePrompt:
		return EyePrompt
	case SceneFingerDetected:
		return EyeFingerDetected
	}
	return EyeIdle
}

// SetMouth sets a steady mouth level and stops any pulse.
func (l *Lights) SetMouth(level int) {
	l.mu.Lock()
	l.mouth = clamp(level)
	l.pulsing = false
	l.mu.Unlock()
}

func (l *Lights) MouthBright() { l.SetMouth(l.cfg.MouthBright) }

func (l *Lights) StartPulse() {
	l.mu.Lock()
	if !l.pulsing {
		l.pulsing = true
		l.pulseStart = l.now()
	}
	l.mu.Unlock()
}

func (l *Lights) StopPulse() {
	l.mu.Lock()
	l.pulsing = false
	l.mouth = 0
	l.mu.Unlock()
}

func (l *Lights) Pulsing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pulsing
}

// StartMouthBlink begins count on/off cycles at the given brightness.
func (l *Lights) StartMouthBlink(count, bright int, reason string) {
	l.mu.Lock()
	l.blink = &blink{
		count:   count,
		onMs:    l.cfg.BlinkOnMs,
		offMs:   l.cfg.BlinkOffMs,
		bright:  clamp(bright),
		startMs: l.now(),
	}
	l.mu.Unlock()
	log.Debug("mouth blink", "count", count, "reason", reason)
}

func (l *Lights) Blinking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blinkingLocked(l.now())
}

func (l *Lights) blinkingLocked(now uint32) bool {
	if l.blink == nil {
		return false
	}
	total := uint32(l.blink.count * (l.blink.onMs + l.blink.offMs))
	if now-l.blink.startMs >= total {
		l.blink = nil
		return false
	}
	return true
}

// MouthLevel is the mouth LED level at the current instant.
func (l *Lights) MouthLevel() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.blinkingLocked(now) {
		cycle := uint32(l.blink.onMs + l.blink.offMs)
		if cycle == 0 || (now-l.blink.startMs)%cycle < uint32(l.blink.onMs) {
			return l.blink.bright
		}
		return 0
	}
	if l.pulsing {
		period := uint32(l.cfg.PulsePeriodMs)
		phase := (now - l.pulseStart) % period
		half := period / 2
		span := l.cfg.PulseMax - l.cfg.PulseMin
		if half == 0 {
			return l.cfg.PulseMax
		}
		if phase < half {
			return l.cfg.PulseMin + int(uint32(span)*phase/half)
		}
		return l.cfg.PulseMax - int(uint32(span)*(phase-half)/(period-half))
	}
	return l.mouth
}

func clamp(v int) int {
	return max(0, min(255, v))
}
