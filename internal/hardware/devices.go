package hardware

import (
	"sync"

	"deathteller/skull/internal/controller"
	"deathteller/skull/internal/log"
)

const (
	preBlinkCount        = 3
	completionBlinkCount = 4
)

// Mouth is the jaw servo. Only the open/closed position is modelled.
type Mouth struct {
	mu    sync.Mutex
	open  bool
	moves int
}

func (m *Mouth) Open() {
	m.mu.Lock()
	if !m.open {
		m.open = true
		m.moves++
	}
	m.mu.Unlock()
}

func (m *Mouth) Close() {
	m.mu.Lock()
	if m.open {
		m.open = false
		m.moves++
	}
	m.mu.Unlock()
}

func (m *Mouth) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *Mouth) Moves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moves
}

// Finger is the capacitive touch sensor. Its readout is set from outside,
// by the debug API or a test. With a stable duration and a clock, Stable is
// derived from how long Detected has been held rather than taken from Set.
type Finger struct {
	mu           sync.Mutex
	readout      controller.FingerReadout
	threshold    float64
	stableMs     uint32
	now          func() uint32
	touchStart   uint32
	calibrations int
}

// NewFinger builds the sensor. A zero stableMs or nil clock keeps whatever
// Stable the caller sets.
func NewFinger(thresholdRatio float64, stableMs uint32, now func() uint32) *Finger {
	return &Finger{
		threshold: thresholdRatio,
		stableMs:  stableMs,
		now:       now,
		readout:   controller.FingerReadout{ThresholdRatio: thresholdRatio},
	}
}

// Set replaces the readout. A zero ThresholdRatio takes the sensor's own.
func (f *Finger) Set(r controller.FingerReadout) {
	f.mu.Lock()
	if r.ThresholdRatio == 0 {
		r.ThresholdRatio = f.threshold
	}
	if f.derived() && r.Detected && !f.readout.Detected {
		f.touchStart = f.now()
	}
	f.readout = r
	f.mu.Unlock()
}

func (f *Finger) Release() {
	f.Set(controller.FingerReadout{})
}

func (f *Finger) Readout() controller.FingerReadout {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.readout
	if f.derived() {
		r.Stable = r.Detected && f.now()-f.touchStart >= f.stableMs
	}
	return r
}

func (f *Finger) derived() bool {
	return f.stableMs > 0 && f.now != nil
}

// Calibrate re-baselines the sensor, which clears any reading in progress.
func (f *Finger) Calibrate() {
	f.mu.Lock()
	f.calibrations++
	f.readout = controller.FingerReadout{ThresholdRatio: f.threshold}
	f.mu.Unlock()
	log.Info("finger sensor calibrated")
}

func (f *Finger) Calibrations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calibrations
}

// Calibrator performs the manual calibration steps with the lights and sensor.
type Calibrator struct {
	Lights *Lights
	Finger *Finger
	Bright int
}

func (c Calibrator) StartPreBlink() {
	c.Lights.StartMouthBlink(preBlinkCount, c.Bright, "manual calibration start")
}

func (c Calibrator) SetWaitMode() { c.Lights.SetMouth(c.Bright) }

func (c Calibrator) CalibrateSensor() { c.Finger.Calibrate() }

func (c Calibrator) StartCompletionBlink() {
	c.Lights.StartMouthBlink(completionBlinkCount, c.Bright, "manual calibration finished")
}

func (c Calibrator) IsBlinking() bool { return c.Lights.Blinking() }
