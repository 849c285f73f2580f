package controller

import (
	"testing"

	"deathteller/skull/internal/uart"
)

var (
	strongTouch = FingerReadout{Detected: true, Stable: true, NormalizedDelta: 0.05, ThresholdRatio: 0.002}
	weakTouch   = FingerReadout{Detected: true, Stable: true, NormalizedDelta: 0.01, ThresholdRatio: 0.002}
)

func TestCalibrationHoldArmsAtExactly3000ms(t *testing.T) {
	h := newHarness(t, nil)
	for ms := uint32(0); ms < 3000; ms += 100 {
		h.update(ms, strongTouch)
	}
	h.update(2999, strongTouch)
	h.expectState(Idle)
	h.update(3000, strongTouch)
	h.expectState(ManualCalibration)
	if h.driver.preBlinks != 1 || h.c.Stage() != StagePreBlink {
		t.Fatalf("expected pre-blink started, preBlinks=%d stage=%s", h.driver.preBlinks, h.c.Stage())
	}
}

func TestCalibrationHoldResetsOnInterruption(t *testing.T) {
	h := newHarness(t, nil)
	h.update(0, strongTouch)
	h.update(2998, strongTouch)
	h.update(2999, weakTouch)
	h.update(3000, strongTouch)
	h.update(5999, strongTouch)
	h.expectState(Idle)
	h.update(6000, strongTouch)
	h.expectState(ManualCalibration)
}

func TestCalibrationHoldRequiresThreshold(t *testing.T) {
	h := newHarness(t, nil)
	noThreshold := FingerReadout{Detected: true, NormalizedDelta: 5}
	for ms := uint32(0); ms <= 10000; ms += 500 {
		h.update(ms, noThreshold)
	}
	h.expectState(Idle)
}

func TestCalibrationHoldOnlyArmsInIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.at(0).c.HandleUartCommand(uart.WaitForNear)
	for ms := uint32(0); ms <= 5000; ms += 500 {
		h.update(ms, strongTouch)
	}
	h.expectState(WaitForNear)
}

func TestCalibrationStages(t *testing.T) {
	h := newHarness(t, nil)
	h.update(0, strongTouch)
	h.update(3000, strongTouch)
	h.expectState(ManualCalibration)

	h.update(3100, noFinger)
	if h.c.Stage() != StagePreBlink || h.driver.waitModes != 0 {
		t.Fatalf("expected to wait for pre-blink, stage=%s", h.c.Stage())
	}
	h.driver.finishBlink()
	h.update(3200, noFinger)
	if h.c.Stage() != StageWaitBeforeCalibration || h.driver.waitModes != 1 {
		t.Fatalf("expected wait stage, stage=%s waitModes=%d", h.c.Stage(), h.driver.waitModes)
	}

	h.update(8199, noFinger)
	if h.driver.calibrations != 0 {
		t.Fatalf("calibrated before the 5s wait")
	}
	h.update(8200, noFinger)
	if h.c.Stage() != StageCalibrating || h.driver.calibrations != 1 {
		t.Fatalf("expected calibrating stage, stage=%s", h.c.Stage())
	}

	h.update(9699, noFinger)
	if h.driver.completionBlinks != 0 {
		t.Fatalf("completion blink before settle time")
	}
	h.update(9700, noFinger)
	if h.c.Stage() != StageCompletionBlink || h.driver.completionBlinks != 1 {
		t.Fatalf("expected completion blink, stage=%s", h.c.Stage())
	}

	h.update(9800, noFinger)
	h.expectState(ManualCalibration)
	h.driver.finishBlink()
	h.actions()
	h.update(9900, noFinger)
	h.expectState(Idle)
	if h.c.Stage() != StageIdle {
		t.Fatalf("expected stage reset, got %s", h.c.Stage())
	}
	if a := h.actions(); !a.LEDIdle || !a.MouthClose || !a.ResetFortuneState {
		t.Fatalf("expected Idle entry actions after calibration, got %+v", a)
	}
}

func TestCalibrationWithoutDriverCompletes(t *testing.T) {
	c := New(Dependencies{Clock: &fakeClock{}})
	c.Initialize(testConfig())
	c.Update(0, strongTouch)
	c.Update(3000, strongTouch)
	if c.State() != ManualCalibration {
		t.Fatalf("expected ManualCalibration, got %s", c.State())
	}
	for _, ms := range []uint32{3001, 8001, 9501, 9502} {
		c.Update(ms, noFinger)
	}
	if c.State() != Idle {
		t.Fatalf("expected Idle after driverless calibration, got %s (stage %s)", c.State(), c.Stage())
	}
}

func TestForcedCommandLeavesCalibration(t *testing.T) {
	h := newHarness(t, nil)
	h.update(0, strongTouch)
	h.update(3000, strongTouch)
	h.expectState(ManualCalibration)

	h.at(3100).c.HandleUartCommand(uart.FarMotionTrigger)
	h.expectState(ManualCalibration)

	h.at(3200).c.HandleUartCommand(uart.WaitForNear)
	h.expectState(WaitForNear)
	if h.c.Stage() != StageIdle {
		t.Fatalf("expected stage reset on exit, got %s", h.c.Stage())
	}
}
