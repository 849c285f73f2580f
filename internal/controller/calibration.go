package controller

const (
	strongTouchMultiplier = 10
	calibrationHoldMs     = 3000
	calibrationWaitMs     = 5000
	calibrationSettleMs   = 1500
)

// Stage returns the manual calibration stage, StageIdle outside ManualCalibration.
func (c *Controller) Stage() CalibrationStage { return c.stage }

// updateCalibrationHold watches for a strong touch held continuously while
// Idle. Any interruption restarts the hold.
func (c *Controller) updateCalibrationHold(now uint32, f FingerReadout) bool {
	strong := f.ThresholdRatio > 0 && f.NormalizedDelta >= f.ThresholdRatio*strongTouchMultiplier
	if !strong {
		c.holdActive = false
		return false
	}
	if !c.holdActive {
		c.holdActive = true
		c.holdStartMs = now
		c.logf(LevelDebug, "manual calibration hold started (delta=%.4f threshold=%.4f)",
			f.NormalizedDelta, f.ThresholdRatio*strongTouchMultiplier)
		return false
	}
	if held := elapsedMs(now, c.holdStartMs); held >= calibrationHoldMs {
		c.logf(LevelDebug, "manual calibration hold satisfied after %dms", held)
		c.transitionTo(ManualCalibration, now, "manual calibration requested")
		return true
	}
	return false
}

func (c *Controller) startCalibration(now uint32) {
	c.stage = StagePreBlink
	c.stageStartMs = now
	c.holdActive = false
	if c.deps.Calibration != nil {
		c.deps.Calibration.StartPreBlink()
	}
	c.logf(LevelInfo, "manual calibration: pre-blink")
}

func (c *Controller) blinking() bool {
	return c.deps.Calibration != nil && c.deps.Calibration.IsBlinking()
}

func (c *Controller) setStage(s CalibrationStage, now uint32) {
	c.stage = s
	c.stageStartMs = now
	c.logf(LevelInfo, "manual calibration: %s", s)
}

// updateCalibration drives the calibration stages. It has no overall timeout;
// a stuck driver keeps the skull in ManualCalibration until a forced command.
func (c *Controller) updateCalibration(now uint32) bool {
	d := c.deps.Calibration
	switch c.stage {
	case StagePreBlink:
		if !c.blinking() {
			c.setStage(StageWaitBeforeCalibration, now)
			if d != nil {
				d.SetWaitMode()
			}
		}
	case StageWaitBeforeCalibration:
		if elapsedMs(now, c.stageStartMs) >= calibrationWaitMs {
			if d != nil {
				d.CalibrateSensor()
			}
			c.setStage(StageCalibrating, now)
		}
	case StageCalibrating:
		if elapsedMs(now, c.stageStartMs) >= calibrationSettleMs {
			if d != nil {
				d.StartCompletionBlink()
			}
			c.setStage(StageCompletionBlink, now)
		}
	case StageCompletionBlink:
		if !c.blinking() {
			c.transitionTo(Idle, now, "manual calibration finished")
			return true
		}
	}
	return false
}
