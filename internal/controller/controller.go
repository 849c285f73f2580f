// Package controller sequences a single visitor interaction with the skull:
// approach, finger prompt, snap, fortune and cooldown. It performs no I/O for
// the main sequence; every side effect is described in an Actions batch that
// the owner applies and then drains with ClearActions.
package controller

import (
	"fmt"

	"deathteller/skull/internal/uart"
)

const (
	logTag = "DeathController"

	triggerDebounceMs   = 2000
	mouthPulseDelayMs   = 250
	fingerRemovedWarnMs = 1000
)

// Controller is not safe for concurrent use. The owner must call it from a
// single loop and drain PendingActions after every call that can transition.
type Controller struct {
	deps Dependencies
	cfg  ConfigSnapshot

	state       State
	enteredAtMs uint32
	actions     Actions

	triggerAccepted bool
	lastTriggerMs   uint32

	mouthPulseOn bool

	snapScheduled bool
	snapDelayMs   uint32

	fingerWarned     bool
	lastFingerWarnMs uint32

	fortune   fortuneCycle
	templates templateCache

	stage        CalibrationStage
	stageStartMs uint32
	holdActive   bool
	holdStartMs  uint32
}

func New(deps Dependencies) *Controller {
	return &Controller{deps: deps, cfg: ConfigSnapshot{}.Normalized()}
}

// Initialize applies cfg (normalized) and re-arms the controller in Idle.
// It may be called again to reconfigure a running controller.
func (c *Controller) Initialize(cfg ConfigSnapshot) {
	now := c.now()
	c.cfg = cfg.Normalized()
	c.triggerAccepted = false
	c.lastTriggerMs = 0
	c.templates = templateCache{}
	c.holdActive = false
	c.logf(LevelInfo, "configured finger_wait=%dms snap=%d-%dms cooldown=%dms candidates=%d",
		c.cfg.FingerWaitMs, c.cfg.SnapDelayMinMs, c.cfg.SnapDelayMaxMs, c.cfg.CooldownMs,
		len(c.cfg.FortuneTemplateCandidates))
	c.enter(Idle, now, "initialization")
}

func (c *Controller) State() State { return c.state }

// Config returns the normalized configuration in effect.
func (c *Controller) Config() ConfigSnapshot { return c.cfg }

// PendingActions returns a copy of the current action batch.
func (c *Controller) PendingActions() Actions {
	out := c.actions
	out.AudioToQueue = append([]string(nil), c.actions.AudioToQueue...)
	return out
}

func (c *Controller) ClearActions() { c.actions = Actions{} }

// Update advances timers. nowMs is used for every timing decision of the tick.
func (c *Controller) Update(nowMs uint32, finger FingerReadout) {
	switch c.state {
	case MouthOpenWaitFinger:
		if c.updateWaitFinger(nowMs, finger) {
			return
		}
	case FingerDetected:
		if c.updateFingerDetected(nowMs, finger) {
			return
		}
	case Cooldown:
		if elapsedMs(nowMs, c.enteredAtMs) >= c.cfg.CooldownMs {
			c.transitionTo(Cooldown.next(), nowMs, "cooldown elapsed")
			return
		}
	case ManualCalibration:
		if c.updateCalibration(nowMs) {
			return
		}
	}

	if c.state == Idle {
		if c.updateCalibrationHold(nowMs, finger) {
			return
		}
	} else {
		c.holdActive = false
	}

	c.updatePrintWindow(nowMs)
}

func (c *Controller) updateWaitFinger(now uint32, finger FingerReadout) bool {
	if !c.mouthPulseOn && elapsedMs(now, c.enteredAtMs) >= mouthPulseDelayMs {
		c.actions.MouthPulseEnable = true
		c.mouthPulseOn = true
	}
	if finger.Stable {
		c.transitionTo(FingerDetected, now, "finger stabilized")
		return true
	}
	if elapsed := elapsedMs(now, c.enteredAtMs); elapsed >= c.cfg.FingerWaitMs {
		c.logf(LevelInfo, "finger wait timeout after %dms (configured %dms)", elapsed, c.cfg.FingerWaitMs)
		c.transitionTo(SnapNoFinger, now, "finger wait timeout")
		return true
	}
	return false
}

func (c *Controller) updateFingerDetected(now uint32, finger FingerReadout) bool {
	if !c.snapScheduled {
		c.scheduleSnapDelay()
	}
	if elapsedMs(now, c.enteredAtMs) >= c.snapDelayMs {
		c.transitionTo(SnapWithFinger, now, "snap delay elapsed")
		return true
	}
	if !finger.Detected && (!c.fingerWarned || elapsedMs(now, c.lastFingerWarnMs) >= fingerRemovedWarnMs) {
		c.logf(LevelWarn, "finger removed after detection; continuing countdown")
		c.fingerWarned = true
		c.lastFingerWarnMs = now
	}
	return false
}

func (c *Controller) scheduleSnapDelay() {
	lo := c.cfg.SnapDelayMinMs
	hi := max(c.cfg.SnapDelayMaxMs, lo)
	d := lo
	if c.deps.Random != nil {
		v := c.deps.Random.NextInt(int(lo), int(hi)+1)
		d = uint32(min(max(v, int(lo)), int(hi)))
	}
	c.snapDelayMs = d
	c.snapScheduled = true
	c.logf(LevelInfo, "snap delay scheduled (%dms)", d)
}

// HandleUartCommand applies a command received from the peer.
func (c *Controller) HandleUartCommand(cmd uart.Command) {
	switch {
	case cmd == uart.None:
		return
	case cmd.IsTrigger():
		c.handleTrigger(cmd, c.now())
	case cmd.IsForcedState():
		target, _ := stateForCommand(cmd)
		c.logf(LevelWarn, "state forcing command received: %s -> %s", cmd, target)
		c.transitionTo(target, c.now(), "forced via "+cmd.String())
	case cmd.IsLegacy():
		c.logf(LevelInfo, "legacy command %s ignored", cmd)
	case cmd.IsHandshake():
		c.logf(LevelInfo, "peer handshake %s", cmd)
	default:
		c.logf(LevelWarn, "unknown command %d ignored", int(cmd))
	}
}

func (c *Controller) handleTrigger(cmd uart.Command, now uint32) {
	if c.triggerAccepted && elapsedMs(now, c.lastTriggerMs) < triggerDebounceMs {
		c.logf(LevelWarn, "trigger %s debounced", cmd)
		return
	}
	switch cmd {
	case uart.FarMotionTrigger:
		if c.isBusy() {
			c.logf(LevelWarn, "ignoring FAR trigger while busy (state=%s)", c.state)
			return
		}
		c.acceptTrigger(now)
		c.transitionTo(PlayWelcome, now, "FAR trigger")
	case uart.NearMotionTrigger:
		if c.state != WaitForNear {
			c.logf(LevelWarn, "NEAR trigger dropped in state %s", c.state)
			return
		}
		c.acceptTrigger(now)
		c.transitionTo(PlayFingerPrompt, now, "NEAR trigger")
	}
}

func (c *Controller) acceptTrigger(now uint32) {
	c.triggerAccepted = true
	c.lastTriggerMs = now
}

func (c *Controller) isBusy() bool { return c.state != Idle }

// HandleAudioStarted opens the print window when the fortune preamble starts.
func (c *Controller) HandleAudioStarted(path string) {
	if c.state != FortuneFlow {
		return
	}
	c.openPrintWindow(path)
}

// HandleAudioFinished advances audio-bearing states. The path is informational.
func (c *Controller) HandleAudioFinished(path string) {
	switch c.state {
	case PlayWelcome, PlayFingerPrompt, SnapWithFinger, SnapNoFinger, FortuneFlow, FortuneDone:
		c.transitionTo(c.state.next(), c.now(), "audio finished: "+path)
	}
}

// next is the state an audio-bearing or timed state advances to.
func (s State) next() State {
	switch s {
	case PlayWelcome:
		return WaitForNear
	case PlayFingerPrompt:
		return MouthOpenWaitFinger
	case SnapWithFinger, SnapNoFinger:
		return FortuneFlow
	case FortuneFlow:
		return FortuneDone
	case FortuneDone:
		return Cooldown
	}
	return Idle
}

func (c *Controller) transitionTo(next State, now uint32, reason string) {
	if next == c.state {
		c.logf(LevelDebug, "state %s already active (%s)", next, reason)
		return
	}
	c.enter(next, now, reason)
}

// enter switches to next unconditionally and emits its entry actions.
func (c *Controller) enter(next State, now uint32, reason string) {
	prev := c.state
	c.actions = Actions{}
	c.mouthPulseOn = false
	c.snapScheduled = false
	c.snapDelayMs = 0
	c.fingerWarned = false
	c.lastFingerWarnMs = 0
	if prev == ManualCalibration && next != ManualCalibration {
		c.stage = StageIdle
	}

	c.state = next
	c.enteredAtMs = now
	c.logf(LevelInfo, "%s -> %s (%s)", prev, next, reason)
	if c.deps.OnTransition != nil {
		c.deps.OnTransition(prev, next, reason)
	}

	a := &c.actions
	switch next {
	case Idle:
		c.resetFortune()
		a.MouthClose = true
		a.LEDIdle = true
		a.MouthPulseDisable = true

	case PlayWelcome:
		c.resetFortune()
		a.MouthClose = true
		a.LEDPrompt = true
		c.queueOrAdvance(c.cfg.WelcomeDir, "welcome", now)

	case WaitForNear:
		a.MouthClose = true
		a.LEDIdle = true

	case PlayFingerPrompt:
		a.LEDPrompt = true
		c.queueOrAdvance(c.cfg.FingerPromptDir, "finger prompt", now)

	case MouthOpenWaitFinger:
		a.MouthOpen = true
		a.LEDPrompt = true
		a.MouthPulseDisable = true

	case FingerDetected:
		a.LEDFingerDetected = true
		a.MouthOpen = true
		c.scheduleSnapDelay()

	case SnapWithFinger:
		a.MouthClose = true
		a.LEDIdle = true
		c.queueOrAdvance(c.cfg.FingerSnapDir, "finger snap", now)

	case SnapNoFinger:
		a.MouthClose = true
		a.LEDIdle = true
		c.queueOrAdvance(c.cfg.NoFingerDir, "no finger response", now)

	case FortuneFlow:
		a.MouthOpen = true
		a.LEDPrompt = true
		c.enterFortuneFlow(now)

	case FortuneDone:
		a.MouthClose = true
		a.LEDIdle = true
		c.queueOrAdvance(c.cfg.FortuneDoneDir, "fortune done", now)

	case Cooldown:
		a.MouthClose = true
		a.LEDIdle = true
		if c.fortune.attempted {
			c.logf(LevelInfo, "fortune cycle summary: printed=%t text=%q", c.fortune.succeeded, c.fortune.text)
		}

	case ManualCalibration:
		c.startCalibration(now)
	}
}

// queueOrAdvance queues a clip for the current state or, when none is
// available, moves straight on to the state that would follow it.
func (c *Controller) queueOrAdvance(dir, label string, now uint32) {
	if c.queueClip(dir, label) {
		return
	}
	c.transitionTo(c.state.next(), now, label+" audio missing")
}

func (c *Controller) queueClip(dir, label string) bool {
	if c.deps.Audio == nil {
		c.logf(LevelWarn, "audio planner missing; cannot queue %s", label)
		return false
	}
	if dir == "" {
		c.logf(LevelWarn, "audio directory empty for %s", label)
		return false
	}
	if !c.deps.Audio.HasAvailableClip(dir, label) {
		c.logf(LevelWarn, "no audio available in %s for %s", dir, label)
		return false
	}
	clip := c.deps.Audio.PickClip(dir, label)
	if clip == "" {
		c.logf(LevelWarn, "audio planner returned empty clip for %s", label)
		return false
	}
	c.actions.AudioToQueue = append(c.actions.AudioToQueue, clip)
	c.logf(LevelInfo, "queued %s clip: %s", label, clip)
	return true
}

func stateForCommand(cmd uart.Command) (State, bool) {
	switch cmd {
	case uart.PlayWelcome:
		return PlayWelcome, true
	case uart.WaitForNear:
		return WaitForNear, true
	case uart.PlayFingerPrompt:
		return PlayFingerPrompt, true
	case uart.MouthOpenWaitFinger:
		return MouthOpenWaitFinger, true
	case uart.FingerDetected:
		return FingerDetected, true
	case uart.SnapWithFinger:
		return SnapWithFinger, true
	case uart.SnapNoFinger:
		return SnapNoFinger, true
	case uart.FortuneFlow:
		return FortuneFlow, true
	case uart.FortuneDone:
		return FortuneDone, true
	case uart.Cooldown:
		return Cooldown, true
	}
	return Idle, false
}

func (c *Controller) now() uint32 {
	if c.deps.Clock == nil {
		return 0
	}
	return c.deps.Clock.NowMillis()
}

func (c *Controller) logf(level LogLevel, format string, args ...any) {
	if c.deps.Log == nil {
		return
	}
	c.deps.Log.Log(level, logTag, fmt.Sprintf(format, args...))
}

// elapsedMs is now-since on a wrapping millisecond clock. A since that lies
// ahead of now yields 0.
func elapsedMs(now, since uint32) uint32 {
	d := now - since
	if int32(d) < 0 {
		return 0
	}
	return d
}
