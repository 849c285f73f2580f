package controller

// State is the top-level interaction state of the skull.
type State int

const (
	Idle State = iota
	PlayWelcome
	WaitForNear
	PlayFingerPrompt
	MouthOpenWaitFinger
	FingerDetected
	SnapWithFinger
	SnapNoFinger
	FortuneFlow
	FortuneDone
	Cooldown
	ManualCalibration
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case PlayWelcome:
		return "PlayWelcome"
	case WaitForNear:
		return "WaitForNear"
	case PlayFingerPrompt:
		return "PlayFingerPrompt"
	case MouthOpenWaitFinger:
		return "MouthOpenWaitFinger"
	case FingerDetected:
		return "FingerDetected"
	case SnapWithFinger:
		return "SnapWithFinger"
	case SnapNoFinger:
		return "SnapNoFinger"
	case FortuneFlow:
		return "FortuneFlow"
	case FortuneDone:
		return "FortuneDone"
	case Cooldown:
		return "Cooldown"
	case ManualCalibration:
		return "ManualCalibration"
	}
	return "Unknown"
}

// CalibrationStage is the sub-state while in ManualCalibration.
type CalibrationStage int

const (
	StageIdle CalibrationStage = iota
	StagePreBlink
	StageWaitBeforeCalibration
	StageCalibrating
	StageCompletionBlink
)

func (s CalibrationStage) String() string {
	switch s {
	case StagePreBlink:
		return "PreBlink"
	case StageWaitBeforeCalibration:
		return "WaitBeforeCalibration"
	case StageCalibrating:
		return "Calibrating"
	case StageCompletionBlink:
		return "CompletionBlink"
	}
	return "Idle"
}

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}

// ConfigSnapshot is the controller's view of device configuration.
// Zero values are replaced with defaults by Normalized.
type ConfigSnapshot struct {
	WelcomeDir         string
	FingerPromptDir    string
	FingerSnapDir      string
	NoFingerDir        string
	FortunePreambleDir string
	FortuneDoneDir     string

	FortuneTemplateCandidates []string

	FingerStableMs uint32
	FingerWaitMs   uint32
	SnapDelayMinMs uint32
	SnapDelayMaxMs uint32
	CooldownMs     uint32
}

// Actions is the batch of side effects requested since the last ClearActions.
type Actions struct {
	AudioToQueue []string

	MouthOpen         bool
	MouthClose        bool
	MouthPulseEnable  bool
	MouthPulseDisable bool

	LEDPrompt         bool
	LEDIdle           bool
	LEDFingerDetected bool

	RemoteDebugPause  bool
	RemoteDebugResume bool

	ResetFortuneState bool

	PrintRequested bool
	FortuneText    string
}

// Empty reports whether the batch requests nothing.
func (a Actions) Empty() bool {
	return len(a.AudioToQueue) == 0 && !a.MouthOpen && !a.MouthClose &&
		!a.MouthPulseEnable && !a.MouthPulseDisable && !a.LEDPrompt && !a.LEDIdle &&
		!a.LEDFingerDetected && !a.RemoteDebugPause && !a.RemoteDebugResume &&
		!a.ResetFortuneState && !a.PrintRequested && a.FortuneText == ""
}

// FingerReadout is the touch sensor sample passed to every Update.
type FingerReadout struct {
	Detected        bool    `json:"detected"`
	Stable          bool    `json:"stable"`
	NormalizedDelta float64 `json:"normalized_delta"`
	ThresholdRatio  float64 `json:"threshold_ratio"`
}

// FortuneStatus describes the fortune of the current visit.
type FortuneStatus struct {
	Text           string `json:"text,omitempty"`
	Generated      bool   `json:"generated"`
	PrintPending   bool   `json:"print_pending"`
	PrintAttempted bool   `json:"print_attempted"`
	PrintSucceeded bool   `json:"print_succeeded"`
	TemplateSource string `json:"template_source,omitempty"`
}

type Clock interface {
	NowMillis() uint32
}

type RandomSource interface {
	// NextInt returns a value in [minInclusive, maxExclusive).
	NextInt(minInclusive, maxExclusive int) int
}

type LogSink interface {
	Log(level LogLevel, tag, message string)
}

// AudioPlanner chooses clips from a directory. A PickClip call made right
// after a successful HasAvailableClip for the same directory must return the
// clip that HasAvailableClip selected.
type AudioPlanner interface {
	HasAvailableClip(dir, label string) bool
	PickClip(dir, label string) string
}

type FortuneService interface {
	EnsureLoaded(path string) bool
	GenerateFortune() string
}

type PrinterStatus interface {
	IsReady() bool
}

// CalibrationDriver performs the physical steps of a manual sensor calibration.
type CalibrationDriver interface {
	StartPreBlink()
	SetWaitMode()
	CalibrateSensor()
	StartCompletionBlink()
	IsBlinking() bool
}

// TransitionFunc observes every state change, including chained ones.
type TransitionFunc func(from, to State, reason string)

// Dependencies are the collaborators injected into a Controller. Any of them
// may be nil; the controller degrades the way it does for missing media.
type Dependencies struct {
	Clock       Clock
	Random      RandomSource
	Log         LogSink
	Audio       AudioPlanner
	Fortune     FortuneService
	Printer     PrinterStatus
	Calibration CalibrationDriver

	OnTransition TransitionFunc
}
