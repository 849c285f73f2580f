package controller

const (
	defaultFingerWaitMs   = 6000
	defaultSnapDelayMinMs = 1000
	defaultSnapDelayMaxMs = 3000
	defaultCooldownMs     = 12000

	DefaultWelcomeDir         = "/audio/welcome"
	DefaultFingerPromptDir    = "/audio/finger_prompt"
	DefaultFingerSnapDir      = "/audio/finger_snap"
	DefaultNoFingerDir        = "/audio/no_finger"
	DefaultFortunePreambleDir = "/audio/fortune_preamble"
	DefaultFortuneDoneDir     = "/audio/fortune_told"
	DefaultFortuneTemplates   = "/printer/fortunes.json"
)

// Normalized returns a copy of c with zero durations, empty directories and
// an empty candidate list replaced by defaults. Inverted snap bounds are swapped.
func (c ConfigSnapshot) Normalized() ConfigSnapshot {
	out := c
	if out.FingerWaitMs == 0 {
		out.FingerWaitMs = defaultFingerWaitMs
	}
	if out.SnapDelayMinMs == 0 {
		out.SnapDelayMinMs = defaultSnapDelayMinMs
	}
	if out.SnapDelayMaxMs == 0 {
		out.SnapDelayMaxMs = max(out.SnapDelayMinMs, defaultSnapDelayMaxMs)
	}
	if out.SnapDelayMaxMs < out.SnapDelayMinMs {
		out.SnapDelayMinMs, out.SnapDelayMaxMs = out.SnapDelayMaxMs, out.SnapDelayMinMs
	}
	if out.CooldownMs == 0 {
		out.CooldownMs = defaultCooldownMs
	}

	out.WelcomeDir = orDefault(out.WelcomeDir, DefaultWelcomeDir)
	out.FingerPromptDir = orDefault(out.FingerPromptDir, DefaultFingerPromptDir)
	out.FingerSnapDir = orDefault(out.FingerSnapDir, DefaultFingerSnapDir)
	out.NoFingerDir = orDefault(out.NoFingerDir, DefaultNoFingerDir)
	out.FortunePreambleDir = orDefault(out.FortunePreambleDir, DefaultFortunePreambleDir)
	out.FortuneDoneDir = orDefault(out.FortuneDoneDir, DefaultFortuneDoneDir)

	out.FortuneTemplateCandidates = append([]string(nil), c.FortuneTemplateCandidates...)
	if len(out.FortuneTemplateCandidates) == 0 {
		out.FortuneTemplateCandidates = []string{DefaultFortuneTemplates}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
