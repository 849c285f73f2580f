package controller

import "strings"

const (
	printWindowMinMs = 250
	printWindowMaxMs = 1500

	fallbackFortune = "The spirits are silent..."
)

// fortuneCycle is the bookkeeping of one visit's fortune. It survives state
// transitions and is cleared when a new visit starts or the skull rests.
type fortuneCycle struct {
	text      string
	generated bool
	attempted bool
	succeeded bool

	pending        bool
	windowOpen     bool
	windowOpenedMs uint32
}

// templateCache remembers the candidate that loaded, once per configuration.
type templateCache struct {
	loaded bool
	source string
}

// Fortune reports the fortune bookkeeping of the current visit.
func (c *Controller) Fortune() FortuneStatus {
	return FortuneStatus{
		Text:           c.fortune.text,
		Generated:      c.fortune.generated,
		PrintPending:   c.fortune.pending,
		PrintAttempted: c.fortune.attempted,
		PrintSucceeded: c.fortune.succeeded,
		TemplateSource: c.templates.source,
	}
}

func (c *Controller) resetFortune() {
	c.fortune = fortuneCycle{}
	c.actions.ResetFortuneState = true
}

func (c *Controller) enterFortuneFlow(now uint32) {
	c.ensureFortune()
	if c.queueClip(c.cfg.FortunePreambleDir, "fortune preamble") {
		if !c.fortune.attempted {
			c.fortune.pending = true
			c.fortune.windowOpen = false
		}
		return
	}

	queued := c.requestPrint()
	text := c.fortune.text
	c.transitionTo(FortuneDone, now, "fortune preamble missing")
	if queued {
		c.actions.PrintRequested = true
		c.actions.FortuneText = text
	}
}

func (c *Controller) openPrintWindow(path string) {
	f := &c.fortune
	if !f.pending || f.windowOpen {
		return
	}
	dir := strings.TrimSuffix(c.cfg.FortunePreambleDir, "/")
	if !strings.HasPrefix(path, dir+"/") {
		return
	}
	f.windowOpen = true
	f.windowOpenedMs = c.now()
	c.logf(LevelInfo, "fortune preamble started; printer window open")
}

// updatePrintWindow makes at most one print attempt per visit, on the first
// tick that lands inside the window. A window first observed after it has
// closed is abandoned.
func (c *Controller) updatePrintWindow(now uint32) {
	f := &c.fortune
	if !f.pending || !f.windowOpen || f.attempted {
		return
	}
	elapsed := elapsedMs(now, f.windowOpenedMs)
	switch {
	case elapsed > printWindowMaxMs:
		c.logf(LevelWarn, "fortune print window elapsed after %dms; print abandoned", elapsed)
		f.pending = false
		f.windowOpen = false
	case elapsed >= printWindowMinMs:
		c.requestPrint()
	}
}

func (c *Controller) ensureFortune() {
	if c.fortune.generated {
		return
	}
	text := ""
	if c.deps.Fortune != nil && c.ensureTemplates() {
		text = c.deps.Fortune.GenerateFortune()
	} else {
		c.logf(LevelWarn, "fortune templates unavailable; using fallback fortune")
	}
	if text == "" {
		text = fallbackFortune
	}
	c.fortune.text = text
	c.fortune.generated = true
	c.fortune.attempted = false
	c.fortune.succeeded = false
	c.actions.FortuneText = text
	c.logf(LevelInfo, "generated fortune: %s", text)
}

func (c *Controller) ensureTemplates() bool {
	if c.templates.loaded {
		return true
	}
	candidates := c.cfg.FortuneTemplateCandidates
	if c.deps.Fortune == nil || len(candidates) == 0 {
		return false
	}
	start := 0
	if c.deps.Random != nil {
		start = c.deps.Random.NextInt(0, len(candidates))
		if start < 0 || start >= len(candidates) {
			start = 0
		}
	}
	for i := range candidates {
		path := candidates[(start+i)%len(candidates)]
		if path == "" {
			continue
		}
		if c.deps.Fortune.EnsureLoaded(path) {
			c.templates = templateCache{loaded: true, source: path}
			c.logf(LevelInfo, "fortune templates loaded from %s", path)
			return true
		}
	}
	c.logf(LevelWarn, "could not load fortune templates from %d candidates", len(candidates))
	return false
}

// requestPrint records a print attempt and, when the printer is ready, asks
// the owner to print. It reports whether a job was requested.
func (c *Controller) requestPrint() bool {
	c.ensureFortune()
	f := &c.fortune
	f.attempted = true
	f.pending = false
	f.windowOpen = false
	f.succeeded = false

	if c.deps.Printer == nil {
		c.logf(LevelWarn, "printer status missing; fortune will not be printed")
		return false
	}
	if !c.deps.Printer.IsReady() {
		c.logf(LevelWarn, "printer not ready; skipping fortune print")
		return false
	}
	c.actions.PrintRequested = true
	c.actions.FortuneText = f.text
	f.succeeded = true
	c.logf(LevelInfo, "thermal printer job requested")
	return true
}
