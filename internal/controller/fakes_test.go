package controller

import (
	"fmt"
	"strings"
	"testing"
)

type fakeClock struct{ now uint32 }

func (c *fakeClock) NowMillis() uint32 { return c.now }

type fakeRandom struct {
	forced bool
	value  int
	calls  [][2]int
}

func (r *fakeRandom) NextInt(minInclusive, maxExclusive int) int {
	r.calls = append(r.calls, [2]int{minInclusive, maxExclusive})
	if r.forced {
		return r.value
	}
	return minInclusive
}

type fakeAudio struct {
	catalog map[string][]string
	picks   []string
}

func (a *fakeAudio) HasAvailableClip(dir, label string) bool { return len(a.catalog[dir]) > 0 }

func (a *fakeAudio) PickClip(dir, label string) string {
	clips := a.catalog[dir]
	if len(clips) == 0 {
		return ""
	}
	a.picks = append(a.picks, clips[0])
	return clips[0]
}

type fakeFortune struct {
	loadable  map[string]bool
	loads     []string
	text      string
	generated int
}

func (f *fakeFortune) EnsureLoaded(path string) bool {
	f.loads = append(f.loads, path)
	return f.loadable[path]
}

func (f *fakeFortune) GenerateFortune() string {
	f.generated++
	return f.text
}

type fakePrinter struct{ ready bool }

func (p *fakePrinter) IsReady() bool { return p.ready }

type fakeDriver struct {
	preBlinks, waitModes, calibrations, completionBlinks int
	blinking                                            bool
}

func (d *fakeDriver) StartPreBlink()        { d.preBlinks++; d.blinking = true }
func (d *fakeDriver) SetWaitMode()          { d.waitModes++ }
func (d *fakeDriver) CalibrateSensor()      { d.calibrations++ }
func (d *fakeDriver) StartCompletionBlink() { d.completionBlinks++; d.blinking = true }
func (d *fakeDriver) IsBlinking() bool      { return d.blinking }
func (d *fakeDriver) finishBlink()          { d.blinking = false }

type recordingLog struct{ lines []string }

func (l *recordingLog) Log(level LogLevel, tag, message string) {
	l.lines = append(l.lines, fmt.Sprintf("%s [%s] %s", level, tag, message))
}

func (l *recordingLog) count(level LogLevel, substr string) int {
	n := 0
	for _, line := range l.lines {
		if strings.HasPrefix(line, level.String()+" ") && strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

var testDirs = []string{
	DefaultWelcomeDir, DefaultFingerPromptDir, DefaultFingerSnapDir,
	DefaultNoFingerDir, DefaultFortunePreambleDir, DefaultFortuneDoneDir,
}

func fullCatalog() *fakeAudio {
	a := &fakeAudio{catalog: map[string][]string{}}
	for _, dir := range testDirs {
		a.catalog[dir] = []string{dir + "/clip1.wav"}
	}
	return a
}

func testConfig() ConfigSnapshot {
	return ConfigSnapshot{
		WelcomeDir:                DefaultWelcomeDir,
		FingerPromptDir:           DefaultFingerPromptDir,
		FingerSnapDir:             DefaultFingerSnapDir,
		NoFingerDir:               DefaultNoFingerDir,
		FortunePreambleDir:        DefaultFortunePreambleDir,
		FortuneDoneDir:            DefaultFortuneDoneDir,
		FortuneTemplateCandidates: []string{"/printer/fortunes.json"},
		FingerStableMs:            120,
		FingerWaitMs:              6000,
		SnapDelayMinMs:            1000,
		SnapDelayMaxMs:            2000,
		CooldownMs:                12000,
	}
}

type harness struct {
	t       *testing.T
	clock   *fakeClock
	random  *fakeRandom
	audio   *fakeAudio
	fortune *fakeFortune
	printer *fakePrinter
	driver  *fakeDriver
	logs    *recordingLog

	transitions []string
	c           *Controller
}

func newHarness(t *testing.T, mutate func(*ConfigSnapshot)) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		clock:   &fakeClock{},
		random:  &fakeRandom{},
		audio:   fullCatalog(),
		fortune: &fakeFortune{loadable: map[string]bool{"/printer/fortunes.json": true}, text: "You will meet a tall skeleton."},
		printer: &fakePrinter{ready: true},
		driver:  &fakeDriver{},
		logs:    &recordingLog{},
	}
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h.c = New(Dependencies{
		Clock:       h.clock,
		Random:      h.random,
		Log:         h.logs,
		Audio:       h.audio,
		Fortune:     h.fortune,
		Printer:     h.printer,
		Calibration: h.driver,
		OnTransition: func(from, to State, reason string) {
			h.transitions = append(h.transitions, from.String()+"->"+to.String())
		},
	})
	h.c.Initialize(cfg)
	h.c.ClearActions()
	h.transitions = nil
	return h
}

func (h *harness) at(ms uint32) *harness {
	h.clock.now = ms
	return h
}

func (h *harness) update(ms uint32, f FingerReadout) {
	h.clock.now = ms
	h.c.Update(ms, f)
}

func (h *harness) expectState(want State) {
	h.t.Helper()
	if got := h.c.State(); got != want {
		h.t.Fatalf("expected state %s, got %s (transitions %v)", want, got, h.transitions)
	}
}

func (h *harness) actions() Actions {
	a := h.c.PendingActions()
	h.c.ClearActions()
	return a
}

func (h *harness) removeAudio(dir string) { delete(h.audio.catalog, dir) }
