package fortune

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

type seqRandom struct {
	values []int
	calls  int
}

func (r *seqRandom) NextInt(minInclusive, maxExclusive int) int {
	if len(r.values) == 0 {
		return minInclusive
	}
	v := r.values[r.calls%len(r.values)]
	r.calls++
	return v
}

const sample = `{
  "version": 1,
  "templates": [
    "Beware the {{creature}} at {{place}}.",
    "A {{ creature }} will guide you.",
    "Nothing awaits."
  ],
  "wordlists": {
    "creature": ["raven", "moth"],
    "place": ["the crossroads"]
  }
}`

func newFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		if err := afero.WriteFile(fs, name, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return fs
}

func TestGenerateFillsTokens(t *testing.T) {
	fs := newFS(t, map[string]string{"/printer/fortunes.json": sample})
	r := &seqRandom{values: []int{0, 1, 0}}
	g := NewGenerator(fs, r)
	if err := g.Load("/printer/fortunes.json"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := g.Generate(); got != "Beware the moth at the crossroads." {
		t.Fatalf("unexpected fortune %q", got)
	}
	if n, w := g.Stats(); n != 3 || w != 2 {
		t.Fatalf("unexpected stats %d templates %d wordlists", n, w)
	}
}

func TestGenerateTrimsTokenNames(t *testing.T) {
	fs := newFS(t, map[string]string{"/f.json": sample})
	g := NewGenerator(fs, &seqRandom{values: []int{1, 0}})
	if err := g.Load("/f.json"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := g.Generate(); got != "A raven will guide you." {
		t.Fatalf("unexpected fortune %q", got)
	}
}

func TestGenerateLiteralTemplate(t *testing.T) {
	fs := newFS(t, map[string]string{"/f.json": sample})
	g := NewGenerator(fs, &seqRandom{values: []int{2}})
	g.Load("/f.json")
	if got := g.Generate(); got != "Nothing awaits." {
		t.Fatalf("unexpected fortune %q", got)
	}
}

func TestGenerateBeforeLoad(t *testing.T) {
	g := NewGenerator(afero.NewMemMapFs(), &seqRandom{})
	if got := g.Generate(); got != Fallback {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"not json", "{nope", ErrInvalidJSON},
		{"no version", `{"templates":[],"wordlists":{}}`, ErrMissingVersion},
		{"string version", `{"version":"1","templates":[],"wordlists":{}}`, ErrMissingVersion},
		{"templates object", `{"version":1,"templates":{},"wordlists":{}}`, ErrBadTemplates},
		{"wordlists array", `{"version":1,"templates":[],"wordlists":[]}`, ErrBadWordlists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGenerator(newFS(t, map[string]string{"/f.json": tc.body}), &seqRandom{})
			err := g.Load("/f.json")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if g.Loaded() {
				t.Fatalf("generator should not be loaded")
			}
		})
	}
}

func TestLoadRejectsTokenWithoutWords(t *testing.T) {
	body := `{"version":1,"templates":["The {{omen}} comes"],"wordlists":{"omen":[]}}`
	g := NewGenerator(newFS(t, map[string]string{"/f.json": body}), &seqRandom{})
	err := g.Load("/f.json")
	if err == nil || !strings.Contains(err.Error(), "omen") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestFailedLoadKeepsPreviousSet(t *testing.T) {
	fs := newFS(t, map[string]string{"/good.json": sample, "/bad.json": "[]"})
	g := NewGenerator(fs, &seqRandom{values: []int{2}})
	if err := g.Load("/good.json"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := g.Load("/bad.json"); err == nil {
		t.Fatalf("expected bad file to fail")
	}
	if got := g.Generate(); got != "Nothing awaits." {
		t.Fatalf("expected previous templates, got %q", got)
	}
}

func TestFillLeavesUnknownAndUnterminated(t *testing.T) {
	got := fill("{{a}} and {{b}} then {{c", map[string]string{"a": "x"})
	if got != "x and {{b}} then {{c" {
		t.Fatalf("unexpected fill %q", got)
	}
	if toks := tokens("{{a}} {{a}} {{ b }} {{}}"); len(toks) != 2 || toks[0] != "a" || toks[1] != "b" {
		t.Fatalf("unexpected tokens %v", toks)
	}
}

func TestServiceSkipsReloadOfSamePath(t *testing.T) {
	fs := newFS(t, map[string]string{"/f.json": sample})
	svc := NewService(NewGenerator(fs, &seqRandom{}))

	if svc.EnsureLoaded("") {
		t.Fatalf("nothing loaded yet")
	}
	if !svc.EnsureLoaded("/f.json") {
		t.Fatalf("expected load")
	}
	// Removing the file proves the second call does not touch the filesystem.
	fs.Remove("/f.json")
	if !svc.EnsureLoaded("/f.json") {
		t.Fatalf("expected cached load")
	}
	if svc.EnsureLoaded("/missing.json") {
		t.Fatalf("expected missing file to fail")
	}
	if svc.Path() != "/f.json" {
		t.Fatalf("failed load must not replace path, got %q", svc.Path())
	}
	if svc.GenerateFortune() == Fallback {
		t.Fatalf("expected generated fortune")
	}
}

func TestCheckDoesNotLoad(t *testing.T) {
	fs := newFS(t, map[string]string{"/f.json": sample, "/bad.json": `{"version":1}`})
	g := NewGenerator(fs, &seqRandom{})
	if err := g.Check("/f.json"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if g.Loaded() {
		t.Fatalf("check must not load templates")
	}
	if err := g.Check("/bad.json"); !errors.Is(err, ErrBadTemplates) {
		t.Fatalf("expected ErrBadTemplates, got %v", err)
	}
}
