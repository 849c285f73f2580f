// Package fortune builds fortunes from JSON template files.
package fortune

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"deathteller/skull/internal/controller"
	"deathteller/skull/internal/log"
)

const (
	Fallback     = "The spirits are silent..."
	fallbackWord = "mystery"
)

var (
	ErrInvalidJSON    = errors.New("fortune file is not valid JSON")
	ErrMissingVersion = errors.New("fortune file missing version")
	ErrBadTemplates   = errors.New("fortune file missing or invalid templates")
	ErrBadWordlists   = errors.New("fortune file missing or invalid wordlists")
)

type template struct {
	text   string
	tokens []string
}

type set struct {
	version   int64
	templates []template
	wordlists map[string][]string
}

// Generator holds one loaded template set. A failed Load keeps the previous
// set in place.
type Generator struct {
	fs     afero.Fs
	random controller.RandomSource

	mu     sync.RWMutex
	loaded *set
}

func NewGenerator(fs afero.Fs, random controller.RandomSource) *Generator {
	return &Generator{fs: fs, random: random}
}

func (g *Generator) Load(path string) error {
	raw, err := afero.ReadFile(g.fs, path)
	if err != nil {
		return fmt.Errorf("open fortune file %s: %w", path, err)
	}
	s, err := parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	g.mu.Lock()
	g.loaded = s
	g.mu.Unlock()
	log.Info("loaded fortune templates", "path", path, "templates", len(s.templates), "wordlists", len(s.wordlists))
	return nil
}

// Check parses path without replacing the loaded set.
func (g *Generator) Check(path string) error {
	raw, err := afero.ReadFile(g.fs, path)
	if err != nil {
		return fmt.Errorf("open fortune file %s: %w", path, err)
	}
	if _, err := parse(raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (g *Generator) Loaded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loaded != nil
}

// Stats reports the template and wordlist counts of the loaded set.
func (g *Generator) Stats() (templates, wordlists int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.loaded == nil {
		return 0, 0
	}
	return len(g.loaded.templates), len(g.loaded.wordlists)
}

// Generate fills a random template with random words. It returns Fallback
// when nothing is loaded.
func (g *Generator) Generate() string {
	g.mu.RLock()
	s := g.loaded
	g.mu.RUnlock()

	if s == nil || len(s.templates) == 0 {
		log.Warn("fortune requested before templates loaded")
		return Fallback
	}
	if g.random == nil {
		log.Error("random source unavailable; returning fallback fortune")
		return Fallback
	}

	t := s.templates[g.pick(len(s.templates))]
	if len(t.tokens) == 0 {
		return t.text
	}
	words := make(map[string]string, len(t.tokens))
	for _, tok := range t.tokens {
		words[tok] = g.word(s, tok)
	}
	return fill(t.text, words)
}

func (g *Generator) pick(n int) int {
	i := g.random.NextInt(0, n)
	if i < 0 || i >= n {
		return 0
	}
	return i
}

func (g *Generator) word(s *set, token string) string {
	list := s.wordlists[token]
	if len(list) == 0 {
		log.Warn("wordlist missing or empty", "token", token)
		return fallbackWord
	}
	return list[g.pick(len(list))]
}

func parse(raw []byte) (*set, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	doc := gjson.ParseBytes(raw)

	version := doc.Get("version")
	if version.Type != gjson.Number {
		return nil, ErrMissingVersion
	}
	templates := doc.Get("templates")
	if !templates.IsArray() {
		return nil, ErrBadTemplates
	}
	wordlists := doc.Get("wordlists")
	if !wordlists.IsObject() {
		return nil, ErrBadWordlists
	}

	s := &set{version: version.Int(), wordlists: make(map[string][]string)}
	wordlists.ForEach(func(key, value gjson.Result) bool {
		var words []string
		for _, w := range value.Array() {
			if w.Type == gjson.String {
				words = append(words, w.String())
			}
		}
		s.wordlists[key.String()] = words
		return true
	})
	for _, t := range templates.Array() {
		if t.Type != gjson.String {
			continue
		}
		s.templates = append(s.templates, template{text: t.String(), tokens: tokens(t.String())})
	}

	for _, t := range s.templates {
		for _, tok := range t.tokens {
			if len(s.wordlists[tok]) == 0 {
				return nil, fmt.Errorf("template %q: token %q has no words", t.text, tok)
			}
		}
	}
	return s, nil
}

// tokens lists the distinct {{name}} tokens of text in order of appearance.
func tokens(text string) []string {
	var out []string
	seen := make(map[string]bool)
	rest := text
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			return out
		}
		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			return out
		}
		tok := strings.TrimSpace(rest[start+2 : start+2+end])
		if tok != "" && !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
		rest = rest[start+2+end+2:]
	}
}

// fill substitutes tokens. Tokens without a replacement and unterminated
// openers are left as written.
func fill(text string, words map[string]string) string {
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:start])
		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			b.WriteString(rest[start:])
			return b.String()
		}
		tok := strings.TrimSpace(rest[start+2 : start+2+end])
		if w, ok := words[tok]; ok {
			b.WriteString(w)
		} else {
			b.WriteString("{{" + tok + "}}")
		}
		rest = rest[start+2+end+2:]
	}
}
