// Package audio picks and plays the skull's voice clips.
package audio

import (
	"math"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"deathteller/skull/internal/controller"
	"deathteller/skull/internal/log"
)

const poolSize = 3

type clipStats struct {
	path         string
	plays        int
	lastPlayedMs uint32
}

type category struct {
	clips      []clipStats
	lastPlayed string
}

// Selector chooses clips from a directory, favouring clips that were played
// least often and least recently, and never repeating the previous clip when
// the directory holds more than one.
type Selector struct {
	fs     afero.Fs
	now    func() uint32
	random controller.RandomSource

	mu         sync.Mutex
	categories map[string]*category
}

func NewSelector(fs afero.Fs, now func() uint32, random controller.RandomSource) *Selector {
	return &Selector{fs: fs, now: now, random: random, categories: make(map[string]*category)}
}

// List returns the playable clips in dir: non-empty, non-hidden .wav files.
func (s *Selector) List(dir string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || e.Size() == 0 || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.EqualFold(path.Ext(name), ".wav") {
			continue
		}
		out = append(out, path.Join(dir, name))
	}
	return out, nil
}

// Select picks a clip from dir and records it as played. It returns "" when
// the directory is missing or holds no playable clips.
func (s *Selector) Select(dir, label string) string {
	if dir == "" {
		log.Warn("invalid directory for clip selection", "label", label)
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cat := s.refresh(dir, label)
	if len(cat.clips) == 0 {
		log.Warn("no playable clips", "dir", dir, "label", label, "hint", "add at least one .wav file")
		return ""
	}

	now := s.now()
	order := make([]int, len(cat.clips))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := cat.clips[order[a]], cat.clips[order[b]]
		wa, wb := weight(ca, now), weight(cb, now)
		if math.Abs(wa-wb) < 0.0001 {
			return ca.path < cb.path
		}
		return wa > wb
	})

	limit := min(poolSize, len(order))
	pool := make([]int, 0, limit)
	for _, idx := range order {
		if len(pool) >= limit {
			break
		}
		if len(cat.clips) > 1 && cat.clips[idx].path == cat.lastPlayed {
			continue
		}
		pool = append(pool, idx)
	}
	if len(pool) == 0 {
		pool = append(pool, order[:limit]...)
	}

	choice := 0
	if len(pool) > 1 && s.random != nil {
		choice = s.random.NextInt(0, len(pool))
		if choice < 0 || choice >= len(pool) {
			choice = 0
		}
	}

	picked := &cat.clips[pool[choice]]
	picked.plays++
	picked.lastPlayedMs = now
	cat.lastPlayed = picked.path
	log.Debug("selected clip", "label", label, "clip", picked.path, "plays", picked.plays)
	return picked.path
}

// PlayCount reports how often clip was selected.
func (s *Selector) PlayCount(clip string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat := s.categories[path.Dir(clip)]
	if cat == nil {
		return 0
	}
	for _, c := range cat.clips {
		if c.path == clip {
			return c.plays
		}
	}
	return 0
}

func (s *Selector) ResetStats(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat := s.categories[dir]
	if cat == nil {
		return
	}
	for i := range cat.clips {
		cat.clips[i].plays = 0
		cat.clips[i].lastPlayedMs = 0
	}
	cat.lastPlayed = ""
}

// refresh re-enumerates dir, keeping statistics for clips that still exist.
func (s *Selector) refresh(dir, label string) *category {
	cat := s.categories[dir]
	if cat == nil {
		cat = &category{}
		s.categories[dir] = cat
	}

	found, err := s.List(dir)
	if err != nil {
		log.Warn("clip directory missing or invalid", "dir", dir, "label", label, "error", err)
		cat.clips = nil
		cat.lastPlayed = ""
		return cat
	}

	prev := make(map[string]clipStats, len(cat.clips))
	for _, c := range cat.clips {
		prev[c.path] = c
	}
	updated := make([]clipStats, 0, len(found))
	stillThere := false
	for _, p := range found {
		if c, ok := prev[p]; ok {
			updated = append(updated, c)
		} else {
			updated = append(updated, clipStats{path: p})
		}
		if p == cat.lastPlayed {
			stillThere = true
		}
	}
	cat.clips = updated
	if !stillThere {
		cat.lastPlayed = ""
	}
	return cat
}

func weight(c clipStats, now uint32) float64 {
	timeFactor := math.Log(float64(now-c.lastPlayedMs) + 1)
	return timeFactor / float64(c.plays+1)
}
