package fortune

import (
	"sync"

	"deathteller/skull/internal/log"
)

// Service remembers which file the generator holds so repeated loads of the
// same path are skipped.
type Service struct {
	gen *Generator

	mu   sync.Mutex
	path string
}

func NewService(gen *Generator) *Service { return &Service{gen: gen} }

// EnsureLoaded loads path unless it is already the loaded file. An empty path
// reports whether anything is loaded.
func (s *Service) EnsureLoaded(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		return s.gen.Loaded()
	}
	if s.gen.Loaded() && path == s.path {
		return true
	}
	if err := s.gen.Load(path); err != nil {
		log.Warn("failed to load fortunes", "path", path, "error", err)
		return false
	}
	s.path = path
	return true
}

func (s *Service) GenerateFortune() string { return s.gen.Generate() }

// Path returns the loaded template file, or "" if none.
func (s *Service) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Service) Generator() *Generator { return s.gen }
