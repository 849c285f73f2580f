package store

import (
	"sync"
	"time"
)

const (
	maxEvents = 200
	maxRecent = 100
)

type Event struct {
	Type    string         `json:"type"`
	VisitID string         `json:"visit_id,omitempty"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Store keeps runtime events in memory, grouped by visit, plus a short ring
// of the most recent events across all visits.
type Store struct {
	mu     sync.RWMutex
	events map[string][]Event
	order  []string
	recent []Event
	// visits kept in memory; older ones are dropped whole
	maxVisits int
}

func New() *Store {
	return &Store{
		events:    make(map[string][]Event),
		maxVisits: 50,
	}
}

// AppendEvent records an event. An empty visitID files it under the idle
// pseudo-visit "".
func (s *Store) AppendEvent(visitID, typ string, payload map[string]any) Event {
	evt := Event{Type: typ, VisitID: visitID, Ts: time.Now().UTC(), Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[visitID]; !ok {
		s.order = append(s.order, visitID)
		s.evictLocked()
	}
	s.events[visitID] = append(s.events[visitID], evt)
	// Cap events per visit to avoid unbounded growth
	if l := len(s.events[visitID]); l > maxEvents {
		// Keep space for a single truncation warning so the total stays at maxEvents
		keep := maxEvents - 1
		dropped := l - keep
		s.events[visitID] = append([]Event(nil), s.events[visitID][l-keep:]...)
		warn := Event{Type: "events_truncated", VisitID: visitID, Ts: time.Now().UTC(), Payload: map[string]any{"visit_id": visitID, "dropped": dropped, "kept": keep}}
		s.events[visitID] = append(s.events[visitID], warn)
	}
	s.recent = append(s.recent, evt)
	if len(s.recent) > maxRecent {
		s.recent = append([]Event(nil), s.recent[len(s.recent)-maxRecent:]...)
	}
	return evt
}

func (s *Store) evictLocked() {
	for len(s.order) > s.maxVisits {
		delete(s.events, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Store) ListEvents(visitID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[visitID]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// Recent returns up to limit of the newest events, oldest first.
func (s *Store) Recent(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.recent
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// ListVisitIDs returns known visits in the order they were first seen.
func (s *Store) ListVisitIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
