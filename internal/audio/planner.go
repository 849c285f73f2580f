package audio

import "sync"

// Planner adapts a Selector to the controller's planner contract: the clip
// chosen while checking availability is the one handed out by the next
// PickClip for the same directory, so a clip is counted as played once.
type Planner struct {
	sel *Selector

	mu         sync.Mutex
	cachedDir  string
	cachedClip string
}

func NewPlanner(sel *Selector) *Planner { return &Planner{sel: sel} }

func (p *Planner) HasAvailableClip(dir, label string) bool {
	clip := p.sel.Select(dir, label)
	p.mu.Lock()
	defer p.mu.Unlock()
	if clip == "" {
		p.cachedDir, p.cachedClip = "", ""
		return false
	}
	p.cachedDir, p.cachedClip = dir, clip
	return true
}

func (p *Planner) PickClip(dir, label string) string {
	p.mu.Lock()
	if p.cachedClip != "" && p.cachedDir == dir {
		clip := p.cachedClip
		p.cachedDir, p.cachedClip = "", ""
		p.mu.Unlock()
		return clip
	}
	p.mu.Unlock()
	return p.sel.Select(dir, label)
}

// Selector exposes the underlying selector for listings and health checks.
func (p *Planner) Selector() *Selector { return p.sel }
