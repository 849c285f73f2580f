package audio

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"deathteller/skull/internal/log"
)

type EventKind int

const (
	Started EventKind = iota
	Finished
)

func (k EventKind) String() string {
	if k == Started {
		return "started"
	}
	return "finished"
}

// Event reports playback progress for one clip. Err is set on a Finished
// event when the clip could not be played to the end.
type Event struct {
	Kind EventKind
	Path string
	Err  error
}

var ErrQueueFull = errors.New("audio queue full")

// Player plays queued clips one at a time. With a player command configured
// each clip is handed to that command (for example "aplay -q"); without one,
// playback is simulated for a fixed duration.
type Player struct {
	cmd      string
	root     string
	simulate time.Duration

	queue  chan string
	events chan Event

	mu      sync.Mutex
	current string
	cancel  context.CancelFunc
}

func NewPlayer(cmd, root string, simulate time.Duration) *Player {
	return &Player{
		cmd:      strings.TrimSpace(cmd),
		root:     root,
		simulate: simulate,
		queue:    make(chan string, 16),
		events:   make(chan Event, 32),
	}
}

// Enqueue adds a clip without blocking.
func (p *Player) Enqueue(path string) error {
	select {
	case p.queue <- path:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Player) Events() <-chan Event { return p.events }

// Playing returns the clip currently playing, if any.
func (p *Player) Playing() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Skip interrupts the current clip; it still reports Finished.
func (p *Player) Skip() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run plays clips until ctx is cancelled.
func (p *Player) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case clip := <-p.queue:
			p.playOne(ctx, clip)
		}
	}
}

func (p *Player) playOne(ctx context.Context, clip string) {
	clipCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.current = clip
	p.cancel = cancel
	p.mu.Unlock()

	p.emit(ctx, Event{Kind: Started, Path: clip})
	err := p.play(clipCtx, clip)
	cancel()

	p.mu.Lock()
	p.current = ""
	p.cancel = nil
	p.mu.Unlock()

	if err != nil {
		log.Warn("clip playback failed", "clip", clip, "error", err)
	}
	p.emit(ctx, Event{Kind: Finished, Path: clip, Err: err})
}

func (p *Player) play(ctx context.Context, clip string) error {
	if p.cmd == "" {
		select {
		case <-time.After(p.simulate):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	parts := strings.Fields(p.cmd)
	args := append(parts[1:], p.resolve(clip))
	cmd := exec.CommandContext(ctx, parts[0], args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go stream(clip, stderr)
	return cmd.Wait()
}

// resolve maps a logical clip path such as /audio/welcome/a.wav onto the
// host directory that mirrors the SD card.
func (p *Player) resolve(clip string) string {
	if p.root == "" {
		return filepath.FromSlash(clip)
	}
	return filepath.Join(p.root, filepath.FromSlash(clip))
}

func (p *Player) emit(ctx context.Context, evt Event) {
	select {
	case p.events <- evt:
	case <-ctx.Done():
	}
}

func stream(clip string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug("player output", "clip", clip, "line", scanner.Text())
	}
}
