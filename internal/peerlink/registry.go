package peerlink

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	ws "nhooyr.io/websocket"

	"deathteller/skull/internal/log"
)

const broadcastTimeout = 250 * time.Millisecond

// Registry keeps at most one connection per peer.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*ws.Conn
	seq   int64
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]*ws.Conn)} }

// Replace sets the connection for a peer and closes the previous one if present.
func (r *Registry) Replace(peerID string, c *ws.Conn) (prevClosed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[peerID]; ok && old != nil {
		_ = old.Close(ws.StatusNormalClosure, "replaced")
		prevClosed = true
	}
	r.conns[peerID] = c
	metricConnections.Set(float64(len(r.conns)))
	return
}

func (r *Registry) Get(peerID string) *ws.Conn {
	r.mu.Lock(); defer r.mu.Unlock()
	return r.conns[peerID]
}

// Remove drops the peer only while c is still its registered connection, so a
// replaced handler cannot unregister its successor.
func (r *Registry) Remove(peerID string, c *ws.Conn) {
	r.mu.Lock(); defer r.mu.Unlock()
	if r.conns[peerID] == c {
		delete(r.conns, peerID)
	}
	metricConnections.Set(float64(len(r.conns)))
}

func (r *Registry) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) nextSeq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

// SendJSON writes v to one peer. A missing peer is not an error.
func (r *Registry) SendJSON(ctx context.Context, peerID string, v any) error {
	c := r.Get(peerID)
	if c == nil {
		return nil
	}
	return c.Write(ctx, ws.MessageText, mustJSON(v))
}

// Broadcast sends a status event to every connected peer. Slow peers are
// skipped after a short timeout.
func (r *Registry) Broadcast(ctx context.Context, typ string, payload map[string]any) {
	for _, id := range r.Peers() {
		msg := Message{Type: typ, TsMs: time.Now().UnixMilli(), PeerID: id, Seq: r.nextSeq(), Payload: payload}
		sendCtx, cancel := context.WithTimeout(ctx, broadcastTimeout)
		if err := r.SendJSON(sendCtx, id, msg); err != nil {
			log.Warn("peer broadcast failed", "peer_id", id, "type", typ, "error", err)
		} else {
			metricMessagesOut.WithLabelValues(typ).Inc()
		}
		cancel()
	}
}

// local helper
func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
