package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"deathteller/skull/internal/auth"
	"deathteller/skull/internal/config"
	"deathteller/skull/internal/controller"
	"deathteller/skull/internal/health"
	"deathteller/skull/internal/log"
	"deathteller/skull/internal/skull"
	"deathteller/skull/internal/store"
	"deathteller/skull/internal/uart"
)

// Runtime is the part of the skull runtime the API drives.
type Runtime interface {
	Status() skull.Status
	Submit(cmd uart.Command) bool
}

// FingerInjector lets the debug endpoint stand in for the touch sensor.
type FingerInjector interface {
	Set(r controller.FingerReadout)
	Release()
}

type VisitLog interface {
	RecentVisits(ctx context.Context, limit int) ([]store.Visit, error)
	CountPrinted(ctx context.Context) (int, error)
}

// PrinterControl clears a latched printer fault.
type PrinterControl interface {
	Reset()
	Printed() int
	IsReady() bool
}

type HealthCheck func(ctx context.Context) health.HealthStatus

type Handlers struct {
	cfg    config.Config
	rt     Runtime
	store  *store.Store
	finger FingerInjector
	visits VisitLog
	check  HealthCheck
	prn    PrinterControl
}

func NewHandlers(cfg config.Config, rt Runtime, st *store.Store, finger FingerInjector, visits VisitLog, check HealthCheck) *Handlers {
	return &Handlers{cfg: cfg, rt: rt, store: st, finger: finger, visits: visits, check: check}
}

// WithPrinter enables /debug/printer-reset.
func (h *Handlers) WithPrinter(p PrinterControl) *Handlers {
	h.prn = p
	return h
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.check == nil {
		http.Error(w, "health checks not configured", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	status := h.check(ctx)
	code := http.StatusOK
	if !status.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rt.Status())
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("visit_id"); id != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"visit_id": id,
			"events":   h.store.ListEvents(id),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": h.store.Recent(queryInt(r, "limit", 50)),
	})
}

func (h *Handlers) HandleListFortunes(w http.ResponseWriter, r *http.Request) {
	if h.visits == nil {
		http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
		return
	}
	visits, err := h.visits.RecentVisits(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		log.Error("list visits failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	printed, err := h.visits.CountPrinted(r.Context())
	if err != nil {
		log.Error("count printed failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if visits == nil {
		visits = []store.Visit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"visits":        visits,
		"printed_total": printed,
	})
}

func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request, name string) {
	cmd, ok := uart.ParseCommand(name)
	if !ok {
		http.Error(w, "unknown command "+name, http.StatusBadRequest)
		return
	}
	accepted := h.rt.Submit(cmd)
	h.store.AppendEvent("", "api_command", map[string]any{"command": cmd.String(), "accepted": accepted})
	code := http.StatusAccepted
	if !accepted {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"command": cmd.String(), "accepted": accepted})
}

// HandleDebugFinger sets the simulated finger readout. An empty body or
// {"release": true} clears it.
func (h *Handlers) HandleDebugFinger(w http.ResponseWriter, r *http.Request) {
	if h.finger == nil {
		http.Error(w, "finger sensor unavailable", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		controller.FingerReadout
		Release bool `json:"release"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		body.Release = true
	}
	if body.Release {
		h.finger.Release()
	} else {
		h.finger.Set(body.FingerReadout)
	}
	h.store.AppendEvent("", "debug_finger", map[string]any{
		"detected": body.Detected, "stable": body.Stable, "release": body.Release,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) HandlePrinterReset(w http.ResponseWriter, r *http.Request) {
	if h.prn == nil {
		http.Error(w, "printer unavailable", http.StatusServiceUnavailable)
		return
	}
	h.prn.Reset()
	h.store.AppendEvent("", "printer_reset", nil)
	writeJSON(w, http.StatusOK, map[string]any{"ready": h.prn.IsReady(), "printed": h.prn.Printed()})
}

// HandleMintPeerToken issues a token a peer presents on /ws/peer. Only
// callers on the skull itself may mint one.
func (h *Handlers) HandleMintPeerToken(w http.ResponseWriter, r *http.Request) {
	if !fromLoopback(r) {
		log.Warn("peer token request refused", "remote", r.RemoteAddr)
		http.Error(w, "peer tokens are issued to localhost only", http.StatusForbidden)
		return
	}
	peerID := r.URL.Query().Get("peer_id")
	if peerID == "" {
		http.Error(w, "missing peer_id", http.StatusBadRequest)
		return
	}
	if h.cfg.Peer.TokenSecret == "" {
		http.Error(w, "PEER_TOKEN_SECRET not set", http.StatusBadRequest)
		return
	}
	ttl := time.Duration(h.cfg.Peer.TokenTTLMin) * time.Minute
	now := time.Now()
	token, err := auth.MintPeerToken(h.cfg.Peer.TokenSecret, peerID, now, ttl)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.store.AppendEvent("", "peer_token_minted", map[string]any{"peer_id": peerID})
	writeJSON(w, http.StatusOK, map[string]any{
		"peer_id":    peerID,
		"token":      token,
		"expires_at": now.Add(ttl).Unix(),
	})
}

func fromLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
