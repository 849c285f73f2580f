package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deathteller/skull/internal/auth"
	"deathteller/skull/internal/config"
	"deathteller/skull/internal/controller"
	"deathteller/skull/internal/health"
	"deathteller/skull/internal/skull"
	"deathteller/skull/internal/store"
	"deathteller/skull/internal/uart"
)

type mockRuntime struct {
	cmds   []uart.Command
	refuse bool
}

func (m *mockRuntime) Status() skull.Status { return skull.Status{State: "Idle", LightScene: "idle"} }
func (m *mockRuntime) Submit(cmd uart.Command) bool {
	if m.refuse {
		return false
	}
	m.cmds = append(m.cmds, cmd)
	return true
}

type mockFinger struct {
	last     controller.FingerReadout
	released int
}

func (m *mockFinger) Set(r controller.FingerReadout) { m.last = r }
func (m *mockFinger) Release() { m.released++ }

type mockVisits struct{ visits []store.Visit }

func (m *mockVisits) RecentVisits(ctx context.Context, limit int) ([]store.Visit, error) {
	return m.visits, nil
}
func (m *mockVisits) CountPrinted(ctx context.Context) (int, error) { return len(m.visits), nil }

type mockPrinter struct{ resets int }

func (m *mockPrinter) Reset() { m.resets++ }
func (m *mockPrinter) Printed() int { return 3 }
func (m *mockPrinter) IsReady() bool { return true }

type rig struct {
	srv    *httptest.Server
	rt     *mockRuntime
	finger *mockFinger
	prn    *mockPrinter
	st     *store.Store
}

func newRig(t *testing.T, healthy bool) *rig {
	t.Helper()
	var cfg config.Config
	cfg.Peer.TokenSecret = "s3cret"
	cfg.Peer.TokenTTLMin = 10
	g := &rig{rt: &mockRuntime{}, finger: &mockFinger{}, prn: &mockPrinter{}, st: store.New()}
	visits := &mockVisits{visits: []store.Visit{{ID: "v1", Fortune: "Beware.", PrintSucceeded: true}}}
	check := func(context.Context) health.HealthStatus { return health.HealthStatus{OK: healthy} }
	g.srv = httptest.NewServer(NewRouter(NewHandlers(cfg, g.rt, g.st, g.finger, visits, check).WithPrinter(g.prn)))
	t.Cleanup(g.srv.Close)
	return g
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestCommandSubmitted(t *testing.T) {
	g := newRig(t, true)
	resp, err := http.Post(g.srv.URL+"/commands/far_motion_trigger", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if body := decode(t, resp); body["command"] != "FAR_MOTION_TRIGGER" {
		t.Fatalf("unexpected body %v", body)
	}
	if len(g.rt.cmds) != 1 || g.rt.cmds[0] != uart.FarMotionTrigger {
		t.Fatalf("unexpected commands %v", g.rt.cmds)
	}
	if len(g.st.Recent(10)) != 1 {
		t.Fatalf("expected api_command event")
	}
}

func TestCommandErrors(t *testing.T) {
	g := newRig(t, true)
	resp, err := http.Post(g.srv.URL+"/commands/DANCE", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp, err = http.Get(g.srv.URL + "/commands/FAR_MOTION_TRIGGER")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}

	g.rt.refuse = true
	resp, err = http.Post(g.srv.URL+"/commands/NEAR_MOTION_TRIGGER", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when backlog is full, got %d", resp.StatusCode)
	}
}

func TestReadyzReflectsHealth(t *testing.T) {
	for _, tc := range []struct {
		healthy bool
		want    int
	}{{true, http.StatusOK}, {false, http.StatusServiceUnavailable}} {
		g := newRig(t, tc.healthy)
		resp, err := http.Get(g.srv.URL + "/readyz")
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("healthy=%v: expected %d, got %d", tc.healthy, tc.want, resp.StatusCode)
		}
	}
}

func TestStatusAndFortunes(t *testing.T) {
	g := newRig(t, true)
	resp, err := http.Get(g.srv.URL + "/status")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body := decode(t, resp); body["state"] != "Idle" {
		t.Fatalf("unexpected status %v", body)
	}

	resp, err = http.Get(g.srv.URL + "/fortunes?limit=5")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body := decode(t, resp)
	if body["printed_total"] != float64(1) {
		t.Fatalf("unexpected fortunes %v", body)
	}
	if visits, _ := body["visits"].([]any); len(visits) != 1 {
		t.Fatalf("unexpected visits %v", body["visits"])
	}
}

func TestEventsByVisit(t *testing.T) {
	g := newRig(t, true)
	g.st.AppendEvent("v1", "state", map[string]any{"to": "PlayWelcome"})
	g.st.AppendEvent("v2", "state", map[string]any{"to": "PlayWelcome"})

	resp, err := http.Get(g.srv.URL + "/events?visit_id=v1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body := decode(t, resp)
	if events, _ := body["events"].([]any); len(events) != 1 {
		t.Fatalf("expected one event for v1, got %v", body["events"])
	}

	resp, err = http.Get(g.srv.URL + "/events")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if events, _ := decode(t, resp)["events"].([]any); len(events) != 2 {
		t.Fatalf("expected two recent events, got %v", events)
	}
}

func TestDebugFinger(t *testing.T) {
	g := newRig(t, true)
	resp, err := http.Post(g.srv.URL+"/debug/finger", "application/json",
		strings.NewReader(`{"detected":true,"stable":true,"normalized_delta":0.01}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !g.finger.last.Detected || !g.finger.last.Stable || g.finger.last.NormalizedDelta != 0.01 {
		t.Fatalf("unexpected readout %+v", g.finger.last)
	}

	resp, err = http.Post(g.srv.URL+"/debug/finger", "application/json", strings.NewReader(`{"release":true}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if g.finger.released != 1 {
		t.Fatalf("expected release")
	}

	resp, err = http.Post(g.srv.URL+"/debug/finger", "application/json", strings.NewReader(`{nope`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMintPeerToken(t *testing.T) {
	g := newRig(t, true)
	resp, err := http.Post(g.srv.URL+"/peer-token?peer_id=prox", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body := decode(t, resp)
	tok, _ := body["token"].(string)
	peer, _, err := auth.ValidatePeerToken("s3cret", tok, "prox", time.Now(), 0)
	if err != nil || peer != "prox" {
		t.Fatalf("minted token invalid: %v", err)
	}

	resp, err = http.Post(g.srv.URL+"/peer-token", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without peer_id, got %d", resp.StatusCode)
	}
}

func TestMintPeerTokenRefusesRemoteCallers(t *testing.T) {
	var cfg config.Config
	cfg.Peer.TokenSecret = "s3cret"
	cfg.Peer.TokenTTLMin = 10
	st := store.New()
	router := NewRouter(NewHandlers(cfg, &mockRuntime{}, st, nil, nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/peer-token?peer_id=prox", nil)
	req.RemoteAddr = "192.168.4.20:51234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for LAN caller, got %d", rec.Code)
	}
	if len(st.Recent(10)) != 0 {
		t.Fatalf("expected no mint event for refused caller")
	}

	req = httptest.NewRequest(http.MethodPost, "/peer-token?peer_id=prox", nil)
	req.RemoteAddr = "[::1]:51234"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for IPv6 loopback, got %d", rec.Code)
	}
}

func TestPrinterReset(t *testing.T) {
	g := newRig(t, true)
	resp, err := http.Post(g.srv.URL+"/debug/printer-reset", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body := decode(t, resp)
	if g.prn.resets != 1 || body["printed"] != float64(3) || body["ready"] != true {
		t.Fatalf("unexpected reset result %v (resets=%d)", body, g.prn.resets)
	}
}
