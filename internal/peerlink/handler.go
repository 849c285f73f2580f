// Package peerlink accepts the proximity peer over a websocket and turns its
// messages into controller commands.
package peerlink

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	ws "nhooyr.io/websocket"

	"deathteller/skull/internal/auth"
	"deathteller/skull/internal/log"
	"deathteller/skull/internal/store"
	"deathteller/skull/internal/uart"
)

const writeTimeout = 5 * time.Second

// Message is the JSON frame exchanged with a peer. Code carries a raw wire
// byte for peers that still speak the serial vocabulary.
type Message struct {
	Type      string         `json:"type"`
	TsMs      int64          `json:"ts_ms"`
	PeerID    string         `json:"peer_id,omitempty"`
	Seq       int64          `json:"seq"`
	Command   string         `json:"command,omitempty"`
	Code      *int           `json:"code,omitempty"`
	CommandID string         `json:"command_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Submitter accepts commands for the controller.
type Submitter interface {
	Submit(cmd uart.Command) bool
}

type Config struct {
	TokenSecret   string
	TokenSkewSecs int
}

type Server struct {
	Cfg     Config
	Store   *store.Store
	Reg     *Registry
	Runtime Submitter
}

func NewServer(cfg Config, st *store.Store, reg *Registry, rt Submitter) *Server {
	return &Server{Cfg: cfg, Store: st, Reg: reg, Runtime: rt}
}

func (s *Server) HandlePeerWS(w http.ResponseWriter, r *http.Request) {
	peerID := r.URL.Query().Get("peer_id")
	if peerID == "" {
		http.Error(w, "missing peer_id", http.StatusBadRequest)
		return
	}
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		metricAuthFailures.Inc()
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if s.Cfg.TokenSecret == "" {
		metricAuthFailures.Inc()
		http.Error(w, "peer auth not configured", http.StatusUnauthorized)
		return
	}
	if _, _, err := auth.ValidatePeerToken(s.Cfg.TokenSecret, token, peerID, time.Now(), s.Cfg.TokenSkewSecs); err != nil {
		metricAuthFailures.Inc()
		log.Warn("peer token rejected", "peer_id", peerID, "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Error("ws accept failed", "peer_id", peerID, "error", err)
		return
	}
	if s.Reg.Replace(peerID, c) {
		s.Store.AppendEvent("", "peer_replaced", map[string]any{"peer_id": peerID})
	}
	s.Store.AppendEvent("", "peer_connected", map[string]any{"peer_id": peerID})
	log.Info("peer connected", "peer_id", peerID)

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Store.AppendEvent("", "peer_msg_invalid", map[string]any{"peer_id": peerID, "error": err.Error()})
			continue
		}
		metricMessagesIn.WithLabelValues(msg.Type).Inc()
		s.handle(ctx, c, peerID, msg)
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
	s.Reg.Remove(peerID, c)
	s.Store.AppendEvent("", "peer_disconnected", map[string]any{"peer_id": peerID})
	log.Info("peer disconnected", "peer_id", peerID)
}

func (s *Server) handle(ctx context.Context, c *ws.Conn, peerID string, msg Message) {
	switch msg.Type {
	case "command":
		cmd, ok := resolve(msg)
		if !ok {
			s.reply(ctx, c, Message{Type: "error", PeerID: peerID, CommandID: msg.CommandID,
				Payload: map[string]any{"error": "unknown command", "command": msg.Command}})
			return
		}
		s.submit(ctx, c, peerID, msg, cmd)
	case "hello":
		cmd := uart.BootHello
		if role, _ := msg.Payload["role"].(string); strings.EqualFold(role, "fabric") {
			cmd = uart.FabricHello
		}
		s.submit(ctx, c, peerID, msg, cmd)
	case "ping":
		s.reply(ctx, c, Message{Type: "pong", PeerID: peerID, Seq: msg.Seq})
	default:
		payload := map[string]any{"peer_id": peerID, "type": msg.Type, "seq": msg.Seq}
		s.Store.AppendEvent("", "peer_msg_unknown", payload)
	}
}

func (s *Server) submit(ctx context.Context, c *ws.Conn, peerID string, msg Message, cmd uart.Command) {
	accepted := s.Runtime != nil && s.Runtime.Submit(cmd)
	cmdID := msg.CommandID
	if cmdID == "" {
		cmdID = uuid.New().String()
	}
	s.Store.AppendEvent("", "peer_command", map[string]any{
		"peer_id": peerID, "command": cmd.String(), "command_id": cmdID, "seq": msg.Seq, "accepted": accepted,
	})
	s.reply(ctx, c, Message{
		Type:      "cmd_ack",
		PeerID:    peerID,
		Seq:       msg.Seq,
		Command:   cmd.String(),
		CommandID: cmdID,
		Payload:   map[string]any{"accepted": accepted},
	})
}

func (s *Server) reply(ctx context.Context, c *ws.Conn, msg Message) {
	msg.TsMs = time.Now().UnixMilli()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.Write(wctx, ws.MessageText, mustJSON(msg)); err != nil {
		log.Warn("peer reply failed", "peer_id", msg.PeerID, "type", msg.Type, "error", err)
		return
	}
	metricMessagesOut.WithLabelValues(msg.Type).Inc()
}

// resolve maps a command frame to a controller command, by name or wire code.
func resolve(msg Message) (uart.Command, bool) {
	if msg.Command != "" {
		return uart.ParseCommand(msg.Command)
	}
	if msg.Code != nil && *msg.Code >= 0 && *msg.Code <= 0xFF {
		return uart.FromByte(byte(*msg.Code))
	}
	return uart.None, false
}
