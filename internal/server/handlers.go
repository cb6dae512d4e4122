// Package server exposes HTTP handlers: health and status endpoints and the
// WebSocket gateway into the broker.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/termchat/internal/broker"
)

// Handlers serves the HTTP surface of a running broker.
type Handlers struct {
	cfg      Config
	broker   *broker.State
	hub      *Hub
	stats    *Stats
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandlers creates the HTTP handlers. stats may be nil.
func NewHandlers(cfg Config, b *broker.State, hub *Hub, stats *Stats, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		stats = NewStats(logger)
	}
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	return &Handlers{
		cfg:    cfg,
		broker: b,
		hub:    hub,
		stats:  stats,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		logger: logger,
	}
}

// Health provides a simple health check endpoint that returns server status.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "termchat broker is running!")
}

// Users lists the authenticated users as JSON.
func (h *Handlers) Users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, h.broker.Users())
}

// Stats reports connection and event counters as JSON.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, StatsSnapshot{
		Connections: h.hub.Count(),
		Users:       len(h.broker.Users()),
		HistoryLen:  h.broker.HistoryLen(),
		Joins:       h.stats.Joins(),
		Leaves:      h.stats.Leaves(),
		Messages:    h.stats.Messages(),
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Error writing JSON response", "error", err)
	}
}

// WebSocket upgrades the request and runs a connection handler over it. Each
// text message carries exactly one signal frame.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	transport := NewWebSocketTransport(conn, r.RemoteAddr, h.cfg)
	client := NewClient(transport, h.broker, h.cfg, h.logger)
	if !h.hub.Register(client) {
		_ = transport.Close()
	}
}
