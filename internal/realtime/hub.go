// Package realtime pushes quiz snapshots to websocket subscribers and evicts dead ones.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/metrics"
)

// Message types on the wire.
const (
	TypeStateUpdate = "STATE_UPDATE"
	TypePing        = "PING"
	TypePong        = "PONG"
)

// Envelope is the JSON frame exchanged with clients.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// HeartbeatConfig holds the liveness timings. PingInterval is Tping, PongTimeout is
// Tpong and IdleTimeout is Tidle.
type HeartbeatConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func (c HeartbeatConfig) withDefaults() HeartbeatConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 16
	}
	return c
}

// Hub is the registry of live channels. It implements app.Notifier.
type Hub struct {
	cfg HeartbeatConfig
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(cfg HeartbeatConfig, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		cfg:     cfg.withDefaults(),
		log:     log.With("component", "realtime"),
		clients: make(map[*client]struct{}),
	}
}

// Publish serializes the snapshot once and queues it on every channel. A channel that
// cannot take it immediately is evicted; clients resync from the next snapshot or a pull.
func (h *Hub) Publish(_ context.Context, snapshot domain.QuizSnapshot) error {
	frame, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	metrics.ObserveBroadcast()
	for _, c := range slow {
		h.evict(c, "slow")
	}
	return nil
}

// Serve registers conn, sends it the initial snapshot and blocks until the channel dies.
func (h *Hub) Serve(conn *websocket.Conn, initial domain.QuizSnapshot, principal domain.Principal) {
	c := newClient(h, conn, principal)
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}

	if frame, err := encodeSnapshot(initial); err == nil {
		c.enqueue(frame)
	}

	go c.writeLoop()
	reason := c.readLoop()
	h.evict(c, reason)
	<-c.writerDone
}

// Len reports the number of registered channels.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every channel and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.evict(c, "shutdown")
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.ConnectionOpened()
	h.log.Debug("channel registered", "account", c.principal.AccountID, "channels", len(h.clients))
	return true
}

// evict deregisters c and closes its connection. Safe to call more than once.
func (h *Hub) evict(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if !ok {
		return
	}
	metrics.ConnectionClosed()
	if reason != "closed" {
		metrics.ObserveEviction(reason)
	}
	h.log.Debug("channel removed", "account", c.principal.AccountID, "reason", reason)
	c.shutdown()
}

func encodeSnapshot(snapshot domain.QuizSnapshot) ([]byte, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	frame, err := json.Marshal(Envelope{Type: TypeStateUpdate, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return frame, nil
}
