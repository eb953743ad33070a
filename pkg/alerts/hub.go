// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package alerts publishes threshold crossings to the log and to websocket
// subscribers.
package alerts

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/hullserver/pkg/threshold"
	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

type subscriber struct {
	id     uint64
	remote string
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans threshold events out to every connected websocket subscriber.
// It is an http.Handler: each request is upgraded and kept as a subscriber
// until the client goes away.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool

	published atomic.Int64
}

var _ http.Handler = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[uint64]*subscriber),
	}
}

// Publish logs ev and sends it as JSON to every subscriber. Subscribers that
// fail to keep up are dropped.
func (h *Hub) Publish(ev threshold.Event) {
	h.published.Add(1)

	switch ev.Kind {
	case threshold.Below:
		h.logger.Warn("ALERT: convex hull area dropped below threshold",
			slog.Float64("area", ev.Area),
			slog.Float64("threshold", ev.Threshold))
	default:
		h.logger.Info("convex hull area reached threshold",
			slog.Float64("area", ev.Area),
			slog.Float64("threshold", ev.Threshold))
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode alert", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		if err := s.write(data); err != nil {
			h.logger.Debug("dropping alert subscriber",
				slog.String("remote", s.remote),
				slog.String("error", err.Error()))
			h.remove(s)
		}
	}
}

// Published returns the number of events published so far.
func (h *Hub) Published() int64 {
	return h.published.Load()
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and blocks until the subscriber leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade alert subscriber",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.nextID++
	s := &subscriber{id: h.nextID, remote: r.RemoteAddr, conn: conn}
	h.subs[s.id] = s
	h.mu.Unlock()

	h.logger.Debug("alert subscriber connected", slog.String("remote", s.remote))
	defer h.remove(s)

	// Subscribers only listen; reading surfaces close frames and errors.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		s.mu.Unlock()
		s.conn.Close()
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s.id]
	delete(h.subs, s.id)
	h.mu.Unlock()

	if ok {
		s.conn.Close()
		h.logger.Debug("alert subscriber disconnected", slog.String("remote", s.remote))
	}
}
