// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/hullserver/pkg/geometry"
	"github.com/absmach/hullserver/pkg/graph"
	"github.com/absmach/hullserver/pkg/handler"
	"github.com/absmach/hullserver/pkg/metrics"
	"github.com/absmach/hullserver/pkg/protocol"
	"github.com/absmach/hullserver/pkg/ratelimit"
)

var (
	_ handler.Handler = (*RateLimitedHandler)(nil)
	_ handler.Handler = (*InstrumentedHandler)(nil)
	_ protocol.Graph  = (*instrumentedGraph)(nil)
)

// RateLimitedHandler wraps a handler with per-session and global command
// rate limiting.
type RateLimitedHandler struct {
	handler  handler.Handler
	sessions *ratelimit.Limiter
	global   *ratelimit.TokenBucket
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// AuthConnect implements handler.Handler.
func (h *RateLimitedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.AuthConnect(ctx, hctx)
}

// AuthCommand implements handler.Handler with rate limiting.
func (h *RateLimitedHandler) AuthCommand(ctx context.Context, hctx *handler.Context, command string) error {
	if h.global != nil && !h.global.Allow() {
		h.metrics.RateLimitedCommands.WithLabelValues(hctx.Mode, "global").Inc()
		h.logger.Warn("Global rate limit exceeded",
			slog.String("session", hctx.SessionID),
			slog.String("command", command))
		return ratelimit.ErrRateLimitExceeded
	}

	if !h.sessions.Allow(hctx.SessionID) {
		h.metrics.RateLimitedCommands.WithLabelValues(hctx.Mode, "per_session").Inc()
		h.logger.Warn("Per-session rate limit exceeded",
			slog.String("session", hctx.SessionID),
			slog.String("remote", hctx.RemoteAddr),
			slog.String("command", command))
		return ratelimit.ErrRateLimitExceeded
	}

	return h.handler.AuthCommand(ctx, hctx, command)
}

// OnConnect implements handler.Handler.
func (h *RateLimitedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnConnect(ctx, hctx)
}

// OnCommand implements handler.Handler.
func (h *RateLimitedHandler) OnCommand(ctx context.Context, hctx *handler.Context, command string, err error) error {
	return h.handler.OnCommand(ctx, hctx, command, err)
}

// registerMetrics exposes the number of tracked sessions and the tokens left
// in the global bucket.
func (h *RateLimitedHandler) registerMetrics() error {
	if err := h.metrics.RegisterGauge("ratelimit_sessions", "Number of sessions holding a token bucket", func() float64 {
		return float64(h.sessions.Sessions())
	}); err != nil {
		return err
	}
	if h.global == nil {
		return nil
	}
	return h.metrics.RegisterGauge("ratelimit_global_tokens", "Tokens left in the global command bucket", func() float64 {
		return float64(h.global.Available())
	})
}

// OnDisconnect implements handler.Handler and forgets the session's bucket.
func (h *RateLimitedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	h.sessions.Remove(hctx.SessionID)
	return h.handler.OnDisconnect(ctx, hctx)
}

// InstrumentedHandler wraps a handler with metrics instrumentation.
type InstrumentedHandler struct {
	handler handler.Handler
	metrics *metrics.Metrics
	logger  *slog.Logger

	// session id -> start of the authorized command in flight
	started sync.Map
}

// AuthConnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	err := h.handler.AuthConnect(ctx, hctx)
	if err != nil {
		h.metrics.ConnectionRejected(hctx.Mode, "unauthorized")
	}
	return err
}

// AuthCommand implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthCommand(ctx context.Context, hctx *handler.Context, command string) error {
	start := time.Now()
	err := h.handler.AuthCommand(ctx, hctx, command)
	if err == nil {
		h.started.Store(hctx.SessionID, start)
	}
	return err
}

// OnConnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	h.metrics.ConnectionOpened(hctx.Mode)
	return h.handler.OnConnect(ctx, hctx)
}

// OnCommand implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnCommand(ctx context.Context, hctx *handler.Context, command string, err error) error {
	var d time.Duration
	if v, ok := h.started.LoadAndDelete(hctx.SessionID); ok {
		d = time.Since(v.(time.Time))
	}
	h.metrics.ObserveCommand(hctx.Mode, command, d, err)
	return h.handler.OnCommand(ctx, hctx, command, err)
}

// OnDisconnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	h.started.Delete(hctx.SessionID)
	h.metrics.ConnectionClosed(hctx.Mode, hctx.ConnectedAt)
	return h.handler.OnDisconnect(ctx, hctx)
}

// instrumentedGraph keeps the graph and hull gauges current.
type instrumentedGraph struct {
	state   *graph.State
	metrics *metrics.Metrics
}

func (g *instrumentedGraph) Reset() {
	g.state.Reset()
	g.metrics.GraphPoints.Set(0)
	g.metrics.ObserveHull(0, 0)
}

func (g *instrumentedGraph) AddPoint(p geometry.Point) bool {
	added := g.state.AddPoint(p)
	g.metrics.GraphPoints.Set(float64(g.state.Size()))
	return added
}

func (g *instrumentedGraph) RemovePoint(p geometry.Point) error {
	err := g.state.RemovePoint(p)
	g.metrics.GraphPoints.Set(float64(g.state.Size()))
	return err
}

func (g *instrumentedGraph) ComputeHull() graph.Hull {
	h := g.state.ComputeHull()
	g.metrics.ObserveHull(len(h.Points), h.Area)
	return h
}
