// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package admin serves the operations HTTP surface: health probes,
// Prometheus metrics, a JSON view of the shared graph and the threshold
// alert stream.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/absmach/hullserver/pkg/geometry"
	"github.com/absmach/hullserver/pkg/graph"
	"github.com/absmach/hullserver/pkg/health"
	"github.com/absmach/hullserver/pkg/threshold"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GraphView is the read-only side of the shared graph. *graph.State
// implements it. It never computes a hull, so reading it does not feed the
// threshold monitor.
type GraphView interface {
	Snapshot() []geometry.Point
	Stats() graph.Stats
	Algorithm() geometry.Algorithm
}

// ThresholdView exposes the monitor flags. *threshold.Monitor implements it.
type ThresholdView interface {
	Threshold() float64
	Flags() threshold.Flags
}

// Deps are the components the router exposes. Nil members disable their
// routes.
type Deps struct {
	Checker   *health.Checker
	Gatherer  prometheus.Gatherer
	Graph     GraphView
	Threshold ThresholdView
	Alerts    http.Handler
	Logger    *slog.Logger
}

// GraphResponse is the body of GET /graph.
type GraphResponse struct {
	Algorithm geometry.Algorithm `json:"algorithm"`
	Points    []geometry.Point   `json:"points"`
	Stats     graph.Stats        `json:"stats"`
	Threshold float64            `json:"threshold"`
	Flags     threshold.Flags    `json:"flags"`
}

// NewRouter builds the chi router for the operations surface.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))

	if d.Checker != nil {
		r.Get("/health", d.Checker.HTTPHandler())
		r.Get("/ready", d.Checker.ReadinessHandler())
		r.Get("/live", d.Checker.LivenessHandler())
	}
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if d.Graph != nil {
		r.Get("/graph", graphHandler(d))
	}
	if d.Alerts != nil {
		r.Handle("/alerts", d.Alerts)
	}
	return r
}

func graphHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := GraphResponse{
			Algorithm: d.Graph.Algorithm(),
			Points:    d.Graph.Snapshot(),
			Stats:     d.Graph.Stats(),
		}
		if resp.Points == nil {
			resp.Points = []geometry.Point{}
		}
		if d.Threshold != nil {
			resp.Threshold = d.Threshold.Threshold()
			resp.Flags = d.Threshold.Flags()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			d.Logger.Debug("failed to write graph response", slog.String("error", err.Error()))
		}
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("admin request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

// Server runs the operations router on its own listener.
type Server struct {
	address string
	handler http.Handler
	logger  *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates an operations server for the given address.
func NewServer(address string, h http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{address: address, handler: h, logger: logger}
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("admin server started", slog.String("address", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown; their
		// owner closes them.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the listen address once the server is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}
