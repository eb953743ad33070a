// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for the hull server.
package metrics

import (
	"time"

	"github.com/absmach/hullserver/pkg/threshold"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the hull server.
type Metrics struct {
	reg prometheus.Registerer
	ns  string

	// Connection metrics
	ActiveConnections   *prometheus.GaugeVec
	TotalConnections    *prometheus.CounterVec
	ConnectionDuration  *prometheus.HistogramVec
	RejectedConnections *prometheus.CounterVec

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Rate limiter metrics
	RateLimitedCommands *prometheus.CounterVec

	// Hull metrics
	HullArea           prometheus.Gauge
	HullPoints         prometheus.Gauge
	GraphPoints        prometheus.Gauge
	ThresholdCrossings *prometheus.CounterVec
}

// New registers all counters, gauges and histograms on reg. A nil reg means
// prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "hullserver"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		ns:  namespace,
		ActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently active connections",
			},
			[]string{"mode"},
		),
		TotalConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of connections",
			},
			[]string{"mode", "status"},
		),
		ConnectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connection_duration_seconds",
				Help:      "Connection duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"mode"},
		),
		RejectedConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_connections_total",
				Help:      "Total number of connections refused for capacity or authorization",
			},
			[]string{"mode", "reason"},
		),
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of protocol commands processed",
			},
			[]string{"mode", "command", "status"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode", "command"},
		),
		RateLimitedCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_commands_total",
				Help:      "Total number of rate limited commands",
			},
			[]string{"mode", "limiter_type"},
		),
		HullArea: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hull_area",
			Help:      "Area of the most recently computed convex hull",
		}),
		HullPoints: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hull_points",
			Help:      "Number of vertices of the most recently computed convex hull",
		}),
		GraphPoints: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_points",
			Help:      "Number of points in the shared graph",
		}),
		ThresholdCrossings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "threshold_crossings_total",
				Help:      "Total number of hull area threshold crossings processed",
			},
			[]string{"direction"},
		),
	}
}

// RegisterGauge exposes a value sampled at scrape time, such as the number of
// reactor descriptors or proactor workers.
func (m *Metrics) RegisterGauge(name, help string, f func() float64) error {
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.ns,
		Name:      name,
		Help:      help,
	}, f))
}

// RegisterCounter exposes a monotonic count kept elsewhere, such as the
// proactor's busy rejections.
func (m *Metrics) RegisterCounter(name, help string, f func() float64) error {
	return m.reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: m.ns,
		Name:      name,
		Help:      help,
	}, f))
}

// ConnectionOpened counts an accepted and authorized connection.
func (m *Metrics) ConnectionOpened(mode string) {
	m.ActiveConnections.WithLabelValues(mode).Inc()
	m.TotalConnections.WithLabelValues(mode, "accepted").Inc()
}

// ConnectionClosed ends a connection opened at connectedAt.
func (m *Metrics) ConnectionClosed(mode string, connectedAt time.Time) {
	m.ActiveConnections.WithLabelValues(mode).Dec()
	m.ConnectionDuration.WithLabelValues(mode).Observe(time.Since(connectedAt).Seconds())
}

// ConnectionRejected counts a connection refused before the greeting.
func (m *Metrics) ConnectionRejected(mode, reason string) {
	m.TotalConnections.WithLabelValues(mode, "rejected").Inc()
	m.RejectedConnections.WithLabelValues(mode, reason).Inc()
}

// ObserveCommand tracks one processed command. A zero duration only counts
// it.
func (m *Metrics) ObserveCommand(mode, command string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CommandsTotal.WithLabelValues(mode, command, status).Inc()
	if d > 0 {
		m.CommandDuration.WithLabelValues(mode, command).Observe(d.Seconds())
	}
}

// ObserveHull records the result of a hull computation.
func (m *Metrics) ObserveHull(vertices int, area float64) {
	m.HullPoints.Set(float64(vertices))
	m.HullArea.Set(area)
}

// ObserveCrossing counts a processed threshold event.
func (m *Metrics) ObserveCrossing(ev threshold.Event) {
	m.ThresholdCrossings.WithLabelValues(string(ev.Kind)).Inc()
}
