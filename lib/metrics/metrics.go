// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the collector's Prometheus instruments.
//
// Every method is safe to call on a nil *Metrics, so components accept
// an optional *Metrics and record unconditionally.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "plotline"

// Metrics holds the collector's instruments.
type Metrics struct {
	registerer prometheus.Registerer

	framesDecoded       *prometheus.CounterVec
	decodeErrors        *prometheus.CounterVec
	connectionsAccepted prometheus.Counter
	connectionErrors    prometheus.Counter
	activeConnections   prometheus.Gauge

	sessionsOpened     prometheus.Counter
	sessionsPersisted  prometheus.Counter
	persistenceErrors  prometheus.Counter
	pendingSessions    prometheus.Gauge
	sessionSamples     prometheus.Gauge
	missingKeys        *prometheus.CounterVec
	livenessState      prometheus.Gauge
	consumerIterations prometheus.Counter
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// New creates and registers every instrument on registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		registerer: registerer,
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "frames_decoded_total",
			Help: "Frames decoded into samples.",
		}, []string{"network"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "decode_errors_total",
			Help: "Frames or byte runs discarded as undecodable.",
		}, []string{"network"}),
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "connections_accepted_total",
			Help: "Stream connections accepted.",
		}),
		connectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "connection_errors_total",
			Help: "Stream connections ended by an unexpected error.",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "active_connections",
			Help: "Stream connections currently being read.",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "opened_total",
			Help: "Sessions opened by the liveness detector.",
		}),
		sessionsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "persisted_total",
			Help: "Session files written.",
		}),
		persistenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "persistence_errors_total",
			Help: "Failed attempts to write a session file.",
		}),
		pendingSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "session", Name: "pending",
			Help: "Sessions awaiting a persistence retry.",
		}),
		sessionSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "session", Name: "open_samples",
			Help: "Samples recorded in the open session.",
		}),
		missingKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "window", Name: "missing_keys_total",
			Help: "Distinct keys missing from samples, counted once per session.",
		}, []string{"group"}),
		livenessState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "liveness", Name: "state",
			Help: "Liveness state: 0 idle, 1 connected, 2 disconnected.",
		}),
		consumerIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consumer", Name: "iterations_total",
			Help: "Consumer loop iterations.",
		}),
	}
	registerer.MustRegister(
		m.framesDecoded,
		m.decodeErrors,
		m.connectionsAccepted,
		m.connectionErrors,
		m.activeConnections,
		m.sessionsOpened,
		m.sessionsPersisted,
		m.persistenceErrors,
		m.pendingSessions,
		m.sessionSamples,
		m.missingKeys,
		m.livenessState,
		m.consumerIterations,
	)
	return m
}

// RegisterChannel exposes a transfer channel's depth and eviction
// count, read at scrape time.
func (m *Metrics) RegisterChannel(depth func() int, pushed, dropped func() uint64) {
	if m == nil {
		return
	}
	m.registerer.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "channel", Name: "depth",
			Help: "Samples waiting in the transfer channel.",
		}, func() float64 { return float64(depth()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "channel", Name: "pushed_total",
			Help: "Samples pushed into the transfer channel.",
		}, func() float64 { return float64(pushed()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "channel", Name: "dropped_total",
			Help: "Samples evicted from the transfer channel on overflow.",
		}, func() float64 { return float64(dropped()) }),
	)
}

func (m *Metrics) FrameDecoded(network string) {
	if m != nil {
		m.framesDecoded.WithLabelValues(network).Inc()
	}
}

func (m *Metrics) DecodeError(network string) {
	if m != nil {
		m.decodeErrors.WithLabelValues(network).Inc()
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connectionsAccepted.Inc()
		m.activeConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed(failed bool) {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
	if failed {
		m.connectionErrors.Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessionsOpened.Inc()
	}
}

func (m *Metrics) SessionPersisted() {
	if m != nil {
		m.sessionsPersisted.Inc()
	}
}

func (m *Metrics) PersistenceError() {
	if m != nil {
		m.persistenceErrors.Inc()
	}
}

func (m *Metrics) SetPending(count int) {
	if m != nil {
		m.pendingSessions.Set(float64(count))
	}
}

func (m *Metrics) SetSessionSamples(count int) {
	if m != nil {
		m.sessionSamples.Set(float64(count))
	}
}

func (m *Metrics) MissingKey(group string) {
	if m != nil {
		m.missingKeys.WithLabelValues(group).Inc()
	}
}

// SetLivenessState records the detector state as its ordinal.
func (m *Metrics) SetLivenessState(state int) {
	if m != nil {
		m.livenessState.Set(float64(state))
	}
}

func (m *Metrics) ConsumerIteration() {
	if m != nil {
		m.consumerIterations.Inc()
	}
}
