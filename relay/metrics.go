// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's Prometheus instruments on a dedicated registry. A
// nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsIngested     prometheus.Counter
	broadcastFailures  prometheus.Counter
	subscriptionErrors prometheus.Counter
	connectedClients   prometheus.Gauge
}

// NewMetrics creates and registers the relay instruments.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_events_ingested_total",
			Help: "Telemetry events received from the stream.",
		}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_broadcast_failures_total",
			Help: "Messages that could not be queued for a dashboard client.",
		}),
		subscriptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_subscription_errors_total",
			Help: "Errors reported by the stream ingestor.",
		}),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connected_clients",
			Help: "Dashboard clients currently connected.",
		}),
	}
	m.registry.MustRegister(
		m.eventsIngested,
		m.broadcastFailures,
		m.subscriptionErrors,
		m.connectedClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the dedicated registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// EventIngested counts one event received from the stream.
func (m *Metrics) EventIngested() {
	if m != nil {
		m.eventsIngested.Inc()
	}
}

// SubscriptionError counts one ingestor error.
func (m *Metrics) SubscriptionError() {
	if m != nil {
		m.subscriptionErrors.Inc()
	}
}

func (m *Metrics) broadcastFailure() {
	if m != nil {
		m.broadcastFailures.Inc()
	}
}

func (m *Metrics) setConnected(n int) {
	if m != nil {
		m.connectedClients.Set(float64(n))
	}
}
