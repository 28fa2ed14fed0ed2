// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreRequestDuration tracks remote document store call duration.
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duet_store_request_duration_seconds",
			Help:    "Document store request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "op", "status"},
	)

	// StoreRequestsTotal tracks total document store calls.
	StoreRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_store_requests_total",
			Help: "Total document store requests",
		},
		[]string{"backend", "op", "status"},
	)

	// CacheLoadsTotal tracks message load attempts by outcome
	// (loaded, failed, skipped, stale).
	CacheLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_cache_loads_total",
			Help: "Conversation message loads by outcome",
		},
		[]string{"outcome"},
	)

	// MessagesSentTotal tracks sends by final status.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_messages_sent_total",
			Help: "Messages sent by final status",
		},
		[]string{"status", "ai"},
	)

	// ReconcilesTotal tracks debounced reconciliations that ran.
	ReconcilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_reconciles_total",
			Help: "Reconciling reloads after sends",
		},
	)

	// GatewayClientsActive tracks connected gateway clients.
	GatewayClientsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duet_gateway_clients_active",
			Help: "Number of connected gateway clients",
		},
	)

	// GatewayEventsTotal tracks event frames delivered to gateway clients.
	GatewayEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_gateway_events_total",
			Help: "Event frames delivered to gateway clients",
		},
		[]string{"event"},
	)

	// TwinRepliesTotal tracks AI twin drafts by provider and status.
	TwinRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_twin_replies_total",
			Help: "AI twin reply drafts",
		},
		[]string{"provider", "status"},
	)
)

// RecordStoreRequest records metrics for a document store call.
func RecordStoreRequest(backend, op, status string, seconds float64) {
	StoreRequestDuration.WithLabelValues(backend, op, status).Observe(seconds)
	StoreRequestsTotal.WithLabelValues(backend, op, status).Inc()
}

// RecordCacheLoad records the outcome of a message load.
func RecordCacheLoad(outcome string) {
	CacheLoadsTotal.WithLabelValues(outcome).Inc()
}

// RecordSend records the final status of a sent message.
func RecordSend(status string, ai bool) {
	label := "false"
	if ai {
		label = "true"
	}
	MessagesSentTotal.WithLabelValues(status, label).Inc()
}
