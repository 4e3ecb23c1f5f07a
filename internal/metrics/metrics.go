// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package metrics provides Prometheus instrumentation for the event
// distribution core: broadcast fan-out, stream and queue depths, sync
// passes, version conflicts and transport health.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Broadcast Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_events_published_total",
			Help: "Total number of events published through the broadcast service",
		},
		[]string{"event_type", "priority"},
	)

	EventFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broker_event_fanout_recipients",
			Help:    "Number of recipients resolved per published event",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_events_dropped_total",
			Help: "Total number of events dropped (TTL expiry, stream bound, queue overflow)",
		},
		[]string{"reason"},
	)

	// Event Store Metrics
	StreamDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_stream_events",
			Help: "Current number of events held across all recipient streams",
		},
	)

	// Offline Queue Metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_offline_queue_events",
			Help: "Current number of queued events awaiting delivery or acknowledgment",
		},
	)

	QueueOverflowDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_offline_queue_overflow_total",
			Help: "Total queued events dropped on overflow",
		},
		[]string{"ack_required"},
	)

	AcknowledgedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_events_acknowledged_total",
			Help: "Total number of acknowledged events",
		},
	)

	// Sync Metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orders_sync_duration_seconds",
			Help:    "Duration of order sync passes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"mode"}, // "full", "incremental"
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_sync_errors_total",
			Help: "Total number of sync failures",
		},
		[]string{"mode"},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orders_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync pass",
		},
	)

	CachedOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orders_cache_entries",
			Help: "Current number of orders held in the active-orders cache",
		},
	)

	OptimisticRollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_optimistic_rollbacks_total",
			Help: "Total optimistic item updates rolled back by a forced resync",
		},
	)

	// Versioning Metrics
	VersionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_version_conflicts_total",
			Help: "Total version gaps detected by reconciling clients",
		},
	)

	// Transport Metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transport_websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)

// ObserveAPIRequest records one completed HTTP request.
func ObserveAPIRequest(method, endpoint string, status int, elapsed time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}
