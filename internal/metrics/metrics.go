// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package metrics exposes Prometheus instrumentation for the API surface,
// the realtime hub, the signal pipeline, and the broker connection.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harmonia_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harmonia_api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)

	// Realtime metrics
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harmonia_realtime_connections",
			Help: "Number of connected websocket clients",
		},
	)

	RealtimeBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_realtime_broadcasts_total",
			Help: "Total number of room broadcasts by event",
		},
		[]string{"event"},
	)

	RealtimeDroppedClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harmonia_realtime_dropped_clients_total",
			Help: "Total number of clients dropped for stalled send queues",
		},
	)

	// Signal pipeline metrics
	SignalsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmonia_signals_published_total",
			Help: "Total number of interaction signals published to the broker",
		},
		[]string{"type"},
	)

	SignalsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harmonia_signals_persisted_total",
			Help: "Total number of interaction signals persisted by the pipeline",
		},
	)

	SignalsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harmonia_signals_failed_total",
			Help: "Total number of interaction signals that failed processing",
		},
	)

	// Notification metrics
	NotificationsPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harmonia_notifications_pushed_total",
			Help: "Total number of notification pushes published",
		},
	)

	// Broker metrics
	BrokerDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harmonia_broker_degraded",
			Help: "1 when the process runs without a broker connection",
		},
	)

	BrokerConnectAttempts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harmonia_broker_connect_attempts",
			Help: "Connection attempts made during startup",
		},
	)
)

// RecordAPIRequest records one served API request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// TrackRealtimeConnection adjusts the connected client gauge.
func TrackRealtimeConnection(connected bool) {
	if connected {
		RealtimeConnections.Inc()
	} else {
		RealtimeConnections.Dec()
	}
}

// RecordBroadcast records one room broadcast.
func RecordBroadcast(event string) {
	RealtimeBroadcasts.WithLabelValues(event).Inc()
}

// RecordDroppedClient records a client dropped for a stalled queue.
func RecordDroppedClient() {
	RealtimeDroppedClients.Inc()
}

// RecordSignalPublished records a broker publish of an interaction signal.
func RecordSignalPublished(interactionType string) {
	SignalsPublished.WithLabelValues(interactionType).Inc()
}

// RecordSignalPersisted records a pipeline persist.
func RecordSignalPersisted() {
	SignalsPersisted.Inc()
}

// RecordSignalFailed records a pipeline failure.
func RecordSignalFailed() {
	SignalsFailed.Inc()
}

// RecordNotificationPushed records one notification push publish.
func RecordNotificationPushed() {
	NotificationsPushed.Inc()
}

// SetBrokerDegraded publishes the broker posture.
func SetBrokerDegraded(degraded bool) {
	if degraded {
		BrokerDegraded.Set(1)
	} else {
		BrokerDegraded.Set(0)
	}
}

// SetBrokerConnectAttempts publishes the startup attempt count.
func SetBrokerConnectAttempts(attempts int) {
	BrokerConnectAttempts.Set(float64(attempts))
}
