// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the pulse pipeline:
// - WebSocket connection counts (visitors and dashboard owners)
// - Inbound message volume by type
// - Broadcast volume by kind
// - Idle reaper evictions
// - Geolocation cache, quota, and provider health

var (
	// Connection Metrics
	VisitorConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_visitor_connections",
			Help: "Current number of connected visitor sockets",
		},
	)

	OwnerConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_owner_connections",
			Help: "Current number of connected dashboard owner sockets",
		},
	)

	// Message Metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_messages_received_total",
			Help: "Total inbound WebSocket messages by type",
		},
		[]string{"type"}, // "heartbeat", "ping", "join", "leave", "metrics", "event", "page_context"
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_messages_rejected_total",
			Help: "Total inbound messages dropped as malformed or unknown",
		},
		[]string{"reason"}, // "malformed", "unknown_type", "oversized"
	)

	BroadcastsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_broadcasts_sent_total",
			Help: "Total broadcast frames written by kind",
		},
		[]string{"kind"}, // "stats", "dashboardStats"
	)

	SendQueueDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_send_queue_drops_total",
			Help: "Total frames skipped because a connection's send queue was full",
		},
	)

	// Reaper Metrics
	ReaperEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_reaper_evictions_total",
			Help: "Total idle visitor connections evicted by the reaper",
		},
	)

	// Geolocation Metrics
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_geo_lookups_total",
			Help: "Total geolocation resolutions by outcome",
		},
		[]string{"outcome"}, // "cache_hit", "resolved", "synthetic", "quota_exceeded", "provider_error"
	)

	GeoCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_geo_cache_hits_total",
			Help: "Total geolocation cache hits",
		},
	)

	GeoCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_geo_cache_misses_total",
			Help: "Total geolocation cache misses",
		},
	)

	GeoQuotaUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_geo_quota_used",
			Help: "External geolocation lookups consumed in the current UTC day",
		},
	)

	GeoProviderErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_geo_provider_errors_total",
			Help: "Total external geolocation provider failures",
		},
	)

	GeoProviderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_geo_provider_duration_seconds",
			Help:    "External geolocation lookup duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)
