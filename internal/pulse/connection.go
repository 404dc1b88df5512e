// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package pulse

import (
	"time"

	"github.com/dheerajmandava/proovd-pulse/internal/geo"
)

// Sink is the outbound half of a socket connection. Send is non-blocking and
// reports false when the frame was skipped. CloseWith is idempotent.
type Sink interface {
	Send(payload []byte) bool
	CloseWith(code int, reason string)
}

// Metrics is the engagement state accumulated for one visitor connection.
// ClickCount only grows until the connection is evicted.
type Metrics struct {
	ScrollPercentage  float64
	TimeOnPageSeconds float64
	ClickCount        int64
}

// Apply merges a normalized patch into the metrics.
func (m *Metrics) Apply(p MetricsPatch) {
	if p.ScrollPercentage != nil {
		m.ScrollPercentage = *p.ScrollPercentage
	}
	if p.TimeOnPageSeconds != nil {
		m.TimeOnPageSeconds = *p.TimeOnPageSeconds
	}
	if p.ClickCount != nil {
		m.ClickCount = *p.ClickCount
	}
}

// VisitorConnection is the hub-side record of one anonymous browser session.
// All mutation happens on the hub goroutine.
type VisitorConnection struct {
	ID        string
	SiteID    string
	IPAddress string
	UserAgent string
	Browser   string
	URL       string
	Referrer  string

	LastActiveAt time.Time
	Metrics      Metrics

	// Location is set asynchronously by enrichment and may stay nil.
	Location *geo.Location

	sink Sink
}

// NewVisitorConnection creates a connection record bound to its socket sink.
func NewVisitorConnection(id, siteID, ip, userAgent, browser string, sink Sink, now time.Time) *VisitorConnection {
	return &VisitorConnection{
		ID:           id,
		SiteID:       siteID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Browser:      browser,
		LastActiveAt: now,
		sink:         sink,
	}
}

// Touch refreshes the activity timestamp.
func (v *VisitorConnection) Touch(now time.Time) {
	v.LastActiveAt = now
}

// IdleFor reports how long the connection has been silent.
func (v *VisitorConnection) IdleFor(now time.Time) time.Duration {
	return now.Sub(v.LastActiveAt)
}

// Send forwards a frame to the visitor's socket.
func (v *VisitorConnection) Send(payload []byte) bool {
	return v.sink.Send(payload)
}

// CloseWith closes the visitor's socket.
func (v *VisitorConnection) CloseWith(code int, reason string) {
	v.sink.CloseWith(code, reason)
}
