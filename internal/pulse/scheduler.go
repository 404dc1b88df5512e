// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package pulse

import (
	"context"
	"time"
)

// Broadcaster drives the periodic visitor-count push. It is a supervised
// service; the hub does the actual work on its own goroutine.
type Broadcaster struct {
	hub      *Hub
	interval time.Duration
}

// NewBroadcaster creates the periodic broadcast service.
func NewBroadcaster(hub *Hub, interval time.Duration) *Broadcaster {
	return &Broadcaster{hub: hub, interval: interval}
}

// String implements suture's service naming.
func (b *Broadcaster) String() string {
	return "pulse-broadcaster"
}

// Serve ticks until the context is canceled.
func (b *Broadcaster) Serve(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.hub.TickBroadcast()
		}
	}
}

// Reaper drives the periodic idle-connection sweep.
type Reaper struct {
	hub      *Hub
	interval time.Duration
}

// NewReaper creates the idle sweep service.
func NewReaper(hub *Hub, interval time.Duration) *Reaper {
	return &Reaper{hub: hub, interval: interval}
}

// String implements suture's service naming.
func (r *Reaper) String() string {
	return "pulse-reaper"
}

// Serve ticks until the context is canceled.
func (r *Reaper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.hub.TickReap()
		}
	}
}
