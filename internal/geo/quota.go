// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package geo

import (
	"sync"
	"time"

	"github.com/dheerajmandava/proovd-pulse/internal/metrics"
)

// DailyQuota counts external lookups per UTC calendar day. The counter
// resets implicitly when the day key changes, so a process restarted at
// 23:59 UTC gets a fresh budget one minute later like everyone else.
type DailyQuota struct {
	mu    sync.Mutex
	limit int
	day   string
	used  int

	// now is swappable for tests.
	now func() time.Time
}

// NewDailyQuota creates a quota with the given daily limit.
func NewDailyQuota(limit int) *DailyQuota {
	return &DailyQuota{
		limit: limit,
		now:   time.Now,
	}
}

// dayKey returns the UTC calendar day for t.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// TryAcquire consumes one lookup from today's budget. It returns false when
// the budget is exhausted; the caller must not contact the provider.
func (q *DailyQuota) TryAcquire() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollLocked()
	if q.used >= q.limit {
		return false
	}
	q.used++
	metrics.GeoQuotaUsed.Set(float64(q.used))
	return true
}

// Used returns how many lookups today's budget has consumed.
func (q *DailyQuota) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollLocked()
	return q.used
}

// Remaining returns how many lookups today's budget still allows.
func (q *DailyQuota) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollLocked()
	if q.used >= q.limit {
		return 0
	}
	return q.limit - q.used
}

// rollLocked resets the counter when the UTC day has changed. Caller holds mu.
func (q *DailyQuota) rollLocked() {
	today := dayKey(q.now())
	if q.day != today {
		q.day = today
		q.used = 0
		metrics.GeoQuotaUsed.Set(0)
	}
}
