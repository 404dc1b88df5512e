// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package geo

import (
	"testing"
	"time"
)

func TestDailyQuotaExhaustion(t *testing.T) {
	q := NewDailyQuota(3)

	for i := 0; i < 3; i++ {
		if !q.TryAcquire() {
			t.Fatalf("TryAcquire %d = false, want true", i)
		}
	}
	if q.TryAcquire() {
		t.Error("TryAcquire beyond limit = true, want false")
	}
	if q.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", q.Remaining())
	}
	if q.Used() != 3 {
		t.Errorf("Used = %d, want 3", q.Used())
	}
}

func TestDailyQuotaResetsOnUTCDayChange(t *testing.T) {
	current := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	q := NewDailyQuota(1)
	q.now = func() time.Time { return current }

	if !q.TryAcquire() {
		t.Fatal("first acquire failed")
	}
	if q.TryAcquire() {
		t.Fatal("second acquire succeeded within same day")
	}

	// Two minutes later it is March 2nd UTC.
	current = current.Add(2 * time.Minute)

	if !q.TryAcquire() {
		t.Error("acquire after UTC midnight = false, want fresh budget")
	}
	if q.Used() != 1 {
		t.Errorf("Used after reset = %d, want 1", q.Used())
	}
}

func TestDailyQuotaUsesUTCNotLocalTime(t *testing.T) {
	// 2026-03-01 20:00 in UTC-8 is 2026-03-02 04:00 UTC.
	loc := time.FixedZone("UTC-8", -8*3600)
	q := NewDailyQuota(5)
	q.now = func() time.Time { return time.Date(2026, 3, 1, 20, 0, 0, 0, loc) }

	q.TryAcquire()
	if q.day != "2026-03-02" {
		t.Errorf("day key = %q, want 2026-03-02 (UTC calendar day)", q.day)
	}
}
