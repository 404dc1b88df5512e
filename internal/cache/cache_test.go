// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package cache

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("198.51.100.7", "value")

	got, ok := c.Get("198.51.100.7")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != "value" {
		t.Errorf("got %v, want value", got)
	}
}

func TestCacheMiss(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss for absent key")
	}

	stats := c.GetStats()
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
}

func TestCacheExpiration(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.SetWithTTL("short", "value", -time.Second)

	if _, ok := c.Get("short"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected lazy eviction on Get, Len = %d", c.Len())
	}

	stats := c.GetStats()
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
}

func TestCacheClear(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Clear")
	}
}

func TestCacheCleanupSweep(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.SetWithTTL("dead", 1, -time.Second)
	c.Set("alive", 2)

	c.cleanup()

	if c.Len() != 1 {
		t.Errorf("Len = %d after cleanup, want 1", c.Len())
	}
	if _, ok := c.Get("alive"); !ok {
		t.Error("live entry removed by cleanup")
	}
}

func TestCacheHitRate(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	if c.HitRate() != 0.0 {
		t.Errorf("HitRate = %f with no traffic, want 0", c.HitRate())
	}

	c.Set("k", 1)
	c.Get("k")
	c.Get("missing")

	if got := c.HitRate(); got != 50.0 {
		t.Errorf("HitRate = %f, want 50", got)
	}
}
