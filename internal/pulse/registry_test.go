// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package pulse

import (
	"errors"
	"testing"
	"time"
)

// fakeSink records outbound frames and close calls.
type fakeSink struct {
	sent      [][]byte
	closeCode int
	closed    bool
}

func (f *fakeSink) Send(payload []byte) bool {
	f.sent = append(f.sent, payload)
	return true
}

func (f *fakeSink) CloseWith(code int, _ string) {
	if !f.closed {
		f.closed = true
		f.closeCode = code
	}
}

func newVisitor(id, siteID string, sink Sink) *VisitorConnection {
	return NewVisitorConnection(id, siteID, "203.0.113.1", "test-agent", "Firefox", sink, time.Now())
}

func TestRegistryRejectsDuplicateVisitor(t *testing.T) {
	r := NewRegistry()

	if err := r.RegisterVisitor(newVisitor("c1", "s1", &fakeSink{})); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.RegisterVisitor(newVisitor("c1", "s1", &fakeSink{}))
	if !errors.Is(err, ErrDuplicateConnection) {
		t.Errorf("second register = %v, want ErrDuplicateConnection", err)
	}
	if r.VisitorCount() != 1 {
		t.Errorf("VisitorCount = %d, want 1", r.VisitorCount())
	}
}

func TestRegistryTouchUnknownIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.Touch("ghost", time.Now()) // must not panic or resurrect anything
	if r.VisitorCount() != 0 {
		t.Errorf("VisitorCount = %d, want 0", r.VisitorCount())
	}
}

func TestRegistryTouchUpdatesActivity(t *testing.T) {
	r := NewRegistry()
	v := newVisitor("c1", "s1", &fakeSink{})
	v.LastActiveAt = time.Now().Add(-time.Hour)
	if err := r.RegisterVisitor(v); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	r.Touch("c1", now)
	if !v.LastActiveAt.Equal(now) {
		t.Errorf("LastActiveAt = %v, want %v", v.LastActiveAt, now)
	}
}

func TestRegistryRemoveVisitor(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterVisitor(newVisitor("c1", "s1", &fakeSink{})); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.RemoveVisitor("c1"); !ok {
		t.Error("RemoveVisitor(c1) = false, want true")
	}
	if _, ok := r.RemoveVisitor("c1"); ok {
		t.Error("second RemoveVisitor(c1) = true, want no-op")
	}
}

func TestRegistryOwnerSetLifecycle(t *testing.T) {
	r := NewRegistry()
	a, b := &fakeSink{}, &fakeSink{}

	r.RegisterOwner("s1", a)
	r.RegisterOwner("s1", a) // idempotent
	r.RegisterOwner("s1", b)

	if got := len(r.OwnersBySite("s1")); got != 2 {
		t.Errorf("owners = %d, want 2", got)
	}

	r.RemoveOwner("s1", a)
	r.RemoveOwner("s1", b)

	if _, exists := r.owners["s1"]; exists {
		t.Error("empty owner set should be deleted")
	}
	if r.OwnersBySite("s1") != nil {
		t.Error("OwnersBySite after removal should be nil")
	}

	// Removing from an unknown site must not panic.
	r.RemoveOwner("s2", a)
}

func TestRegistryVisitorsBySite(t *testing.T) {
	r := NewRegistry()
	for _, c := range []struct{ id, site string }{
		{"c1", "s1"}, {"c2", "s1"}, {"c3", "s2"},
	} {
		if err := r.RegisterVisitor(newVisitor(c.id, c.site, &fakeSink{})); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(r.VisitorsBySite("s1")); got != 2 {
		t.Errorf("VisitorsBySite(s1) = %d, want 2", got)
	}
	if got := len(r.VisitorsBySite("s2")); got != 1 {
		t.Errorf("VisitorsBySite(s2) = %d, want 1", got)
	}
	if got := r.VisitorsBySite("s3"); got != nil {
		t.Errorf("VisitorsBySite(s3) = %v, want nil", got)
	}
}
