// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package pulse

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dheerajmandava/proovd-pulse/internal/config"
	"github.com/dheerajmandava/proovd-pulse/internal/geo"
)

// Hub tests drive handle() directly: the loop is a thin dispatcher, so
// feeding events synchronously exercises the same code without sockets.

func newTestHub() *Hub {
	return NewHub(config.PulseConfig{
		BroadcastInterval: 10 * time.Second,
		ReapInterval:      60 * time.Second,
		IdleTimeout:       5 * time.Minute,
		SendBuffer:        16,
		MaxMessageSize:    64 * 1024,
		EventQueue:        64,
	}, nil)
}

func newTestClient(h *Hub, id, siteID string, isOwner bool) *client {
	return &client{
		hub:     h,
		send:    make(chan []byte, 16),
		closeCh: make(chan closeRequest, 1),
		isOwner: isOwner,
		id:      id,
		siteID:  siteID,
	}
}

func attachVisitor(h *Hub, id, siteID string) *client {
	c := newTestClient(h, id, siteID, false)
	h.handle(evAttachVisitor{
		c:  c,
		ip: "203.0.113.5",
		ua: "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0",
	})
	return c
}

func drainFrames(c *client) [][]byte {
	var out [][]byte
	for {
		select {
		case payload := <-c.send:
			out = append(out, payload)
		default:
			return out
		}
	}
}

func pendingClose(c *client) (closeRequest, bool) {
	select {
	case req := <-c.closeCh:
		return req, true
	default:
		return closeRequest{}, false
	}
}

func lastDashboardFrame(t *testing.T, frames [][]byte) map[string]interface{} {
	t.Helper()
	for i := len(frames) - 1; i >= 0; i-- {
		var m map[string]interface{}
		if err := json.Unmarshal(frames[i], &m); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if m["type"] == TypeDashboardStats {
			return m
		}
	}
	t.Fatal("no dashboardStats frame found")
	return nil
}

func TestHubJoinLeaveScenario(t *testing.T) {
	h := newTestHub()
	owner := &fakeSink{}
	h.registry.RegisterOwner("s1", owner)

	a := attachVisitor(h, "a", "s1")
	if got := h.Snapshot("s1").ActiveUsers; got != 1 {
		t.Fatalf("after A joins, ActiveUsers = %d, want 1", got)
	}

	attachVisitor(h, "b", "s1")
	if got := h.Snapshot("s1").ActiveUsers; got != 2 {
		t.Fatalf("after B joins, ActiveUsers = %d, want 2", got)
	}

	h.handle(evDetach{c: a})
	if got := h.Snapshot("s1").ActiveUsers; got != 1 {
		t.Fatalf("after A leaves, ActiveUsers = %d, want 1", got)
	}

	dash := lastDashboardFrame(t, owner.sent)
	if dash["activeUsers"] != float64(1) {
		t.Errorf("dashboard broadcast activeUsers = %v, want 1", dash["activeUsers"])
	}
}

func TestHubClickEventsAccumulate(t *testing.T) {
	h := newTestHub()
	c := attachVisitor(h, "a", "s1")

	click := []byte(`{"type":"event","eventType":"click"}`)
	for i := 0; i < 3; i++ {
		h.handle(evInbound{c: c, data: click})
	}

	s := h.Snapshot("s1")
	if s.TotalClicks != 3 {
		t.Errorf("TotalClicks = %d, want 3", s.TotalClicks)
	}
	if s.AvgScrollPercentage != 0 || s.AvgTimeOnPageSeconds != 0 {
		t.Errorf("clicks must not change other metrics: %+v", s)
	}
}

func TestHubMetricsUpdateBroadcasts(t *testing.T) {
	h := newTestHub()
	owner := &fakeSink{}
	h.registry.RegisterOwner("s1", owner)

	c := attachVisitor(h, "a", "s1")
	drainFrames(c)
	owner.sent = nil

	h.handle(evInbound{c: c, data: []byte(`{"type":"metrics","metrics":{"scrollPercentage":60,"timeOnPageSeconds":45}}`)})

	s := h.Snapshot("s1")
	if s.AvgScrollPercentage != 60 || s.AvgTimeOnPageSeconds != 45 {
		t.Errorf("stats after metrics update: %+v", s)
	}

	// Event-triggered broadcast: owner gets the full payload, the mutating
	// visitor gets the lightweight count.
	if len(owner.sent) == 0 {
		t.Error("owner received no dashboardStats broadcast")
	}
	frames := drainFrames(c)
	if len(frames) == 0 {
		t.Fatal("visitor received no stats frame")
	}
	var lite map[string]interface{}
	if err := json.Unmarshal(frames[len(frames)-1], &lite); err != nil {
		t.Fatal(err)
	}
	if lite["type"] != TypeStats || lite["activeUsers"] != float64(1) {
		t.Errorf("visitor frame = %v", lite)
	}
}

func TestHubMalformedMessageKeepsConnection(t *testing.T) {
	h := newTestHub()
	c := attachVisitor(h, "a", "s1")

	h.handle(evInbound{c: c, data: []byte(`{"type":"teleport"}`)})
	h.handle(evInbound{c: c, data: []byte(`not json at all`)})

	if _, ok := h.registry.VisitorByID("a"); !ok {
		t.Error("visitor evicted by malformed message")
	}
	if _, closed := pendingClose(c); closed {
		t.Error("connection closed by malformed message")
	}
}

func TestHubDuplicateClientSuperseded(t *testing.T) {
	h := newTestHub()
	first := attachVisitor(h, "a", "s1")
	second := attachVisitor(h, "a", "s1")

	req, closed := pendingClose(first)
	if !closed || req.code != CloseSuperseded {
		t.Errorf("stale connection close = (%+v, %v), want CloseSuperseded", req, closed)
	}

	v, ok := h.registry.VisitorByID("a")
	if !ok || v.sink != Sink(second) {
		t.Error("registry should hold the superseding connection")
	}
	if h.registry.VisitorCount() != 1 {
		t.Errorf("VisitorCount = %d, want 1", h.registry.VisitorCount())
	}

	// The stale socket's eventual detach must not remove the new entry.
	h.handle(evDetach{c: first})
	if _, ok := h.registry.VisitorByID("a"); !ok {
		t.Error("stale detach removed the superseding connection")
	}
}

func TestHubReaperEvictsOnlyIdle(t *testing.T) {
	h := newTestHub()
	owner := &fakeSink{}
	h.registry.RegisterOwner("s1", owner)

	idle := attachVisitor(h, "idle", "s1")
	fresh := attachVisitor(h, "fresh", "s1")
	owner.sent = nil

	now := time.Now()
	h.registry.visitors["idle"].LastActiveAt = now.Add(-6 * time.Minute)
	h.registry.visitors["fresh"].LastActiveAt = now.Add(-4 * time.Minute)
	h.now = func() time.Time { return now }

	h.handle(evReapTick{})

	if _, ok := h.registry.VisitorByID("idle"); ok {
		t.Error("6-minute-idle visitor not reaped")
	}
	if _, ok := h.registry.VisitorByID("fresh"); !ok {
		t.Error("4-minute-idle visitor wrongly reaped")
	}

	req, closed := pendingClose(idle)
	if !closed || req.code != CloseIdleTimeout {
		t.Errorf("reaped close = (%+v, %v), want CloseIdleTimeout", req, closed)
	}
	if _, closed := pendingClose(fresh); closed {
		t.Error("fresh connection was closed")
	}

	// One batched broadcast reflecting the reduced count.
	if len(owner.sent) != 1 {
		t.Errorf("owner broadcasts after sweep = %d, want 1", len(owner.sent))
	}
	dash := lastDashboardFrame(t, owner.sent)
	if dash["activeUsers"] != float64(1) {
		t.Errorf("post-reap activeUsers = %v, want 1", dash["activeUsers"])
	}
}

func TestHubEnrichment(t *testing.T) {
	h := newTestHub()
	attachVisitor(h, "a", "s1")

	// Unknown client: lookup finished after eviction, must be dropped.
	h.handle(evEnriched{clientID: "ghost", loc: geo.Location{Country: "France"}})

	h.handle(evEnriched{clientID: "a", loc: geo.Location{Country: "France", City: "Paris"}})

	s := h.Snapshot("s1")
	if s.UsersByCountry["France"] != 1 || s.UsersByCity["Paris"] != 1 {
		t.Errorf("histograms after enrichment: %+v", s)
	}
}

func TestHubBroadcastTickFansOutPerSite(t *testing.T) {
	h := newTestHub()
	a := attachVisitor(h, "a", "s1")
	b := attachVisitor(h, "b", "s1")
	c := attachVisitor(h, "c", "s2")
	for _, cl := range []*client{a, b, c} {
		drainFrames(cl)
	}

	h.handle(evBroadcastTick{})

	for _, tc := range []struct {
		cl   *client
		want float64
	}{{a, 2}, {b, 2}, {c, 1}} {
		frames := drainFrames(tc.cl)
		if len(frames) != 1 {
			t.Fatalf("frames = %d, want 1", len(frames))
		}
		var m map[string]interface{}
		if err := json.Unmarshal(frames[0], &m); err != nil {
			t.Fatal(err)
		}
		if m["activeUsers"] != tc.want {
			t.Errorf("activeUsers = %v, want %v", m["activeUsers"], tc.want)
		}
	}
}

func TestHubStatsCacheDroppedWhenSiteEmpties(t *testing.T) {
	h := newTestHub()
	a := attachVisitor(h, "a", "s1")
	b := attachVisitor(h, "b", "s1")

	h.handle(evDetach{c: a})
	h.statsMu.RLock()
	_, cached := h.statsCache["s1"]
	h.statsMu.RUnlock()
	if !cached {
		t.Fatal("stats evicted while a visitor remains")
	}

	h.handle(evDetach{c: b})
	if got := h.Snapshot("s1").ActiveUsers; got != 0 {
		t.Errorf("ActiveUsers after last detach = %d, want 0", got)
	}
	h.statsMu.RLock()
	_, cached = h.statsCache["s1"]
	h.statsMu.RUnlock()
	if cached {
		t.Error("empty site left a stats cache entry behind")
	}
}

func TestHubSnapshotUnknownSite(t *testing.T) {
	h := newTestHub()
	s := h.Snapshot("nowhere")
	if s.ActiveUsers != 0 || len(s.UsersByCountry) != 0 {
		t.Errorf("Snapshot(nowhere) = %+v, want zero stats", s)
	}
}

func TestHubPingAnswered(t *testing.T) {
	h := newTestHub()
	c := attachVisitor(h, "a", "s1")
	drainFrames(c)

	h.handle(evInbound{c: c, data: []byte(`{"type":"ping"}`)})

	frames := drainFrames(c)
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1 pong", len(frames))
	}
	var m map[string]interface{}
	if err := json.Unmarshal(frames[0], &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != TypePong {
		t.Errorf("frame type = %v, want pong", m["type"])
	}
}
