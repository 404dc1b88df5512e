// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

// Package pulse implements the real-time engagement pipeline: a WebSocket
// hub that tracks anonymous visitors per site, aggregates live stats, and
// streams them to visiting browsers and dashboard owners.
//
// Concurrency model: one hub goroutine owns the registry and processes all
// events sequentially. Socket pumps and timers never touch shared state;
// they enqueue events. The only async escape hatch is geolocation
// enrichment, which re-enters the loop through its own event.
package pulse

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ua-parser/uap-go/uaparser"

	"github.com/dheerajmandava/proovd-pulse/internal/config"
	"github.com/dheerajmandava/proovd-pulse/internal/geo"
	"github.com/dheerajmandava/proovd-pulse/internal/logging"
	"github.com/dheerajmandava/proovd-pulse/internal/metrics"
)

// event is the closed set of hub loop inputs.
type event interface{ isEvent() }

type evAttachVisitor struct {
	c       *client
	ip      string
	ua      string
	referer string
}

type evAttachOwner struct{ c *client }

type evDetach struct{ c *client }

type evInbound struct {
	c    *client
	data []byte
}

type evEnriched struct {
	clientID string
	loc      geo.Location
}

type evBroadcastTick struct{}

type evReapTick struct{}

func (evAttachVisitor) isEvent() {}
func (evAttachOwner) isEvent()   {}
func (evDetach) isEvent()        {}
func (evInbound) isEvent()       {}
func (evEnriched) isEvent()      {}
func (evBroadcastTick) isEvent() {}
func (evReapTick) isEvent()      {}

// Hub is the composition root of the pulse pipeline. Construct one per
// server process and hand it to the HTTP layer by reference.
type Hub struct {
	cfg      config.PulseConfig
	geo      *geo.Service
	registry *Registry
	events   chan event
	parser   *uaparser.Parser

	// statsCache mirrors the latest recompute per site for HTTP polling.
	statsMu    sync.RWMutex
	statsCache map[string]SiteStats

	// runCtx bounds enrichment goroutines to the hub's lifetime.
	runCtx context.Context

	now func() time.Time
}

// NewHub creates a hub. geoSvc may be nil when enrichment is disabled.
func NewHub(cfg config.PulseConfig, geoSvc *geo.Service) *Hub {
	return &Hub{
		cfg:        cfg,
		geo:        geoSvc,
		registry:   NewRegistry(),
		events:     make(chan event, cfg.EventQueue),
		parser:     uaparser.NewFromSaved(),
		statsCache: make(map[string]SiteStats),
		runCtx:     context.Background(),
		now:        time.Now,
	}
}

// String implements suture's service naming.
func (h *Hub) String() string {
	return "pulse-hub"
}

// Serve runs the hub loop until the context is canceled. On shutdown every
// connected socket gets a going-away close.
func (h *Hub) Serve(ctx context.Context) error {
	h.runCtx = ctx
	logging.Info().Msg("Pulse hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case ev := <-h.events:
			h.handle(ev)
		}
	}
}

// AttachVisitor hands a freshly upgraded visitor socket to the hub. The
// caller has already validated clientId and siteId.
func (h *Hub) AttachVisitor(conn *websocket.Conn, clientID, siteID, ip, userAgent, referer string) {
	c := newClient(h, conn, clientID, siteID, false)
	c.start()
	h.enqueue(evAttachVisitor{c: c, ip: ip, ua: userAgent, referer: referer})
}

// AttachOwner hands a freshly upgraded dashboard socket to the hub.
func (h *Hub) AttachOwner(conn *websocket.Conn, siteID string) {
	c := newClient(h, conn, "", siteID, true)
	c.start()
	h.enqueue(evAttachOwner{c: c})
}

// Snapshot returns the latest computed stats for a site. Sites with no
// recorded activity report zero stats.
func (h *Hub) Snapshot(siteID string) SiteStats {
	h.statsMu.RLock()
	defer h.statsMu.RUnlock()

	if s, ok := h.statsCache[siteID]; ok {
		return s
	}
	return SiteStats{
		UsersByCountry: map[string]int{},
		UsersByCity:    map[string]int{},
		UsersByBrowser: map[string]int{},
	}
}

// TickBroadcast injects a periodic-broadcast tick. Dropped when the loop is
// saturated; the next tick catches up.
func (h *Hub) TickBroadcast() {
	select {
	case h.events <- evBroadcastTick{}:
	default:
	}
}

// TickReap injects a reaper sweep tick.
func (h *Hub) TickReap() {
	select {
	case h.events <- evReapTick{}:
	default:
	}
}

func (h *Hub) enqueue(ev event) {
	h.events <- ev
}

// handle dispatches one event. A panic is contained at the connection
// boundary: the offending socket closes with 1011 and every other
// connection keeps running.
func (h *Hub) handle(ev event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("Recovered panic in hub event handler")
			if c := eventClient(ev); c != nil {
				c.CloseWith(websocket.CloseInternalServerErr, "internal error")
			}
		}
	}()

	switch ev := ev.(type) {
	case evAttachVisitor:
		h.handleAttachVisitor(ev)
	case evAttachOwner:
		h.handleAttachOwner(ev)
	case evDetach:
		h.handleDetach(ev)
	case evInbound:
		h.handleInbound(ev)
	case evEnriched:
		h.handleEnriched(ev)
	case evBroadcastTick:
		h.handleBroadcastTick()
	case evReapTick:
		h.handleReapTick()
	}
}

// eventClient extracts the connection an event belongs to, if any.
func eventClient(ev event) *client {
	switch ev := ev.(type) {
	case evAttachVisitor:
		return ev.c
	case evAttachOwner:
		return ev.c
	case evDetach:
		return ev.c
	case evInbound:
		return ev.c
	default:
		return nil
	}
}

func (h *Hub) handleAttachVisitor(ev evAttachVisitor) {
	// A reconnect may race the old socket's teardown. The new socket wins;
	// the stale one is closed and replaced.
	if stale, ok := h.registry.VisitorByID(ev.c.id); ok {
		logging.Debug().Str("client_id", ev.c.id).Msg("Superseding stale visitor connection")
		stale.CloseWith(CloseSuperseded, "superseded by new connection")
		h.registry.RemoveVisitor(ev.c.id)
	}

	browser := h.browserFamily(ev.ua)
	v := NewVisitorConnection(ev.c.id, ev.c.siteID, ev.ip, ev.ua, browser, ev.c, h.now())
	v.Referrer = ev.referer
	if err := h.registry.RegisterVisitor(v); err != nil {
		// Unreachable after the supersede above; close defensively.
		ev.c.CloseWith(websocket.ClosePolicyViolation, "duplicate connection")
		return
	}

	metrics.VisitorConnections.Set(float64(h.registry.VisitorCount()))
	logging.Debug().
		Str("client_id", v.ID).
		Str("site_id", v.SiteID).
		Int("site_visitors", len(h.registry.VisitorsBySite(v.SiteID))).
		Msg("Visitor connected")

	h.enrichAsync(v)
	stats := h.recompute(v.SiteID)
	v.Send(EncodeVisitorStats(stats.ActiveUsers))
	metrics.BroadcastsSent.WithLabelValues("stats").Inc()
}

func (h *Hub) handleAttachOwner(ev evAttachOwner) {
	h.registry.RegisterOwner(ev.c.siteID, ev.c)
	metrics.OwnerConnections.Set(float64(h.registry.OwnerCount()))
	logging.Debug().Str("site_id", ev.c.siteID).Msg("Owner connected")

	// New dashboards get the current picture immediately.
	stats := ComputeStats(h.registry.VisitorsBySite(ev.c.siteID))
	ev.c.Send(EncodeDashboardStats(stats))
	metrics.BroadcastsSent.WithLabelValues("dashboardStats").Inc()
}

func (h *Hub) handleDetach(ev evDetach) {
	if ev.c.isOwner {
		h.registry.RemoveOwner(ev.c.siteID, ev.c)
		metrics.OwnerConnections.Set(float64(h.registry.OwnerCount()))
		close(ev.c.send)
		return
	}

	// Only remove the registry entry if it still belongs to this socket; a
	// superseding connection may already own the id.
	if v, ok := h.registry.VisitorByID(ev.c.id); ok && v.sink == Sink(ev.c) {
		h.registry.RemoveVisitor(ev.c.id)
		metrics.VisitorConnections.Set(float64(h.registry.VisitorCount()))
		logging.Debug().Str("client_id", ev.c.id).Str("site_id", ev.c.siteID).Msg("Visitor disconnected")
		h.recompute(ev.c.siteID)
	}
	close(ev.c.send)
}

func (h *Hub) handleInbound(ev evInbound) {
	if ev.c.isOwner {
		// Dashboards are read-only observers.
		return
	}

	msg, err := DecodeInbound(ev.data)
	if err != nil {
		// Malformed input costs the message, not the connection.
		reason := "malformed"
		if errors.Is(err, ErrUnknownMessageType) || errors.Is(err, ErrUnknownEventType) {
			reason = "unknown_type"
		}
		metrics.MessagesRejected.WithLabelValues(reason).Inc()
		logging.Debug().Err(err).Str("client_id", ev.c.id).Msg("Dropping inbound message")
		return
	}

	now := h.now()
	h.registry.Touch(ev.c.id, now)

	switch msg := msg.(type) {
	case Heartbeat:
		metrics.MessagesReceived.WithLabelValues(TypeHeartbeat).Inc()

	case Ping:
		metrics.MessagesReceived.WithLabelValues(TypePing).Inc()
		ev.c.Send(EncodePong())

	case Join:
		metrics.MessagesReceived.WithLabelValues(TypeJoin).Inc()
		stats := h.recompute(ev.c.siteID)
		ev.c.Send(EncodeVisitorStats(stats.ActiveUsers))
		metrics.BroadcastsSent.WithLabelValues("stats").Inc()

	case Leave:
		metrics.MessagesReceived.WithLabelValues(TypeLeave).Inc()
		ev.c.CloseWith(websocket.CloseNormalClosure, "leave")

	case MetricsUpdate:
		metrics.MessagesReceived.WithLabelValues(TypeMetrics).Inc()
		if v, ok := h.registry.VisitorByID(ev.c.id); ok {
			v.Metrics.Apply(msg.Patch)
			stats := h.recompute(ev.c.siteID)
			ev.c.Send(EncodeVisitorStats(stats.ActiveUsers))
			metrics.BroadcastsSent.WithLabelValues("stats").Inc()
		}

	case Event:
		metrics.MessagesReceived.WithLabelValues(TypeEvent).Inc()
		if v, ok := h.registry.VisitorByID(ev.c.id); ok {
			v.Metrics.ClickCount++
			stats := h.recompute(ev.c.siteID)
			ev.c.Send(EncodeVisitorStats(stats.ActiveUsers))
			metrics.BroadcastsSent.WithLabelValues("stats").Inc()
		}

	case PageContext:
		metrics.MessagesReceived.WithLabelValues("page_context").Inc()
		if v, ok := h.registry.VisitorByID(ev.c.id); ok {
			if msg.URL != "" {
				v.URL = msg.URL
			}
			if msg.Referrer != "" {
				v.Referrer = msg.Referrer
			}
			if msg.Patch != nil {
				v.Metrics.Apply(*msg.Patch)
			}
			stats := h.recompute(ev.c.siteID)
			ev.c.Send(EncodeVisitorStats(stats.ActiveUsers))
			metrics.BroadcastsSent.WithLabelValues("stats").Inc()
		}
	}
}

func (h *Hub) handleEnriched(ev evEnriched) {
	v, ok := h.registry.VisitorByID(ev.clientID)
	if !ok {
		// Evicted or disconnected while the lookup was in flight.
		return
	}
	loc := ev.loc
	v.Location = &loc
	h.recompute(v.SiteID)
}

// handleBroadcastTick re-pushes the lightweight count to every visitor. It
// catches visitors whose own activity is quiet but whose peer count moved.
func (h *Hub) handleBroadcastTick() {
	counts := make(map[string]int)
	visitors := h.registry.AllVisitors()
	for _, v := range visitors {
		counts[v.SiteID]++
	}
	for _, v := range visitors {
		if v.Send(EncodeVisitorStats(counts[v.SiteID])) {
			metrics.BroadcastsSent.WithLabelValues("stats").Inc()
		}
	}
}

// handleReapTick evicts visitors idle past the timeout, then recomputes and
// broadcasts once per affected site rather than once per eviction.
func (h *Hub) handleReapTick() {
	now := h.now()
	dirty := make(map[string]struct{})

	for _, v := range h.registry.AllVisitors() {
		if v.IdleFor(now) > h.cfg.IdleTimeout {
			v.CloseWith(CloseIdleTimeout, "idle timeout")
			h.registry.RemoveVisitor(v.ID)
			dirty[v.SiteID] = struct{}{}
			metrics.ReaperEvictions.Inc()
			logging.Debug().
				Str("client_id", v.ID).
				Str("site_id", v.SiteID).
				Dur("idle", v.IdleFor(now)).
				Msg("Reaped idle visitor")
		}
	}

	if len(dirty) == 0 {
		return
	}
	metrics.VisitorConnections.Set(float64(h.registry.VisitorCount()))
	for siteID := range dirty {
		h.recompute(siteID)
	}
}

// recompute rebuilds a site's stats from scratch, refreshes the snapshot
// cache, and pushes the full payload to every owner socket.
func (h *Hub) recompute(siteID string) SiteStats {
	stats := ComputeStats(h.registry.VisitorsBySite(siteID))

	h.statsMu.Lock()
	if stats.ActiveUsers == 0 {
		// Sites whose last visitor left do not linger in the cache; Snapshot
		// already reports zero stats for unknown sites.
		delete(h.statsCache, siteID)
	} else {
		h.statsCache[siteID] = stats
	}
	h.statsMu.Unlock()

	owners := h.registry.OwnersBySite(siteID)
	if len(owners) > 0 {
		payload := EncodeDashboardStats(stats)
		for _, o := range owners {
			if o.Send(payload) {
				metrics.BroadcastsSent.WithLabelValues("dashboardStats").Inc()
			}
		}
	}
	return stats
}

// enrichAsync resolves the visitor's location off the hub goroutine and
// re-enters the loop with the result. Lookup failure is silent; the visitor
// simply stays out of the histograms.
func (h *Hub) enrichAsync(v *VisitorConnection) {
	if h.geo == nil {
		return
	}
	clientID, ip := v.ID, v.IPAddress
	ctx := h.runCtx
	go func() {
		loc, ok := h.geo.Enrich(ctx, ip)
		if !ok {
			return
		}
		select {
		case h.events <- evEnriched{clientID: clientID, loc: loc}:
		case <-ctx.Done():
		}
	}()
}

// browserFamily reduces a User-Agent header to its browser family.
func (h *Hub) browserFamily(ua string) string {
	if ua == "" {
		return ""
	}
	family := h.parser.ParseUserAgent(ua).Family
	if family == "Other" {
		return ""
	}
	return family
}

// shutdown closes every socket with a going-away frame.
func (h *Hub) shutdown() {
	for _, v := range h.registry.AllVisitors() {
		v.CloseWith(websocket.CloseGoingAway, "server shutting down")
	}
	for siteID := range h.registry.owners {
		for s := range h.registry.owners[siteID] {
			s.CloseWith(websocket.CloseGoingAway, "server shutting down")
		}
	}
	logging.Info().Int("visitors", h.registry.VisitorCount()).Msg("Pulse hub stopped")
}
