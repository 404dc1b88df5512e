// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package pulse

import (
	"errors"
	"time"
)

// ErrDuplicateConnection is returned when a clientId is already registered.
// The caller decides what happens to the stale socket.
var ErrDuplicateConnection = errors.New("pulse: client id already connected")

// Registry is the single source of truth for live connections. It maps
// clientId to visitor connections and siteId to owner socket sets.
//
// Registry is NOT internally synchronized. Every method is invoked from the
// hub goroutine only; tests may drive it directly from a single goroutine.
type Registry struct {
	visitors map[string]*VisitorConnection
	owners   map[string]map[Sink]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		visitors: make(map[string]*VisitorConnection),
		owners:   make(map[string]map[Sink]struct{}),
	}
}

// RegisterVisitor inserts a visitor connection. It fails with
// ErrDuplicateConnection when the id is already present.
func (r *Registry) RegisterVisitor(v *VisitorConnection) error {
	if _, exists := r.visitors[v.ID]; exists {
		return ErrDuplicateConnection
	}
	r.visitors[v.ID] = v
	return nil
}

// VisitorByID returns the visitor connection for id, if registered.
func (r *Registry) VisitorByID(id string) (*VisitorConnection, bool) {
	v, ok := r.visitors[id]
	return v, ok
}

// Touch refreshes a visitor's activity timestamp. Messages for an
// already-evicted client are silently ignored; they must not resurrect it.
func (r *Registry) Touch(id string, now time.Time) {
	if v, ok := r.visitors[id]; ok {
		v.Touch(now)
	}
}

// RemoveVisitor deletes a visitor connection and returns it. Removing an
// unknown id is a no-op.
func (r *Registry) RemoveVisitor(id string) (*VisitorConnection, bool) {
	v, ok := r.visitors[id]
	if !ok {
		return nil, false
	}
	delete(r.visitors, id)
	return v, true
}

// RegisterOwner adds a dashboard socket to the site's owner set. Adding the
// same socket twice is idempotent.
func (r *Registry) RegisterOwner(siteID string, s Sink) {
	set, ok := r.owners[siteID]
	if !ok {
		set = make(map[Sink]struct{})
		r.owners[siteID] = set
	}
	set[s] = struct{}{}
}

// RemoveOwner removes a dashboard socket. The site's entry is deleted when
// its set becomes empty.
func (r *Registry) RemoveOwner(siteID string, s Sink) {
	set, ok := r.owners[siteID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.owners, siteID)
	}
}

// OwnersBySite returns a snapshot of the owner sockets for a site.
func (r *Registry) OwnersBySite(siteID string) []Sink {
	set := r.owners[siteID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Sink, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// VisitorsBySite returns a snapshot of the visitor connections for a site.
// Callers iterate the snapshot, never the live map.
func (r *Registry) VisitorsBySite(siteID string) []*VisitorConnection {
	var out []*VisitorConnection
	for _, v := range r.visitors {
		if v.SiteID == siteID {
			out = append(out, v)
		}
	}
	return out
}

// AllVisitors returns a snapshot of every visitor connection.
func (r *Registry) AllVisitors() []*VisitorConnection {
	out := make([]*VisitorConnection, 0, len(r.visitors))
	for _, v := range r.visitors {
		out = append(out, v)
	}
	return out
}

// VisitorCount returns the number of registered visitor connections.
func (r *Registry) VisitorCount() int {
	return len(r.visitors)
}

// OwnerCount returns the number of registered owner sockets across sites.
func (r *Registry) OwnerCount() int {
	n := 0
	for _, set := range r.owners {
		n += len(set)
	}
	return n
}
