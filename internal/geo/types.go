// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

// Package geo resolves visitor IP addresses to coarse locations.
//
// Resolution is best-effort and layered: a 24-hour cache absorbs repeat
// visitors, a daily quota protects the free external provider, a rate
// limiter smooths bursts, and a circuit breaker contains provider outages.
// A failed resolution never fails the caller; the visitor simply has no
// location.
package geo

import "errors"

// Resolution errors. Callers treat all of them as "no location".
var (
	ErrQuotaExceeded = errors.New("geo: daily lookup quota exceeded")
	ErrProvider      = errors.New("geo: provider lookup failed")
	ErrInvalidIP     = errors.New("geo: invalid ip address")
)

// Location is a coarse visitor location. Only country, region, and city are
// kept; precise coordinates are never stored.
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// IsZero reports whether no location field is set.
func (l Location) IsZero() bool {
	return l.Country == "" && l.Region == "" && l.City == ""
}
