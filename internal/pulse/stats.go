// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package pulse

import "sort"

// SiteStats is derived per-site engagement state. It is always recomputed
// from the full connection set, never patched incrementally, so it cannot
// drift from stale decrements.
type SiteStats struct {
	ActiveUsers          int            `json:"activeUsers"`
	AvgTimeOnPageSeconds float64        `json:"avgTimeOnPageSeconds"`
	AvgScrollPercentage  float64        `json:"avgScrollPercentage"`
	TotalClicks          int64          `json:"totalClicks"`
	UsersByCountry       map[string]int `json:"usersByCountry"`
	UsersByCity          map[string]int `json:"usersByCity"`
	UsersByBrowser       map[string]int `json:"usersByBrowser"`
}

// CountryCount is one bucket of the country histogram.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// CityCount is one bucket of the city histogram.
type CityCount struct {
	City  string `json:"city"`
	Count int    `json:"count"`
}

// BrowserCount is one bucket of the browser histogram.
type BrowserCount struct {
	Browser string `json:"browser"`
	Count   int    `json:"count"`
}

// ComputeStats derives SiteStats from a connection snapshot. It is a pure
// function: same input, same output, no side effects.
//
// ActiveUsers equals the connection count; with zero connections it is 0,
// not floored to 1. The floor only ever mattered for nonempty sets, where it
// is a no-op anyway.
func ComputeStats(conns []*VisitorConnection) SiteStats {
	s := SiteStats{
		ActiveUsers:    len(conns),
		UsersByCountry: make(map[string]int),
		UsersByCity:    make(map[string]int),
		UsersByBrowser: make(map[string]int),
	}
	if len(conns) == 0 {
		return s
	}

	var timeSum, scrollSum float64
	for _, c := range conns {
		timeSum += c.Metrics.TimeOnPageSeconds
		scrollSum += c.Metrics.ScrollPercentage
		s.TotalClicks += c.Metrics.ClickCount

		// Visitors without a resolved location contribute to no bucket.
		if c.Location != nil && !c.Location.IsZero() {
			if c.Location.Country != "" {
				s.UsersByCountry[c.Location.Country]++
			}
			if c.Location.City != "" {
				s.UsersByCity[c.Location.City]++
			}
		}
		if c.Browser != "" {
			s.UsersByBrowser[c.Browser]++
		}
	}

	n := float64(len(conns))
	s.AvgTimeOnPageSeconds = timeSum / n
	s.AvgScrollPercentage = scrollSum / n
	return s
}

// sortedBuckets orders histogram keys by count descending, then name
// ascending, so payloads are deterministic.
func sortedBuckets(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Locations returns the country histogram as a sorted slice.
func (s SiteStats) Locations() []CountryCount {
	out := make([]CountryCount, 0, len(s.UsersByCountry))
	for _, k := range sortedBuckets(s.UsersByCountry) {
		out = append(out, CountryCount{Country: k, Count: s.UsersByCountry[k]})
	}
	return out
}

// Cities returns the city histogram as a sorted slice.
func (s SiteStats) Cities() []CityCount {
	out := make([]CityCount, 0, len(s.UsersByCity))
	for _, k := range sortedBuckets(s.UsersByCity) {
		out = append(out, CityCount{City: k, Count: s.UsersByCity[k]})
	}
	return out
}

// Browsers returns the browser histogram as a sorted slice.
func (s SiteStats) Browsers() []BrowserCount {
	out := make([]BrowserCount, 0, len(s.UsersByBrowser))
	for _, k := range sortedBuckets(s.UsersByBrowser) {
		out = append(out, BrowserCount{Browser: k, Count: s.UsersByBrowser[k]})
	}
	return out
}
