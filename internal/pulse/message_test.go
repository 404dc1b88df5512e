// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package pulse

import (
	"errors"
	"math"
	"testing"

	json "github.com/goccy/go-json"
)

func TestDecodeInboundTypes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, msg Inbound)
	}{
		{
			name:    "heartbeat",
			payload: `{"type":"heartbeat"}`,
			check: func(t *testing.T, msg Inbound) {
				if _, ok := msg.(Heartbeat); !ok {
					t.Errorf("got %T, want Heartbeat", msg)
				}
			},
		},
		{
			name:    "ping",
			payload: `{"type":"ping"}`,
			check: func(t *testing.T, msg Inbound) {
				if _, ok := msg.(Ping); !ok {
					t.Errorf("got %T, want Ping", msg)
				}
			},
		},
		{
			name:    "join",
			payload: `{"type":"join","siteId":"s1","clientId":"c1"}`,
			check: func(t *testing.T, msg Inbound) {
				j, ok := msg.(Join)
				if !ok {
					t.Fatalf("got %T, want Join", msg)
				}
				if j.SiteID != "s1" || j.ClientID != "c1" {
					t.Errorf("Join = %+v", j)
				}
			},
		},
		{
			name:    "leave",
			payload: `{"type":"leave"}`,
			check: func(t *testing.T, msg Inbound) {
				if _, ok := msg.(Leave); !ok {
					t.Errorf("got %T, want Leave", msg)
				}
			},
		},
		{
			name:    "click event",
			payload: `{"type":"event","eventType":"click"}`,
			check: func(t *testing.T, msg Inbound) {
				e, ok := msg.(Event)
				if !ok {
					t.Fatalf("got %T, want Event", msg)
				}
				if e.EventType != EventClick {
					t.Errorf("EventType = %q", e.EventType)
				}
			},
		},
		{
			name:    "metrics",
			payload: `{"type":"metrics","metrics":{"scrollPercentage":42.5,"timeOnPageSeconds":30,"clickCount":2}}`,
			check: func(t *testing.T, msg Inbound) {
				m, ok := msg.(MetricsUpdate)
				if !ok {
					t.Fatalf("got %T, want MetricsUpdate", msg)
				}
				if *m.Patch.ScrollPercentage != 42.5 || *m.Patch.TimeOnPageSeconds != 30 || *m.Patch.ClickCount != 2 {
					t.Errorf("Patch = %+v", m.Patch)
				}
			},
		},
		{
			name:    "untyped page context",
			payload: `{"url":"https://shop.example/p/1","referrer":"https://google.com","metrics":{"scrollPercentage":10}}`,
			check: func(t *testing.T, msg Inbound) {
				pc, ok := msg.(PageContext)
				if !ok {
					t.Fatalf("got %T, want PageContext", msg)
				}
				if pc.URL != "https://shop.example/p/1" || pc.Referrer != "https://google.com" {
					t.Errorf("PageContext = %+v", pc)
				}
				if pc.Patch == nil || *pc.Patch.ScrollPercentage != 10 {
					t.Errorf("Patch = %+v", pc.Patch)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tt.payload))
			if err != nil {
				t.Fatalf("DecodeInbound error: %v", err)
			}
			tt.check(t, msg)
		})
	}
}

func TestDecodeInboundRejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"unknown type", `{"type":"teleport"}`, ErrUnknownMessageType},
		{"unknown event type", `{"type":"event","eventType":"hover"}`, ErrUnknownEventType},
		{"malformed json", `{"type":`, ErrMalformedMessage},
		{"metrics without payload", `{"type":"metrics"}`, ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeInbound error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeInboundClampsScroll(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
	}{
		{"over 100", `{"type":"metrics","metrics":{"scrollPercentage":180}}`, 100},
		{"negative", `{"type":"metrics","metrics":{"scrollPercentage":-5}}`, 0},
		{"in range", `{"type":"metrics","metrics":{"scrollPercentage":55}}`, 55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tt.payload))
			if err != nil {
				t.Fatalf("DecodeInbound error: %v", err)
			}
			m := msg.(MetricsUpdate)
			if got := *m.Patch.ScrollPercentage; got != tt.want {
				t.Errorf("ScrollPercentage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClampScrollNonFinite(t *testing.T) {
	// NaN and Inf cannot arrive through strict JSON, but the clamp is total
	// anyway.
	for _, v := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		if got := clampScroll(v); got != 0 {
			t.Errorf("clampScroll(%v) = %v, want 0", v, got)
		}
	}
}

func TestEncodeVisitorStats(t *testing.T) {
	var got map[string]interface{}
	if err := json.Unmarshal(EncodeVisitorStats(7), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "stats" || got["activeUsers"] != float64(7) {
		t.Errorf("payload = %v", got)
	}
}

func TestEncodeDashboardStatsShape(t *testing.T) {
	s := SiteStats{
		ActiveUsers:          2,
		AvgTimeOnPageSeconds: 12.5,
		AvgScrollPercentage:  40,
		TotalClicks:          9,
		UsersByCountry:       map[string]int{"France": 2},
		UsersByCity:          map[string]int{"Paris": 2},
		UsersByBrowser:       map[string]int{"Firefox": 1, "Chrome": 1},
	}

	var got struct {
		Type      string         `json:"type"`
		Locations []CountryCount `json:"locations"`
		Cities    []CityCount    `json:"cities"`
	}
	if err := json.Unmarshal(EncodeDashboardStats(s), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeDashboardStats {
		t.Errorf("type = %q", got.Type)
	}
	if len(got.Locations) != 1 || got.Locations[0].Country != "France" || got.Locations[0].Count != 2 {
		t.Errorf("locations = %+v", got.Locations)
	}
	if len(got.Cities) != 1 || got.Cities[0].City != "Paris" {
		t.Errorf("cities = %+v", got.Cities)
	}
}
