// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package pulse

import (
	"errors"
	"fmt"
	"math"

	json "github.com/goccy/go-json"
)

// Inbound message types.
const (
	TypeHeartbeat = "heartbeat"
	TypePing      = "ping"
	TypeJoin      = "join"
	TypeLeave     = "leave"
	TypeMetrics   = "metrics"
	TypeEvent     = "event"
)

// Outbound message types.
const (
	TypePong           = "pong"
	TypeStats          = "stats"
	TypeDashboardStats = "dashboardStats"
)

// EventClick is the only recognized engagement event type.
const EventClick = "click"

// Protocol errors. Both are handled by logging and dropping the message; the
// connection stays open.
var (
	ErrMalformedMessage   = errors.New("pulse: malformed message payload")
	ErrUnknownMessageType = errors.New("pulse: unknown message type")
	ErrUnknownEventType   = errors.New("pulse: unknown event type")
)

// Inbound is the closed set of messages a client may send. Dispatch matches
// exhaustively on the concrete type.
type Inbound interface {
	isInbound()
}

// Heartbeat refreshes the sender's activity timestamp and nothing else.
type Heartbeat struct{}

// Ping is the client keepalive. It refreshes activity and is answered with a
// pong.
type Ping struct{}

// Join announces the widget after socket open.
type Join struct {
	SiteID   string
	ClientID string
}

// Leave announces the widget tearing down before close.
type Leave struct{}

// MetricsUpdate merges an engagement metrics patch into the connection.
type MetricsUpdate struct {
	Patch MetricsPatch
}

// Event is a discrete engagement signal, currently only clicks.
type Event struct {
	EventType string
}

// PageContext is the untyped initial message carrying page details and an
// optional first metrics patch.
type PageContext struct {
	URL      string
	Referrer string
	Patch    *MetricsPatch
}

func (Heartbeat) isInbound()     {}
func (Ping) isInbound()          {}
func (Join) isInbound()          {}
func (Leave) isInbound()         {}
func (MetricsUpdate) isInbound() {}
func (Event) isInbound()         {}
func (PageContext) isInbound()   {}

// MetricsPatch is a partial metrics update. Nil fields are left untouched on
// merge.
type MetricsPatch struct {
	ScrollPercentage  *float64 `json:"scrollPercentage"`
	TimeOnPageSeconds *float64 `json:"timeOnPageSeconds"`
	ClickCount        *int64   `json:"clickCount"`
}

// envelope is the raw wire shape before dispatch on Type.
type envelope struct {
	Type      string        `json:"type"`
	SiteID    string        `json:"siteId"`
	ClientID  string        `json:"clientId"`
	EventType string        `json:"eventType"`
	URL       string        `json:"url"`
	Referrer  string        `json:"referrer"`
	Metrics   *MetricsPatch `json:"metrics"`
}

// DecodeInbound parses a raw client payload into its message type. A missing
// type tag is the initial page-context message. Unrecognized tags are
// rejected rather than ignored.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeHeartbeat:
		return Heartbeat{}, nil
	case TypePing:
		return Ping{}, nil
	case TypeJoin:
		return Join{SiteID: env.SiteID, ClientID: env.ClientID}, nil
	case TypeLeave:
		return Leave{}, nil
	case TypeMetrics:
		if env.Metrics == nil {
			return nil, fmt.Errorf("%w: metrics message without metrics field", ErrMalformedMessage)
		}
		p := *env.Metrics
		p.normalize()
		return MetricsUpdate{Patch: p}, nil
	case TypeEvent:
		if env.EventType != EventClick {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
		}
		return Event{EventType: env.EventType}, nil
	case "":
		pc := PageContext{URL: env.URL, Referrer: env.Referrer}
		if env.Metrics != nil {
			p := *env.Metrics
			p.normalize()
			pc.Patch = &p
		}
		return pc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// normalize clamps patch values into their valid ranges. Scroll depth lands
// in [0,100]; non-finite inputs become 0; negatives become 0.
func (p *MetricsPatch) normalize() {
	if p.ScrollPercentage != nil {
		*p.ScrollPercentage = clampScroll(*p.ScrollPercentage)
	}
	if p.TimeOnPageSeconds != nil {
		if v := *p.TimeOnPageSeconds; math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			*p.TimeOnPageSeconds = 0
		}
	}
	if p.ClickCount != nil && *p.ClickCount < 0 {
		*p.ClickCount = 0
	}
}

func clampScroll(v float64) float64 {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// visitorStats is the lightweight payload pushed to visitor sockets.
type visitorStats struct {
	Type        string `json:"type"`
	ActiveUsers int    `json:"activeUsers"`
}

// EncodeVisitorStats builds the lightweight stats frame for visitors.
func EncodeVisitorStats(activeUsers int) []byte {
	b, _ := json.Marshal(visitorStats{Type: TypeStats, ActiveUsers: activeUsers})
	return b
}

// dashboardStats is the full payload pushed to owner sockets.
type dashboardStats struct {
	Type                 string         `json:"type"`
	ActiveUsers          int            `json:"activeUsers"`
	AvgTimeOnPageSeconds float64        `json:"avgTimeOnPageSeconds"`
	AvgScrollPercentage  float64        `json:"avgScrollPercentage"`
	TotalClicks          int64          `json:"totalClicks"`
	Locations            []CountryCount `json:"locations"`
	Cities               []CityCount    `json:"cities"`
	Browsers             []BrowserCount `json:"browsers"`
}

// EncodeDashboardStats builds the full stats frame for dashboard owners.
func EncodeDashboardStats(s SiteStats) []byte {
	b, _ := json.Marshal(dashboardStats{
		Type:                 TypeDashboardStats,
		ActiveUsers:          s.ActiveUsers,
		AvgTimeOnPageSeconds: s.AvgTimeOnPageSeconds,
		AvgScrollPercentage:  s.AvgScrollPercentage,
		TotalClicks:          s.TotalClicks,
		Locations:            s.Locations(),
		Cities:               s.Cities(),
		Browsers:             s.Browsers(),
	})
	return b
}

// EncodePong builds the keepalive reply frame.
func EncodePong() []byte {
	b, _ := json.Marshal(map[string]string{"type": TypePong})
	return b
}
