// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

// Package api provides the HTTP surface of the pulse server: the widget
// socket endpoint, token issuance, site settings, stats polling, and health.
package api

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dheerajmandava/proovd-pulse/internal/auth"
	"github.com/dheerajmandava/proovd-pulse/internal/config"
	"github.com/dheerajmandava/proovd-pulse/internal/geo"
	"github.com/dheerajmandava/proovd-pulse/internal/logging"
	"github.com/dheerajmandava/proovd-pulse/internal/pulse"
	"github.com/dheerajmandava/proovd-pulse/internal/sites"
)

// Handler holds the dependencies every endpoint needs. Construct once at
// startup and register through NewRouter.
type Handler struct {
	cfg    *config.Config
	hub    *pulse.Hub
	sites  *sites.Store
	tokens *auth.Manager
	geo    *geo.Service

	startedAt time.Time
}

// NewHandler creates the API handler. tokens and geoSvc may be nil when the
// corresponding features are disabled.
func NewHandler(cfg *config.Config, hub *pulse.Hub, siteStore *sites.Store, tokens *auth.Manager, geoSvc *geo.Service) *Handler {
	return &Handler{
		cfg:       cfg,
		hub:       hub,
		sites:     siteStore,
		tokens:    tokens,
		geo:       geoSvc,
		startedAt: time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates socket origins against the configured CORS
// list. The widget runs on arbitrary customer domains, so deployments
// usually configure the wildcard here.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients (widget simulator, curl) omit Origin.
		return true
	}

	if h.cfg == nil {
		return true
	}
	for _, allowed := range h.cfg.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// remoteIP extracts the client IP. The RealIP middleware has already folded
// X-Forwarded-For into RemoteAddr.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
