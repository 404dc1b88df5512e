// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dheerajmandava/proovd-pulse/internal/logging"
)

// PulseSocket upgrades the widget or dashboard socket and hands it to the
// hub. Identity problems surface as a 1008 close after the upgrade, so the
// browser's WebSocket API reports a policy violation instead of a failed
// HTTP request.
//
// Query parameters: siteId (always), clientId (visitors), isOwner=true
// (dashboards), token (optional, site-scoped pulse token).
func (h *Handler) PulseSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	q := r.URL.Query()
	siteID := q.Get("siteId")
	clientID := q.Get("clientId")
	isOwner := q.Get("isOwner") == "true"

	if siteID == "" || (!isOwner && clientID == "") {
		closeWithPolicyViolation(conn, "missing required identifiers")
		return
	}

	if token := q.Get("token"); token != "" && h.tokens != nil {
		sub, err := h.tokens.VerifySiteToken(token)
		if err != nil || sub != siteID {
			closeWithPolicyViolation(conn, "invalid pulse token")
			return
		}
	}

	if isOwner {
		h.hub.AttachOwner(conn, siteID)
		return
	}
	h.hub.AttachVisitor(conn, clientID, siteID, remoteIP(r), r.UserAgent(), r.Referer())
}

// closeWithPolicyViolation sends a 1008 close frame and drops the socket.
func closeWithPolicyViolation(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(5 * time.Second)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}

// PulseAuth issues a short-lived site-scoped token for the widget.
//
// GET /api/v1/pulse-auth?siteId=...
func (h *Handler) PulseAuth(w http.ResponseWriter, r *http.Request) {
	siteID := r.URL.Query().Get("siteId")
	if siteID == "" {
		respondError(w, http.StatusBadRequest, CodeValidationError, "siteId is required", nil)
		return
	}
	if h.tokens == nil {
		respondError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "token issuance is not configured", nil)
		return
	}

	token, err := h.tokens.IssueSiteToken(siteID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternalError, "failed to issue token", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// SitePulse returns the latest stats snapshot for a site. Dashboards use it
// as a polling fallback when their socket is down.
//
// GET /api/v1/sites/{id}/pulse
func (h *Handler) SitePulse(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "id")
	respondJSON(w, http.StatusOK, h.hub.Snapshot(siteID))
}
