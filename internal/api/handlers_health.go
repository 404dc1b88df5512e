// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package api

import (
	"net/http"
	"time"
)

// Health reports overall server status plus a few operational numbers.
//
// GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.geo != nil {
		data["geo_quota_used"] = h.geo.QuotaUsed()
	}
	respondJSON(w, http.StatusOK, data)
}

// HealthLive is the liveness probe: the process is up and serving.
//
// GET /api/v1/health/live
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe. The hub has no warm-up phase, so
// readiness tracks liveness.
//
// GET /api/v1/health/ready
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
