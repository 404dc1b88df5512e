// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/dheerajmandava/proovd-pulse/internal/sites"
)

// GetSite returns the widget settings for a site.
//
// GET /api/v1/sites/{id}
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "id")
	respondJSON(w, http.StatusOK, h.sites.GetOrDefault(siteID))
}

// PatchSite applies a partial settings update and returns the result.
//
// PATCH /api/v1/sites/{id}
func (h *Handler) PatchSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "id")

	var patch sites.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, CodeMalformedJSON, "request body is not valid JSON", err)
		return
	}

	updated, err := h.sites.Apply(siteID, &patch)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidationError, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}
