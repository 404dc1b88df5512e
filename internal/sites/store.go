// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

// Package sites holds per-site widget settings. The dashboard backend owns
// the authoritative copy; this store is the pulse server's working view,
// read on every widget bootstrap and patched by the dashboard.
package sites

import (
	"sync"
	"time"

	"github.com/dheerajmandava/proovd-pulse/internal/validation"
)

// Widget placement and theme values accepted by the API.
const (
	PositionBottomLeft  = "bottom-left"
	PositionBottomRight = "bottom-right"
	PositionTopLeft     = "top-left"
	PositionTopRight    = "top-right"

	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Settings is the widget configuration for one site.
type Settings struct {
	SiteID       string    `json:"siteId"`
	Position     string    `json:"position"`
	Theme        string    `json:"theme"`
	ShowLocation bool      `json:"showLocation"`
	Enabled      bool      `json:"enabled"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Patch is a partial settings update. Nil fields are left untouched.
type Patch struct {
	Position     *string `json:"position" validate:"omitempty,oneof=bottom-left bottom-right top-left top-right"`
	Theme        *string `json:"theme" validate:"omitempty,oneof=light dark"`
	ShowLocation *bool   `json:"showLocation"`
	Enabled      *bool   `json:"enabled"`
}

// Validate checks the patch against the accepted value sets.
func (p *Patch) Validate() error {
	return validation.ValidateStruct(p)
}

// defaultSettings returns the out-of-the-box widget configuration.
func defaultSettings(siteID string) Settings {
	return Settings{
		SiteID:       siteID,
		Position:     PositionBottomLeft,
		Theme:        ThemeLight,
		ShowLocation: true,
		Enabled:      true,
	}
}

// Store is a thread-safe in-memory settings store.
type Store struct {
	mu       sync.RWMutex
	settings map[string]Settings

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		settings: make(map[string]Settings),
		now:      time.Now,
	}
}

// GetOrDefault returns the settings for a site, falling back to defaults for
// sites never patched. The defaults are not persisted by the read.
func (s *Store) GetOrDefault(siteID string) Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.settings[siteID]; ok {
		return st
	}
	return defaultSettings(siteID)
}

// Apply validates and merges a patch into a site's settings, returning the
// updated snapshot.
func (s *Store) Apply(siteID string, p *Patch) (Settings, error) {
	if err := p.Validate(); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.settings[siteID]
	if !ok {
		st = defaultSettings(siteID)
	}

	if p.Position != nil {
		st.Position = *p.Position
	}
	if p.Theme != nil {
		st.Theme = *p.Theme
	}
	if p.ShowLocation != nil {
		st.ShowLocation = *p.ShowLocation
	}
	if p.Enabled != nil {
		st.Enabled = *p.Enabled
	}
	st.UpdatedAt = s.now()

	s.settings[siteID] = st
	return st, nil
}
