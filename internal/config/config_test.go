// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package config

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}

	if cfg.Pulse.BroadcastInterval != 10*time.Second {
		t.Errorf("BroadcastInterval = %v, want 10s", cfg.Pulse.BroadcastInterval)
	}
	if cfg.Pulse.IdleTimeout != 5*time.Minute {
		t.Errorf("IdleTimeout = %v, want 5m", cfg.Pulse.IdleTimeout)
	}
	if cfg.Geo.CacheTTL != 24*time.Hour {
		t.Errorf("Geo.CacheTTL = %v, want 24h", cfg.Geo.CacheTTL)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: ErrInvalidPort,
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: ErrInvalidPort,
		},
		{
			name:    "short token secret",
			mutate:  func(c *Config) { c.Auth.TokenSecret = "too-short" },
			wantErr: ErrMissingSecret,
		},
		{
			name:    "zero idle timeout",
			mutate:  func(c *Config) { c.Pulse.IdleTimeout = 0 },
			wantErr: ErrInvalidInterval,
		},
		{
			name:    "negative broadcast interval",
			mutate:  func(c *Config) { c.Pulse.BroadcastInterval = -time.Second },
			wantErr: ErrInvalidInterval,
		},
		{
			name:    "zero send buffer",
			mutate:  func(c *Config) { c.Pulse.SendBuffer = 0 },
			wantErr: ErrInvalidSendQueue,
		},
		{
			name:    "zero geo quota",
			mutate:  func(c *Config) { c.Geo.DailyQuota = 0 },
			wantErr: ErrInvalidQuota,
		},
		{
			name:    "zero geo rate",
			mutate:  func(c *Config) { c.Geo.RatePerSecond = 0 },
			wantErr: ErrInvalidRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDisabledGeoSkipsGeoChecks(t *testing.T) {
	cfg := defaultConfig()
	cfg.Geo.Enabled = false
	cfg.Geo.DailyQuota = 0

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil when geo disabled", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"PULSE_SERVER__PORT", "server.port"},
		{"PULSE_GEO__DAILY_QUOTA", "geo.daily_quota"},
		{"PULSE_PULSE__IDLE_TIMEOUT", "pulse.idle_timeout"},
		{"PULSE_LOGGING__LEVEL", "logging.level"},
		{"PULSE_SERVER__CORS_ORIGINS", "server.cors_origins"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PULSE_SERVER__PORT", "4480")
	t.Setenv("PULSE_GEO__DAILY_QUOTA", "50")
	t.Setenv("PULSE_SERVER__CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 4480 {
		t.Errorf("Server.Port = %d, want 4480", cfg.Server.Port)
	}
	if cfg.Geo.DailyQuota != 50 {
		t.Errorf("Geo.DailyQuota = %d, want 50", cfg.Geo.DailyQuota)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != "https://a.example" {
		t.Errorf("CORSOrigins = %v, want two trimmed origins", cfg.Server.CORSOrigins)
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("PULSE_SERVER__PORT", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Load() succeeded with invalid port, want error")
	}
}
