// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

// Package config provides layered configuration for the pulse server.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for every setting
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: PULSE_-prefixed overrides (highest priority)
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors.
var (
	ErrInvalidPort      = errors.New("server port must be between 1 and 65535")
	ErrMissingSecret    = errors.New("auth token secret must be at least 32 characters")
	ErrInvalidInterval  = errors.New("interval must be positive")
	ErrInvalidQuota     = errors.New("geo daily quota must be positive")
	ErrInvalidRate      = errors.New("geo rate per second must be positive")
	ErrInvalidSendQueue = errors.New("pulse send buffer must be positive")
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Pulse   PulseConfig   `koanf:"pulse"`
	Geo     GeoConfig     `koanf:"geo"`
	Auth    AuthConfig    `koanf:"auth"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists origins allowed to open widget sockets and call the
	// pulse API. The widget runs on customer sites, so production deployments
	// typically keep the wildcard here and rely on per-site tokens instead.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs / RateLimitWindow bound API calls per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// PulseConfig holds the real-time hub settings.
type PulseConfig struct {
	// BroadcastInterval is the cadence of the periodic visitor-count push to
	// all connected visitors.
	BroadcastInterval time.Duration `koanf:"broadcast_interval"`

	// ReapInterval is the cadence of the idle-connection sweep.
	ReapInterval time.Duration `koanf:"reap_interval"`

	// IdleTimeout is how long a visitor may stay silent before eviction.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// SendBuffer is the per-connection outbound queue length. A connection
	// whose queue is full has its writes skipped rather than blocking the hub.
	SendBuffer int `koanf:"send_buffer"`

	// MaxMessageSize caps inbound socket payloads in bytes.
	MaxMessageSize int64 `koanf:"max_message_size"`

	// EventQueue is the hub command channel length.
	EventQueue int `koanf:"event_queue"`
}

// GeoConfig holds geolocation enrichment settings.
type GeoConfig struct {
	Enabled bool `koanf:"enabled"`

	// ProviderURL is the base URL of the IP geolocation HTTP provider.
	ProviderURL string        `koanf:"provider_url"`
	Timeout     time.Duration `koanf:"timeout"`

	// CacheTTL is how long a resolved location stays cached per IP.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// DailyQuota caps external lookups per calendar day. Keep a safety
	// margin below the provider's advertised limit.
	DailyQuota int `koanf:"daily_quota"`

	// RatePerSecond smooths lookup bursts under the provider's per-minute
	// ceiling.
	RatePerSecond float64 `koanf:"rate_per_second"`
}

// AuthConfig holds pulse token settings. Tokens are short-lived, site-scoped
// credentials handed to the widget by the dashboard backend.
type AuthConfig struct {
	TokenSecret string        `koanf:"token_secret"`
	TokenTTL    time.Duration `koanf:"token_ttl"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            4077,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Pulse: PulseConfig{
			BroadcastInterval: 10 * time.Second,
			ReapInterval:      60 * time.Second,
			IdleTimeout:       5 * time.Minute,
			SendBuffer:        256,
			MaxMessageSize:    64 * 1024, // 64 KB
			EventQueue:        1024,
		},
		Geo: GeoConfig{
			Enabled:       true,
			ProviderURL:   "http://ip-api.com/json",
			Timeout:       5 * time.Second,
			CacheTTL:      24 * time.Hour,
			DailyQuota:    1000,
			RatePerSecond: 0.7,
		},
		Auth: AuthConfig{
			TokenSecret: "",
			TokenTTL:    5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for values that would make the server
// misbehave at runtime. It is called by Load after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}
	if c.Auth.TokenSecret != "" && len(c.Auth.TokenSecret) < 32 {
		return ErrMissingSecret
	}
	for name, d := range map[string]time.Duration{
		"pulse.broadcast_interval": c.Pulse.BroadcastInterval,
		"pulse.reap_interval":      c.Pulse.ReapInterval,
		"pulse.idle_timeout":       c.Pulse.IdleTimeout,
		"auth.token_ttl":           c.Auth.TokenTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidInterval, name)
		}
	}
	if c.Pulse.SendBuffer <= 0 || c.Pulse.EventQueue <= 0 {
		return ErrInvalidSendQueue
	}
	if c.Geo.Enabled {
		if c.Geo.DailyQuota <= 0 {
			return ErrInvalidQuota
		}
		if c.Geo.RatePerSecond <= 0 {
			return ErrInvalidRate
		}
	}
	return nil
}
