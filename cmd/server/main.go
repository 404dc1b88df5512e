// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

// The pulse server tracks live visitors per site over WebSockets, enriches
// them with coarse geolocation, and streams aggregated engagement stats to
// widgets and dashboards.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dheerajmandava/proovd-pulse/internal/api"
	"github.com/dheerajmandava/proovd-pulse/internal/auth"
	"github.com/dheerajmandava/proovd-pulse/internal/config"
	"github.com/dheerajmandava/proovd-pulse/internal/geo"
	"github.com/dheerajmandava/proovd-pulse/internal/logging"
	"github.com/dheerajmandava/proovd-pulse/internal/pulse"
	"github.com/dheerajmandava/proovd-pulse/internal/sites"
	"github.com/dheerajmandava/proovd-pulse/internal/supervisor"
	"github.com/dheerajmandava/proovd-pulse/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Int("port", cfg.Server.Port).
		Bool("geo_enabled", cfg.Geo.Enabled).
		Msg("Starting Proovd Pulse")

	// Geolocation resolver. Disabled deployments run with a nil service and
	// every visitor simply has no location.
	var geoSvc *geo.Service
	if cfg.Geo.Enabled {
		provider := geo.NewHTTPProvider(cfg.Geo.ProviderURL, cfg.Geo.Timeout)
		geoSvc = geo.NewService(provider, cfg.Geo.CacheTTL, cfg.Geo.DailyQuota, cfg.Geo.RatePerSecond, true)
		defer geoSvc.Close()
	}

	// Pulse tokens are only issued when a secret is configured; without one
	// the socket endpoint accepts unauthenticated widgets.
	var tokens *auth.Manager
	if cfg.Auth.TokenSecret != "" {
		tokens = auth.NewManager(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	} else {
		logging.Warn().Msg("No token secret configured, pulse sockets are unauthenticated")
	}

	hub := pulse.NewHub(cfg.Pulse, geoSvc)
	siteStore := sites.NewStore()
	handler := api.NewHandler(cfg, hub, siteStore, tokens, geoSvc)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddRealtimeService(hub)
	tree.AddRealtimeService(pulse.NewBroadcaster(hub, cfg.Pulse.BroadcastInterval))
	tree.AddRealtimeService(pulse.NewReaper(hub, cfg.Pulse.ReapInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Supervisor tree starting")
	if err := tree.Serve(ctx); err != nil && err != context.Canceled {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
		os.Exit(1)
	}
	logging.Info().Msg("Proovd Pulse stopped")
}
