// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

// The widget simulator drives the pulse client the way the embeddable
// browser widget does: it opens one shared socket per site, attaches a
// number of widget listeners, and generates plausible engagement traffic.
// Useful for demos and for watching a dashboard move without real visitors.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dheerajmandava/proovd-pulse/internal/logging"
	"github.com/dheerajmandava/proovd-pulse/internal/pulseclient"
)

func main() {
	var (
		serverURL = flag.String("url", "ws://localhost:4077/api/v1/pulse/ws", "pulse socket endpoint")
		siteID    = flag.String("site", "demo-site", "site id to join")
		widgets   = flag.Int("widgets", 2, "widget instances sharing the socket")
		duration  = flag.Duration("duration", 0, "how long to run (0 = until interrupted)")
		logLevel  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console", Timestamp: true})

	stateDir, err := os.UserCacheDir()
	if err != nil {
		stateDir = os.TempDir()
	}
	clientID, err := pulseclient.LoadOrCreateClientID(filepath.Join(stateDir, "proovd-pulse", "client-id"))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to establish client identity")
	}

	opts := pulseclient.Options{
		URL:       *serverURL,
		SiteID:    *siteID,
		ClientID:  clientID,
		SessionID: pulseclient.NewSessionID(),
	}

	handles := make([]*pulseclient.Handle, 0, *widgets)
	for i := 0; i < *widgets; i++ {
		n := i
		h, err := pulseclient.Attach(opts, func(msgType string, payload []byte) {
			logging.Info().
				Int("widget", n).
				Str("type", msgType).
				RawJSON("payload", payload).
				Msg("Inbound frame")
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to attach widget")
		}
		handles = append(handles, h)
	}
	defer func() {
		for _, h := range handles {
			h.Close()
		}
	}()

	logging.Info().
		Str("site_id", *siteID).
		Str("client_id", clientID).
		Int("widgets", *widgets).
		Msg("Widget simulator running")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	scroll := 0.0
	activity := time.NewTicker(3 * time.Second)
	defer activity.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("interrupted, detaching widgets")
			return
		case <-activity.C:
			if *duration > 0 && time.Since(start) > *duration {
				logging.Info().Msg("Duration elapsed, detaching widgets")
				return
			}

			h := handles[rand.Intn(len(handles))]
			if scroll < 100 {
				scroll += rand.Float64() * 15
				if scroll > 100 {
					scroll = 100
				}
			}
			h.RecordScroll(scroll)
			h.RecordTimeOnPage(time.Since(start).Seconds())
			if rand.Float64() < 0.3 {
				h.RecordClick()
			}
		}
	}
}
