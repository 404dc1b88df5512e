// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dheerajmandava/proovd-pulse/internal/logging"
	"github.com/dheerajmandava/proovd-pulse/internal/metrics"
)

// Provider resolves a public IP address to a location.
type Provider interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

// providerResponse is the ip-api.com JSON shape. Status is "success" or
// "fail"; Message carries the failure reason.
type providerResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
}

// maxProviderBody caps provider response reads.
const maxProviderBody = 64 * 1024

// HTTPProvider resolves IPs through an ip-api.com style JSON endpoint,
// wrapped in a circuit breaker so a provider outage degrades to cheap
// fast-failures instead of piling up blocked lookups.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[Location]
}

// NewHTTPProvider creates a provider for the given base URL, e.g.
// "http://ip-api.com/json". The lookup path is baseURL + "/" + ip.
//
// Circuit breaker configuration:
// - Opens after 60% failure rate with minimum 5 requests
// - 30 second measurement window
// - 1 minute timeout before attempting recovery
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	cb := gobreaker.NewCircuitBreaker[Location](gobreaker.Settings{
		Name:        "geo-provider",
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Geo provider circuit breaker state change")
		},
	})

	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
	}
}

// Lookup resolves ip through the external provider. It returns ErrProvider
// (wrapped) on any transport, breaker, or provider-status failure.
func (p *HTTPProvider) Lookup(ctx context.Context, ip string) (Location, error) {
	start := time.Now()
	loc, err := p.cb.Execute(func() (Location, error) {
		return p.fetch(ctx, ip)
	})
	metrics.GeoProviderDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GeoProviderErrors.Inc()
		return Location{}, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return loc, nil
}

func (p *HTTPProvider) fetch(ctx context.Context, ip string) (Location, error) {
	url := fmt.Sprintf("%s/%s?fields=status,message,country,regionName,city", p.baseURL, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return Location{}, fmt.Errorf("read response: %w", err)
	}

	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return Location{}, fmt.Errorf("decode response: %w", err)
	}

	if pr.Status != "success" {
		return Location{}, fmt.Errorf("provider status %q: %s", pr.Status, pr.Message)
	}

	return Location{
		Country: pr.Country,
		Region:  pr.RegionName,
		City:    pr.City,
	}, nil
}
