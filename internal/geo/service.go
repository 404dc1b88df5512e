// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package geo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/netip"
	"time"

	"golang.org/x/time/rate"

	"github.com/dheerajmandava/proovd-pulse/internal/cache"
	"github.com/dheerajmandava/proovd-pulse/internal/logging"
	"github.com/dheerajmandava/proovd-pulse/internal/metrics"
)

// syntheticLocations is the pool used for private and loopback addresses.
// Local development traffic still gets plausible-looking notifications.
var syntheticLocations = []Location{
	{Country: "United States", Region: "California", City: "San Francisco"},
	{Country: "United States", Region: "New York", City: "New York"},
	{Country: "United Kingdom", Region: "England", City: "London"},
	{Country: "Germany", Region: "Berlin", City: "Berlin"},
	{Country: "India", Region: "Karnataka", City: "Bengaluru"},
	{Country: "Australia", Region: "New South Wales", City: "Sydney"},
	{Country: "Japan", Region: "Tokyo", City: "Tokyo"},
	{Country: "Brazil", Region: "Sao Paulo", City: "Sao Paulo"},
}

// Service is the layered IP-to-location resolver.
type Service struct {
	provider Provider
	cache    *cache.Cache
	quota    *DailyQuota
	limiter  *rate.Limiter
	enabled  bool
}

// NewService wires the resolver layers together. cacheTTL should be long
// enough that a visitor browsing for hours costs one external lookup.
func NewService(provider Provider, cacheTTL time.Duration, dailyQuota int, perSecond float64, enabled bool) *Service {
	return &Service{
		provider: provider,
		cache:    cache.New(cacheTTL),
		quota:    NewDailyQuota(dailyQuota),
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		enabled:  enabled,
	}
}

// Close releases the cache's background resources.
func (s *Service) Close() {
	s.cache.Close()
}

// QuotaUsed returns today's consumed external lookup count.
func (s *Service) QuotaUsed() int {
	return s.quota.Used()
}

// Enrich resolves ip to a location. The second return value is false when no
// location could be determined; that is an expected outcome, not an error,
// and the caller proceeds without one.
func (s *Service) Enrich(ctx context.Context, ip string) (Location, bool) {
	if !s.enabled {
		return Location{}, false
	}

	loc, err := s.resolve(ctx, ip)
	switch {
	case err == nil:
		return loc, true
	case errors.Is(err, ErrInvalidIP):
		logging.Debug().Str("ip", ip).Msg("Unparseable visitor IP, skipping geo lookup")
	case errors.Is(err, ErrQuotaExceeded):
		logging.Warn().Str("ip", ip).Int("used", s.quota.Used()).Msg("Geo daily quota exhausted, visitor gets no location")
	default:
		logging.Warn().Err(err).Str("ip", ip).Msg("Geo provider lookup failed")
	}
	return Location{}, false
}

// resolve walks the layers and reports each failure through the package
// sentinels, so callers can tell quota exhaustion from provider trouble.
func (s *Service) resolve(ctx context.Context, ip string) (Location, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}

	// Private ranges never reach the provider; it would reject them anyway.
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		loc := s.syntheticFor(ip)
		metrics.GeoLookups.WithLabelValues("synthetic").Inc()
		return loc, nil
	}

	if cached, ok := s.cache.Get(ip); ok {
		metrics.GeoCacheHits.Inc()
		metrics.GeoLookups.WithLabelValues("cache_hit").Inc()
		return cached.(Location), nil
	}
	metrics.GeoCacheMisses.Inc()

	if !s.quota.TryAcquire() {
		metrics.GeoLookups.WithLabelValues("quota_exceeded").Inc()
		return Location{}, ErrQuotaExceeded
	}

	if err := s.limiter.Wait(ctx); err != nil {
		metrics.GeoLookups.WithLabelValues("provider_error").Inc()
		return Location{}, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	loc, err := s.provider.Lookup(ctx, ip)
	if err != nil {
		metrics.GeoLookups.WithLabelValues("provider_error").Inc()
		return Location{}, err
	}

	s.cache.Set(ip, loc)
	metrics.GeoLookups.WithLabelValues("resolved").Inc()
	return loc, nil
}

// syntheticFor returns a stable-ish synthetic location for a local address.
// The same address keeps the same location for as long as it stays cached.
func (s *Service) syntheticFor(ip string) Location {
	if cached, ok := s.cache.Get(ip); ok {
		return cached.(Location)
	}
	loc := syntheticLocations[rand.Intn(len(syntheticLocations))]
	s.cache.Set(ip, loc)
	return loc
}
