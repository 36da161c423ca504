package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/pkg/metrics"
)

// DefaultTTL is how long a cached answer, positive or negative, stays fresh.
const DefaultTTL = 7 * 24 * time.Hour

// Lookup results recorded in metrics.
const (
	resultCacheHit    = "cache_hit"
	resultCacheMiss   = "cache_miss_found"
	resultNotFound    = "not_found"
	resultUnavailable = "unavailable"
)

// ResolverConfig holds the Resolver dependencies.
type ResolverConfig struct {
	Logger  *slog.Logger
	DB      *gorm.DB
	Lookup  Lookup
	Metrics *metrics.CollectorMetrics // Optional
	// Now is the clock used for freshness; defaults to time.Now.
	Now func() time.Time
	TTL time.Duration
}

// Resolver answers route queries from the cache, falling back to the Lookup
// for missing or stale entries.
type Resolver struct {
	logger  *slog.Logger
	db      *gorm.DB
	lookup  Lookup
	metrics *metrics.CollectorMetrics
	now     func() time.Time
	ttl     time.Duration
}

// NewResolver creates a Resolver.
func NewResolver(cfg *ResolverConfig) (*Resolver, error) {
	if cfg == nil {
		return nil, errors.New("resolver config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}
	if cfg.Lookup == nil {
		return nil, errors.New("lookup cannot be nil")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Resolver{
		logger:  cfg.Logger,
		db:      cfg.DB,
		lookup:  cfg.Lookup,
		metrics: cfg.Metrics,
		now:     now,
		ttl:     ttl,
	}, nil
}

// Resolve returns the route for callsign. A fresh cache entry is answered
// without touching the Lookup. A miss or stale entry triggers a lookup whose
// result, found or not found, replaces the entry. Lookup failures leave the
// cache untouched so the next call retries.
func (r *Resolver) Resolve(ctx context.Context, callsign string) (*Route, error) {
	cs := adsb.NormalizeCallsign(callsign)
	if cs == "" {
		return nil, fmt.Errorf("%w: empty callsign", adsb.ErrMalformedRecord)
	}

	now := r.now().UTC()

	var entry store.RouteCacheEntry
	err := r.db.WithContext(ctx).Where("callsign = ?", cs).First(&entry).Error
	switch {
	case err == nil:
		if now.Sub(entry.LastUpdated) <= r.ttl {
			r.count(resultCacheHit)
			if !entry.Success {
				return nil, ErrNotFound
			}
			return fromEntry(&entry), nil
		}
		r.logger.Debug("cached route is stale", "callsign", cs, "last_updated", entry.LastUpdated)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to read route cache for %s: %w", cs, err)
	}

	found, err := r.lookup.LookupCallsign(ctx, cs)
	switch {
	case errors.Is(err, ErrNotFound):
		r.count(resultNotFound)
		if err := r.store(ctx, &store.RouteCacheEntry{Callsign: cs, LastUpdated: now, Success: false}); err != nil {
			return nil, err
		}
		r.logger.Info("route not found", "callsign", cs)
		return nil, ErrNotFound
	case err != nil:
		r.count(resultUnavailable)
		r.logger.Warn("route lookup failed", "callsign", cs, "error", err)
		return nil, fmt.Errorf("route lookup for %s: %w", cs, err)
	}

	fresh := &store.RouteCacheEntry{
		Callsign:    cs,
		Origin:      found.Origin,
		Destination: found.Destination,
		LastUpdated: now,
		Success:     true,
	}
	if err := r.store(ctx, fresh); err != nil {
		return nil, err
	}
	r.count(resultCacheMiss)
	r.logger.Info("route resolved",
		"callsign", cs,
		"origin", fresh.Origin.ICAO,
		"destination", fresh.Destination.ICAO,
	)

	return fromEntry(fresh), nil
}

// Cached returns the cache entry for callsign without any lookup.
func (r *Resolver) Cached(ctx context.Context, callsign string) (*store.RouteCacheEntry, error) {
	var entry store.RouteCacheEntry
	err := r.db.WithContext(ctx).Where("callsign = ?", adsb.NormalizeCallsign(callsign)).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read route cache: %w", err)
	}
	return &entry, nil
}

// store replaces the cache entry for entry.Callsign.
func (r *Resolver) store(ctx context.Context, entry *store.RouteCacheEntry) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "callsign"}},
		UpdateAll: true,
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("%w: route cache %s: %w", adsb.ErrStoreWrite, entry.Callsign, err)
	}
	return nil
}

func (r *Resolver) count(result string) {
	if r.metrics != nil {
		r.metrics.RouteLookupsTotal.WithLabelValues(result).Inc()
	}
}
