// Package position keeps the short rolling window of raw aircraft positions
// used for track reconstruction.
package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/pkg/metrics"
)

// DefaultRetention is how long samples are kept.
const DefaultRetention = 2 * time.Hour

// Config holds the Recorder dependencies.
type Config struct {
	Logger    *slog.Logger
	DB        *gorm.DB
	Metrics   *metrics.CollectorMetrics // Optional
	Retention time.Duration
}

// Recorder appends position samples and prunes them after the retention window.
type Recorder struct {
	logger    *slog.Logger
	db        *gorm.DB
	metrics   *metrics.CollectorMetrics
	retention time.Duration
}

// Result summarises one Record call.
type Result struct {
	Recorded int
	Skipped  int
}

// NewRecorder creates a Recorder.
func NewRecorder(cfg *Config) (*Recorder, error) {
	if cfg == nil {
		return nil, errors.New("recorder config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &Recorder{
		logger:    cfg.Logger,
		db:        cfg.DB,
		metrics:   cfg.Metrics,
		retention: retention,
	}, nil
}

// Retention returns the configured retention window.
func (r *Recorder) Retention() time.Duration {
	return r.retention
}

// Record appends one sample for every aircraft in snap that has a callsign
// and a position. Samples are not deduplicated.
func (r *Recorder) Record(ctx context.Context, snap adsb.Snapshot) (Result, error) {
	var res Result
	samples := make([]store.PositionSample, 0, len(snap.Aircraft))

	for _, ac := range snap.Aircraft {
		callsign := adsb.NormalizeCallsign(ac.Callsign)
		if callsign == "" || !ac.HasPosition() {
			res.Skipped++
			continue
		}

		samples = append(samples, store.PositionSample{
			Callsign:    callsign,
			ICAOHex:     adsb.NormalizeHex(ac.ICAOHex),
			Latitude:    *ac.Latitude,
			Longitude:   *ac.Longitude,
			Altitude:    ac.Altitude,
			Track:       ac.Track,
			GroundSpeed: ac.GroundSpeed,
			Timestamp:   snap.Time.UTC(),
		})
	}

	if r.metrics != nil && res.Skipped > 0 {
		r.metrics.RecordsSkipped.WithLabelValues("positions").Add(float64(res.Skipped))
	}

	if len(samples) == 0 {
		return res, nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(samples, 200).Error; err != nil {
		return res, fmt.Errorf("%w: position samples: %w", adsb.ErrStoreWrite, err)
	}
	res.Recorded = len(samples)

	if r.metrics != nil {
		r.metrics.PositionsRecorded.Add(float64(res.Recorded))
	}

	r.logger.Debug("positions recorded", "recorded", res.Recorded, "skipped", res.Skipped)
	return res, nil
}

// Sweep deletes samples older than now minus the retention window.
// Running it twice for the same now removes nothing the second time.
func (r *Recorder) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-r.retention).UTC()

	result := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&store.PositionSample{})
	if result.Error != nil {
		return 0, fmt.Errorf("%w: prune positions before %s: %w", adsb.ErrStoreWrite, cutoff.Format(time.RFC3339), result.Error)
	}

	if r.metrics != nil {
		r.metrics.PositionsPruned.Add(float64(result.RowsAffected))
	}
	if result.RowsAffected > 0 {
		r.logger.Debug("positions pruned", "deleted", result.RowsAffected, "cutoff", cutoff)
	}

	return result.RowsAffected, nil
}

// Track returns the samples of callsign at or after since, oldest first.
func (r *Recorder) Track(ctx context.Context, callsign string, since time.Time) ([]store.PositionSample, error) {
	return Track(ctx, r.db, callsign, since)
}

// Track returns the samples of callsign at or after since, oldest first.
func Track(ctx context.Context, db *gorm.DB, callsign string, since time.Time) ([]store.PositionSample, error) {
	var samples []store.PositionSample
	err := db.WithContext(ctx).
		Where("callsign = ? AND timestamp >= ?", adsb.NormalizeCallsign(callsign), since.UTC()).
		Order("timestamp, id").
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load track for %s: %w", callsign, err)
	}
	return samples, nil
}
