package sighting

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

// Config holds the Aggregator dependencies.
type Config struct {
	Logger  *slog.Logger
	DB      *gorm.DB
	Metrics *metrics.CollectorMetrics // Optional

	// Location decides which calendar day an observation belongs to.
	Location *time.Location
	// Receiver enables distance tracking when set.
	Receiver *adsb.Receiver
}

// Aggregator upserts daily sightings from observations.
type Aggregator struct {
	logger   *slog.Logger
	db       *gorm.DB
	metrics  *metrics.CollectorMetrics
	location *time.Location
	receiver *adsb.Receiver
}

// Result summarises one ApplySnapshot call.
type Result struct {
	Created int
	Updated int
	Ignored int
	Skipped int
	Failed  int
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg *Config) (*Aggregator, error) {
	if cfg == nil {
		return nil, errors.New("aggregator config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Aggregator{
		logger:   cfg.Logger,
		db:       cfg.DB,
		metrics:  cfg.Metrics,
		location: loc,
		receiver: cfg.Receiver,
	}, nil
}

// Apply merges one observation into its daily sighting.
func (a *Aggregator) Apply(ctx context.Context, obs adsb.Observation) (Outcome, error) {
	obs.Callsign = adsb.NormalizeCallsign(obs.Callsign)
	if obs.Callsign == "" {
		return OutcomeIgnored, fmt.Errorf("%w: observation without callsign (icao %q)", adsb.ErrMalformedRecord, obs.ICAOHex)
	}

	day := Day(obs.Time, a.location)
	outcome := OutcomeIgnored

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing store.Sighting
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("callsign = ? AND date = ?", obs.Callsign, day).
			First(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row, o := Merge(nil, obs, day)
			outcome = o
			return tx.Create(&row).Error
		case err != nil:
			return err
		}

		row, o := Merge(&existing, obs, day)
		outcome = o
		if o == OutcomeIgnored {
			return nil
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("%w: sighting %s/%s: %w", adsb.ErrStoreWrite, obs.Callsign, day, err)
	}

	return outcome, nil
}

// ApplySnapshot applies every aircraft of snap in order. Malformed records are
// skipped; store failures are counted and returned joined once the whole
// snapshot has been processed.
func (a *Aggregator) ApplySnapshot(ctx context.Context, snap adsb.Snapshot) (Result, error) {
	var (
		res  Result
		errs []error
	)

	for _, ac := range snap.Aircraft {
		obs := adsb.NewObservation(ac, snap.Time, a.receiver)

		outcome, err := a.Apply(ctx, obs)
		switch {
		case errors.Is(err, adsb.ErrMalformedRecord):
			res.Skipped++
			a.logger.Debug("skipping aircraft without callsign", "icao_hex", obs.ICAOHex)
			continue
		case err != nil:
			res.Failed++
			errs = append(errs, err)
			a.logger.Error("failed to apply observation", "callsign", obs.Callsign, "error", err)
			continue
		}

		switch outcome {
		case OutcomeCreated:
			res.Created++
		case OutcomeUpdated:
			res.Updated++
		case OutcomeIgnored:
			res.Ignored++
			a.logger.Debug("ignoring out-of-order observation", "callsign", obs.Callsign, "time", obs.Time)
		}
		if a.metrics != nil {
			a.metrics.SightingsTotal.WithLabelValues(outcome.String()).Inc()
		}
	}

	if a.metrics != nil && res.Skipped > 0 {
		a.metrics.RecordsSkipped.WithLabelValues("sightings").Add(float64(res.Skipped))
	}

	a.logger.Debug("sightings updated",
		"created", res.Created,
		"updated", res.Updated,
		"ignored", res.Ignored,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)

	return res, errors.Join(errs...)
}

// ForDate returns all sightings of a day ordered by first-seen.
func ForDate(ctx context.Context, db *gorm.DB, day string) ([]store.Sighting, error) {
	var rows []store.Sighting
	if err := db.WithContext(ctx).Where("date = ?", day).Order("first_seen, callsign").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load sightings for %s: %w", day, err)
	}
	return rows, nil
}
