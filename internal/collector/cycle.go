// Package collector drives polling cycles: fetch a snapshot, fold it into
// daily sightings, record positions, evaluate alert rules and prune old
// samples. It also hosts the HTTP and gRPC surfaces of the collector process.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/alert"
	"adsbstats.dev/collector/internal/feed"
	"adsbstats.dev/collector/internal/position"
	"adsbstats.dev/collector/internal/sighting"
	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/pkg/metrics"
)

// Component names used in logs and the component_errors metric.
const (
	ComponentSettings  = "settings"
	ComponentSightings = "sightings"
	ComponentPositions = "positions"
	ComponentAlerts    = "alerts"
	ComponentRetention = "retention"
)

const defaultCycleTimeout = 45 * time.Second

// SightingSink folds a snapshot into daily sightings.
type SightingSink interface {
	ApplySnapshot(ctx context.Context, snap adsb.Snapshot) (sighting.Result, error)
}

// PositionSink stores and prunes position samples.
type PositionSink interface {
	Record(ctx context.Context, snap adsb.Snapshot) (position.Result, error)
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// AlertEvaluator runs alert rules against a snapshot.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, settings store.Settings, snap adsb.Snapshot) (alert.Result, error)
}

// CycleConfig holds the Cycle dependencies.
type CycleConfig struct {
	Logger    *slog.Logger
	DB        *gorm.DB
	Source    feed.Source
	Sightings SightingSink
	Positions PositionSink
	Alerts    AlertEvaluator            // Optional; alerting is skipped without it
	Metrics   *metrics.CollectorMetrics // Optional

	Now     func() time.Time
	Timeout time.Duration
}

// Cycle runs one polling cycle at a time.
type Cycle struct {
	logger    *slog.Logger
	db        *gorm.DB
	source    feed.Source
	sightings SightingSink
	positions PositionSink
	alerts    AlertEvaluator
	metrics   *metrics.CollectorMetrics
	now       func() time.Time
	timeout   time.Duration
}

// Report describes the outcome of one cycle.
type Report struct {
	Started   time.Time
	Duration  time.Duration
	Status    string
	Aircraft  int
	Sightings sighting.Result
	Positions position.Result
	Alerts    alert.Result
	Pruned    int64
	// Errors holds the component failures of the cycle; none of them stopped
	// the other components.
	Errors []error
}

// Err joins the component failures.
func (r Report) Err() error {
	return errors.Join(r.Errors...)
}

// NewCycle creates a Cycle.
func NewCycle(cfg *CycleConfig) (*Cycle, error) {
	if cfg == nil {
		return nil, errors.New("cycle config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}
	if cfg.Source == nil {
		return nil, errors.New("feed source cannot be nil")
	}
	if cfg.Sightings == nil {
		return nil, errors.New("sighting aggregator cannot be nil")
	}
	if cfg.Positions == nil {
		return nil, errors.New("position recorder cannot be nil")
	}

	c := &Cycle{
		logger:    cfg.Logger,
		db:        cfg.DB,
		source:    cfg.Source,
		sightings: cfg.Sightings,
		positions: cfg.Positions,
		alerts:    cfg.Alerts,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		timeout:   cfg.Timeout,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.timeout <= 0 {
		c.timeout = defaultCycleTimeout
	}
	return c, nil
}

// Run executes one cycle under the cycle timeout. A failed fetch skips the
// snapshot components but still prunes positions. Component failures are
// collected in the report and never abort the remaining components.
func (c *Cycle) Run(ctx context.Context) Report {
	rep := Report{Started: c.now()}

	var timer func()
	if c.metrics != nil {
		start := time.Now()
		timer = func() { c.metrics.CycleDuration.Observe(time.Since(start).Seconds()) }
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fetched := c.process(ctx, &rep)

	pruned, err := c.positions.Sweep(ctx, c.now())
	if err != nil {
		c.fail(&rep, ComponentRetention, err)
	}
	rep.Pruned = pruned

	rep.Duration = c.now().Sub(rep.Started)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		rep.Status = metrics.StatusTimeout
	case !fetched:
		rep.Status = metrics.StatusFailed
	case len(rep.Errors) > 0:
		rep.Status = metrics.StatusPartial
	default:
		rep.Status = metrics.StatusSuccess
	}

	if c.metrics != nil {
		timer()
		c.metrics.CyclesTotal.WithLabelValues(rep.Status).Inc()
		if fetched {
			c.metrics.LastCycleTimestamp.Set(float64(c.now().Unix()))
		}
	}

	log := c.logger.Info
	if rep.Status != metrics.StatusSuccess {
		log = c.logger.Warn
	}
	log("cycle completed",
		"status", rep.Status,
		"aircraft", rep.Aircraft,
		"sightings_created", rep.Sightings.Created,
		"sightings_updated", rep.Sightings.Updated,
		"positions", rep.Positions.Recorded,
		"alerts_triggered", rep.Alerts.Triggered,
		"pruned", rep.Pruned,
		"errors", len(rep.Errors),
		"duration", rep.Duration,
	)

	return rep
}

// process fetches a snapshot and runs the snapshot components. It reports
// whether a snapshot was obtained.
func (c *Cycle) process(ctx context.Context, rep *Report) bool {
	snap, err := c.source.Fetch(ctx)
	if err != nil {
		rep.Errors = append(rep.Errors, err)
		if c.metrics != nil {
			c.metrics.FetchErrors.WithLabelValues(reason(err)).Inc()
		}
		c.logger.Error("failed to fetch snapshot", "error", err)
		return false
	}

	rep.Aircraft = len(snap.Aircraft)
	if c.metrics != nil {
		c.metrics.SnapshotAircraft.Set(float64(len(snap.Aircraft)))
	}

	// Settings are read once, at the start of the cycle; a failed read leaves
	// alerting off for this cycle.
	var (
		settings    store.Settings
		alertsReady bool
	)
	if c.alerts != nil {
		settings, err = store.LoadSettings(ctx, c.db)
		if err != nil {
			c.fail(rep, ComponentSettings, err)
		} else {
			alertsReady = true
		}
	}

	sightings, err := c.sightings.ApplySnapshot(ctx, snap)
	rep.Sightings = sightings
	if err != nil {
		c.fail(rep, ComponentSightings, err)
	}

	positions, err := c.positions.Record(ctx, snap)
	rep.Positions = positions
	if err != nil {
		c.fail(rep, ComponentPositions, err)
	}

	if !alertsReady {
		return true
	}

	alerts, err := c.alerts.Evaluate(ctx, settings, snap)
	rep.Alerts = alerts
	if err != nil {
		c.fail(rep, ComponentAlerts, err)
	}

	return true
}

func (c *Cycle) fail(rep *Report, component string, err error) {
	rep.Errors = append(rep.Errors, fmt.Errorf("%s: %w", component, err))

	r := reason(err)
	if c.metrics != nil {
		c.metrics.ComponentErrors.WithLabelValues(component, r).Inc()
	}

	if r == reasonConfigurationMissing {
		c.logger.Warn("component disabled for this cycle", "component", component, "error", err)
		return
	}
	c.logger.Error("component failed", "component", component, "reason", r, "error", err)
}

const (
	reasonTimeout              = "timeout"
	reasonSourceUnavailable    = "source_unavailable"
	reasonMalformedRecord      = "malformed_record"
	reasonStoreWrite           = "store_write"
	reasonConfigurationMissing = "configuration_missing"
	reasonOther                = "other"
)

// reason maps an error onto the taxonomy in package adsb.
func reason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return reasonTimeout
	case errors.Is(err, adsb.ErrSourceUnavailable):
		return reasonSourceUnavailable
	case errors.Is(err, adsb.ErrMalformedRecord):
		return reasonMalformedRecord
	case errors.Is(err, adsb.ErrStoreWrite):
		return reasonStoreWrite
	case errors.Is(err, adsb.ErrConfigurationMissing):
		return reasonConfigurationMissing
	default:
		return reasonOther
	}
}
