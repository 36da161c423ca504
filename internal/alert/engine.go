package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/notify"
	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/pkg/metrics"
)

// Defaults for notification behaviour.
const (
	DefaultCooldown = 30 * time.Minute
	DefaultPriority = 1
	DefaultSound    = "siren"
)

// Notifier delivers one notification.
type Notifier interface {
	Send(ctx context.Context, creds notify.Credentials, msg notify.Message) error
}

// Config holds the Engine dependencies.
type Config struct {
	Logger    *slog.Logger
	DB        *gorm.DB
	Notifier  Notifier
	Publisher Publisher                 // Optional
	Metrics   *metrics.CollectorMetrics // Optional

	// Location renders trigger times in notifications.
	Location *time.Location
	Sound    string
	Cooldown time.Duration
	Priority int
}

// Engine matches enabled rules against snapshots and notifies at most once
// per cooldown window for every (rule, aircraft) pair.
type Engine struct {
	logger    *slog.Logger
	db        *gorm.DB
	notifier  Notifier
	publisher Publisher
	metrics   *metrics.CollectorMetrics
	location  *time.Location
	sound     string
	cooldown  time.Duration
	priority  int
}

// Result summarises one Evaluate call.
type Result struct {
	Matched    int
	Triggered  int
	Suppressed int
	Delivered  int
	Failed     int
}

// NewEngine creates an Engine.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("alert engine config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("notifier cannot be nil")
	}

	e := &Engine{
		logger:    cfg.Logger,
		db:        cfg.DB,
		notifier:  cfg.Notifier,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		location:  cfg.Location,
		sound:     cfg.Sound,
		cooldown:  cfg.Cooldown,
		priority:  cfg.Priority,
	}
	if e.location == nil {
		e.location = time.UTC
	}
	if e.cooldown <= 0 {
		e.cooldown = DefaultCooldown
	}
	if e.sound == "" {
		e.sound = DefaultSound
	}
	if e.priority == 0 {
		e.priority = DefaultPriority
	}

	return e, nil
}

// Evaluate checks every enabled rule against every aircraft of snap that has
// an ICAO address. Disabled alerting is a no-op; missing Pushover credentials
// return adsb.ErrConfigurationMissing without touching the store. Delivery
// and publish failures are logged and counted but never undo the cooldown.
func (e *Engine) Evaluate(ctx context.Context, settings store.Settings, snap adsb.Snapshot) (Result, error) {
	var res Result

	if !settings.AlertsEnabled {
		e.logger.Debug("alerting disabled")
		return res, nil
	}
	if !settings.HasPushoverCredentials() {
		return res, fmt.Errorf("%w: pushover user key and api token are required", adsb.ErrConfigurationMissing)
	}

	rules, err := e.loadRules(ctx)
	if err != nil {
		return res, err
	}
	if len(rules) == 0 {
		return res, nil
	}

	creds := notify.Credentials{UserKey: settings.PushoverUserKey, APIToken: settings.PushoverAPIToken}
	var errs []error

	for _, ac := range snap.Aircraft {
		if adsb.NormalizeHex(ac.ICAOHex) == "" {
			continue
		}

		for _, rule := range rules {
			if !rule.Matches(ac) {
				continue
			}
			res.Matched++

			event, err := e.record(ctx, rule, ac, snap.Time)
			if err != nil {
				errs = append(errs, err)
				e.logger.Error("failed to record alert", "rule_id", rule.ID, "icao_hex", ac.ICAOHex, "error", err)
				continue
			}
			if event == nil {
				res.Suppressed++
				e.count(rule, "suppressed")
				e.logger.Debug("alert suppressed by cooldown", "rule", rule.Name, "icao_hex", ac.ICAOHex)
				continue
			}

			res.Triggered++
			e.count(rule, "triggered")

			if e.deliver(ctx, creds, rule, ac, event) {
				res.Delivered++
			} else {
				res.Failed++
			}

			e.publish(ctx, rule, event)
		}
	}

	return res, errors.Join(errs...)
}

// loadRules reads enabled rules, dropping invalid ones with a warning.
func (e *Engine) loadRules(ctx context.Context) ([]Rule, error) {
	stored, err := store.ListEnabledRules(ctx, e.db)
	if err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(stored))
	for _, sr := range stored {
		r, err := RuleFromStore(sr)
		if err != nil {
			e.logger.Warn("ignoring invalid alert rule", "rule_id", sr.ID, "name", sr.Name, "error", err)
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// record runs the cooldown check and the event insert in one transaction.
// It returns nil without error when the pair is still cooling down.
func (e *Engine) record(ctx context.Context, rule Rule, ac adsb.Aircraft, t time.Time) (*store.AlertEvent, error) {
	hex := adsb.NormalizeHex(ac.ICAOHex)
	t = t.UTC()

	var created *store.AlertEvent
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest store.AlertEvent
		result := tx.Where("rule_id = ? AND icao_hex = ?", rule.ID, hex).
			Order("triggered_at DESC").
			Limit(1).
			Find(&latest)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 && t.Sub(latest.TriggeredAt) < e.cooldown {
			return nil
		}

		ev := &store.AlertEvent{
			RuleID:       rule.ID,
			ICAOHex:      hex,
			Callsign:     adsb.NormalizeCallsign(ac.Callsign),
			AircraftType: strings.ToUpper(strings.TrimSpace(ac.Type)),
			Squawk:       strings.TrimSpace(ac.Squawk),
			Altitude:     ac.Altitude,
			Latitude:     ac.Latitude,
			Longitude:    ac.Longitude,
			TriggeredAt:  t,
			Delivered:    false,
		}
		if err := tx.Create(ev).Error; err != nil {
			return err
		}
		created = ev
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: alert event rule %d icao %s: %w", adsb.ErrStoreWrite, rule.ID, hex, err)
	}

	return created, nil
}

// deliver sends the notification and marks the event delivered on success.
func (e *Engine) deliver(ctx context.Context, creds notify.Credentials, rule Rule, ac adsb.Aircraft, event *store.AlertEvent) bool {
	msg := Message(rule, ac, event.TriggeredAt, e.location)
	msg.Priority = e.priority
	msg.Sound = e.sound

	if err := e.notifier.Send(ctx, creds, msg); err != nil {
		e.notified("failed")
		e.logger.Error("alert delivery failed",
			"rule", rule.Name,
			"icao_hex", event.ICAOHex,
			"callsign", event.Callsign,
			"error", err,
		)
		return false
	}
	e.notified("delivered")

	err := e.db.WithContext(ctx).Model(event).Update("delivered", true).Error
	if err != nil {
		e.logger.Error("failed to mark alert delivered", "event_id", event.ID, "error", err)
	} else {
		event.Delivered = true
	}

	e.logger.Info("alert sent",
		"rule", rule.Name,
		"kind", rule.Kind.String(),
		"icao_hex", event.ICAOHex,
		"callsign", event.Callsign,
	)
	return true
}

func (e *Engine) publish(ctx context.Context, rule Rule, event *store.AlertEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, NewEvent(rule, event)); err != nil {
		e.logger.Warn("failed to publish alert event", "event_id", event.ID, "error", err)
	}
}

func (e *Engine) count(rule Rule, decision string) {
	if e.metrics != nil {
		e.metrics.AlertsTotal.WithLabelValues(rule.Kind.String(), decision).Inc()
	}
}

func (e *Engine) notified(status string) {
	if e.metrics != nil {
		e.metrics.NotificationsTotal.WithLabelValues(status).Inc()
	}
}

// Recent returns the latest alert events, newest first.
func Recent(ctx context.Context, db *gorm.DB, limit int) ([]store.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []store.AlertEvent
	if err := db.WithContext(ctx).Order("triggered_at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load alert history: %w", err)
	}
	return events, nil
}
