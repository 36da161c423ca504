package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting keys read by the collector.
const (
	SettingAlertsEnabled    = "alerts_enabled"
	SettingPushoverUserKey  = "pushover_user_key"
	SettingPushoverAPIToken = "pushover_api_token"
)

// Settings is an immutable snapshot of the settings table, read once per cycle
// and passed explicitly to the components that need it.
type Settings struct {
	PushoverUserKey  string
	PushoverAPIToken string
	AlertsEnabled    bool
}

// HasPushoverCredentials reports whether both Pushover credentials are set.
func (s Settings) HasPushoverCredentials() bool {
	return s.PushoverUserKey != "" && s.PushoverAPIToken != ""
}

// LoadSettings reads the settings table into a Settings snapshot.
// Missing keys take their zero value, so alerting is off unless enabled.
func LoadSettings(ctx context.Context, db *gorm.DB) (Settings, error) {
	var rows []Setting
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	var s Settings
	for _, row := range rows {
		switch row.Key {
		case SettingAlertsEnabled:
			s.AlertsEnabled = row.Value == "1" || row.Value == "true"
		case SettingPushoverUserKey:
			s.PushoverUserKey = row.Value
		case SettingPushoverAPIToken:
			s.PushoverAPIToken = row.Value
		}
	}

	return s, nil
}

// SetSetting creates or overwrites a single setting.
func SetSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&Setting{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// ListSettings returns all raw settings ordered by key.
func ListSettings(ctx context.Context, db *gorm.DB) ([]Setting, error) {
	var rows []Setting
	if err := db.WithContext(ctx).Order("key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return rows, nil
}
