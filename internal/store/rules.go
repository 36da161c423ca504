package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrRuleNotFound is returned when a rule id does not exist.
var ErrRuleNotFound = errors.New("alert rule not found")

// CreateRule inserts a new alert rule.
func CreateRule(ctx context.Context, db *gorm.DB, rule *AlertRule) error {
	if rule == nil {
		return errors.New("rule cannot be nil")
	}
	if rule.Name == "" || rule.Kind == "" || rule.Value == "" {
		return errors.New("rule name, kind and value are required")
	}

	if err := db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// ListEnabledRules returns every enabled rule ordered by id.
func ListEnabledRules(ctx context.Context, db *gorm.DB) ([]AlertRule, error) {
	var rules []AlertRule
	if err := db.WithContext(ctx).Where("enabled = ?", true).Order("id").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}
	return rules, nil
}

// ListRules returns all rules, newest first.
func ListRules(ctx context.Context, db *gorm.DB) ([]AlertRule, error) {
	var rules []AlertRule
	if err := db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// SetRuleEnabled toggles a rule.
func SetRuleEnabled(ctx context.Context, db *gorm.DB, id uint, enabled bool) error {
	result := db.WithContext(ctx).Model(&AlertRule{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("failed to update rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	return nil
}
