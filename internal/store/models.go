// Package store provides the persistent model for the collector: daily
// sightings, raw position samples, the route cache, alert rules, alert events
// and key/value settings.
package store

import (
	"time"
)

// Sighting is the per-(callsign, day) summary of every observation of a flight.
// Bounds only ever widen; the row is never deleted by the collector.
//
// ICAO hex columns hold seven characters: readsb prefixes non-ICAO addresses
// (TIS-B and similar) with '~'.
type Sighting struct {
	FirstSeen     time.Time `gorm:"not null"`
	LastSeen      time.Time `gorm:"not null;index:idx_sightings_last_seen"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
	MinAltitude   *int
	MaxAltitude   *int
	MaxDistanceNM *float64 `gorm:"column:distance_nm"`
	Squawk        *string  `gorm:"size:4"`
	Date          string   `gorm:"size:10;not null;uniqueIndex:idx_sightings_callsign_date,priority:2;index:idx_sightings_date"`
	Callsign      string   `gorm:"size:16;not null;uniqueIndex:idx_sightings_callsign_date,priority:1"`
	ICAOHex       string   `gorm:"column:icao_hex;size:7;index:idx_sightings_icao_hex"`
	Airline       string   `gorm:"size:3;index:idx_sightings_airline"`
	AircraftType  string   `gorm:"size:8"`
	ID            uint     `gorm:"primaryKey"`
}

// TableName specifies the table name for Sighting model.
func (Sighting) TableName() string {
	return "aircraft_sightings"
}

// PositionSample is one raw position of an aircraft in one snapshot.
type PositionSample struct {
	Timestamp   time.Time `gorm:"not null;index:idx_position_timestamp;index:idx_position_callsign_timestamp,priority:2"`
	Altitude    *int
	Track       *float64
	GroundSpeed *float64
	Callsign    string  `gorm:"size:16;not null;index:idx_position_callsign_timestamp,priority:1"`
	ICAOHex     string  `gorm:"column:icao_hex;size:7"`
	Latitude    float64 `gorm:"not null"`
	Longitude   float64 `gorm:"not null"`
	ID          uint    `gorm:"primaryKey"`
}

// TableName specifies the table name for PositionSample model.
func (PositionSample) TableName() string {
	return "position_history"
}

// Airport describes one end of a route.
type Airport struct {
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	IATA         string   `gorm:"column:iata;size:3" json:"iata,omitempty"`
	ICAO         string   `gorm:"column:icao;size:4" json:"icao,omitempty"`
	Name         string   `json:"name,omitempty"`
	CountryISO   string   `gorm:"column:country_iso;size:2" json:"country_iso,omitempty"`
	CountryName  string   `json:"country_name,omitempty"`
	Municipality string   `json:"municipality,omitempty"`
}

// RouteCacheEntry caches the route lookup result for a callsign.
// Success distinguishes "looked up and found" from "looked up and not found".
type RouteCacheEntry struct {
	LastUpdated time.Time `gorm:"not null"`
	Origin      Airport   `gorm:"embedded;embeddedPrefix:origin_"`
	Destination Airport   `gorm:"embedded;embeddedPrefix:destination_"`
	Callsign    string    `gorm:"size:16;not null;uniqueIndex"`
	ID          uint      `gorm:"primaryKey"`
	Success     bool      `gorm:"not null;default:false"`
}

// TableName specifies the table name for RouteCacheEntry model.
func (RouteCacheEntry) TableName() string {
	return "route_cache"
}

// AlertRule is a user-defined rule evaluated against every snapshot.
// Kind is one of "squawk", "callsign" or "aircraft_type".
type AlertRule struct {
	CreatedAt time.Time `gorm:"autoCreateTime"`
	Name      string    `gorm:"size:255;not null"`
	Kind      string    `gorm:"size:20;not null"`
	Value     string    `gorm:"size:64;not null"`
	ID        uint      `gorm:"primaryKey"`
	Enabled   bool      `gorm:"not null;index"`
}

// TableName specifies the table name for AlertRule model.
func (AlertRule) TableName() string {
	return "alert_rules"
}

// AlertEvent records one trigger decision of a rule for an aircraft.
type AlertEvent struct {
	TriggeredAt  time.Time `gorm:"not null;index:idx_alert_history_rule_icao,priority:3"`
	Altitude     *int
	Latitude     *float64
	Longitude    *float64
	ICAOHex      string `gorm:"column:icao_hex;size:7;not null;index:idx_alert_history_rule_icao,priority:2"`
	Callsign     string `gorm:"size:16"`
	AircraftType string `gorm:"size:8"`
	Squawk       string `gorm:"size:4"`
	RuleID       uint   `gorm:"not null;index:idx_alert_history_rule_icao,priority:1"`
	ID           uint   `gorm:"primaryKey"`
	Delivered    bool   `gorm:"not null;default:false"`
}

// TableName specifies the table name for AlertEvent model.
func (AlertEvent) TableName() string {
	return "alert_history"
}

// Setting is one key/value configuration entry owned by the rule-management side.
type Setting struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"not null;default:''"`
}

// TableName specifies the table name for Setting model.
func (Setting) TableName() string {
	return "settings"
}
