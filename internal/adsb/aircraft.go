// Package adsb holds the domain types shared by the collector components:
// decoded aircraft state, polled snapshots, per-record observations and the
// error taxonomy used to classify failures within a polling cycle.
package adsb

import (
	"strings"
	"time"
)

// Aircraft is the instantaneous state of one aircraft as reported by the feed.
// Unknown numeric fields are nil and unknown strings are empty; a zero value
// never stands in for "not reported".
type Aircraft struct {
	Altitude    *int
	Latitude    *float64
	Longitude   *float64
	Track       *float64
	GroundSpeed *float64
	ICAOHex     string
	Callsign    string
	Type        string
	Squawk      string
	OnGround    bool
}

// HasPosition reports whether both latitude and longitude are known.
func (a Aircraft) HasPosition() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// Snapshot is one polled set of visible aircraft.
type Snapshot struct {
	Time     time.Time
	Aircraft []Aircraft
}

// Observation is a single aircraft observation prepared for aggregation.
type Observation struct {
	Time         time.Time
	Altitude     *int
	DistanceNM   *float64
	ICAOHex      string
	Callsign     string
	Airline      string
	AircraftType string
	Squawk       string
}

// NormalizeCallsign trims padding and upper-cases a callsign.
// readsb pads the flight field with trailing spaces.
func NormalizeCallsign(callsign string) string {
	return strings.ToUpper(strings.TrimSpace(callsign))
}

// NormalizeHex lower-cases an ICAO 24-bit address and strips padding.
func NormalizeHex(hex string) string {
	return strings.ToLower(strings.TrimSpace(hex))
}

// AirlineFromCallsign returns the ICAO airline designator, the first three
// characters of the callsign. Callsigns shorter than three characters carry
// no airline.
func AirlineFromCallsign(callsign string) string {
	cs := NormalizeCallsign(callsign)
	if len(cs) < 3 {
		return ""
	}
	return strings.TrimSpace(cs[:3])
}

// NewObservation builds an Observation from an aircraft seen at t.
// The distance is filled in only when a receiver is configured and the
// aircraft position is known.
func NewObservation(ac Aircraft, t time.Time, rx *Receiver) Observation {
	callsign := NormalizeCallsign(ac.Callsign)
	obs := Observation{
		Time:         t,
		Altitude:     ac.Altitude,
		ICAOHex:      NormalizeHex(ac.ICAOHex),
		Callsign:     callsign,
		Airline:      AirlineFromCallsign(callsign),
		AircraftType: strings.ToUpper(strings.TrimSpace(ac.Type)),
		Squawk:       strings.TrimSpace(ac.Squawk),
	}

	if rx != nil && ac.HasPosition() {
		d := rx.DistanceNM(*ac.Latitude, *ac.Longitude)
		obs.DistanceNM = &d
	}

	return obs
}
