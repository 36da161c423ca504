// Package sighting maintains the per-callsign, per-day sighting summaries.
package sighting

import (
	"time"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/store"
)

// DateLayout is the format of the Sighting.Date key.
const DateLayout = "2006-01-02"

// Outcome is the effect of one observation on its daily sighting.
type Outcome int

// Possible outcomes of Apply.
const (
	OutcomeIgnored Outcome = iota
	OutcomeCreated
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "ignored"
	}
}

// Day returns the sighting date key of t in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// Merge folds obs into existing, which is nil when no sighting exists yet for
// the day. It returns the resulting row and what happened. An observation
// older than the recorded last-seen leaves the row untouched; one at the same
// instant is applied again, so replays are harmless.
func Merge(existing *store.Sighting, obs adsb.Observation, day string) (store.Sighting, Outcome) {
	t := obs.Time.UTC()

	if existing == nil {
		s := store.Sighting{
			Date:          day,
			Callsign:      obs.Callsign,
			ICAOHex:       obs.ICAOHex,
			Airline:       obs.Airline,
			AircraftType:  obs.AircraftType,
			FirstSeen:     t,
			LastSeen:      t,
			MinAltitude:   copyInt(obs.Altitude),
			MaxAltitude:   copyInt(obs.Altitude),
			MaxDistanceNM: copyFloat(obs.DistanceNM),
		}
		if obs.Squawk != "" {
			sq := obs.Squawk
			s.Squawk = &sq
		}
		return s, OutcomeCreated
	}

	if t.Before(existing.LastSeen) {
		return *existing, OutcomeIgnored
	}

	s := *existing
	s.LastSeen = t

	if obs.Altitude != nil {
		alt := *obs.Altitude
		if s.MinAltitude == nil || alt < *s.MinAltitude {
			s.MinAltitude = &alt
		}
		if s.MaxAltitude == nil || alt > *s.MaxAltitude {
			s.MaxAltitude = &alt
		}
	}

	if obs.DistanceNM != nil && (s.MaxDistanceNM == nil || *obs.DistanceNM > *s.MaxDistanceNM) {
		d := *obs.DistanceNM
		s.MaxDistanceNM = &d
	}

	if obs.Squawk != "" {
		sq := obs.Squawk
		s.Squawk = &sq
	}

	if s.ICAOHex == "" {
		s.ICAOHex = obs.ICAOHex
	}
	if s.Airline == "" {
		s.Airline = obs.Airline
	}
	if s.AircraftType == "" {
		s.AircraftType = obs.AircraftType
	}

	return s, OutcomeUpdated
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
