// Package route resolves callsigns to origin and destination airports,
// caching lookups in the store for a time-to-live.
package route

import (
	"context"
	"errors"
	"time"

	"adsbstats.dev/collector/internal/store"
)

// ErrNotFound is returned when the route source has no route for a callsign.
// Not-found answers are cached like successful ones.
var ErrNotFound = errors.New("route not found")

// Route is a resolved origin/destination pair.
type Route struct {
	Callsign    string        `json:"callsign"`
	Origin      store.Airport `json:"origin"`
	Destination store.Airport `json:"destination"`
	LastUpdated time.Time     `json:"last_updated"`
}

// Lookup queries an external route source. Implementations return ErrNotFound
// for a well-formed negative answer and an error wrapping
// adsb.ErrSourceUnavailable for transport or protocol failures.
type Lookup interface {
	LookupCallsign(ctx context.Context, callsign string) (*Route, error)
}

func fromEntry(e *store.RouteCacheEntry) *Route {
	return &Route{
		Callsign:    e.Callsign,
		Origin:      e.Origin,
		Destination: e.Destination,
		LastUpdated: e.LastUpdated,
	}
}
