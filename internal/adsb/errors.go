package adsb

import "errors"

// Error taxonomy for a polling cycle. Components wrap these with context;
// the collector classifies with errors.Is. None of them is fatal to a cycle.
var (
	// ErrSourceUnavailable marks an unreachable or timed out feed or route service.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedRecord marks an aircraft entry missing required identity fields.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrStoreWrite marks a write rejected by the persistence layer.
	ErrStoreWrite = errors.New("store write failure")

	// ErrConfigurationMissing marks required settings that are absent.
	ErrConfigurationMissing = errors.New("configuration missing")
)
