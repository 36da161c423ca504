// Package report exposes the read-only side of the collector: JSON endpoints
// over sightings, tracks, routes and alert history, and the xlsx export.
package report

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/alert"
	"adsbstats.dev/collector/internal/position"
	"adsbstats.dev/collector/internal/route"
	"adsbstats.dev/collector/internal/sighting"
	"adsbstats.dev/collector/internal/store"
)

const (
	defaultTrackWindow = 2 * time.Hour
	defaultAlertLimit  = 50
	maxAlertLimit      = 500
	requestTimeout     = 30 * time.Second
)

// RouteResolver resolves callsigns to routes.
type RouteResolver interface {
	Resolve(ctx context.Context, callsign string) (*route.Route, error)
}

// Config holds the API dependencies.
type Config struct {
	Logger   *slog.Logger
	DB       *gorm.DB
	Resolver RouteResolver // Optional; /api/routes answers 503 without it

	// Location defines the local day used when no date is given.
	Location *time.Location
	Now      func() time.Time
	// TrackWindow is how far back /api/tracks looks by default.
	TrackWindow time.Duration
}

// API serves the reporting endpoints.
type API struct {
	logger      *slog.Logger
	db          *gorm.DB
	resolver    RouteResolver
	location    *time.Location
	now         func() time.Time
	trackWindow time.Duration
}

// NewAPI creates an API.
func NewAPI(cfg *Config) (*API, error) {
	if cfg == nil {
		return nil, errors.New("report config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}

	a := &API{
		logger:      cfg.Logger,
		db:          cfg.DB,
		resolver:    cfg.Resolver,
		location:    cfg.Location,
		now:         cfg.Now,
		trackWindow: cfg.TrackWindow,
	}
	if a.location == nil {
		a.location = time.UTC
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.trackWindow <= 0 {
		a.trackWindow = defaultTrackWindow
	}
	return a, nil
}

// Router returns the /api routes for mounting into the collector's HTTP server.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/sightings", a.handleSightings)
	r.Get("/tracks/{callsign}", a.handleTrack)
	r.Get("/routes/{callsign}", a.handleRoute)
	r.Get("/alerts", a.handleAlerts)

	return r
}

// SightingView is the JSON form of a daily sighting.
type SightingView struct {
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	MinAltitude   *int      `json:"min_altitude"`
	MaxAltitude   *int      `json:"max_altitude"`
	MaxDistanceNM *float64  `json:"max_distance_nm"`
	Squawk        *string   `json:"squawk"`
	Callsign      string    `json:"callsign"`
	Date          string    `json:"date"`
	ICAOHex       string    `json:"icao_hex,omitempty"`
	Airline       string    `json:"airline,omitempty"`
	AircraftType  string    `json:"aircraft_type,omitempty"`
}

func newSightingView(s store.Sighting) SightingView {
	return SightingView{
		Callsign:      s.Callsign,
		Date:          s.Date,
		ICAOHex:       s.ICAOHex,
		Airline:       s.Airline,
		AircraftType:  s.AircraftType,
		Squawk:        s.Squawk,
		FirstSeen:     s.FirstSeen.UTC(),
		LastSeen:      s.LastSeen.UTC(),
		MinAltitude:   s.MinAltitude,
		MaxAltitude:   s.MaxAltitude,
		MaxDistanceNM: s.MaxDistanceNM,
	}
}

// TrackPoint is one position of a track.
type TrackPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Altitude    *int      `json:"altitude"`
	Track       *float64  `json:"track"`
	GroundSpeed *float64  `json:"ground_speed"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lon"`
}

// AlertView is the JSON form of an alert history entry.
type AlertView struct {
	TriggeredAt  time.Time `json:"triggered_at"`
	Altitude     *int      `json:"altitude"`
	Latitude     *float64  `json:"lat"`
	Longitude    *float64  `json:"lon"`
	ICAOHex      string    `json:"icao_hex"`
	Callsign     string    `json:"callsign,omitempty"`
	AircraftType string    `json:"aircraft_type,omitempty"`
	Squawk       string    `json:"squawk,omitempty"`
	ID           uint      `json:"id"`
	RuleID       uint      `json:"rule_id"`
	Delivered    bool      `json:"delivered"`
}

func (a *API) handleSightings(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("date")
	if day == "" {
		day = sighting.Day(a.now(), a.location)
	} else if _, err := time.Parse(sighting.DateLayout, day); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	rows, err := sighting.ForDate(r.Context(), a.db, day)
	if err != nil {
		a.logger.Error("failed to load sightings", "date", day, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load sightings")
		return
	}

	views := make([]SightingView, 0, len(rows))
	for _, s := range rows {
		views = append(views, newSightingView(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":      day,
		"count":     len(views),
		"sightings": views,
	})
}

func (a *API) handleTrack(w http.ResponseWriter, r *http.Request) {
	cs := adsb.NormalizeCallsign(chi.URLParam(r, "callsign"))
	if cs == "" {
		writeError(w, http.StatusBadRequest, "callsign required")
		return
	}

	window := a.trackWindow
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m <= 0 {
			writeError(w, http.StatusBadRequest, "minutes must be a positive integer")
			return
		}
		window = time.Duration(m) * time.Minute
	}

	samples, err := position.Track(r.Context(), a.db, cs, a.now().Add(-window))
	if err != nil {
		a.logger.Error("failed to load track", "callsign", cs, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load track")
		return
	}

	points := make([]TrackPoint, 0, len(samples))
	for _, p := range samples {
		points = append(points, TrackPoint{
			Timestamp:   p.Timestamp.UTC(),
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			Altitude:    p.Altitude,
			Track:       p.Track,
			GroundSpeed: p.GroundSpeed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"callsign": cs,
		"points":   points,
	})
}

func (a *API) handleRoute(w http.ResponseWriter, r *http.Request) {
	if a.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "route lookup not configured")
		return
	}

	rt, err := a.resolver.Resolve(r.Context(), chi.URLParam(r, "callsign"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rt)
	case errors.Is(err, route.ErrNotFound):
		writeError(w, http.StatusNotFound, "route not found")
	case errors.Is(err, adsb.ErrMalformedRecord):
		writeError(w, http.StatusBadRequest, "callsign required")
	case errors.Is(err, adsb.ErrSourceUnavailable):
		writeError(w, http.StatusBadGateway, "route source unavailable")
	default:
		a.logger.Error("route resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "route resolution failed")
	}
}

func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAlertLimit)
	}

	events, err := alert.Recent(r.Context(), a.db, limit)
	if err != nil {
		a.logger.Error("failed to load alert history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load alert history")
		return
	}

	views := make([]AlertView, 0, len(events))
	for _, ev := range events {
		views = append(views, AlertView{
			ID:           ev.ID,
			RuleID:       ev.RuleID,
			ICAOHex:      ev.ICAOHex,
			Callsign:     ev.Callsign,
			AircraftType: ev.AircraftType,
			Squawk:       ev.Squawk,
			Altitude:     ev.Altitude,
			Latitude:     ev.Latitude,
			Longitude:    ev.Longitude,
			TriggeredAt:  ev.TriggeredAt.UTC(),
			Delivered:    ev.Delivered,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": views})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
