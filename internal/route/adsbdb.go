package route

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/store"
)

// DefaultADSBDBURL is the public adsbdb API root.
const DefaultADSBDBURL = "https://api.adsbdb.com/v0"

const defaultLookupTimeout = 5 * time.Second

// ADSBDBConfig configures an ADSBDBClient.
type ADSBDBConfig struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	BaseURL    string
	Timeout    time.Duration
}

// ADSBDBClient looks up routes from the adsbdb callsign endpoint.
type ADSBDBClient struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// NewADSBDBClient creates an adsbdb client.
func NewADSBDBClient(cfg *ADSBDBConfig) (*ADSBDBClient, error) {
	if cfg == nil {
		return nil, errors.New("adsbdb config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultADSBDBURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &ADSBDBClient{
		logger:  cfg.Logger,
		client:  client,
		baseURL: base,
		timeout: timeout,
	}, nil
}

type adsbdbEnvelope struct {
	Response json.RawMessage `json:"response"`
}

type adsbdbResponse struct {
	FlightRoute *adsbdbFlightRoute `json:"flightroute"`
}

type adsbdbFlightRoute struct {
	Callsign    string        `json:"callsign"`
	Origin      adsbdbAirport `json:"origin"`
	Destination adsbdbAirport `json:"destination"`
}

type adsbdbAirport struct {
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	CountryISOName string   `json:"country_iso_name"`
	CountryName    string   `json:"country_name"`
	IATACode       string   `json:"iata_code"`
	ICAOCode       string   `json:"icao_code"`
	Municipality   string   `json:"municipality"`
	Name           string   `json:"name"`
}

func (a adsbdbAirport) toAirport() store.Airport {
	return store.Airport{
		Latitude:     a.Latitude,
		Longitude:    a.Longitude,
		IATA:         a.IATACode,
		ICAO:         a.ICAOCode,
		Name:         a.Name,
		CountryISO:   a.CountryISOName,
		CountryName:  a.CountryName,
		Municipality: a.Municipality,
	}
}

// LookupCallsign implements Lookup.
func (c *ADSBDBClient) LookupCallsign(ctx context.Context, callsign string) (*Route, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/callsign/" + url.PathEscape(callsign)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", adsb.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: adsbdb %s: %w", adsb.ErrSourceUnavailable, callsign, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: adsbdb %s: read body: %w", adsb.ErrSourceUnavailable, callsign, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: adsbdb %s: unexpected status %d", adsb.ErrSourceUnavailable, callsign, resp.StatusCode)
	}

	var env adsbdbEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: adsbdb %s: decode: %w", adsb.ErrSourceUnavailable, callsign, err)
	}

	// A plain string response ("unknown callsign") is adsbdb's negative answer.
	var message string
	if err := json.Unmarshal(env.Response, &message); err == nil {
		c.logger.Debug("adsbdb has no route", "callsign", callsign, "response", message)
		return nil, ErrNotFound
	}

	var payload adsbdbResponse
	if err := json.Unmarshal(env.Response, &payload); err != nil {
		return nil, fmt.Errorf("%w: adsbdb %s: decode response: %w", adsb.ErrSourceUnavailable, callsign, err)
	}
	if payload.FlightRoute == nil {
		return nil, ErrNotFound
	}

	return &Route{
		Callsign:    callsign,
		Origin:      payload.FlightRoute.Origin.toAirport(),
		Destination: payload.FlightRoute.Destination.toAirport(),
	}, nil
}

var _ Lookup = (*ADSBDBClient)(nil)
