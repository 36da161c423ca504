// Package simulator produces a synthetic readsb aircraft.json feed around a
// receiver so the collector can be exercised without radio hardware.
package simulator

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	json "github.com/goccy/go-json"

	"adsbstats.dev/collector/internal/adsb"
)

const (
	earthRadiusNM = 3440.065

	DefaultAircraft  = 12
	DefaultRadiusNM  = 120.0
	EmergencySquawk  = "7700"
	minCruiseAltFeet = 2000
	maxCruiseAltFeet = 41000
)

// Config holds the simulator parameters.
type Config struct {
	Receiver adsb.Receiver
	// Seed makes the generated traffic reproducible; 0 picks a random seed.
	Seed uint64
	// Aircraft is the number of aircraft kept in the sky.
	Aircraft int
	// RadiusNM bounds the airspace; aircraft leaving it are replaced.
	RadiusNM float64
	// EmergencyRate is the per-step probability that a flight squawks 7700.
	EmergencyRate float64
}

// Flight is the seed identity of one simulated aircraft.
type Flight struct {
	Airline string `fake:"{randomstring:[DLH,BAW,AFR,KLM,RYR,EZY,UAE,SWR,AUA,SAS,THY,IBE]}"`
	Type    string `fake:"{randomstring:[A320,A321,A333,A359,B738,B748,B77W,B789,E190,CRJ9]}"`
	Number  int    `fake:"{number:1,9999}"`
	Squawk  int    `fake:"{number:1000,6777}"`
}

type aircraft struct {
	hex      string
	callsign string
	typ      string
	squawk   string
	lat      float64
	lon      float64
	altitude int
	speed    float64
	track    float64
}

// Simulator moves a fixed population of aircraft by dead reckoning.
type Simulator struct {
	mu       sync.Mutex
	faker    *gofakeit.Faker
	receiver adsb.Receiver
	radius   float64
	rate     float64
	fleet    []*aircraft
	messages int64
	now      time.Time
}

// New creates a Simulator populated with cfg.Aircraft aircraft.
func New(cfg *Config) (*Simulator, error) {
	if cfg == nil {
		return nil, errors.New("simulator config cannot be nil")
	}
	if cfg.EmergencyRate < 0 || cfg.EmergencyRate > 1 {
		return nil, fmt.Errorf("emergency rate must be within [0, 1], got %v", cfg.EmergencyRate)
	}

	s := &Simulator{
		faker:    gofakeit.New(cfg.Seed),
		receiver: cfg.Receiver,
		radius:   cfg.RadiusNM,
		rate:     cfg.EmergencyRate,
		now:      time.Now().UTC(),
	}
	if s.radius <= 0 {
		s.radius = DefaultRadiusNM
	}

	n := cfg.Aircraft
	if n <= 0 {
		n = DefaultAircraft
	}
	for range n {
		ac, err := s.spawn()
		if err != nil {
			return nil, err
		}
		s.fleet = append(s.fleet, ac)
	}

	return s, nil
}

// spawn places a new aircraft at a random point inside the airspace.
func (s *Simulator) spawn() (*aircraft, error) {
	var f Flight
	if err := s.faker.Struct(&f); err != nil {
		return nil, fmt.Errorf("failed to generate flight: %w", err)
	}

	bearing := s.faker.Float64Range(0, 360)
	dist := s.radius * math.Sqrt(s.faker.Float64Range(0, 1))
	lat, lon := destination(s.receiver.Latitude, s.receiver.Longitude, bearing, dist)

	return &aircraft{
		hex:      fmt.Sprintf("%06x", s.faker.IntRange(0x300000, 0x4fffff)),
		callsign: fmt.Sprintf("%s%d", f.Airline, f.Number),
		typ:      f.Type,
		squawk:   fmt.Sprintf("%04d", f.Squawk),
		lat:      lat,
		lon:      lon,
		altitude: s.faker.IntRange(minCruiseAltFeet/100, maxCruiseAltFeet/100) * 100,
		speed:    s.faker.Float64Range(180, 520),
		track:    s.faker.Float64Range(0, 360),
	}, nil
}

// Step advances every aircraft by dt and replaces those that left the
// airspace.
func (s *Simulator) Step(dt time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = s.now.Add(dt)
	hours := dt.Hours()

	for i, ac := range s.fleet {
		ac.lat, ac.lon = destination(ac.lat, ac.lon, ac.track, ac.speed*hours)

		ac.altitude += s.faker.IntRange(-5, 5) * 10
		ac.altitude = max(minCruiseAltFeet, min(maxCruiseAltFeet, ac.altitude))
		ac.speed = math.Max(140, math.Min(560, ac.speed+s.faker.Float64Range(-5, 5)))
		ac.track = math.Mod(ac.track+s.faker.Float64Range(-3, 3)+360, 360)

		if s.rate > 0 && ac.squawk != EmergencySquawk && s.faker.Float64() < s.rate {
			ac.squawk = EmergencySquawk
		}

		if s.receiver.DistanceNM(ac.lat, ac.lon) > s.radius {
			fresh, err := s.spawn()
			if err != nil {
				return err
			}
			s.fleet[i] = fresh
		}
	}
	s.messages += int64(len(s.fleet)) * int64(math.Max(1, dt.Seconds()))

	return nil
}

type document struct {
	Now      float64  `json:"now"`
	Messages int64    `json:"messages"`
	Aircraft []record `json:"aircraft"`
}

type record struct {
	Hex     string  `json:"hex"`
	Flight  string  `json:"flight"`
	Type    string  `json:"t"`
	Squawk  string  `json:"squawk"`
	AltBaro int     `json:"alt_baro"`
	GS      float64 `json:"gs"`
	Track   float64 `json:"track"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Document renders the current state as a readsb aircraft.json document.
// Callsigns are padded to eight characters like readsb does.
func (s *Simulator) Document() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := document{
		Now:      float64(s.now.UnixMilli()) / 1000,
		Messages: s.messages,
		Aircraft: make([]record, 0, len(s.fleet)),
	}
	for _, ac := range s.fleet {
		doc.Aircraft = append(doc.Aircraft, record{
			Hex:     ac.hex,
			Flight:  fmt.Sprintf("%-8s", ac.callsign),
			Type:    ac.typ,
			Squawk:  ac.squawk,
			AltBaro: ac.altitude,
			GS:      math.Round(ac.speed*10) / 10,
			Track:   math.Round(ac.track*10) / 10,
			Lat:     math.Round(ac.lat*1e6) / 1e6,
			Lon:     math.Round(ac.lon*1e6) / 1e6,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode aircraft.json: %w", err)
	}
	return data, nil
}

// WriteFile writes the current document to path atomically, the way readsb
// replaces its json directory output.
func (s *Simulator) WriteFile(path string) error {
	data, err := s.Document()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".aircraft-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ServeHTTP serves the current document.
func (s *Simulator) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	data, err := s.Document()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// Len returns the number of aircraft in the sky.
func (s *Simulator) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fleet)
}

// destination returns the point reached from (lat, lon) after travelling
// distNM along the initial bearing.
func destination(lat, lon, bearing, distNM float64) (float64, float64) {
	rad := math.Pi / 180
	phi1 := lat * rad
	lambda1 := lon * rad
	theta := bearing * rad
	delta := distNM / earthRadiusNM

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	lon2 := math.Mod(lambda2/rad+540, 360) - 180
	return phi2 / rad, lon2
}
