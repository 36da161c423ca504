package feed

import (
	"fmt"
	"math"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"adsbstats.dev/collector/internal/adsb"
)

// readsbDocument is the top level of readsb's aircraft.json.
type readsbDocument struct {
	Now      *float64       `json:"now"`
	Aircraft []readsbRecord `json:"aircraft"`
}

type readsbRecord struct {
	Lat     *float64     `json:"lat"`
	Lon     *float64     `json:"lon"`
	Track   *float64     `json:"track"`
	GS      *float64     `json:"gs"`
	AltBaro baroAltitude `json:"alt_baro"`
	Hex     string       `json:"hex"`
	Flight  string       `json:"flight"`
	Type    string       `json:"t"`
	Squawk  string       `json:"squawk"`
}

// baroAltitude accepts readsb's alt_baro, which is either feet or the
// string "ground".
type baroAltitude struct {
	Feet   *int
	Ground bool
}

func (a *baroAltitude) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		return nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.EqualFold(s, "ground") {
			zero := 0
			a.Feet = &zero
			a.Ground = true
		}
		// Any other string leaves the altitude unknown.
		return nil
	}

	var feet float64
	if err := json.Unmarshal(data, &feet); err != nil {
		return err
	}
	v := int(math.Round(feet))
	a.Feet = &v
	return nil
}

// Decode parses an aircraft.json document into a Snapshot. The snapshot time
// is the document's "now" field; fallback is used when it is absent.
func Decode(data []byte, fallback time.Time) (adsb.Snapshot, error) {
	var doc readsbDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return adsb.Snapshot{}, fmt.Errorf("%w: decode aircraft.json: %w", adsb.ErrSourceUnavailable, err)
	}

	snap := adsb.Snapshot{
		Time:     fallback.UTC(),
		Aircraft: make([]adsb.Aircraft, 0, len(doc.Aircraft)),
	}
	if doc.Now != nil && *doc.Now > 0 {
		sec, frac := math.Modf(*doc.Now)
		snap.Time = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}

	for _, r := range doc.Aircraft {
		snap.Aircraft = append(snap.Aircraft, adsb.Aircraft{
			Altitude:    r.AltBaro.Feet,
			Latitude:    r.Lat,
			Longitude:   r.Lon,
			Track:       r.Track,
			GroundSpeed: r.GS,
			ICAOHex:     r.Hex,
			Callsign:    r.Flight,
			Type:        r.Type,
			Squawk:      r.Squawk,
			OnGround:    r.AltBaro.Ground,
		})
	}

	return snap, nil
}
