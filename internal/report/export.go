package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/route"
	"adsbstats.dev/collector/internal/sighting"
	"adsbstats.dev/collector/internal/store"
)

const sheetName = "Sightings"

var exportHeader = []any{
	"Callsign", "ICAO", "Airline", "Type", "Squawk",
	"First Seen", "Last Seen", "Min Altitude (ft)", "Max Altitude (ft)", "Max Distance (NM)",
	"Origin", "Origin Name", "Destination", "Destination Name",
}

// ExporterConfig holds the Exporter dependencies.
type ExporterConfig struct {
	Logger   *slog.Logger
	DB       *gorm.DB
	Resolver RouteResolver // Optional; route columns stay empty without it
	Location *time.Location
}

// Exporter writes a day's sightings as an xlsx workbook.
type Exporter struct {
	logger   *slog.Logger
	db       *gorm.DB
	resolver RouteResolver
	location *time.Location
}

// NewExporter creates an Exporter.
func NewExporter(cfg *ExporterConfig) (*Exporter, error) {
	if cfg == nil {
		return nil, errors.New("exporter config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{
		logger:   cfg.Logger,
		db:       cfg.DB,
		resolver: cfg.Resolver,
		location: loc,
	}, nil
}

// Export writes the sightings of day to w and returns the number of rows.
// Routes are resolved per callsign; a lookup failure leaves the route
// columns empty for that row and does not fail the export.
func (e *Exporter) Export(ctx context.Context, day string, w io.Writer) (int, error) {
	if _, err := time.Parse(sighting.DateLayout, day); err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", day, err)
	}

	rows, err := sighting.ForDate(ctx, e.db, day)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return 0, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := e.writeHeader(f); err != nil {
		return 0, err
	}

	for i, s := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		values := e.row(ctx, s)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return 0, fmt.Errorf("failed to write row for %s: %w", s.Callsign, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("sightings exported", "date", day, "rows", len(rows))
	return len(rows), nil
}

func (e *Exporter) writeHeader(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &exportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	return f.SetColWidth(sheetName, "A", "N", 16)
}

func (e *Exporter) row(ctx context.Context, s store.Sighting) []any {
	values := []any{
		s.Callsign, s.ICAOHex, s.Airline, s.AircraftType, deref(s.Squawk),
		s.FirstSeen.In(e.location).Format(time.DateTime),
		s.LastSeen.In(e.location).Format(time.DateTime),
		derefAny(s.MinAltitude), derefAny(s.MaxAltitude), rounded(s.MaxDistanceNM),
		"", "", "", "",
	}

	if e.resolver == nil {
		return values
	}
	rt, err := e.resolver.Resolve(ctx, s.Callsign)
	switch {
	case err == nil:
		values[10] = airportCode(rt.Origin)
		values[11] = rt.Origin.Name
		values[12] = airportCode(rt.Destination)
		values[13] = rt.Destination.Name
	case errors.Is(err, route.ErrNotFound):
	default:
		e.logger.Warn("route unavailable for export", "callsign", s.Callsign, "error", err)
	}
	return values
}

func airportCode(a store.Airport) string {
	if a.ICAO != "" {
		return a.ICAO
	}
	return a.IATA
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefAny[T any](v *T) any {
	if v == nil {
		return ""
	}
	return *v
}

func rounded(v *float64) any {
	if v == nil {
		return ""
	}
	return float64(int(*v*10+0.5)) / 10
}
