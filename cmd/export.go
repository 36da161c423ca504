package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"adsbstats.dev/collector/internal/report"
	"adsbstats.dev/collector/internal/sighting"
	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/pkg/logger"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export daily sightings to an xlsx workbook",
	Long: `Write one row per sighting of a day, with the origin and destination
resolved through the cached route lookup.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("date", "", "Day to export as YYYY-MM-DD (default today)")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default sightings-<date>.xlsx)")
	exportCmd.Flags().Bool("no-routes", false, "Skip route resolution")
}

func runExport(cmd *cobra.Command, _ []string) error {
	log := GetLogger()

	loc, err := location()
	if err != nil {
		return err
	}

	day, _ := cmd.Flags().GetString("date")
	if day == "" {
		day = sighting.Day(time.Now(), loc)
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = fmt.Sprintf("sightings-%s.xlsx", day)
	}

	db, err := openDB(log)
	if err != nil {
		return err
	}
	defer func() { _ = store.CloseDB(db, log) }()

	cfg := &report.ExporterConfig{
		Logger:   logger.Component(log, "export"),
		DB:       db,
		Location: loc,
	}
	if skip, _ := cmd.Flags().GetBool("no-routes"); !skip {
		resolver, err := newResolver(log, db, nil)
		if err != nil {
			return err
		}
		cfg.Resolver = resolver
	}

	exporter, err := report.NewExporter(cfg)
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}

	n, err := exporter.Export(cmd.Context(), day, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(output)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d sightings for %s to %s\n", n, day, output)
	return nil
}
