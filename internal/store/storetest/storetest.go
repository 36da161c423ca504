// Package storetest opens throwaway SQLite databases for specs that need a
// real store behind the collector components.
package storetest

import (
	"io"
	"log/slog"
	"path/filepath"

	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/store"
)

// DiscardLogger returns a logger that drops everything below error level.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// Open creates a migrated SQLite database inside dir.
func Open(dir string) (*gorm.DB, error) {
	return store.NewDB(&store.DBConfig{
		Logger: DiscardLogger(),
		Driver: store.DriverSQLite,
		Path:   filepath.Join(dir, "collector.db"),
	})
}
