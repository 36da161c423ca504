package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DBConfig holds the database configuration.
type DBConfig struct {
	Logger *slog.Logger

	// Driver selects the backend: "sqlite" (default) or "postgres".
	Driver string

	// SQLite configuration
	Path string

	// PostgreSQL configuration
	Host     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Port     int
}

// NewDB creates a new database connection and runs migrations.
func NewDB(cfg *DBConfig) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.New("database config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	// Timestamps are always supplied by the collector; NowFunc only feeds
	// bookkeeping columns such as UpdatedAt.
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == DriverPostgres {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cfg.Logger.Info("database connection established", "driver", driverName(cfg.Driver))

	if err := runMigrations(db, cfg.Logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func driverName(driver string) string {
	if driver == "" {
		return DriverSQLite
	}
	return driver
}

// dialectorFor builds the gorm dialector for the configured driver.
func dialectorFor(cfg *DBConfig) (gorm.Dialector, error) {
	switch driverName(cfg.Driver) {
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, errors.New("database path cannot be empty")
		}
		cfg.Logger.Info("opening sqlite database", "path", cfg.Path)
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", cfg.Path)
		return sqlite.Open(dsn), nil

	case DriverPostgres:
		if cfg.Host == "" {
			return nil, errors.New("database host cannot be empty")
		}
		if cfg.Port <= 0 {
			return nil, errors.New("database port must be positive")
		}
		if cfg.User == "" {
			return nil, errors.New("database user cannot be empty")
		}
		if cfg.DBName == "" {
			return nil, errors.New("database name cannot be empty")
		}
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}

		cfg.Logger.Info("connecting to database",
			"host", cfg.Host,
			"port", cfg.Port,
			"dbname", cfg.DBName,
		)

		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)
		return postgres.Open(dsn), nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// runMigrations applies additive schema changes for all models and seeds
// missing settings. Existing rows stay valid; new columns default to NULL.
func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	logger.Info("running database migrations")

	if err := db.AutoMigrate(
		&Sighting{},
		&PositionSample{},
		&RouteCacheEntry{},
		&AlertRule{},
		&AlertEvent{},
		&Setting{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	defaults := []Setting{
		{Key: SettingAlertsEnabled, Value: "1"},
		{Key: SettingPushoverUserKey, Value: ""},
		{Key: SettingPushoverAPIToken, Value: ""},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error; err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	logger.Info("database migrations completed successfully")
	return nil
}

// CloseDB closes the database connection.
func CloseDB(db *gorm.DB, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if logger != nil {
		logger.Info("database connection closed")
	}
	return nil
}
