package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/alert"
	"adsbstats.dev/collector/internal/position"
	"adsbstats.dev/collector/internal/route"
	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/pkg/logger"
	"adsbstats.dev/collector/pkg/metrics"
)

// InitConfig initializes Viper configuration.
// It supports reading from config files (config.yaml) and environment variables.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory and /etc/adsb-collector/
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/adsb-collector/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	setDefaults()

	// Environment variables, e.g. ADSB_FEED_URL
	viper.SetEnvPrefix("ADSB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			// Config file not found; rely on env vars and defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("collector.interval", time.Minute)
	viper.SetDefault("collector.cycle_timeout", 45*time.Second)
	viper.SetDefault("collector.timezone", "UTC")

	viper.SetDefault("feed.mode", "remote")
	viper.SetDefault("feed.url", "http://localhost:8080/data/aircraft.json")
	viper.SetDefault("feed.path", "/run/readsb/aircraft.json")
	viper.SetDefault("feed.timeout", 10*time.Second)

	viper.SetDefault("positions.retention", position.DefaultRetention)

	viper.SetDefault("alerts.cooldown", alert.DefaultCooldown)
	viper.SetDefault("pushover.priority", alert.DefaultPriority)
	viper.SetDefault("pushover.sound", alert.DefaultSound)
	viper.SetDefault("pushover.timeout", 10*time.Second)

	viper.SetDefault("routes.url", route.DefaultADSBDBURL)
	viper.SetDefault("routes.ttl", route.DefaultTTL)
	viper.SetDefault("routes.timeout", 5*time.Second)

	viper.SetDefault("events.queue", "alert-events")

	viper.SetDefault("http.port", 8090)
	viper.SetDefault("grpc.port", 9090)
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger() *slog.Logger {
	return logger.NewFromStrings(viper.GetString("log.level"), viper.GetString("log.format"))
}

// openDB connects to the configured store and runs migrations.
func openDB(log *slog.Logger) (*gorm.DB, error) {
	db, err := store.NewDB(&store.DBConfig{
		Logger:   logger.Component(log, "store"),
		Driver:   viper.GetString("db.driver"),
		Path:     viper.GetString("db.path"),
		Host:     viper.GetString("db.host"),
		Port:     viper.GetInt("db.port"),
		User:     viper.GetString("db.user"),
		Password: viper.GetString("db.password"),
		DBName:   viper.GetString("db.name"),
		SSLMode:  viper.GetString("db.sslmode"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// location loads the timezone that defines the sighting day.
func location() (*time.Location, error) {
	name := viper.GetString("collector.timezone")
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid collector.timezone %q: %w", name, err)
	}
	return loc, nil
}

// receiver returns the receiver location, or nil when it is not configured.
func receiver() *adsb.Receiver {
	if !viper.IsSet("receiver.lat") || !viper.IsSet("receiver.lon") {
		return nil
	}
	return &adsb.Receiver{
		Latitude:  viper.GetFloat64("receiver.lat"),
		Longitude: viper.GetFloat64("receiver.lon"),
	}
}

// newResolver builds the cached adsbdb route resolver.
func newResolver(log *slog.Logger, db *gorm.DB, m *metrics.CollectorMetrics) (*route.Resolver, error) {
	lookup, err := route.NewADSBDBClient(&route.ADSBDBConfig{
		Logger:  logger.Component(log, "adsbdb"),
		BaseURL: viper.GetString("routes.url"),
		Timeout: viper.GetDuration("routes.timeout"),
	})
	if err != nil {
		return nil, err
	}

	return route.NewResolver(&route.ResolverConfig{
		Logger:  logger.Component(log, "routes"),
		DB:      db,
		Lookup:  lookup,
		Metrics: m,
		TTL:     viper.GetDuration("routes.ttl"),
	})
}
