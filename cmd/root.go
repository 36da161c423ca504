// Package main provides the CLI entry point for the ADS-B collector.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "adsb-collector",
		Short: "ADS-B sighting collector",
		Long: `Polls a readsb receiver feed and keeps:
- daily per-flight sightings with altitude and distance bounds
- a short rolling window of raw positions
- alert rules with cooldown-limited Pushover notifications
- a cache of callsign routes for reporting`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/adsb-collector/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")

	// Database flags are shared by every command that touches the store.
	rootCmd.PersistentFlags().String("db-driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("db-path", "adsb.db", "SQLite database file")
	rootCmd.PersistentFlags().String("db-host", "localhost", "PostgreSQL host")
	rootCmd.PersistentFlags().Int("db-port", 5432, "PostgreSQL port")
	rootCmd.PersistentFlags().String("db-user", "postgres", "PostgreSQL user")
	rootCmd.PersistentFlags().String("db-password", "", "PostgreSQL password")
	rootCmd.PersistentFlags().String("db-name", "adsb", "PostgreSQL database name")
	rootCmd.PersistentFlags().String("db-sslmode", "disable", "PostgreSQL SSL mode")

	bindings := map[string]string{
		"log.level":   "log-level",
		"log.format":  "log-format",
		"db.driver":   "db-driver",
		"db.path":     "db-path",
		"db.host":     "db-host",
		"db.port":     "db-port",
		"db.user":     "db-user",
		"db.password": "db-password",
		"db.name":     "db-name",
		"db.sslmode":  "db-sslmode",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			log.Fatalf("failed to bind %s flag: %v", flag, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := InitConfig(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Log config file being used
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
