package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/alert"
	"adsbstats.dev/collector/internal/collector"
	"adsbstats.dev/collector/internal/feed"
	"adsbstats.dev/collector/internal/notify"
	"adsbstats.dev/collector/internal/position"
	"adsbstats.dev/collector/internal/report"
	"adsbstats.dev/collector/internal/sighting"
	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/pkg/logger"
	"adsbstats.dev/collector/pkg/metrics"
	"adsbstats.dev/collector/pkg/mq"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run the polling collector",
	Long: `Run the collector that, once per interval:
- Fetches the readsb aircraft.json snapshot
- Updates daily sightings and raw position history
- Evaluates alert rules and sends Pushover notifications
- Prunes positions older than the retention window

It also serves /health, /metrics and the report API over HTTP and the
standard gRPC health service.`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().Duration("interval", 0, "Polling interval (default 1m)")
	collectCmd.Flags().String("feed-mode", "", "Feed mode: remote (HTTP) or local (file)")
	collectCmd.Flags().String("feed-url", "", "readsb aircraft.json URL for remote mode")
	collectCmd.Flags().String("feed-path", "", "readsb aircraft.json path for local mode")
	collectCmd.Flags().Float64("receiver-lat", 0, "Receiver latitude")
	collectCmd.Flags().Float64("receiver-lon", 0, "Receiver longitude")
	collectCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL for the alert event stream (disabled when empty)")
	collectCmd.Flags().Int("http-port", 0, "HTTP port for health, metrics and the report API (default 8090)")
	collectCmd.Flags().Int("grpc-port", 0, "gRPC health port (default 9090)")

	// Bind flags to viper
	_ = viper.BindPFlag("collector.interval", collectCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("feed.mode", collectCmd.Flags().Lookup("feed-mode"))
	_ = viper.BindPFlag("feed.url", collectCmd.Flags().Lookup("feed-url"))
	_ = viper.BindPFlag("feed.path", collectCmd.Flags().Lookup("feed-path"))
	_ = viper.BindPFlag("receiver.lat", collectCmd.Flags().Lookup("receiver-lat"))
	_ = viper.BindPFlag("receiver.lon", collectCmd.Flags().Lookup("receiver-lon"))
	_ = viper.BindPFlag("events.rabbitmq_url", collectCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("http.port", collectCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("grpc.port", collectCmd.Flags().Lookup("grpc-port"))
}

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func runCollect(cmd *cobra.Command, _ []string) error {
	log := GetLogger()
	log.Info("starting collector service")

	loc, err := location()
	if err != nil {
		return err
	}

	db, err := openDB(log)
	if err != nil {
		log.Error("failed to open database", "error", err)
		return err
	}

	server, err := buildCollector(log, db, loc)
	if err != nil {
		_ = store.CloseDB(db, log)
		log.Error("failed to create collector", "error", err)
		return err
	}

	if err := server.Run(cmd.Context()); err != nil {
		log.Error("collector error", "error", err)
		return err
	}

	log.Info("collector stopped")
	return nil
}

func buildCollector(log *slog.Logger, db *gorm.DB, loc *time.Location) (*collector.Server, error) {
	m := metrics.NewCollectorMetrics(metrics.Namespace)
	rx := receiver()

	source, err := feed.New(&feed.Config{
		Logger:  logger.Component(log, "feed"),
		Mode:    viper.GetString("feed.mode"),
		URL:     viper.GetString("feed.url"),
		Path:    viper.GetString("feed.path"),
		Timeout: viper.GetDuration("feed.timeout"),
	})
	if err != nil {
		return nil, err
	}

	aggregator, err := sighting.NewAggregator(&sighting.Config{
		Logger:   logger.Component(log, "sightings"),
		DB:       db,
		Metrics:  m,
		Location: loc,
		Receiver: rx,
	})
	if err != nil {
		return nil, err
	}

	recorder, err := position.NewRecorder(&position.Config{
		Logger:    logger.Component(log, "positions"),
		DB:        db,
		Metrics:   m,
		Retention: viper.GetDuration("positions.retention"),
	})
	if err != nil {
		return nil, err
	}

	pushover, err := notify.NewPushover(&notify.PushoverConfig{
		Logger:  logger.Component(log, "pushover"),
		URL:     viper.GetString("pushover.url"),
		Timeout: viper.GetDuration("pushover.timeout"),
	})
	if err != nil {
		return nil, err
	}

	var (
		publisher alert.Publisher
		closers   []io.Closer
	)
	if url := viper.GetString("events.rabbitmq_url"); url != "" {
		client, err := mq.New(&mq.Config{
			Logger:      logger.Component(log, "mq-client"),
			Metrics:     metrics.NewMQMetrics(metrics.Namespace),
			URL:         url,
			Queue:       viper.GetString("events.queue"),
			ContentType: alert.EventContentType,
			Durable:     true,
		})
		if err != nil {
			return nil, err
		}
		closers = append(closers, closerFunc(func() error {
			if err := client.Close(); err != nil && !errors.Is(err, mq.ErrAlreadyClosed) {
				return fmt.Errorf("mq client close error: %w", err)
			}
			return nil
		}))

		qp, err := alert.NewQueuePublisher(client, logger.Component(log, "events"))
		if err != nil {
			return nil, err
		}
		publisher = qp
		log.Info("alert event stream enabled", "queue", viper.GetString("events.queue"))
	}

	engine, err := alert.NewEngine(&alert.Config{
		Logger:    logger.Component(log, "alerts"),
		DB:        db,
		Notifier:  pushover,
		Publisher: publisher,
		Metrics:   m,
		Location:  loc,
		Cooldown:  viper.GetDuration("alerts.cooldown"),
		Priority:  viper.GetInt("pushover.priority"),
		Sound:     viper.GetString("pushover.sound"),
	})
	if err != nil {
		return nil, err
	}

	cycle, err := collector.NewCycle(&collector.CycleConfig{
		Logger:    logger.Component(log, "cycle"),
		DB:        db,
		Source:    source,
		Sightings: aggregator,
		Positions: recorder,
		Alerts:    engine,
		Metrics:   m,
		Timeout:   viper.GetDuration("collector.cycle_timeout"),
	})
	if err != nil {
		return nil, err
	}

	resolver, err := newResolver(log, db, m)
	if err != nil {
		return nil, err
	}
	api, err := report.NewAPI(&report.Config{
		Logger:      logger.Component(log, "api"),
		DB:          db,
		Resolver:    resolver,
		Location:    loc,
		TrackWindow: viper.GetDuration("positions.retention"),
	})
	if err != nil {
		return nil, err
	}

	cfg := &collector.ServerConfig{
		Logger:   log,
		Cycle:    cycle,
		API:      api.Router(),
		DB:       db,
		Closers:  closers,
		Interval: viper.GetDuration("collector.interval"),
	}
	if port := viper.GetInt("http.port"); port > 0 {
		cfg.HTTPAddr = fmt.Sprintf(":%d", port)
	}
	if port := viper.GetInt("grpc.port"); port > 0 {
		cfg.GRPCAddr = fmt.Sprintf(":%d", port)
	}

	log.Info("collector configuration",
		"interval", cfg.Interval,
		"feed_mode", viper.GetString("feed.mode"),
		"db_driver", viper.GetString("db.driver"),
		"receiver", rx != nil,
		"http_addr", cfg.HTTPAddr,
		"grpc_addr", cfg.GRPCAddr,
	)

	return collector.NewServer(cfg)
}
