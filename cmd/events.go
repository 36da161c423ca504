package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"adsbstats.dev/collector/internal/alert"
	"adsbstats.dev/collector/pkg/logger"
	"adsbstats.dev/collector/pkg/mq"
)

const connectTimeout = 30 * time.Second

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail the alert event stream",
	Long: `Consume triggered alerts from the RabbitMQ alert event queue and print
them as JSON lines. Each delivery is acknowledged once printed.`,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL")
	eventsCmd.Flags().String("queue", "", "Alert event queue (default alert-events)")

	_ = viper.BindPFlag("events.rabbitmq_url", eventsCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("events.queue", eventsCmd.Flags().Lookup("queue"))
}

func runEvents(cmd *cobra.Command, _ []string) error {
	log := GetLogger()

	url := viper.GetString("events.rabbitmq_url")
	if url == "" {
		return errors.New("events.rabbitmq_url is required")
	}

	client, err := mq.New(&mq.Config{
		Logger:      logger.Component(log, "mq-client"),
		URL:         url,
		Queue:       viper.GetString("events.queue"),
		ContentType: alert.EventContentType,
		Durable:     true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil && !errors.Is(err, mq.ErrAlreadyClosed) {
			log.Error("failed to close mq client", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := waitConnected(ctx, client); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	return alert.ConsumeEvents(ctx, client, log, func(ev alert.Event) error {
		return enc.Encode(ev)
	})
}

// waitConnected polls until the client can consume, since mq.New connects in
// the background.
func waitConnected(ctx context.Context, client *mq.Client) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		if client.Ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to connect to rabbitmq: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
