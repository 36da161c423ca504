package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"adsbstats.dev/collector/pkg/mq"
)

// ConsumeEvents reads alert events from client and passes them to handle
// until ctx is done or the delivery channel closes. Payloads that do not
// decode are rejected without requeue. A handler error requeues the delivery
// and stops consumption.
func ConsumeEvents(ctx context.Context, client mq.ClientInterface, logger *slog.Logger, handle func(Event) error) error {
	if client == nil {
		return errors.New("mq client cannot be nil")
	}
	if logger == nil {
		return errors.New("logger cannot be nil")
	}

	deliveries, err := client.Consume()
	if err != nil {
		return fmt.Errorf("failed to consume alert events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}

			ev, err := DecodeEvent(d.Body)
			if err != nil {
				logger.Warn("rejecting undecodable alert event", "error", err)
				if err := d.Reject(false); err != nil {
					logger.Error("failed to reject delivery", "error", err)
				}
				continue
			}

			if err := handle(ev); err != nil {
				_ = d.Nack(false, true)
				return fmt.Errorf("alert event %d: %w", ev.ID, err)
			}
			if err := d.Ack(false); err != nil {
				logger.Error("failed to ack delivery", "event_id", ev.ID, "error", err)
			}
		}
	}
}
