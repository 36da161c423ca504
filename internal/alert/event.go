package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/pkg/mq"
)

// EventContentType labels alert events on the queue.
const EventContentType = "application/x-protobuf; messageType=google.protobuf.Struct"

const publishTimeout = 2 * time.Second

// Event is a triggered alert as published on the event stream.
type Event struct {
	TriggeredAt  time.Time
	Altitude     *int
	Latitude     *float64
	Longitude    *float64
	RuleName     string
	Kind         string
	ICAOHex      string
	Callsign     string
	AircraftType string
	Squawk       string
	ID           uint
	RuleID       uint
	Delivered    bool
}

// NewEvent combines a stored alert event with its rule.
func NewEvent(rule Rule, ev *store.AlertEvent) Event {
	return Event{
		ID:           ev.ID,
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		Kind:         rule.Kind.String(),
		ICAOHex:      ev.ICAOHex,
		Callsign:     ev.Callsign,
		AircraftType: ev.AircraftType,
		Squawk:       ev.Squawk,
		Altitude:     ev.Altitude,
		Latitude:     ev.Latitude,
		Longitude:    ev.Longitude,
		TriggeredAt:  ev.TriggeredAt,
		Delivered:    ev.Delivered,
	}
}

// EncodeEvent serialises ev as a protobuf Struct.
func EncodeEvent(ev Event) ([]byte, error) {
	fields := map[string]any{
		"id":            int64(ev.ID),
		"rule_id":       int64(ev.RuleID),
		"rule_name":     ev.RuleName,
		"kind":          ev.Kind,
		"icao_hex":      ev.ICAOHex,
		"callsign":      ev.Callsign,
		"aircraft_type": ev.AircraftType,
		"squawk":        ev.Squawk,
		"triggered_at":  ev.TriggeredAt.UTC().Format(time.RFC3339Nano),
		"delivered":     ev.Delivered,
		"altitude":      nil,
		"latitude":      nil,
		"longitude":     nil,
	}
	if ev.Altitude != nil {
		fields["altitude"] = *ev.Altitude
	}
	if ev.Latitude != nil {
		fields["latitude"] = *ev.Latitude
	}
	if ev.Longitude != nil {
		fields["longitude"] = *ev.Longitude
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build event struct: %w", err)
	}
	return proto.Marshal(s)
}

// DecodeEvent parses a payload produced by EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	f := s.GetFields()
	ev := Event{
		ID:           uint(f["id"].GetNumberValue()),
		RuleID:       uint(f["rule_id"].GetNumberValue()),
		RuleName:     f["rule_name"].GetStringValue(),
		Kind:         f["kind"].GetStringValue(),
		ICAOHex:      f["icao_hex"].GetStringValue(),
		Callsign:     f["callsign"].GetStringValue(),
		AircraftType: f["aircraft_type"].GetStringValue(),
		Squawk:       f["squawk"].GetStringValue(),
		Delivered:    f["delivered"].GetBoolValue(),
	}

	if ts := f["triggered_at"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Event{}, fmt.Errorf("invalid triggered_at %q: %w", ts, err)
		}
		ev.TriggeredAt = t
	}
	if n, ok := number(f["altitude"]); ok {
		alt := int(n)
		ev.Altitude = &alt
	}
	if n, ok := number(f["latitude"]); ok {
		ev.Latitude = &n
	}
	if n, ok := number(f["longitude"]); ok {
		ev.Longitude = &n
	}

	return ev, nil
}

func number(v *structpb.Value) (float64, bool) {
	if nv, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return nv.NumberValue, true
	}
	return 0, false
}

// Publisher fans triggered alerts out to an event stream.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// QueuePublisher publishes events onto a message queue.
type QueuePublisher struct {
	client mq.Publisher
	logger *slog.Logger
}

// NewQueuePublisher creates a QueuePublisher.
func NewQueuePublisher(client mq.Publisher, logger *slog.Logger) (*QueuePublisher, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &QueuePublisher{client: client, logger: logger}, nil
}

// Publish encodes ev and pushes it with a bounded wait for the confirmation.
func (p *QueuePublisher) Publish(ctx context.Context, ev Event) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.client.Push(ctx, data); err != nil {
		return fmt.Errorf("failed to publish alert event %d: %w", ev.ID, err)
	}
	p.logger.Debug("alert event published", "event_id", ev.ID, "rule_id", ev.RuleID)
	return nil
}
