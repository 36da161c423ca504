package alert_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"adsbstats.dev/collector/internal/alert"
	"adsbstats.dev/collector/internal/store/storetest"
	"adsbstats.dev/collector/pkg/mq/mock"
)

// ackRecorder records delivery acknowledgements by tag.
type ackRecorder struct {
	mu       sync.Mutex
	acked    []uint64
	nacked   []uint64
	rejected []uint64
}

func (a *ackRecorder) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *ackRecorder) Nack(tag uint64, _, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = append(a.rejected, tag)
	return nil
}

var _ = Describe("ConsumeEvents", func() {
	var (
		client *mock.Client
		acks   *ackRecorder
	)

	deliver := func(tag uint64, body []byte) {
		client.Deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: tag, Body: body}
	}

	encoded := func(id uint) []byte {
		data, err := alert.EncodeEvent(alert.Event{ID: id, RuleName: "Emergency", Kind: "squawk", ICAOHex: "3c6444",
			TriggeredAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)})
		Expect(err).NotTo(HaveOccurred())
		return data
	}

	BeforeEach(func() {
		client = mock.NewClient()
		acks = &ackRecorder{}
	})

	It("should decode and ack events until the channel closes", func() {
		deliver(1, encoded(10))
		deliver(2, encoded(11))
		close(client.Deliveries)

		var got []uint
		err := alert.ConsumeEvents(context.Background(), client, storetest.DiscardLogger(), func(ev alert.Event) error {
			got = append(got, ev.ID)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]uint{10, 11}))
		Expect(acks.acked).To(Equal([]uint64{1, 2}))
	})

	It("should reject undecodable payloads and continue", func() {
		deliver(1, []byte{0xff, 0x01})
		deliver(2, encoded(12))
		close(client.Deliveries)

		var got []uint
		err := alert.ConsumeEvents(context.Background(), client, storetest.DiscardLogger(), func(ev alert.Event) error {
			got = append(got, ev.ID)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]uint{12}))
		Expect(acks.rejected).To(Equal([]uint64{1}))
	})

	It("should requeue and stop when the handler fails", func() {
		deliver(1, encoded(13))

		err := alert.ConsumeEvents(context.Background(), client, storetest.DiscardLogger(), func(alert.Event) error {
			return errors.New("stdout closed")
		})
		Expect(err).To(MatchError(ContainSubstring("stdout closed")))
		Expect(acks.nacked).To(Equal([]uint64{1}))
	})

	It("should stop when the context is canceled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := alert.ConsumeEvents(ctx, client, storetest.DiscardLogger(), func(alert.Event) error { return nil })
		Expect(err).NotTo(HaveOccurred())
	})

	It("should surface consume errors", func() {
		client.ConsumeError = errors.New("not connected")

		err := alert.ConsumeEvents(context.Background(), client, storetest.DiscardLogger(), func(alert.Event) error { return nil })
		Expect(err).To(MatchError(ContainSubstring("not connected")))
	})
})
