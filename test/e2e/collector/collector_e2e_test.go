// Package collector runs full polling cycles against PostgreSQL and RabbitMQ.
package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/alert"
	"adsbstats.dev/collector/internal/collector"
	"adsbstats.dev/collector/internal/feed"
	"adsbstats.dev/collector/internal/notify"
	"adsbstats.dev/collector/internal/position"
	"adsbstats.dev/collector/internal/report"
	"adsbstats.dev/collector/internal/sighting"
	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/pkg/metrics"
	"adsbstats.dev/collector/pkg/mq"
	"adsbstats.dev/collector/pkg/simulator"
)

var _ = Describe("Collector E2E", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		sim       *simulator.Simulator
		feedSrv   *httptest.Server
		pushSrv   *httptest.Server
		pushCount atomic.Int32
		publisher *mq.Client
		consumer  *mq.Client
		cycle     *collector.Cycle
		sightings *sighting.Aggregator
		positions *position.Recorder
		engine    *alert.Engine
		snap      adsb.Snapshot
		queueName string
	)

	emergencies := func(s adsb.Snapshot) int {
		n := 0
		for _, ac := range s.Aircraft {
			if ac.Squawk == simulator.EmergencySquawk && ac.ICAOHex != "" {
				n++
			}
		}
		return n
	}

	BeforeEach(func() {
		ctx = context.Background()
		queueName = "alert-events-e2e-" + time.Now().Format("20060102-150405.000")

		var err error
		db, err = store.NewDB(dbConfig)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = store.CloseDB(db, testLogger) })

		Expect(db.Exec("TRUNCATE TABLE aircraft_sightings, position_history, route_cache, alert_rules, alert_history RESTART IDENTITY").Error).To(Succeed())
		Expect(store.SetSetting(ctx, db, store.SettingAlertsEnabled, "1")).To(Succeed())
		Expect(store.SetSetting(ctx, db, store.SettingPushoverUserKey, "e2e-user")).To(Succeed())
		Expect(store.SetSetting(ctx, db, store.SettingPushoverAPIToken, "e2e-token")).To(Succeed())
		Expect(store.CreateRule(ctx, db, &store.AlertRule{Name: "Emergency", Kind: "squawk", Value: "7700", Enabled: true})).To(Succeed())

		sim, err = simulator.New(&simulator.Config{
			Receiver:      adsb.Receiver{Latitude: 50.0379, Longitude: 8.5622},
			Seed:          7,
			Aircraft:      6,
			EmergencyRate: 1,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(sim.Step(time.Second)).To(Succeed())

		doc, err := sim.Document()
		Expect(err).NotTo(HaveOccurred())
		snap, err = feed.Decode(doc, time.Now())
		Expect(err).NotTo(HaveOccurred())

		feedSrv = httptest.NewServer(sim)
		DeferCleanup(feedSrv.Close)

		pushCount.Store(0)
		pushSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.ParseForm()).To(Succeed())
			Expect(r.PostForm.Get("token")).To(Equal("e2e-token"))
			pushCount.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":1,"request":"e2e"}`))
		}))
		DeferCleanup(pushSrv.Close)

		publisher, err = mq.New(&mq.Config{
			Logger:      testLogger,
			URL:         rabbitmqURL,
			Queue:       queueName,
			ContentType: alert.EventContentType,
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = publisher.Close() })

		consumer, err = mq.New(&mq.Config{Logger: testLogger, URL: rabbitmqURL, Queue: queueName})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = consumer.Close() })

		Eventually(publisher.Ready, 15*time.Second, 100*time.Millisecond).Should(BeTrue())
		Eventually(consumer.Ready, 15*time.Second, 100*time.Millisecond).Should(BeTrue())

		source, err := feed.New(&feed.Config{Logger: testLogger, Mode: feed.ModeRemote, URL: feedSrv.URL})
		Expect(err).NotTo(HaveOccurred())
		sightings, err = sighting.NewAggregator(&sighting.Config{Logger: testLogger, DB: db})
		Expect(err).NotTo(HaveOccurred())
		positions, err = position.NewRecorder(&position.Config{Logger: testLogger, DB: db})
		Expect(err).NotTo(HaveOccurred())
		pushover, err := notify.NewPushover(&notify.PushoverConfig{Logger: testLogger, URL: pushSrv.URL})
		Expect(err).NotTo(HaveOccurred())
		queue, err := alert.NewQueuePublisher(publisher, testLogger)
		Expect(err).NotTo(HaveOccurred())
		engine, err = alert.NewEngine(&alert.Config{
			Logger:    testLogger,
			DB:        db,
			Notifier:  pushover,
			Publisher: queue,
		})
		Expect(err).NotTo(HaveOccurred())

		cycle, err = collector.NewCycle(&collector.CycleConfig{
			Logger:    testLogger,
			DB:        db,
			Source:    source,
			Sightings: sightings,
			Positions: positions,
			Alerts:    engine,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should ingest a simulated snapshot into PostgreSQL", func() {
		rep := cycle.Run(ctx)
		Expect(rep.Err()).NotTo(HaveOccurred())
		Expect(rep.Status).To(Equal(metrics.StatusSuccess))
		Expect(rep.Aircraft).To(Equal(sim.Len()))
		Expect(rep.Sightings.Created).To(Equal(sim.Len()))
		Expect(rep.Positions.Recorded).To(Equal(sim.Len()))

		day := sighting.Day(snap.Time, time.UTC)
		rows, err := sighting.ForDate(ctx, db, day)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(sim.Len()))
		for _, row := range rows {
			Expect(row.ICAOHex).To(HaveLen(6))
			Expect(row.Airline).To(HaveLen(3))
			Expect(row.MinAltitude).NotTo(BeNil())
		}
	})

	It("should update sightings instead of duplicating them", func() {
		Expect(cycle.Run(ctx).Status).To(Equal(metrics.StatusSuccess))

		rep := cycle.Run(ctx)
		Expect(rep.Status).To(Equal(metrics.StatusSuccess))
		Expect(rep.Sightings.Created).To(BeZero())
		Expect(rep.Sightings.Updated).To(Equal(sim.Len()))

		var count int64
		Expect(db.Model(&store.Sighting{}).Count(&count).Error).To(Succeed())
		Expect(count).To(BeEquivalentTo(sim.Len()))
	})

	It("should notify once per emergency and honour the cooldown", func() {
		expected := emergencies(snap)
		Expect(expected).To(BeNumerically(">", 0))

		rep := cycle.Run(ctx)
		Expect(rep.Alerts.Triggered).To(Equal(expected))
		Expect(rep.Alerts.Delivered).To(Equal(expected))
		Expect(pushCount.Load()).To(BeEquivalentTo(expected))

		rep = cycle.Run(ctx)
		Expect(rep.Alerts.Triggered).To(BeZero())
		Expect(rep.Alerts.Suppressed).To(Equal(expected))
		Expect(pushCount.Load()).To(BeEquivalentTo(expected))

		events, err := alert.Recent(ctx, db, 100)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(expected))
		for _, ev := range events {
			Expect(ev.Delivered).To(BeTrue())
		}
	})

	It("should publish triggered alerts to the event stream", func() {
		expected := emergencies(snap)
		Expect(cycle.Run(ctx).Alerts.Triggered).To(Equal(expected))

		consumeCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			mu       sync.Mutex
			received []alert.Event
		)
		done := make(chan error, 1)
		go func() {
			done <- alert.ConsumeEvents(consumeCtx, consumer, testLogger, func(ev alert.Event) error {
				mu.Lock()
				defer mu.Unlock()
				received = append(received, ev)
				return nil
			})
		}()

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(received)
		}, 10*time.Second, 100*time.Millisecond).Should(Equal(expected))

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))

		mu.Lock()
		defer mu.Unlock()
		for _, ev := range received {
			Expect(ev.RuleName).To(Equal("Emergency"))
			Expect(ev.Kind).To(Equal("squawk"))
			Expect(ev.Squawk).To(Equal(simulator.EmergencySquawk))
			Expect(ev.Delivered).To(BeTrue())
		}
	})

	It("should prune positions past the retention window", func() {
		Expect(cycle.Run(ctx).Status).To(Equal(metrics.StatusSuccess))

		stale := store.PositionSample{
			Callsign:  "OLD1",
			Latitude:  50,
			Longitude: 8,
			Timestamp: time.Now().UTC().Add(-3 * time.Hour),
		}
		Expect(db.Create(&stale).Error).To(Succeed())

		rep := cycle.Run(ctx)
		Expect(rep.Pruned).To(BeEquivalentTo(1))

		var count int64
		Expect(db.Model(&store.PositionSample{}).Where("callsign = ?", "OLD1").Count(&count).Error).To(Succeed())
		Expect(count).To(BeZero())
	})

	It("should serve the day's sightings from PostgreSQL", func() {
		Expect(cycle.Run(ctx).Status).To(Equal(metrics.StatusSuccess))

		api, err := report.NewAPI(&report.Config{Logger: testLogger, DB: db})
		Expect(err).NotTo(HaveOccurred())
		srv := httptest.NewServer(api.Router())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/sightings?date=" + sighting.Day(snap.Time, time.UTC))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var body struct {
			Date  string `json:"date"`
			Count int    `json:"count"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		Expect(body.Count).To(Equal(sim.Len()))
	})

	It("should store non-ICAO addresses alongside regular aircraft", func() {
		doc := []byte(`{"now": 1773482400, "aircraft": [
			{"hex": "~a1b2c3", "flight": "TISB01  ", "squawk": "7700", "alt_baro": 2500, "lat": 50.05, "lon": 8.57},
			{"hex": "3c6444", "flight": "DLH400  ", "squawk": "1000", "alt_baro": 35000, "lat": 50.1, "lon": 8.6}
		]}`)
		tisb, err := feed.Decode(doc, time.Now())
		Expect(err).NotTo(HaveOccurred())

		tisbCycle, err := collector.NewCycle(&collector.CycleConfig{
			Logger:    testLogger,
			DB:        db,
			Source:    staticSource{snap: tisb},
			Sightings: sightings,
			Positions: positions,
			Alerts:    engine,
		})
		Expect(err).NotTo(HaveOccurred())

		rep := tisbCycle.Run(ctx)
		Expect(rep.Err()).NotTo(HaveOccurred())
		Expect(rep.Status).To(Equal(metrics.StatusSuccess))
		Expect(rep.Sightings.Created).To(Equal(2))
		Expect(rep.Positions.Recorded).To(Equal(2))
		Expect(rep.Alerts.Delivered).To(Equal(1))

		var row store.Sighting
		Expect(db.Where("callsign = ?", "TISB01").First(&row).Error).To(Succeed())
		Expect(row.ICAOHex).To(Equal("~a1b2c3"))

		var samples int64
		Expect(db.Model(&store.PositionSample{}).Where("icao_hex = ?", "~a1b2c3").Count(&samples).Error).To(Succeed())
		Expect(samples).To(BeEquivalentTo(1))

		events, err := alert.Recent(ctx, db, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].ICAOHex).To(Equal("~a1b2c3"))
	})
})

// staticSource returns the same snapshot on every fetch.
type staticSource struct{ snap adsb.Snapshot }

func (s staticSource) Fetch(context.Context) (adsb.Snapshot, error) { return s.snap, nil }
