package sighting_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/sighting"
	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/internal/store/storetest"
	"adsbstats.dev/collector/pkg/metrics"
)

var _ = Describe("Aggregator", func() {
	var (
		ctx context.Context
		db  *gorm.DB
		m   *metrics.CollectorMetrics
		agg *sighting.Aggregator
	)

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = storetest.Open(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = store.CloseDB(db, nil) })

		m = metrics.NewCollectorMetricsWith(prometheus.NewRegistry(), "test")
		agg, err = sighting.NewAggregator(&sighting.Config{
			Logger:   storetest.DiscardLogger(),
			DB:       db,
			Metrics:  m,
			Receiver: &adsb.Receiver{Latitude: 50.0, Longitude: 8.5},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	load := func(callsign, day string) store.Sighting {
		var s store.Sighting
		Expect(db.Where("callsign = ? AND date = ?", callsign, day).First(&s).Error).To(Succeed())
		return s
	}

	Describe("NewAggregator", func() {
		It("should validate its configuration", func() {
			_, err := sighting.NewAggregator(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))

			_, err = sighting.NewAggregator(&sighting.Config{DB: db})
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))

			_, err = sighting.NewAggregator(&sighting.Config{Logger: storetest.DiscardLogger()})
			Expect(err).To(MatchError(ContainSubstring("database cannot be nil")))
		})
	})

	Describe("Apply", func() {
		It("should persist the UAL960 bounds across observations", func() {
			for i, alt := range []int{12000, 8000, 15000} {
				_, err := agg.Apply(ctx, adsb.Observation{
					Time:     base.Add(time.Duration(i) * time.Minute),
					Callsign: "UAL960",
					Altitude: ptr(alt),
				})
				Expect(err).NotTo(HaveOccurred())
			}

			s := load("UAL960", "2026-03-14")
			Expect(*s.MinAltitude).To(Equal(8000))
			Expect(*s.MaxAltitude).To(Equal(15000))
			Expect(s.FirstSeen).To(BeTemporally("==", base))
			Expect(s.LastSeen).To(BeTemporally("==", base.Add(2*time.Minute)))
		})

		It("should keep one row per callsign and day", func() {
			obs := adsb.Observation{Time: base, Callsign: "dlh400 ", Altitude: ptr(35000)}

			outcome, err := agg.Apply(ctx, obs)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(sighting.OutcomeCreated))

			outcome, err = agg.Apply(ctx, obs)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(sighting.OutcomeUpdated))

			var count int64
			Expect(db.Model(&store.Sighting{}).Count(&count).Error).To(Succeed())
			Expect(count).To(Equal(int64(1)))
			Expect(load("DLH400", "2026-03-14").LastSeen).To(BeTemporally("==", base))
		})

		It("should start a new row on the next day", func() {
			_, err := agg.Apply(ctx, adsb.Observation{Time: base, Callsign: "DLH400"})
			Expect(err).NotTo(HaveOccurred())
			_, err = agg.Apply(ctx, adsb.Observation{Time: base.Add(24 * time.Hour), Callsign: "DLH400"})
			Expect(err).NotTo(HaveOccurred())

			var count int64
			Expect(db.Model(&store.Sighting{}).Where("callsign = ?", "DLH400").Count(&count).Error).To(Succeed())
			Expect(count).To(Equal(int64(2)))
		})

		It("should not move last-seen backwards", func() {
			_, err := agg.Apply(ctx, adsb.Observation{Time: base.Add(10 * time.Minute), Callsign: "BAW12", Altitude: ptr(30000)})
			Expect(err).NotTo(HaveOccurred())

			outcome, err := agg.Apply(ctx, adsb.Observation{Time: base, Callsign: "BAW12", Altitude: ptr(1000)})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(sighting.OutcomeIgnored))

			s := load("BAW12", "2026-03-14")
			Expect(s.LastSeen).To(BeTemporally("==", base.Add(10*time.Minute)))
			Expect(*s.MinAltitude).To(Equal(30000))
		})

		It("should reject observations without callsign", func() {
			_, err := agg.Apply(ctx, adsb.Observation{Time: base, ICAOHex: "3c6444", Callsign: "   "})
			Expect(err).To(MatchError(adsb.ErrMalformedRecord))
		})

		It("should wrap store failures", func() {
			Expect(store.CloseDB(db, nil)).To(Succeed())
			_, err := agg.Apply(ctx, adsb.Observation{Time: base, Callsign: "DLH400"})
			Expect(err).To(MatchError(adsb.ErrStoreWrite))
		})
	})

	Describe("ApplySnapshot", func() {
		It("should count outcomes and skip malformed aircraft", func() {
			snap := adsb.Snapshot{
				Time: base,
				Aircraft: []adsb.Aircraft{
					{ICAOHex: "3C6444", Callsign: "DLH400  ", Type: "b748", Altitude: ptr(35000), Latitude: ptr(51.0), Longitude: ptr(8.5)},
					{ICAOHex: "a1b2c3", Callsign: "UAL960", Altitude: ptr(12000)},
					{ICAOHex: "4ca7b1"},
				},
			}

			res, err := agg.ApplySnapshot(ctx, snap)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(sighting.Result{Created: 2, Skipped: 1}))

			dlh := load("DLH400", "2026-03-14")
			Expect(dlh.ICAOHex).To(Equal("3c6444"))
			Expect(dlh.Airline).To(Equal("DLH"))
			Expect(dlh.AircraftType).To(Equal("B748"))
			Expect(*dlh.MaxDistanceNM).To(BeNumerically("~", 60.04, 0.1))
			Expect(load("UAL960", "2026-03-14").MaxDistanceNM).To(BeNil())

			res, err = agg.ApplySnapshot(ctx, snap)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Updated).To(Equal(2))

			Expect(testutil.ToFloat64(m.SightingsTotal.WithLabelValues("created"))).To(Equal(2.0))
			Expect(testutil.ToFloat64(m.SightingsTotal.WithLabelValues("updated"))).To(Equal(2.0))
			Expect(testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("sightings"))).To(Equal(2.0))
		})
	})

	Describe("ForDate", func() {
		It("should list a day's sightings in first-seen order", func() {
			_, _ = agg.Apply(ctx, adsb.Observation{Time: base.Add(time.Minute), Callsign: "UAL960"})
			_, _ = agg.Apply(ctx, adsb.Observation{Time: base, Callsign: "DLH400"})
			_, _ = agg.Apply(ctx, adsb.Observation{Time: base.Add(24 * time.Hour), Callsign: "BAW12"})

			rows, err := sighting.ForDate(ctx, db, "2026-03-14")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].Callsign).To(Equal("DLH400"))
			Expect(rows[1].Callsign).To(Equal("UAL960"))
		})
	})
})
