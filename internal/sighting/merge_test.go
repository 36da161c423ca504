package sighting_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/sighting"
	"adsbstats.dev/collector/internal/store"
)

var _ = Describe("Merge", func() {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	obsAt := func(offset time.Duration, alt *int) adsb.Observation {
		return adsb.Observation{
			Time:         base.Add(offset),
			Altitude:     alt,
			Callsign:     "UAL960",
			ICAOHex:      "a1b2c3",
			Airline:      "UAL",
			AircraftType: "B77W",
		}
	}

	It("should create a row from the first observation", func() {
		obs := obsAt(0, ptr(12000))
		obs.DistanceNM = ptr(42.5)
		obs.Squawk = "2341"

		row, outcome := sighting.Merge(nil, obs, "2026-03-14")
		Expect(outcome).To(Equal(sighting.OutcomeCreated))
		Expect(row.Date).To(Equal("2026-03-14"))
		Expect(row.FirstSeen).To(Equal(base))
		Expect(row.LastSeen).To(Equal(base))
		Expect(*row.MinAltitude).To(Equal(12000))
		Expect(*row.MaxAltitude).To(Equal(12000))
		Expect(*row.MaxDistanceNM).To(Equal(42.5))
		Expect(*row.Squawk).To(Equal("2341"))
	})

	It("should track true bounds over the UAL960 climb", func() {
		var row *store.Sighting
		for i, alt := range []int{12000, 8000, 15000} {
			next, _ := sighting.Merge(row, obsAt(time.Duration(i)*time.Minute, ptr(alt)), "2026-03-14")
			row = &next
		}

		Expect(*row.MinAltitude).To(Equal(8000))
		Expect(*row.MaxAltitude).To(Equal(15000))
		Expect(row.FirstSeen).To(Equal(base))
		Expect(row.LastSeen).To(Equal(base.Add(2 * time.Minute)))
	})

	It("should be idempotent for a duplicate observation", func() {
		first, _ := sighting.Merge(nil, obsAt(0, ptr(12000)), "2026-03-14")
		again, outcome := sighting.Merge(&first, obsAt(0, ptr(12000)), "2026-03-14")

		Expect(outcome).To(Equal(sighting.OutcomeUpdated))
		Expect(again).To(Equal(first))
	})

	It("should ignore observations older than last-seen", func() {
		row, _ := sighting.Merge(nil, obsAt(5*time.Minute, ptr(12000)), "2026-03-14")
		stale := obsAt(0, ptr(3000))
		stale.Squawk = "7700"

		merged, outcome := sighting.Merge(&row, stale, "2026-03-14")
		Expect(outcome).To(Equal(sighting.OutcomeIgnored))
		Expect(merged).To(Equal(row))
	})

	It("should keep bounds when altitude is unknown", func() {
		row, _ := sighting.Merge(nil, obsAt(0, nil), "2026-03-14")
		Expect(row.MinAltitude).To(BeNil())
		Expect(row.MaxAltitude).To(BeNil())

		row, _ = sighting.Merge(&row, obsAt(time.Minute, ptr(9000)), "2026-03-14")
		row, _ = sighting.Merge(&row, obsAt(2*time.Minute, nil), "2026-03-14")
		Expect(*row.MinAltitude).To(Equal(9000))
		Expect(*row.MaxAltitude).To(Equal(9000))
	})

	It("should only widen the maximum distance", func() {
		near := obsAt(0, nil)
		near.DistanceNM = ptr(80.0)
		far := obsAt(time.Minute, nil)
		far.DistanceNM = ptr(120.0)
		closer := obsAt(2*time.Minute, nil)
		closer.DistanceNM = ptr(10.0)

		row, _ := sighting.Merge(nil, near, "d")
		row, _ = sighting.Merge(&row, far, "d")
		row, _ = sighting.Merge(&row, closer, "d")
		Expect(*row.MaxDistanceNM).To(Equal(120.0))
	})

	It("should keep the last known squawk", func() {
		first := obsAt(0, nil)
		first.Squawk = "1000"
		row, _ := sighting.Merge(nil, first, "d")

		row, _ = sighting.Merge(&row, obsAt(time.Minute, nil), "d")
		Expect(*row.Squawk).To(Equal("1000"))

		emergency := obsAt(2*time.Minute, nil)
		emergency.Squawk = "7700"
		row, _ = sighting.Merge(&row, emergency, "d")
		Expect(*row.Squawk).To(Equal("7700"))
	})

	It("should fill identity fields that were unknown", func() {
		bare := adsb.Observation{Time: base, Callsign: "N123AB"}
		row, _ := sighting.Merge(nil, bare, "d")
		Expect(row.AircraftType).To(BeEmpty())

		later := adsb.Observation{Time: base.Add(time.Minute), Callsign: "N123AB", ICAOHex: "a0b1c2", AircraftType: "C172"}
		row, _ = sighting.Merge(&row, later, "d")
		Expect(row.ICAOHex).To(Equal("a0b1c2"))
		Expect(row.AircraftType).To(Equal("C172"))

		other := adsb.Observation{Time: base.Add(2 * time.Minute), Callsign: "N123AB", AircraftType: "PA28"}
		row, _ = sighting.Merge(&row, other, "d")
		Expect(row.AircraftType).To(Equal("C172"))
	})
})

var _ = Describe("Day", func() {
	It("should use the configured zone", func() {
		berlin, err := time.LoadLocation("Europe/Berlin")
		Expect(err).NotTo(HaveOccurred())

		late := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
		Expect(sighting.Day(late, time.UTC)).To(Equal("2026-03-14"))
		Expect(sighting.Day(late, berlin)).To(Equal("2026-03-15"))
		Expect(sighting.Day(late, nil)).To(Equal("2026-03-14"))
	})
})
