package report_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	json "github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/report"
	"adsbstats.dev/collector/internal/route"
	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/internal/store/storetest"
)

var _ = Describe("API", func() {
	var (
		db       *gorm.DB
		resolver *fakeResolver
		handler  http.Handler
	)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	get := func(path string) (*httptest.ResponseRecorder, map[string]any) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		var body map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return rec, body
	}

	BeforeEach(func() {
		var err error
		db, err = storetest.Open(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = store.CloseDB(db, nil) })

		resolver = &fakeResolver{routes: map[string]*route.Route{
			"DLH400": {
				Callsign:    "DLH400",
				Origin:      store.Airport{ICAO: "EDDF", IATA: "FRA", Name: "Frankfurt am Main Airport"},
				Destination: store.Airport{ICAO: "KJFK", IATA: "JFK", Name: "John F Kennedy International Airport"},
			},
		}}

		api, err := report.NewAPI(&report.Config{
			Logger:   storetest.DiscardLogger(),
			DB:       db,
			Resolver: resolver,
			Now:      func() time.Time { return now },
		})
		Expect(err).NotTo(HaveOccurred())

		mux := http.NewServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", api.Router()))
		handler = mux
	})

	Describe("NewAPI", func() {
		It("should require a database", func() {
			_, err := report.NewAPI(&report.Config{Logger: storetest.DiscardLogger()})
			Expect(err).To(MatchError(ContainSubstring("database cannot be nil")))
		})
	})

	Describe("GET /api/sightings", func() {
		BeforeEach(func() {
			rows := []store.Sighting{
				{Callsign: "DLH400", Date: "2026-03-14", ICAOHex: "3c6444", Airline: "DLH", AircraftType: "B748",
					FirstSeen: now.Add(-time.Hour), LastSeen: now, MinAltitude: ptr(3000), MaxAltitude: ptr(35000)},
				{Callsign: "BAW117", Date: "2026-03-13", FirstSeen: now.Add(-25 * time.Hour), LastSeen: now.Add(-24 * time.Hour)},
			}
			Expect(db.Create(&rows).Error).To(Succeed())
		})

		It("should default to today", func() {
			rec, body := get("/api/sightings")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body["date"]).To(Equal("2026-03-14"))
			Expect(body["count"]).To(BeEquivalentTo(1))
			sightings := body["sightings"].([]any)
			first := sightings[0].(map[string]any)
			Expect(first["callsign"]).To(Equal("DLH400"))
			Expect(first["max_altitude"]).To(BeEquivalentTo(35000))
			Expect(first["squawk"]).To(BeNil())
		})

		It("should select the requested date", func() {
			_, body := get("/api/sightings?date=2026-03-13")
			Expect(body["count"]).To(BeEquivalentTo(1))
		})

		It("should reject a malformed date", func() {
			rec, body := get("/api/sightings?date=14.03.2026")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).NotTo(BeEmpty())
		})
	})

	Describe("GET /api/tracks/{callsign}", func() {
		BeforeEach(func() {
			samples := []store.PositionSample{
				{Callsign: "DLH400", Timestamp: now.Add(-3 * time.Hour), Latitude: 49.0, Longitude: 8.0},
				{Callsign: "DLH400", Timestamp: now.Add(-time.Hour), Latitude: 50.0, Longitude: 8.5},
				{Callsign: "DLH400", Timestamp: now.Add(-30 * time.Minute), Latitude: 50.5, Longitude: 9.0},
				{Callsign: "BAW117", Timestamp: now.Add(-time.Minute), Latitude: 51.0, Longitude: 0.0},
			}
			Expect(db.Create(&samples).Error).To(Succeed())
		})

		It("should return the recent track in order", func() {
			rec, body := get("/api/tracks/dlh400")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body["callsign"]).To(Equal("DLH400"))
			points := body["points"].([]any)
			Expect(points).To(HaveLen(2))
			Expect(points[0].(map[string]any)["lat"]).To(BeEquivalentTo(50.0))
			Expect(points[1].(map[string]any)["lat"]).To(BeEquivalentTo(50.5))
		})

		It("should honour a custom window", func() {
			_, body := get("/api/tracks/DLH400?minutes=240")
			Expect(body["points"]).To(HaveLen(3))
		})

		It("should reject a bad window", func() {
			rec, _ := get("/api/tracks/DLH400?minutes=-1")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/routes/{callsign}", func() {
		It("should return a resolved route", func() {
			rec, body := get("/api/routes/DLH400")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body["origin"].(map[string]any)["icao"]).To(Equal("EDDF"))
			Expect(body["destination"].(map[string]any)["iata"]).To(Equal("JFK"))
		})

		It("should answer 404 for unknown routes", func() {
			rec, _ := get("/api/routes/XYZ123")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should answer 502 when the route source is down", func() {
			resolver.err = fmt.Errorf("lookup: %w", adsb.ErrSourceUnavailable)

			rec, _ := get("/api/routes/XYZ123")
			Expect(rec.Code).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("GET /api/alerts", func() {
		BeforeEach(func() {
			for i := range 3 {
				ev := store.AlertEvent{RuleID: 1, ICAOHex: "3c6444", Squawk: "7700", TriggeredAt: now.Add(time.Duration(i) * time.Hour)}
				Expect(db.Create(&ev).Error).To(Succeed())
			}
		})

		It("should list newest first with a limit", func() {
			rec, body := get("/api/alerts?limit=2")

			Expect(rec.Code).To(Equal(http.StatusOK))
			alerts := body["alerts"].([]any)
			Expect(alerts).To(HaveLen(2))
			Expect(alerts[0].(map[string]any)["triggered_at"]).To(Equal(now.Add(2 * time.Hour).Format(time.RFC3339)))
		})

		It("should reject a bad limit", func() {
			rec, _ := get("/api/alerts?limit=abc")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	It("should answer 503 for routes without a resolver", func() {
		api, err := report.NewAPI(&report.Config{Logger: storetest.DiscardLogger(), DB: db})
		Expect(err).NotTo(HaveOccurred())

		rec := httptest.NewRecorder()
		api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/routes/DLH400", nil).WithContext(context.Background()))
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})
})
