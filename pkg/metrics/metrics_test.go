package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"adsbstats.dev/collector/pkg/metrics"
)

var _ = Describe("Metrics", func() {
	var reg *prometheus.Registry

	BeforeEach(func() {
		reg = prometheus.NewRegistry()
	})

	Describe("NewCollectorMetricsWith", func() {
		It("should register every collector metric", func() {
			m := metrics.NewCollectorMetricsWith(reg, "test")
			m.CyclesTotal.WithLabelValues(metrics.StatusSuccess).Inc()
			m.SightingsTotal.WithLabelValues("created").Add(3)

			Expect(testutil.ToFloat64(m.CyclesTotal.WithLabelValues(metrics.StatusSuccess))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.SightingsTotal.WithLabelValues("created"))).To(Equal(3.0))
			Expect(testutil.CollectAndCount(reg)).To(BeNumerically(">=", 2))
		})

		It("should panic when registered twice on the same registry", func() {
			metrics.NewCollectorMetricsWith(reg, "test")
			Expect(func() { metrics.NewCollectorMetricsWith(reg, "test") }).To(Panic())
		})
	})

	Describe("NewMQMetricsWith", func() {
		It("should track pushes per queue", func() {
			m := metrics.NewMQMetricsWith(reg, "test")
			m.MessagesPushed.WithLabelValues("alert-events").Inc()
			m.ConnectionStatus.Set(1)

			Expect(testutil.ToFloat64(m.MessagesPushed.WithLabelValues("alert-events"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.ConnectionStatus)).To(Equal(1.0))
		})
	})

	Describe("HandlerFor", func() {
		It("should expose registered metrics over HTTP", func() {
			m := metrics.NewCollectorMetricsWith(reg, "test")
			m.PositionsRecorded.Add(5)

			srv := httptest.NewServer(metrics.HandlerFor(reg))
			defer srv.Close()

			resp, err := http.Get(srv.URL)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("test_positions_recorded_total 5"))
		})
	})
})
