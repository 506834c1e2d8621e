package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func value(c prometheus.Metric) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return -1
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating a manager with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("prefix"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.customLabels, ShouldResemble, map[string]string{"env": "test"})
			})

			Convey("Then metric names carry the namespace, subsystem and prefix", func() {
				manager.retries.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_prefix_distance_retries_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When options are given zero values", func() {
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithCustomLabels(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "pitchside")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
				So(manager.customLabels, ShouldNotBeNil)
			})
		})
	})
}

func TestDistanceMetrics(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When resolutions and fallbacks are recorded", func() {
			remote := value(globalManager.resolutions.WithLabelValues("REMOTE"))
			transient := value(globalManager.fallbacks.WithLabelValues("transient"))
			bulk := value(globalManager.bulkFailures)

			RecordResolution("REMOTE")
			RecordFallback("transient")
			RecordBulkFailure()
			RecordResolveLatency(42)

			Convey("Then the counters advance", func() {
				So(value(globalManager.resolutions.WithLabelValues("REMOTE")), ShouldEqual, remote+1)
				So(value(globalManager.fallbacks.WithLabelValues("transient")), ShouldEqual, transient+1)
				So(value(globalManager.bulkFailures), ShouldEqual, bulk+1)
			})
		})
	})
}

func TestCacheMetrics(t *testing.T) {
	Convey("Given cache metrics", t, func() {
		hits := value(globalManager.cacheLookups.WithLabelValues("hit"))
		misses := value(globalManager.cacheLookups.WithLabelValues("miss"))
		stale := value(globalManager.refreshes.WithLabelValues("stale"))

		RecordCacheHit()
		RecordCacheMiss()
		RecordCacheMiss()
		RecordRefresh("stale")
		RecordMissingDistances(3)
		UpdateActiveSessions(7)

		So(value(globalManager.cacheLookups.WithLabelValues("hit")), ShouldEqual, hits+1)
		So(value(globalManager.cacheLookups.WithLabelValues("miss")), ShouldEqual, misses+2)
		So(value(globalManager.refreshes.WithLabelValues("stale")), ShouldEqual, stale+1)
		So(value(globalManager.activeSessions), ShouldEqual, 7)
	})
}

func TestOperationalMetrics(t *testing.T) {
	Convey("Given operational metrics", t, func() {
		So(func() {
			UpdateQueueSize(10)
			UpdateQueueCapacity(100)
			UpdateQueueUtilization(0.1)
			RecordQueueEnqueue()
			RecordQueueDequeue()
			RecordQueueEnqueueError()
			UpdateWorkerActiveCount(4)
			RecordWorkerProcessingLatency(12)
			RecordWorkerError()
			RecordHTTPRequest("/events/nearby", "GET", "200")
			RecordHTTPRequestDuration("/events/nearby", "GET", "200", 3)
			RecordErrorByComponent("proximity", "stale")
			RecordErrorByType("transient", "warning")
			RecordErrorByEndpoint("/location", "POST", "validation_error")
			RecordRankLatency(0.2)
			RecordEventsRejected(1)
			RecordLocationSample("http", "accepted")
			RecordSnapshot("save", "ok")
			UpdateSystemMemoryUsage(1 << 20)
			UpdateSystemGoroutineCount(12)
			RecordSystemGCPauseTime(0.5)
		}, ShouldNotPanic)

		Convey("Then the custom registry exposes them", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "pitchside_proximity_queue_size")
			So(strings.Join(names, ","), ShouldContainSubstring, "pitchside_proximity_rank_latency_milliseconds")
		})
	})
}
