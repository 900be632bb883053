// Package metrics collects and exposes Prometheus metrics for the
// timeline pipeline. This is the operational scrape surface; the JSON
// counters at /system/metrics are computed from the store directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the metrics surface used by services and the worker.
type Collector interface {
	RecordFanoutSuccess(followers int)
	RecordFanoutFailure()
	RecordFanoutLatency(duration time.Duration)
	RecordCacheHit()
	RecordCacheMiss()
	RecordPublishSuccess()
	RecordPublishFailure()
	RecordDeadLetter()
	RecordPoisonMessage()
}

// PrometheusCollector implements Collector on a Prometheus registry.
type PrometheusCollector struct {
	fanoutSuccess   prometheus.Counter
	fanoutFail      prometheus.Counter
	fanoutFollowers prometheus.Counter
	fanoutLatency   prometheus.Histogram
	cacheHit        prometheus.Counter
	cacheMiss       prometheus.Counter
	publishSuccess  prometheus.Counter
	publishFail     prometheus.Counter
	deadLetters     prometheus.Counter
	poisonMessages  prometheus.Counter
}

// NewCollector creates a PrometheusCollector and registers its metrics
// on reg.
func NewCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		fanoutSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_fanout_success_total",
			Help: "Total post_created events fanned out successfully",
		}),
		fanoutFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_fanout_fail_total",
			Help: "Total post_created events whose fan-out failed and was nacked",
		}),
		fanoutFollowers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_fanout_followers_total",
			Help: "Total timeline entries written by fan-out",
		}),
		fanoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_fanout_latency_seconds",
			Help:    "Per-event fan-out latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_timeline_cache_hit_total",
			Help: "Timeline reads served from the cache",
		}),
		cacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_timeline_cache_miss_total",
			Help: "Timeline reads that fell back to the database",
		}),
		publishSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_event_publish_success_total",
			Help: "post_created events published to the bus",
		}),
		publishFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_event_publish_fail_total",
			Help: "post_created events that could not be published",
		}),
		deadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_event_dead_letter_total",
			Help: "Events moved to the dead-letter stream",
		}),
		poisonMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_event_poison_total",
			Help: "Malformed events acked without processing",
		}),
	}

	reg.MustRegister(
		c.fanoutSuccess,
		c.fanoutFail,
		c.fanoutFollowers,
		c.fanoutLatency,
		c.cacheHit,
		c.cacheMiss,
		c.publishSuccess,
		c.publishFail,
		c.deadLetters,
		c.poisonMessages,
	)

	return c
}

func (c *PrometheusCollector) RecordFanoutSuccess(followers int) {
	c.fanoutSuccess.Inc()
	c.fanoutFollowers.Add(float64(followers))
}
func (c *PrometheusCollector) RecordFanoutFailure() { c.fanoutFail.Inc() }
func (c *PrometheusCollector) RecordFanoutLatency(duration time.Duration) {
	c.fanoutLatency.Observe(duration.Seconds())
}
func (c *PrometheusCollector) RecordCacheHit()       { c.cacheHit.Inc() }
func (c *PrometheusCollector) RecordCacheMiss()      { c.cacheMiss.Inc() }
func (c *PrometheusCollector) RecordPublishSuccess() { c.publishSuccess.Inc() }
func (c *PrometheusCollector) RecordPublishFailure() { c.publishFail.Inc() }
func (c *PrometheusCollector) RecordDeadLetter()     { c.deadLetters.Inc() }
func (c *PrometheusCollector) RecordPoisonMessage()  { c.poisonMessages.Inc() }

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop is a Collector that records nothing, for tests and tools.
type Nop struct{}

func (Nop) RecordFanoutSuccess(int)           {}
func (Nop) RecordFanoutFailure()              {}
func (Nop) RecordFanoutLatency(time.Duration) {}
func (Nop) RecordCacheHit()                   {}
func (Nop) RecordCacheMiss()                  {}
func (Nop) RecordPublishSuccess()             {}
func (Nop) RecordPublishFailure()             {}
func (Nop) RecordDeadLetter()                 {}
func (Nop) RecordPoisonMessage()              {}

var (
	_ Collector = (*PrometheusCollector)(nil)
	_ Collector = Nop{}
)
