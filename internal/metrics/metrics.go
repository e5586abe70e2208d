// Package metrics exposes Prometheus counters for quota, generation and identity traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the subset of metrics the services and middleware report into
type Recorder interface {
	RecordQuotaCheck(kind string, allowed bool)
	RecordQuizLookup(state string)
	RecordGeneration(outcome string, duration time.Duration)
	RecordIdentityResolution(outcome string)
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// Collector records metrics into a Prometheus registry
type Collector struct {
	quotaChecks      *prometheus.CounterVec
	quizLookups      *prometheus.CounterVec
	generations      *prometheus.CounterVec
	generationTime   prometheus.Histogram
	identityResolves *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// NewCollector builds a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		quotaChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "immersive_quota_checks_total",
			Help: "Quota ledger checks by operation kind and result",
		}, []string{"kind", "result"}),
		quizLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "immersive_quiz_lookups_total",
			Help: "Quiz existence checks by resulting state",
		}, []string{"state"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "immersive_generations_total",
			Help: "Quiz generation attempts by outcome",
		}, []string{"outcome"}),
		generationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "immersive_generation_duration_seconds",
			Help:    "Latency of quiz generation from model call to persisted quiz",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		identityResolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "immersive_identity_resolutions_total",
			Help: "Bearer token resolutions by outcome",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "immersive_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "immersive_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.quotaChecks,
		c.quizLookups,
		c.generations,
		c.generationTime,
		c.identityResolves,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordQuotaCheck counts an allowed or rejected quota check
func (c *Collector) RecordQuotaCheck(kind string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "exceeded"
	}
	c.quotaChecks.WithLabelValues(kind, result).Inc()
}

// RecordQuizLookup counts an existence check outcome
func (c *Collector) RecordQuizLookup(state string) {
	c.quizLookups.WithLabelValues(state).Inc()
}

// RecordGeneration counts a generation and observes its latency
func (c *Collector) RecordGeneration(outcome string, duration time.Duration) {
	c.generations.WithLabelValues(outcome).Inc()
	c.generationTime.Observe(duration.Seconds())
}

// RecordIdentityResolution counts a bearer resolution outcome
func (c *Collector) RecordIdentityResolution(outcome string) {
	c.identityResolves.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest counts a served request
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything
type Nop struct{}

func (Nop) RecordQuotaCheck(string, bool)                        {}
func (Nop) RecordQuizLookup(string)                              {}
func (Nop) RecordGeneration(string, time.Duration)               {}
func (Nop) RecordIdentityResolution(string)                      {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
