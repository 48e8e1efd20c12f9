// Package metrics owns the prometheus collectors of the profile API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	projections     *prometheus.CounterVec
	saves           *prometheus.CounterVec
	replays         prometheus.Counter
	skippedRecords  prometheus.Counter
	accountLinks    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return NewWith(reg, reg)
}

func NewWith(r prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(r)
	return &Metrics{
		gatherer: g,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_api_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profile_api_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		projections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_api_projections_total",
			Help: "Profile projections by viewer role.",
		}, []string{"role"}),
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_api_profile_saves_total",
			Help: "Profile replace attempts by outcome.",
		}, []string{"outcome"}),
		replays: f.NewCounter(prometheus.CounterOpts{
			Name: "profile_api_idempotent_replays_total",
			Help: "Responses served from the idempotency store.",
		}),
		skippedRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "profile_api_directory_skipped_records_total",
			Help: "Stored profiles skipped by the member directory because they failed to decode.",
		}),
		accountLinks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_api_account_links_total",
			Help: "External account link attempts by service and outcome.",
		}, []string{"service", "outcome"}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) Projection(role string) {
	if m == nil {
		return
	}
	m.projections.WithLabelValues(role).Inc()
}

func (m *Metrics) Save(outcome string) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Replay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

func (m *Metrics) SkippedRecord() {
	if m == nil {
		return
	}
	m.skippedRecords.Inc()
}

func (m *Metrics) AccountLink(service, outcome string) {
	if m == nil {
		return
	}
	m.accountLinks.WithLabelValues(service, outcome).Inc()
}
