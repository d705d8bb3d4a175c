// Package metrics exposes Prometheus instrumentation for feedings, the
// ledger and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snackloader/internal/model"
)

// Metrics holds the application collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	feedings       *prometheus.CounterVec
	dispensed      *prometheus.CounterVec
	feedFailures   *prometheus.CounterVec
	schedulerFires *prometheus.CounterVec
	ledgerWrites   *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		feedings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeder_feedings_total",
			Help: "Feeding evaluations by pet, source and outcome.",
		}, []string{"pet", "source", "outcome"}),
		dispensed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeder_dispensed_grams_total",
			Help: "Grams commanded to the dispensers after weather adaptation.",
		}, []string{"pet"}),
		feedFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeder_feeding_failures_total",
			Help: "Feedings that failed on a device command or ledger write.",
		}, []string{"pet", "source"}),
		schedulerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeder_schedule_fires_total",
			Help: "Schedule slots fired by the matcher.",
		}, []string{"pet"}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeder_ledger_writes_total",
			Help: "Daily intake ledger writes by operation and result.",
		}, []string{"op", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeder_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feeder_http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.feedings,
		m.dispensed,
		m.feedFailures,
		m.schedulerFires,
		m.ledgerWrites,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FeedingEvaluated counts a completed evaluation.
func (m *Metrics) FeedingEvaluated(o model.FeedingOutcome) {
	if m == nil {
		return
	}
	m.feedings.WithLabelValues(string(o.Pet), string(o.Source), string(o.Kind)).Inc()
	if o.Kind == model.OutcomeFed {
		m.dispensed.WithLabelValues(string(o.Pet)).Add(float64(o.AmountGrams))
	}
}

// FeedingFailed counts a feeding that could not be completed.
func (m *Metrics) FeedingFailed(pet model.Pet, source model.Source) {
	if m == nil {
		return
	}
	m.feedFailures.WithLabelValues(string(pet), string(source)).Inc()
}

// ScheduleFired counts a schedule slot firing.
func (m *Metrics) ScheduleFired(pet model.Pet) {
	if m == nil {
		return
	}
	m.schedulerFires.WithLabelValues(string(pet)).Inc()
}

// LedgerWrite counts a ledger write attempt.
func (m *Metrics) LedgerWrite(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ledgerWrites.WithLabelValues(op, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency for the route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
