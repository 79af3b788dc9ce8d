package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transition and claim outcome labels.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeConflict = "conflict"
	OutcomeLinked   = "linked"
	OutcomeRejected = "rejected"
)

// MetricsService encapsulates Prometheus instrumentation for the engine.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	claimsTotal      *prometheus.CounterVec
	sweepDeleted     prometheus.Counter
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grievance_transitions_total",
		Help: "Grievance transition attempts by outcome",
	}, []string{"outcome"})

	claimsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attachment_claims_total",
		Help: "Attachment claim attempts by outcome",
	}, []string{"outcome"})

	sweepDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attachment_sweep_deleted_total",
		Help: "Unclaimed attachments removed by the retention sweep",
	})

	registry.MustRegister(requestDuration, requestTotal, transitionsTotal, claimsTotal, sweepDeleted)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		transitionsTotal: transitionsTotal,
		claimsTotal:      claimsTotal,
		sweepDeleted:     sweepDeleted,
	}
}

// Handler exposes the scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records a completed HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "path": path, "status": fmt.Sprintf("%d", status)}
	s.requestDuration.With(labels).Observe(duration.Seconds())
	s.requestTotal.With(labels).Inc()
}

// RecordTransition counts one transition attempt.
func (s *MetricsService) RecordTransition(outcome string) {
	s.transitionsTotal.WithLabelValues(outcome).Inc()
}

// RecordClaim counts one claim attempt.
func (s *MetricsService) RecordClaim(outcome string) {
	s.claimsTotal.WithLabelValues(outcome).Inc()
}

// RecordSweep counts attachments removed by a sweep pass.
func (s *MetricsService) RecordSweep(deleted int) {
	s.sweepDeleted.Add(float64(deleted))
}
