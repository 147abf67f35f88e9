// Package metrics exposes Prometheus instrumentation for portal-engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors registered against one registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	RowsValidated      *prometheus.CounterVec
	RowsRejected       *prometheus.CounterVec
	ImportsCommitted   *prometheus.CounterVec
	InvitationsSent    prometheus.Counter
	InvitationsFailed  prometheus.Counter
	CompensationsRun   prometheus.Counter
	WebhookEvents      *prometheus.CounterVec
	WebhookFailures    prometheus.Counter
	ArchiveUploadFails prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		RowsValidated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_import_rows_validated_total",
			Help: "Import rows that passed validation, by import kind.",
		}, []string{"kind"}),
		RowsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_import_rows_rejected_total",
			Help: "Import rows that failed validation, by import kind.",
		}, []string{"kind"}),
		ImportsCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_imports_committed_total",
			Help: "Commit attempts by import kind and outcome.",
		}, []string{"kind", "outcome"}),
		InvitationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "portal_invitations_sent_total",
			Help: "Provider invitations created successfully.",
		}),
		InvitationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "portal_invitations_failed_total",
			Help: "Provider invitation attempts that failed per-row.",
		}),
		CompensationsRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "portal_import_compensations_total",
			Help: "Saga compensation passes triggered by critical commit errors.",
		}),
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_webhook_events_total",
			Help: "Identity provider webhook events by type.",
		}, []string{"type"}),
		WebhookFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "portal_webhook_failures_total",
			Help: "Webhook events that failed local processing (still acked with 200).",
		}),
		ArchiveUploadFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "portal_archive_upload_failures_total",
			Help: "Best-effort import file archive uploads that failed.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler wraps a handler with request count and latency collection.
// route should be the registered pattern, not the concrete URL, to bound
// label cardinality.
func (m *Metrics) InstrumentHandler(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
