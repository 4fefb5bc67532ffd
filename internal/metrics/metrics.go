// Package metrics exposes SignDrop's Prometheus series.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signdrop"

// Upload outcomes.
const (
	UploadNew       = "new"
	UploadDuplicate = "duplicate"
	UploadRaceLost  = "race_lost"
	UploadFailed    = "failed"
)

// Metrics manages the series SignDrop records. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	uploadsTotal       *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	purgedTotal        prometheus.Counter
	httpSeconds        *prometheus.HistogramVec
}

// New creates a Metrics on a fresh registry with process and Go collectors.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	return NewWithRegistry(reg), nil
}

// NewWithRegistry registers the SignDrop series on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	return &Metrics{
		registry: reg,
		uploadsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "uploads_total",
			Help:      "Uploads by outcome: new, duplicate, race_lost or failed.",
		}, []string{"outcome"}),
		transitionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "transitions_total",
			Help:      "Signature request transitions by target status and outcome.",
		}, []string{"status", "outcome"}),
		verificationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "checks_total",
			Help:      "Verification checks by result.",
		}, []string{"result"}),
		notificationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "total",
			Help:      "Notifications by event and outcome: queued, dropped or failed.",
		}, []string{"event", "outcome"}),
		purgedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "purged_total",
			Help:      "Soft-deleted documents whose bytes were reclaimed.",
		}),
		httpSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpload counts one upload.
func (m *Metrics) ObserveUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTransition counts one sign or reject attempt.
func (m *Metrics) ObserveTransition(status, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(status, outcome).Inc()
}

// ObserveVerification counts one verification.
func (m *Metrics) ObserveVerification(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.verificationsTotal.WithLabelValues(result).Inc()
}

// ObserveNotification counts one notification hand-off.
func (m *Metrics) ObserveNotification(event, outcome string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(event, outcome).Inc()
}

// ObservePurged counts reclaimed documents.
func (m *Metrics) ObservePurged(n int) {
	if m == nil {
		return
	}
	m.purgedTotal.Add(float64(n))
}

// ObserveHTTP records the latency of one request.
func (m *Metrics) ObserveHTTP(method, route, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpSeconds.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}
