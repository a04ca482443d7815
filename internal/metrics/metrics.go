package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	alertsCreated  prometheus.Counter
	alertsResolved *prometheus.CounterVec
	jobsProcessed  *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		alertsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "sos_alerts_created_total",
			Help: "Alerts created.",
		}),
		alertsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_alerts_resolved_total",
			Help: "Alerts resolved, by resolution reason.",
		}, []string{"reason"}),
		jobsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_notification_jobs_total",
			Help: "Notification jobs processed, by kind and result.",
		}, []string{"kind", "result"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_notification_deliveries_total",
			Help: "Per-recipient deliveries, by channel and status.",
		}, []string{"channel", "status"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sos_queue_jobs",
			Help: "Jobs in the notification queue, by state.",
		}, []string{"state"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) AlertCreated() {
	if m == nil {
		return
	}
	m.alertsCreated.Inc()
}

func (m *Metrics) AlertResolved(reason string) {
	if m == nil {
		return
	}
	m.alertsResolved.WithLabelValues(reason).Inc()
}

func (m *Metrics) JobProcessed(kind, result string) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Delivery(channel, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) QueueDepth(state string, n int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(state).Set(float64(n))
}

func (m *Metrics) HTTPRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
