package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AlertCreated()
	m.AlertCreated()
	m.AlertResolved("false_alarm")
	m.JobProcessed("sos-alert", "completed")
	m.Delivery("email", "failed")
	m.QueueDepth("waiting", 7)
	m.HTTPRequest(http.MethodPost, "/v1/alerts", http.StatusConflict, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsResolved.WithLabelValues("false_alarm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsProcessed.WithLabelValues("sos-alert", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("email", "failed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("waiting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodPost, "/v1/alerts", "4xx")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.AlertCreated()
	m.AlertResolved("x")
	m.JobProcessed("x", "y")
	m.Delivery("x", "y")
	m.QueueDepth("x", 1)
	m.HTTPRequest("GET", "/", 200, time.Second)
}
