package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordsWithSanitizedLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveAPIRequest("PUT", "/orders/:id/autosave", "200", 15*time.Millisecond)
	m.RecordWrite("autosave", "success")
	m.RecordWrite("autosave", "success")
	m.RecordWrite("", "error")
	m.RecordRateLimited("autosave")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("PUT", "/orders/:id/autosave", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.writes.WithLabelValues("autosave", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("unknown", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("autosave")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAPIRequest("GET", "/health", "200", time.Millisecond)
		m.RecordWrite("create", "success")
		m.RecordRateLimited("transition")
		m.ObserveOrderTotal("s", 10)
	})
}
