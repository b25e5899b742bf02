package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobOutcome("completed")
		m.ImportOutcome("created", 3)
		m.ImportBatch(true)
		m.SourceRequest("ok")
		m.SetQueueDepth("pending", 2)
	})
	assert.Nil(t, m.Registry())
}

func TestCountersAccumulate(t *testing.T) {
	m := New()
	m.JobOutcome("completed")
	m.JobOutcome("completed")
	m.ImportOutcome("duplicate", 4)
	m.ImportOutcome("created", 0)
	m.ImportBatch(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("completed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ImportRecords.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportBatches.WithLabelValues("needs_inspection")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.SetQueueDepth("pending", 7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `reviewranker_queue_depth{status="pending"} 7`))
}
