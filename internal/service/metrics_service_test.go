package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatheredValue sums every sample of a counter or gauge family.
func gatheredValue(t *testing.T, m *MetricsService, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

func TestMetricsServiceRecordsUploads(t *testing.T) {
	m := NewMetricsService()

	m.RecordUpload("completed", 3, 1)
	m.RecordUpload("failed", 0, 0)
	m.ObserveExtraction("ok", 2*time.Second)
	m.RecordExport("summary", "csv")
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/uploads", http.StatusOK, 10*time.Millisecond)

	assert.Equal(t, 2.0, gatheredValue(t, m, "marksheet_uploads_total"))
	assert.Equal(t, 3.0, gatheredValue(t, m, "marksheet_students_ingested_total"))
	assert.Equal(t, 1.0, gatheredValue(t, m, "marksheet_records_skipped_total"))
	assert.Equal(t, 1.0, gatheredValue(t, m, "marksheet_exports_total"))
	assert.Equal(t, 1.0, gatheredValue(t, m, "http_requests_total"))
}

func TestMetricsServiceCacheRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true)
	m.RecordCacheOperation(true)
	m.RecordCacheOperation(false)
	m.RecordCacheOperation(true)

	assert.Equal(t, 0.75, gatheredValue(t, m, "cache_hit_ratio"))
}

func TestMetricsServiceHandler(t *testing.T) {
	m := NewMetricsService()
	m.RecordUpload("completed", 1, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marksheet_uploads_total")

	var nilMetrics *MetricsService
	rec = httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	nilMetrics.RecordUpload("failed", 0, 0)
}
