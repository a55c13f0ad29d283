package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RowsIngested("bank", "saved", 3)
	m.RowsIngested("bank", "saved", 2)
	m.RowsIngested("bank", "invalid", 0)
	m.LinksWritten("bank", "saved", 4)
	m.ChunkFailed("records")
	m.AutoMatchRun(2)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.rowsIngested.WithLabelValues("bank", "saved")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.linksWritten.WithLabelValues("bank", "saved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunkFailures.WithLabelValues("records")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.autoMatchRuns))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.autoMatchLinks))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RowsIngested("bank", "saved", 1)
		m.ChunkRetried("links")
		m.OrphansSkipped(2)
		m.ObserveLoad(0)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/invoices/{hash}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/invoices/abc", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `reconcile_http_requests_total{code="404",route="/api/invoices/{hash}"} 1`), body)
}
