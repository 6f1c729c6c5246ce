package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, m *HTTPMetrics, path string, header http.Header) {
	t.Helper()
	e := echo.New()
	e.Use(m.Middleware())
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/", ok)
	e.GET("/health/live", ok)
	e.GET("/ws", ok)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPMetrics_RecordsRequests(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	serve(t, m, "/", nil)
	serve(t, m, "/", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/", "200")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.InFlightGauge))
}

func TestHTTPMetrics_SkipsHealthAndUpgrades(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	serve(t, m, "/health/live", nil)
	serve(t, m, "/ws", http.Header{
		"Connection": {"Upgrade"},
		"Upgrade":    {"websocket"},
	})

	assert.Equal(t, 0, testutil.CollectAndCount(m.RequestsTotal))
}
