package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	applogger "TrendScan/pkg/logger"
)

func metricsEcho() *echo.Echo {
	e := echo.New()
	e.Use(Metrics(applogger.Nop(), 0))
	e.GET("/api/trailstop/symbol", func(c echo.Context) error {
		if c.QueryParam("symbol") == "" {
			return echo.NewHTTPError(http.StatusNotFound, "no row")
		}
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/boom", func(c echo.Context) error { return errors.New("store down") })
	return e
}

func serve(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	e := metricsEcho()
	ok := requestsTotal.WithLabelValues("/api/trailstop/symbol", http.MethodGet, "2xx")
	missing := requestsTotal.WithLabelValues("/api/trailstop/symbol", http.MethodGet, "4xx")
	okBefore, missingBefore := testutil.ToFloat64(ok), testutil.ToFloat64(missing)

	assert.Equal(t, http.StatusOK, serve(e, "/api/trailstop/symbol?symbol=AAPL").Code)
	assert.Equal(t, http.StatusOK, serve(e, "/api/trailstop/symbol?symbol=MSFT").Code)
	assert.Equal(t, http.StatusNotFound, serve(e, "/api/trailstop/symbol").Code)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(ok))
	assert.Equal(t, missingBefore+1, testutil.ToFloat64(missing))
}

func TestMetricsRecordsRenderedErrorStatus(t *testing.T) {
	e := metricsEcho()
	failed := requestsTotal.WithLabelValues("/boom", http.MethodGet, "5xx")
	before := testutil.ToFloat64(failed)

	assert.Equal(t, http.StatusInternalServerError, serve(e, "/boom").Code)
	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestMetricsCollapsesUnmatchedRoutes(t *testing.T) {
	e := metricsEcho()
	unmatched := requestsTotal.WithLabelValues("unmatched", http.MethodGet, "4xx")
	before := testutil.ToFloat64(unmatched)

	serve(e, "/nope/1")
	serve(e, "/nope/2")
	assert.Equal(t, before+2, testutil.ToFloat64(unmatched))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusAccepted))
	assert.Equal(t, "4xx", statusClass(http.StatusTooManyRequests))
	assert.Equal(t, "5xx", statusClass(http.StatusServiceUnavailable))
	assert.Equal(t, "5xx", statusClass(0))
}
