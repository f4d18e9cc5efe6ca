package middleware

import (
	"sync"
	"time"

	applogger "TrendScan/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels are the echo route template, never the raw path, plus the status
// class.
var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trendscan_http_requests_total",
		Help: "HTTP requests served, by route template and status class.",
	}, []string{"route", "method", "class"})

	requestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trendscan_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"route", "method", "class"})

	responseBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trendscan_http_response_size_bytes",
		Help:    "HTTP response body size.",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"route", "class"})

	inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trendscan_http_in_flight_requests",
		Help: "Requests currently being served.",
	})

	registerOnce sync.Once
)

// Metrics records request counters and latency per route, and logs 5xx
// responses and requests slower than slow (0 disables the slow log).
// Handler errors are rendered here so the recorded status is the one sent.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	registerOnce.Do(func() {
		prometheus.MustRegister(requestsTotal, requestSeconds, responseBytes, inFlight)
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			inFlight.Inc()
			defer inFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			elapsed := time.Since(start)
			res := c.Response()
			route, method, class := routeLabel(c), c.Request().Method, statusClass(res.Status)
			requestsTotal.WithLabelValues(route, method, class).Inc()
			requestSeconds.WithLabelValues(route, method, class).Observe(elapsed.Seconds())
			responseBytes.WithLabelValues(route, class).Observe(float64(res.Size))

			if l == nil {
				return nil
			}
			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", res.Status),
				applogger.Duration("duration_ms", elapsed),
			}
			switch {
			case res.Status >= 500:
				l.Error("http request failed", fields...)
			case slow > 0 && elapsed >= slow:
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}

// routeLabel collapses requests that matched no route into one series.
func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return string(rune('0'+code/100)) + "xx"
}
