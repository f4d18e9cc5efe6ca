package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal   *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	failures    *prometheus.GaugeVec
	signals     *prometheus.CounterVec
	universe    prometheus.Gauge
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendscan_runs_total",
				Help: "Total number of batch runs by outcome",
			},
			[]string{"status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendscan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		failures: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trendscan_security_failures",
				Help: "Securities excluded from the last run",
			},
			[]string{"config"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendscan_signals_total",
				Help: "Crossover signals emitted on the latest date",
			},
			[]string{"kind"},
		),
		universe: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "trendscan_universe_size",
				Help: "Securities in the last loaded panel",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendscan_stage_duration_seconds",
				Help:    "Duration of batch stages in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
			},
			[]string{"stage"},
		),
	}
}

// RecordRun records a finished run by status.
func (r *Recorder) RecordRun(status string) {
	r.runsTotal.WithLabelValues(status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordFailures sets the excluded-security count for one stop config.
func (r *Recorder) RecordFailures(config string, n int) {
	r.failures.WithLabelValues(config).Set(float64(n))
}

// RecordSignals adds n signals of kind.
func (r *Recorder) RecordSignals(kind string, n int) {
	r.signals.WithLabelValues(kind).Add(float64(n))
}

// SetUniverse records the loaded universe size.
func (r *Recorder) SetUniverse(n int) {
	r.universe.Set(float64(n))
}

// RecordLatency records stage latency in seconds.
func (r *Recorder) RecordLatency(stage string, seconds float64) {
	r.latency.WithLabelValues(stage).Observe(seconds)
}
