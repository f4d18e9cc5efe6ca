package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trendscan",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of trailing-stop API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trendscan",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by API endpoint",
		},
		[]string{"endpoint"},
	)

	SnapshotReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trendscan",
			Subsystem: "api",
			Name:      "snapshot_reads_total",
			Help:      "Snapshot reads by source",
		},
		[]string{"source"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, SnapshotReads)
	})
}
