package repository

import (
	"context"
	"errors"
	"time"

	"TrendScan/internal/domain/models"
)

// ErrNotFound is returned when a store holds no record for the request.
var ErrNotFound = errors.New("not found")

// PriceSource loads weekly OHLC history for a universe of securities.
type PriceSource interface {
	Symbols(ctx context.Context) ([]string, error)
	LoadWeekly(ctx context.Context, symbols []string, from, to time.Time) (models.PricePanel, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// ResultStore persists run metadata and per-cell results.
type ResultStore interface {
	Init(ctx context.Context) error // ensure tables
	SaveRun(ctx context.Context, meta models.RunMeta) error
	SaveResults(ctx context.Context, rows []models.ResultRow) error
	LatestSnapshot(ctx context.Context) (*models.Snapshot, error)
	Close() error
}

// SignalPublisher fans Buy/Sell crossovers out to downstream consumers.
type SignalPublisher interface {
	PublishSignals(ctx context.Context, events []models.SignalEvent) error
	Close() error
}

// SnapshotCache keeps the latest snapshot close to the HTTP surface.
type SnapshotCache interface {
	Put(ctx context.Context, snap *models.Snapshot) error
	Latest(ctx context.Context) (*models.Snapshot, error)
	Rows(ctx context.Context, symbols ...string) (map[string]models.SnapshotRow, error)
}

// RunLock guards against overlapping batch runs.
type RunLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// RunTrigger requests an out-of-schedule batch run.
type RunTrigger interface {
	RequestRun(ctx context.Context, req models.RunRequest) error
}

type Metrics interface {
	RecordRun(status string)
	RecordLatency(stage string, seconds float64)
	RecordFailures(config string, n int)
	RecordSignals(kind string, n int)
	SetUniverse(n int)
	RecordError(kind string)
}
