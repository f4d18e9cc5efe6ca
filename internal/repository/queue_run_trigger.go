package repository

import (
	"context"

	"TrendScan/internal/domain/models"
	domrepo "TrendScan/internal/domain/repository"
)

// RunJobType is the queue message type of a manual batch request.
const RunJobType = "trailstop.run"

// Enqueuer pushes a typed message onto a job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// QueueRunTrigger implements RunTrigger on top of the Redis job queue.
type QueueRunTrigger struct {
	q Enqueuer
}

var _ domrepo.RunTrigger = (*QueueRunTrigger)(nil)

func NewQueueRunTrigger(q Enqueuer) *QueueRunTrigger {
	return &QueueRunTrigger{q: q}
}

func (t *QueueRunTrigger) RequestRun(ctx context.Context, req models.RunRequest) error {
	return t.q.Enqueue(ctx, RunJobType, req)
}
