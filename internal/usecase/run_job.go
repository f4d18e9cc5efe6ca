package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"TrendScan/internal/domain/models"
	"TrendScan/internal/repository"
	applogger "TrendScan/pkg/logger"
	"TrendScan/pkg/queue"
)

// Runner executes one batch.
type Runner interface {
	Run(ctx context.Context) (*RunSummary, error)
}

// RunJob consumes manual run requests from the job queue.
type RunJob struct {
	runner Runner
	l      *applogger.Logger
}

var _ queue.Job = (*RunJob)(nil)

func NewRunJob(runner Runner, l *applogger.Logger) *RunJob {
	if l == nil {
		l = applogger.Nop()
	}
	return &RunJob{runner: runner, l: l}
}

func (j *RunJob) Name() string { return "trailstop-manual-run" }

func (j *RunJob) Type() string { return repository.RunJobType }

// Handle runs the batch. A run skipped because another holds the lock is
// not retried.
func (j *RunJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[models.RunRequest](payload)
	if err != nil {
		return err
	}
	j.l.Info("manual run requested",
		applogger.String("requested_by", req.RequestedBy),
		applogger.String("reason", req.Reason))

	summary, err := j.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("manual run: %w", err)
	}
	if summary.Skipped {
		j.l.Warn("manual run skipped", applogger.String("requested_by", req.RequestedBy))
	}
	return nil
}
