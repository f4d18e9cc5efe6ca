package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	calls   int
	summary *RunSummary
	err     error
}

func (s *stubRunner) Run(context.Context) (*RunSummary, error) {
	s.calls++
	return s.summary, s.err
}

func TestRunJobRunsBatch(t *testing.T) {
	r := &stubRunner{summary: &RunSummary{}}
	job := NewRunJob(r, nil)

	err := job.Handle(context.Background(), json.RawMessage(`{"requested_by":"ops","reason":"backfill"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, "trailstop.run", job.Type())
}

func TestRunJobSkippedIsNotAnError(t *testing.T) {
	r := &stubRunner{summary: &RunSummary{Skipped: true}}
	require.NoError(t, NewRunJob(r, nil).Handle(context.Background(), nil))
}

func TestRunJobPropagatesFailure(t *testing.T) {
	r := &stubRunner{err: errors.New("clickhouse down")}
	err := NewRunJob(r, nil).Handle(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clickhouse down")
}

func TestRunJobRejectsBadPayload(t *testing.T) {
	r := &stubRunner{summary: &RunSummary{}}
	err := NewRunJob(r, nil).Handle(context.Background(), json.RawMessage(`[`))
	require.Error(t, err)
	assert.Zero(t, r.calls)
}
