package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendScan/internal/usecase"
	"TrendScan/pkg/config"
)

type stubRunner struct {
	calls int
	err   error
}

func (s *stubRunner) Run(context.Context) (*usecase.RunSummary, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &usecase.RunSummary{}, nil
}

func TestRunOnceClosesInReverseOrder(t *testing.T) {
	r := &stubRunner{}
	app := New(config.Default(), nil, r, nil)

	var order []string
	app.AddCloser("clickhouse", func() error { order = append(order, "clickhouse"); return nil })
	app.AddCloser("kafka", func() error { order = append(order, "kafka"); return errors.New("already closed") })

	require.NoError(t, app.RunOnce(context.Background()))
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, []string{"kafka", "clickhouse"}, order)
}

func TestRunOnceReturnsRunnerError(t *testing.T) {
	r := &stubRunner{err: errors.New("load prices: timeout")}
	closed := false
	app := New(config.Default(), nil, r, nil)
	app.AddCloser("cache", func() error { closed = true; return nil })

	err := app.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, closed)
}

func TestScheduleArmsWeeklyJob(t *testing.T) {
	cfg := config.Default()
	cfg.Schedule.Timezone = "UTC"
	app := New(cfg, nil, &stubRunner{}, nil)

	s, err := app.schedule(context.Background())
	require.NoError(t, err)
	s.StartAsync()
	defer s.Stop()

	require.Eventually(t, func() bool {
		_, next := s.NextRun()
		return !next.IsZero()
	}, time.Second, 10*time.Millisecond)

	_, next := s.NextRun()
	assert.Equal(t, time.Saturday, next.Weekday())
	assert.Equal(t, 6, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestScheduleRejectsBadSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Schedule.Timezone = "Mars/Olympus"
	_, err := New(cfg, nil, &stubRunner{}, nil).schedule(context.Background())
	require.Error(t, err)

	cfg = config.Default()
	cfg.Schedule.Timezone = "UTC"
	cfg.Schedule.Cron = "every tuesday"
	_, err = New(cfg, nil, &stubRunner{}, nil).schedule(context.Background())
	require.Error(t, err)
}

func TestScheduledRunSkipsAfterCancel(t *testing.T) {
	r := &stubRunner{}
	app := New(config.Default(), nil, r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	app.scheduledRun(ctx)
	assert.Zero(t, r.calls)
}
