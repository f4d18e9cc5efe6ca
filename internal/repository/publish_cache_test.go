package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendScan/internal/domain/models"
	domrepo "TrendScan/internal/domain/repository"
	"TrendScan/pkg/cache"
	pkgkafka "TrendScan/pkg/kafka"
)

type captureWriter struct{ msgs []kafka.Message }

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaSignalPublisher(t *testing.T) {
	w := &captureWriter{}
	pub := NewKafkaSignalPublisher(pkgkafka.NewProducerWithWriter(w, "gzip"), "trailstop.signals")

	events := []models.SignalEvent{
		{RunID: "r1", Symbol: "AAPL", Week: week(3), Signal: "buy", Trend: "green", Fast: 101, Slow: 95, Close: 104},
		{RunID: "r1", Symbol: "TSLA", Week: week(3), Signal: "sell", Trend: "red", Fast: 180, Slow: 200, Close: 175},
	}
	require.NoError(t, pub.PublishSignals(context.Background(), events))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "trailstop.signals", w.msgs[0].Topic)
	assert.Equal(t, "AAPL", string(w.msgs[0].Key))

	var got models.SignalEvent
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &got))
	assert.Equal(t, events[1], got)
}

func TestKafkaSignalPublisherEmpty(t *testing.T) {
	w := &captureWriter{}
	pub := NewKafkaSignalPublisher(pkgkafka.NewProducerWithWriter(w, "gzip"), "t")
	require.NoError(t, pub.PublishSignals(context.Background(), nil))
	assert.Empty(t, w.msgs)
}

func TestSnapshotCache(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	sc := NewSnapshotCache(mc, time.Hour)

	_, err := sc.Latest(ctx)
	require.ErrorIs(t, err, domrepo.ErrNotFound)

	snap := &models.Snapshot{
		Meta: models.RunMeta{RunID: "r1", TrendMap: models.TrendMap()},
		Date: week(5),
		Rows: []models.SnapshotRow{
			{Symbol: "AAPL", Trend: "green", Signal: "buy", Fast: models.OptFloat(101)},
			{Symbol: "MSFT", Trend: "invalid", Signal: "invalid"},
		},
	}
	require.NoError(t, sc.Put(ctx, snap))

	got, err := sc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.Meta.RunID)
	assert.Equal(t, "Green (Bull)", got.Meta.TrendMap[3])
	assert.True(t, got.Date.Equal(week(5)))
	require.Len(t, got.Rows, 2)

	rows, err := sc.Rows(ctx, "AAPL", "NVDA")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 101.0, *rows["AAPL"].Fast)
}

func TestSnapshotCacheDropsRowsOfShrunkUniverse(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	sc := NewSnapshotCache(mc, time.Hour)

	require.NoError(t, sc.Put(ctx, &models.Snapshot{
		Meta: models.RunMeta{RunID: "r1"},
		Date: week(4),
		Rows: []models.SnapshotRow{{Symbol: "A", Trend: "green"}, {Symbol: "B", Trend: "green"}},
	}))
	rows, err := sc.Rows(ctx, "A", "B")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, sc.Put(ctx, &models.Snapshot{
		Meta: models.RunMeta{RunID: "r2"},
		Date: week(5),
		Rows: []models.SnapshotRow{{Symbol: "A", Trend: "red"}},
	}))

	rows, err = sc.Rows(ctx, "A", "B")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "red", rows["A"].Trend)
	assert.NotContains(t, rows, "B")
}

func TestSnapshotCacheRowsWithoutSnapshot(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	rows, err := NewSnapshotCache(mc, time.Hour).Rows(context.Background(), "A")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSnapshotCacheGenerationFallsBackToDate(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	sc := NewSnapshotCache(mc, time.Hour)

	require.NoError(t, sc.Put(ctx, &models.Snapshot{Date: week(5), Rows: []models.SnapshotRow{{Symbol: "A", Trend: "blue"}}}))
	var gen string
	require.NoError(t, mc.Get(ctx, generationKey, &gen))
	assert.Equal(t, week(5).Format(time.DateOnly), gen)

	rows, err := sc.Rows(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "blue", rows["A"].Trend)
}
