package repository

import (
	"context"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendScan/internal/domain/models"
	domrepo "TrendScan/internal/domain/repository"
	pkgch "TrendScan/pkg/clickhouse"
)

func newMockClient(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return pkgch.NewFromDB(db), mock
}

func week(d int) time.Time {
	return time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*d)
}

func TestLoadWeeklyPivotsBars(t *testing.T) {
	ch, mock := newMockClient(t)
	src := NewCHPriceSource(ch, "prices_daily")
	from, to := week(0), week(1)

	cols := []string{"week", "symbol", "open", "high", "low", "close", "volume"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM prices_daily")+`.*symbol IN \(\?, \?\)`).
		WithArgs(from, to, "AAPL", "MSFT").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(week(0), "AAPL", 10.0, 12.0, 9.0, 11.0, 1000.0).
			AddRow(week(1), "AAPL", 11.0, 13.0, 10.0, 12.0, 1200.0).
			AddRow(week(1), "MSFT", 20.0, 21.0, 19.0, 20.5, 800.0))

	panel, err := src.LoadWeekly(context.Background(), []string{"AAPL", "MSFT"}, from, to)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"AAPL", "MSFT"}, panel.Symbols())
	assert.Equal(t, []time.Time{week(0), week(1)}, panel.Dates())
	assert.Equal(t, 12.0, panel.Close.At(1, 0))
	assert.True(t, math.IsNaN(panel.Close.At(0, 1)))
	assert.Equal(t, 19.0, panel.Low.At(1, 1))
}

func TestLoadWeeklyWithoutSymbolFilter(t *testing.T) {
	ch, mock := newMockClient(t)
	src := NewCHPriceSource(ch, "prices_daily")

	mock.ExpectQuery("GROUP BY week, symbol").
		WithArgs(week(0), week(4)).
		WillReturnRows(sqlmock.NewRows([]string{"week", "symbol", "open", "high", "low", "close", "volume"}))

	panel, err := src.LoadWeekly(context.Background(), nil, week(0), week(4))
	require.NoError(t, err)
	assert.Equal(t, 0, panel.Close.Len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSymbols(t *testing.T) {
	ch, mock := newMockClient(t)
	src := NewCHPriceSource(ch, "prices_daily")

	mock.ExpectQuery("SELECT DISTINCT symbol FROM prices_daily").
		WillReturnRows(sqlmock.NewRows([]string{"symbol"}).AddRow("AAPL").AddRow("NVDA"))

	syms, err := src.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "NVDA"}, syms)
}

func TestSaveRun(t *testing.T) {
	ch, mock := newMockClient(t)
	store := NewCHResultStore(ch, "trailstop_runs", "trailstop_weekly")
	started := time.Date(2024, 3, 9, 6, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trailstop_runs")).
		WithArgs("run-1", "weekly", sqlmock.AnyArg(), `{"0":"Red (Bear)"}`, uint32(100), uint32(3), uint32(1), started, started.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveRun(context.Background(), models.RunMeta{
		RunID:      "run-1",
		Timeframe:  "weekly",
		Params:     models.Params{FastLength: 5, FastMultiplier: 0.5, SlowLength: 10, SlowMultiplier: 3},
		TrendMap:   map[int8]string{0: "Red (Bear)"},
		Dates:      100,
		Symbols:    3,
		Failures:   1,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResultsChunks(t *testing.T) {
	ch, mock := newMockClient(t)
	store := NewCHResultStore(ch, "trailstop_runs", "trailstop_weekly")
	store.chunkSize = 2

	rows := []models.ResultRow{
		{RunID: "r", Week: week(0), Symbol: "A", Close: models.OptFloat(1), Trend: models.TrendGreen, Signal: models.SignalBuy},
		{RunID: "r", Week: week(0), Symbol: "B", Trend: models.TrendInvalid, Signal: models.SignalInvalid},
		{RunID: "r", Week: week(1), Symbol: "A", Close: models.OptFloat(2), FastTrail: models.OptFloat(1.5), SlowTrail: models.OptFloat(1)},
	}

	for _, chunk := range [][]models.ResultRow{rows[:2], rows[2:]} {
		mock.ExpectBegin()
		prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO trailstop_weekly"))
		for _, r := range chunk {
			prep.ExpectExec().
				WithArgs("r", r.Week, r.Symbol, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int8(r.Trend), int8(r.Signal)).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()
	}

	require.NoError(t, store.SaveResults(context.Background(), rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSnapshot(t *testing.T) {
	ch, mock := newMockClient(t)
	store := NewCHResultStore(ch, "trailstop_runs", "trailstop_weekly")
	at := time.Date(2024, 3, 9, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM trailstop_runs ORDER BY finished_at DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "timeframe", "params", "trend_map", "dates", "symbols", "failures", "started_at", "finished_at"}).
			AddRow("run-9", "weekly", `{"fast_length":5,"fast_multiplier":0.5,"slow_length":10,"slow_multiplier":3}`, `{"3":"Green (Strong Bull)"}`, 50, 2, 0, at, at))
	mock.ExpectQuery(regexp.QuoteMeta("FROM trailstop_weekly")).
		WithArgs("run-9", "run-9").
		WillReturnRows(sqlmock.NewRows([]string{"week", "symbol", "close", "fast_trail", "slow_trail", "trend", "signal"}).
			AddRow(week(9), "AAPL", 190.0, 185.0, 170.0, int8(3), int8(1)).
			AddRow(week(9), "MSFT", nil, nil, nil, int8(-1), int8(-128)))

	snap, err := store.LatestSnapshot(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "run-9", snap.Meta.RunID)
	assert.Equal(t, 10, snap.Meta.Params.SlowLength)
	assert.Equal(t, "Green (Strong Bull)", snap.Meta.TrendMap[3])
	assert.Equal(t, week(9), snap.Date)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "green", snap.Rows[0].Trend)
	assert.Equal(t, "buy", snap.Rows[0].Signal)
	assert.Equal(t, 185.0, *snap.Rows[0].Fast)
	assert.Nil(t, snap.Rows[1].Close)
	assert.Equal(t, "invalid", snap.Rows[1].Signal)
}

func TestLatestSnapshotNoRuns(t *testing.T) {
	ch, mock := newMockClient(t)
	store := NewCHResultStore(ch, "trailstop_runs", "trailstop_weekly")

	mock.ExpectQuery("FROM trailstop_runs").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	_, err := store.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestInitCreatesTables(t *testing.T) {
	ch, mock := newMockClient(t)
	store := NewCHResultStore(ch, "trailstop_runs", "trailstop_weekly")

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS trailstop_runs")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS trailstop_weekly")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
