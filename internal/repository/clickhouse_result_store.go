package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TrendScan/internal/domain/models"
	domrepo "TrendScan/internal/domain/repository"
	pkgch "TrendScan/pkg/clickhouse"
	applogger "TrendScan/pkg/logger"
)

// CHResultStore implements ResultStore. Results are written long format,
// one row per (week, symbol), keyed by run id.
type CHResultStore struct {
	ch           *pkgch.Client
	db           *sql.DB
	runsTable    string
	resultsTable string
	chunkSize    int
	l            *applogger.Logger
}

var _ domrepo.ResultStore = (*CHResultStore)(nil)

func NewCHResultStore(ch *pkgch.Client, runsTable, resultsTable string) *CHResultStore {
	return &CHResultStore{
		ch:           ch,
		db:           ch.DB(),
		runsTable:    runsTable,
		resultsTable: resultsTable,
		chunkSize:    50000,
	}
}

// SetLogger injects a structured logger.
func (s *CHResultStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHResultStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            run_id      String,
            timeframe   LowCardinality(String),
            params      String,
            trend_map   String,
            dates       UInt32,
            symbols     UInt32,
            failures    UInt32,
            started_at  DateTime64(3, 'UTC'),
            finished_at DateTime64(3, 'UTC')
        ) ENGINE = MergeTree ORDER BY (finished_at, run_id)`, s.runsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            run_id     String,
            week       Date,
            symbol     LowCardinality(String),
            close      Nullable(Float64),
            fast_trail Nullable(Float64),
            slow_trail Nullable(Float64),
            trend      Int8,
            signal     Int8
        ) ENGINE = MergeTree PARTITION BY toYear(week) ORDER BY (run_id, symbol, week)`, s.resultsTable),
	})
}

func (s *CHResultStore) SaveRun(ctx context.Context, meta models.RunMeta) error {
	params, err := json.Marshal(meta.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	trendMap, err := json.Marshal(meta.TrendMap)
	if err != nil {
		return fmt.Errorf("marshal trend map: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (run_id, timeframe, params, trend_map, dates, symbols, failures, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.runsTable)
	_, err = s.db.ExecContext(ctx, q,
		meta.RunID,
		meta.Timeframe,
		string(params),
		string(trendMap),
		uint32(meta.Dates),
		uint32(meta.Symbols),
		uint32(meta.Failures),
		meta.StartedAt.UTC(),
		meta.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// SaveResults inserts rows in chunks of chunkSize, one transaction each.
func (s *CHResultStore) SaveResults(ctx context.Context, rows []models.ResultRow) error {
	start := time.Now()
	q := fmt.Sprintf("INSERT INTO %s (run_id, week, symbol, close, fast_trail, slow_trail, trend, signal) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.resultsTable)
	for lo := 0; lo < len(rows); lo += s.chunkSize {
		hi := min(lo+s.chunkSize, len(rows))
		batch := make([][]any, 0, hi-lo)
		for _, r := range rows[lo:hi] {
			batch = append(batch, []any{
				r.RunID,
				r.Week,
				r.Symbol,
				nullable(r.Close),
				nullable(r.FastTrail),
				nullable(r.SlowTrail),
				int8(r.Trend),
				int8(r.Signal),
			})
		}
		if err := s.ch.InsertBatch(ctx, q, batch); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse save_results error",
					applogger.String("table", s.resultsTable),
					applogger.Int("offset", lo),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("save results: %w", err)
		}
	}
	if s.l != nil {
		s.l.Info("clickhouse save_results ok",
			applogger.String("table", s.resultsTable),
			applogger.Int("rows", len(rows)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// LatestSnapshot rebuilds the snapshot of the most recent run from storage.
func (s *CHResultStore) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	meta, err := s.latestRun(ctx)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
        SELECT week, symbol, close, fast_trail, slow_trail, trend, signal
        FROM %[1]s
        WHERE run_id = ? AND week = (SELECT max(week) FROM %[1]s WHERE run_id = ?)
        ORDER BY symbol ASC
    `, s.resultsTable)
	rows, err := s.db.QueryContext(ctx, q, meta.RunID, meta.RunID)
	if err != nil {
		return nil, fmt.Errorf("latest results: %w", err)
	}
	defer rows.Close()

	snap := &models.Snapshot{Meta: *meta}
	for rows.Next() {
		var (
			week           time.Time
			sym            string
			cl, fast, slow sql.NullFloat64
			trend, signal  int8
		)
		if err := rows.Scan(&week, &sym, &cl, &fast, &slow, &trend, &signal); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		snap.Date = week.UTC()
		snap.Rows = append(snap.Rows, models.SnapshotRow{
			Symbol: sym,
			Trend:  models.TrendState(trend).String(),
			Signal: models.Signal(signal).String(),
			Fast:   fromNullable(fast),
			Slow:   fromNullable(slow),
			Close:  fromNullable(cl),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return snap, nil
}

func (s *CHResultStore) latestRun(ctx context.Context) (*models.RunMeta, error) {
	q := fmt.Sprintf("SELECT run_id, timeframe, params, trend_map, dates, symbols, failures, started_at, finished_at FROM %s ORDER BY finished_at DESC LIMIT 1", s.runsTable)
	var (
		meta                     models.RunMeta
		params, trendMap         string
		dates, symbols, failures uint32
	)
	err := s.db.QueryRowContext(ctx, q).Scan(
		&meta.RunID, &meta.Timeframe, &params, &trendMap,
		&dates, &symbols, &failures, &meta.StartedAt, &meta.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &meta.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(trendMap), &meta.TrendMap); err != nil {
		return nil, fmt.Errorf("decode trend map: %w", err)
	}
	meta.Dates, meta.Symbols, meta.Failures = int(dates), int(symbols), int(failures)
	return &meta, nil
}

func (s *CHResultStore) Close() error {
	return nil // Managed by pkg
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
