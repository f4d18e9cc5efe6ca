package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TrendScan/internal/domain/models"
	domrepo "TrendScan/internal/domain/repository"
	pkgch "TrendScan/pkg/clickhouse"
	applogger "TrendScan/pkg/logger"
)

// CHPriceSource implements PriceSource over a daily OHLCV table, folding
// days into weeks ending Friday inside ClickHouse.
type CHPriceSource struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.PriceSource = (*CHPriceSource)(nil)

func NewCHPriceSource(ch *pkgch.Client, table string) *CHPriceSource {
	return &CHPriceSource{ch: ch, db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHPriceSource) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHPriceSource) Symbols(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT symbol FROM %s ORDER BY symbol", s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// weeklyQuery aggregates daily bars into W-FRI weeks. toDayOfWeek is 1 for
// Monday, so (12 - dow) % 7 is the distance to the next Friday.
const weeklyQuery = `
        SELECT
            addDays(day, (12 - toDayOfWeek(day)) %% 7) AS week,
            symbol,
            argMin(open, day)  AS open,
            max(high)          AS high,
            min(low)           AS low,
            argMax(close, day) AS close,
            sum(volume)        AS volume
        FROM %s
        WHERE day >= ? AND day <= ?%s
        GROUP BY week, symbol
        ORDER BY week ASC, symbol ASC
    `

// LoadWeekly returns the weekly OHLC panel for symbols between from and to.
// An empty symbol list loads every symbol in the table.
func (s *CHPriceSource) LoadWeekly(ctx context.Context, symbols []string, from, to time.Time) (models.PricePanel, error) {
	start := time.Now()
	filter := ""
	args := []any{from, to}
	if len(symbols) > 0 {
		filter = " AND symbol IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(symbols)), ", ") + ")"
		for _, sym := range symbols {
			args = append(args, sym)
		}
	}
	q := fmt.Sprintf(weeklyQuery, s.table, filter)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logError("clickhouse load_weekly query error", err)
		return models.PricePanel{}, fmt.Errorf("load weekly: %w", err)
	}
	defer rows.Close()

	bars := make([]models.Bar, 0, 1024)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Week, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			s.logError("clickhouse load_weekly scan error", err)
			return models.PricePanel{}, fmt.Errorf("scan bar: %w", err)
		}
		b.Week = time.Date(b.Week.Year(), b.Week.Month(), b.Week.Day(), 0, 0, 0, 0, time.UTC)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		s.logError("clickhouse load_weekly rows error", err)
		return models.PricePanel{}, fmt.Errorf("rows: %w", err)
	}

	panel := models.NewPricePanel(bars)
	if s.l != nil {
		s.l.Info("clickhouse load_weekly ok",
			applogger.String("table", s.table),
			applogger.Int("bars", len(bars)),
			applogger.Int("weeks", panel.Close.Len()),
			applogger.Int("symbols", panel.Close.Width()),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return panel, nil
}

func (s *CHPriceSource) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHPriceSource) Close() error {
	return nil // Managed by pkg
}

func (s *CHPriceSource) logError(msg string, err error) {
	if s.l != nil {
		s.l.Error(msg, applogger.String("table", s.table), applogger.Error(err))
	}
}
