package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SolSignal/internal/domain/models"
	domrepo "SolSignal/internal/domain/repository"
	pkgch "SolSignal/pkg/clickhouse"
	applogger "SolSignal/pkg/logger"
)

// CHCandleStore reads OHLCV bars from the per-timeframe ClickHouse tables.
// An external ingest pipeline owns the writes; this side only queries.
type CHCandleStore struct {
	db       *sql.DB
	database string
	log      *applogger.Logger
}

// NewCHCandleStore wraps an open ClickHouse client. database qualifies the
// candles_<tf> tables and must match the schema created at startup.
func NewCHCandleStore(ch *pkgch.Client, database string, lgr *applogger.Logger) *CHCandleStore {
	return &CHCandleStore{db: ch.DB(), database: database, log: lgr}
}

func (s *CHCandleStore) table(tf domrepo.Timeframe) (string, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return fmt.Sprintf("%s.candles_%s", s.database, tf), nil
}

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	table, err := s.table(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(
		"SELECT bucket, symbol, open, high, low, close, vol FROM %s WHERE symbol = ? AND bucket >= ? AND bucket <= ? ORDER BY bucket ASC",
		table)
	return s.queryCandles(ctx, "get_candles", table, symbol, q, symbol, from, to)
}

func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	table, err := s.table(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(
		"SELECT bucket, symbol, open, high, low, close, vol FROM %s WHERE symbol = ? ORDER BY bucket DESC LIMIT ?",
		table)
	candles, err := s.queryCandles(ctx, "latest_candles", table, symbol, q, symbol, n)
	if err != nil {
		return nil, err
	}
	// the LIMIT walks newest-first; callers expect ascending bars
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// queryCandles runs one candle query and drains it, reporting outcome and
// timing under op.
func (s *CHCandleStore) queryCandles(ctx context.Context, op, table, symbol, q string, args ...interface{}) ([]models.Candle, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.fail(op, table, symbol, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	candles := make([]models.Candle, 0, 512)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.fail(op, table, symbol, err)
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		s.fail(op, table, symbol, err)
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	if s.log != nil {
		s.log.Debug("clickhouse candle query",
			applogger.String("op", op),
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(candles)),
			applogger.Duration("took", time.Since(start)),
		)
	}
	return candles, nil
}

func (s *CHCandleStore) fail(op, table, symbol string, err error) {
	if s.log == nil {
		return
	}
	s.log.Error("clickhouse candle query failed",
		applogger.String("op", op),
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Error(err),
	)
}

var _ domrepo.CandleSource = (*CHCandleStore)(nil)
