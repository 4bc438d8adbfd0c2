// Package analytics appends optimizer run results to an optional Postgres
// sink, so repeated offline searches can be compared across weeks. It is
// not a writer for the live SQLite store.
package analytics

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvriasc-boop/MarketDataCollector/internal/backtest"
)

// Sink appends ranked optimizer results to Postgres.
type Sink struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS optimizer_runs (
	id BIGSERIAL PRIMARY KEY,
	run_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	filter_label TEXT NOT NULL,
	tp DOUBLE PRECISION NOT NULL,
	sl DOUBLE PRECISION NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	win_rate DOUBLE PRECISION NOT NULL,
	total_pnl DOUBLE PRECISION NOT NULL,
	profit_factor DOUBLE PRECISION NOT NULL,
	rank_label TEXT NOT NULL
)`

// Open connects to Postgres at dsn and ensures the optimizer_runs table
// exists.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect analytics postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create optimizer_runs table: %w", err)
	}
	return &Sink{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Sink) Close() { s.pool.Close() }

// RecordWinners appends the three ranked winners from one optimizer run.
func (s *Sink) RecordWinners(ctx context.Context, w backtest.Winners) error {
	rows := []struct {
		label string
		r     *backtest.ComboResult
	}{
		{"max_profit", w.MaxProfit},
		{"max_win_rate", w.MaxWinRate},
		{"balanced", w.Balanced},
	}
	for _, row := range rows {
		if row.r == nil {
			continue
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO optimizer_runs (filter_label, tp, sl, trades, wins, win_rate, total_pnl, profit_factor, rank_label)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			string(row.r.Filter), row.r.TP, row.r.SL, row.r.Trades, row.r.Wins, row.r.WinRate, row.r.TotalPnL, row.r.ProfitFactor, row.label)
		if err != nil {
			return fmt.Errorf("insert optimizer run (%s): %w", row.label, err)
		}
	}
	return nil
}
