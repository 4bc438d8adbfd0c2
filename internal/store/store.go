// Package store persists the monitor's timeseries, symbol metadata, derived
// stats, and anomaly log in a single SQLite file under WAL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

// retryConfig controls busy/locked retry for writer transactions.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{maxRetries: 5, baseDelay: 10 * time.Millisecond, maxDelay: 1 * time.Second}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "SQLITE_LOCKED")
}

func retryWithBackoff(cfg retryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isBusyError(err) {
			return err
		}
		if attempt < cfg.maxRetries-1 {
			delay := cfg.baseDelay * time.Duration(1<<uint(attempt))
			if delay > cfg.maxDelay {
				delay = cfg.maxDelay
			}
			jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
			delay += jitter
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("retry exhausted after %d attempts: %w", cfg.maxRetries, lastErr)
}

// Store is the single-writer, SQLite-backed timeseries store.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex // serializes writer transactions; reads use the pool freely
}

// Open creates (if needed) and opens the SQLite database at path with WAL
// mode and NORMAL synchronous durability, and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Write transactions are serialized by s.mu, so only one writer is active
	// at a time and SQLITE_BUSY storms are avoided; the pool's other
	// connections serve readers, since WAL allows concurrent readers with one
	// writer.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		// Not fatal: SQLite recovers the WAL automatically on next open.
	}
	return s.db.Close()
}

// withWriteTx runs fn inside a transaction, retrying on busy/locked errors.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retryWithBackoff(defaultRetryConfig, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// UpsertSymbols ensures each named symbol exists with status=active and
// last_seen=now, returning the name→id map for the full set.
func (s *Store) UpsertSymbols(ctx context.Context, names []string, baseAssets map[string]string, now time.Time) (map[string]int64, error) {
	ts := now.Unix()
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		insert, err := tx.Prepare(`
			INSERT INTO symbols (name, base_asset, status, hot, quote_volume, first_seen, last_seen)
			VALUES (?, ?, 'active', 0, 0, ?, ?)
			ON CONFLICT(name) DO UPDATE SET status='active', last_seen=excluded.last_seen, base_asset=excluded.base_asset
		`)
		if err != nil {
			return err
		}
		defer insert.Close()
		for _, name := range names {
			if _, err := insert.Exec(name, baseAssets[name], ts, ts); err != nil {
				return fmt.Errorf("upsert symbol %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.SymbolMap(ctx)
}

// SymbolMap returns the full name→id map of active symbols.
func (s *Store) SymbolMap(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM symbols WHERE status='active'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}

// AllSymbols returns every active symbol's full metadata.
func (s *Store) AllSymbols(ctx context.Context) ([]model.Symbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, base_asset, status, hot, quote_volume, first_seen, last_seen
		FROM symbols WHERE status='active'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Symbol
	for rows.Next() {
		var sym model.Symbol
		var hot int
		var firstSeen, lastSeen int64
		if err := rows.Scan(&sym.ID, &sym.Name, &sym.BaseAsset, &sym.Status, &hot, &sym.QuoteVolume, &firstSeen, &lastSeen); err != nil {
			return nil, err
		}
		sym.Hot = hot != 0
		sym.FirstSeen = time.Unix(firstSeen, 0).UTC()
		sym.LastSeen = time.Unix(lastSeen, 0).UTC()
		out = append(out, sym)
	}
	return out, rows.Err()
}

// HotSymbols returns the names of symbols currently flagged hot.
func (s *Store) HotSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM symbols WHERE status='active' AND hot=1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// SetHot updates the hot flag and 24h quote volume for the given symbols.
func (s *Store) SetHot(ctx context.Context, volumes map[string]float64, threshold float64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE symbols SET hot=?, quote_volume=? WHERE name=?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for name, vol := range volumes {
			hot := 0
			if vol > threshold {
				hot = 1
			}
			if _, err := stmt.Exec(hot, vol, name); err != nil {
				return fmt.Errorf("set hot %s: %w", name, err)
			}
		}
		return nil
	})
}

// InsertOI batch-inserts OI samples, silently ignoring (ts, symbol) conflicts.
func (s *Store) InsertOI(ctx context.Context, ids map[string]int64, rows []model.OISample) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO open_interest (timestamp, symbol_id, oi_contracts, oi_usd, mark_price) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			id, ok := ids[r.Symbol]
			if !ok {
				continue
			}
			if _, err := stmt.Exec(r.Timestamp, id, r.OIContracts, r.OIUSD, r.MarkPrice); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertFunding batch-inserts funding samples, silently ignoring conflicts.
func (s *Store) InsertFunding(ctx context.Context, ids map[string]int64, rows []model.FundingSample) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO funding_rate (timestamp, symbol_id, rate, next_funding_time) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			id, ok := ids[r.Symbol]
			if !ok {
				continue
			}
			if _, err := stmt.Exec(r.Timestamp, id, r.Rate, r.NextFundingTime); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertLS batch-inserts long/short samples, silently ignoring conflicts.
func (s *Store) InsertLS(ctx context.Context, ids map[string]int64, rows []model.LSSample) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO long_short_ratio (timestamp, symbol_id, ratio, long_pct, short_pct) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			id, ok := ids[r.Symbol]
			if !ok {
				continue
			}
			if _, err := stmt.Exec(r.Timestamp, id, r.Ratio, r.LongPct, r.ShortPct); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertTaker batch-inserts taker-ratio samples, silently ignoring conflicts.
func (s *Store) InsertTaker(ctx context.Context, ids map[string]int64, rows []model.TakerSample) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO taker_ratio (timestamp, symbol_id, buy_sell_ratio, buy_vol, sell_vol) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			id, ok := ids[r.Symbol]
			if !ok {
				continue
			}
			if _, err := stmt.Exec(r.Timestamp, id, r.BuySellRatio, r.BuyVol, r.SellVol); err != nil {
				return err
			}
		}
		return nil
	})
}

// LatestOI returns the newest OI sample for symbol, if any.
func (s *Store) LatestOI(ctx context.Context, symbol string) (*model.OISample, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT oi.timestamp, oi.oi_contracts, oi.oi_usd, oi.mark_price
		FROM open_interest oi JOIN symbols sy ON sy.id = oi.symbol_id
		WHERE sy.name = ? ORDER BY oi.timestamp DESC LIMIT 1`, symbol)
	var sample model.OISample
	sample.Symbol = symbol
	if err := row.Scan(&sample.Timestamp, &sample.OIContracts, &sample.OIUSD, &sample.MarkPrice); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &sample, nil
}

// OIAtOrBefore returns the newest OI sample at or before ts.
func (s *Store) OIAtOrBefore(ctx context.Context, symbol string, ts int64) (*model.OISample, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT oi.timestamp, oi.oi_contracts, oi.oi_usd, oi.mark_price
		FROM open_interest oi JOIN symbols sy ON sy.id = oi.symbol_id
		WHERE sy.name = ? AND oi.timestamp <= ? ORDER BY oi.timestamp DESC LIMIT 1`, symbol, ts)
	var sample model.OISample
	sample.Symbol = symbol
	if err := row.Scan(&sample.Timestamp, &sample.OIContracts, &sample.OIUSD, &sample.MarkPrice); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &sample, nil
}

// OIHistory returns the most recent `limit` OI samples for symbol, oldest first.
func (s *Store) OIHistory(ctx context.Context, symbol string, limit int) ([]model.OISample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT oi.timestamp, oi.oi_contracts, oi.oi_usd, oi.mark_price
		FROM open_interest oi JOIN symbols sy ON sy.id = oi.symbol_id
		WHERE sy.name = ? ORDER BY oi.timestamp DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OISample
	for rows.Next() {
		var sample model.OISample
		sample.Symbol = symbol
		if err := rows.Scan(&sample.Timestamp, &sample.OIContracts, &sample.OIUSD, &sample.MarkPrice); err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// OICountSince counts OI samples for symbol at or after ts.
func (s *Store) OICountSince(ctx context.Context, symbol string, ts int64) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM open_interest oi JOIN symbols sy ON sy.id = oi.symbol_id
		WHERE sy.name = ? AND oi.timestamp >= ?`, symbol, ts)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// FundingHistory returns the most recent `limit` funding samples, oldest first.
func (s *Store) FundingHistory(ctx context.Context, symbol string, limit int) ([]model.FundingSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.timestamp, f.rate, f.next_funding_time
		FROM funding_rate f JOIN symbols sy ON sy.id = f.symbol_id
		WHERE sy.name = ? ORDER BY f.timestamp DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.FundingSample
	for rows.Next() {
		var r model.FundingSample
		r.Symbol = symbol
		if err := rows.Scan(&r.Timestamp, &r.Rate, &r.NextFundingTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LSHistory returns the most recent `limit` long/short samples, oldest first.
func (s *Store) LSHistory(ctx context.Context, symbol string, limit int) ([]model.LSSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.timestamp, l.ratio, l.long_pct, l.short_pct
		FROM long_short_ratio l JOIN symbols sy ON sy.id = l.symbol_id
		WHERE sy.name = ? ORDER BY l.timestamp DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LSSample
	for rows.Next() {
		var r model.LSSample
		r.Symbol = symbol
		if err := rows.Scan(&r.Timestamp, &r.Ratio, &r.LongPct, &r.ShortPct); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// TakerHistory returns the most recent `limit` taker-ratio samples, oldest first.
func (s *Store) TakerHistory(ctx context.Context, symbol string, limit int) ([]model.TakerSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.timestamp, t.buy_sell_ratio, t.buy_vol, t.sell_vol
		FROM taker_ratio t JOIN symbols sy ON sy.id = t.symbol_id
		WHERE sy.name = ? ORDER BY t.timestamp DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TakerSample
	for rows.Next() {
		var r model.TakerSample
		r.Symbol = symbol
		if err := rows.Scan(&r.Timestamp, &r.BuySellRatio, &r.BuyVol, &r.SellVol); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// HydrateLastValues loads the freshest known reading of every metric for
// each active symbol, used to seed the collector's change-detection cache
// on startup so the first cycle after a restart doesn't re-alert on stale
// deltas.
func (s *Store) HydrateLastValues(ctx context.Context) (map[string]*model.FreshValues, error) {
	symbols, err := s.AllSymbols(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.FreshValues, len(symbols))
	for _, sym := range symbols {
		fv := &model.FreshValues{Symbol: sym.Name}
		if oi, err := s.LatestOI(ctx, sym.Name); err != nil {
			return nil, err
		} else if oi != nil {
			fv.OIContracts = oi.OIContracts
			fv.HasOI = true
			fv.MarkPrice = oi.MarkPrice
		}
		if fh, err := s.FundingHistory(ctx, sym.Name, 2); err != nil {
			return nil, err
		} else if len(fh) > 0 {
			last := fh[len(fh)-1]
			fv.Funding = last.Rate
			fv.HasFunding = true
			if len(fh) > 1 {
				fv.PrevFunding = fh[len(fh)-2].Rate
				fv.HasPrevFunding = true
			}
		}
		if lh, err := s.LSHistory(ctx, sym.Name, 1); err != nil {
			return nil, err
		} else if len(lh) > 0 {
			fv.LSRatio = lh[0].Ratio
			fv.HasLS = true
		}
		if th, err := s.TakerHistory(ctx, sym.Name, 1); err != nil {
			return nil, err
		} else if len(th) > 0 {
			fv.TakerRatio = th[0].BuySellRatio
			fv.HasTaker = true
		}
		out[sym.Name] = fv
	}
	return out, nil
}

// LoadStats returns the baseline stats row for symbol, or nil if the stats
// worker has never computed one.
func (s *Store) LoadStats(ctx context.Context, symbol string) (*model.SymbolStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sy.name, st.updated_at,
			st.mean_funding, st.std_funding, st.has_funding,
			st.mean_oi_change_1h, st.std_oi_change_1h, st.has_oi_change,
			st.mean_ls, st.std_ls, st.has_ls,
			st.mean_taker, st.std_taker, st.has_taker,
			st.avg_oi_usd
		FROM symbol_stats st JOIN symbols sy ON sy.id = st.symbol_id
		WHERE sy.name = ?`, symbol)

	var stats model.SymbolStats
	var updatedAt int64
	var hasFunding, hasOIChange, hasLS, hasTaker int
	if err := row.Scan(&stats.Symbol, &updatedAt,
		&stats.MeanFunding, &stats.StdFunding, &hasFunding,
		&stats.MeanOIChange1h, &stats.StdOIChange1h, &hasOIChange,
		&stats.MeanLS, &stats.StdLS, &hasLS,
		&stats.MeanTaker, &stats.StdTaker, &hasTaker,
		&stats.AvgOIUSD); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	stats.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	stats.HasFunding = hasFunding != 0
	stats.HasOIChange = hasOIChange != 0
	stats.HasLS = hasLS != 0
	stats.HasTaker = hasTaker != 0
	return &stats, nil
}

// LoadAllStats returns the baseline stats row for every active symbol that
// has one, keyed by symbol name.
func (s *Store) LoadAllStats(ctx context.Context) (map[string]*model.SymbolStats, error) {
	symbols, err := s.AllSymbols(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.SymbolStats)
	for _, sym := range symbols {
		st, err := s.LoadStats(ctx, sym.Name)
		if err != nil {
			return nil, err
		}
		if st != nil {
			out[sym.Name] = st
		}
	}
	return out, nil
}

// SaveStats upserts the baseline stats row for one symbol.
func (s *Store) SaveStats(ctx context.Context, stats model.SymbolStats) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var symbolID int64
		if err := tx.QueryRow(`SELECT id FROM symbols WHERE name = ?`, stats.Symbol).Scan(&symbolID); err != nil {
			return fmt.Errorf("lookup symbol %s: %w", stats.Symbol, err)
		}
		_, err := tx.Exec(`
			INSERT INTO symbol_stats (
				symbol_id, updated_at,
				mean_funding, std_funding, has_funding,
				mean_oi_change_1h, std_oi_change_1h, has_oi_change,
				mean_ls, std_ls, has_ls,
				mean_taker, std_taker, has_taker,
				avg_oi_usd
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol_id) DO UPDATE SET
				updated_at=excluded.updated_at,
				mean_funding=excluded.mean_funding, std_funding=excluded.std_funding, has_funding=excluded.has_funding,
				mean_oi_change_1h=excluded.mean_oi_change_1h, std_oi_change_1h=excluded.std_oi_change_1h, has_oi_change=excluded.has_oi_change,
				mean_ls=excluded.mean_ls, std_ls=excluded.std_ls, has_ls=excluded.has_ls,
				mean_taker=excluded.mean_taker, std_taker=excluded.std_taker, has_taker=excluded.has_taker,
				avg_oi_usd=excluded.avg_oi_usd
		`, symbolID, stats.UpdatedAt.Unix(),
			stats.MeanFunding, stats.StdFunding, boolToInt(stats.HasFunding),
			stats.MeanOIChange1h, stats.StdOIChange1h, boolToInt(stats.HasOIChange),
			stats.MeanLS, stats.StdLS, boolToInt(stats.HasLS),
			stats.MeanTaker, stats.StdTaker, boolToInt(stats.HasTaker),
			stats.AvgOIUSD)
		return err
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AppendAnomaly inserts one anomaly record and returns its assigned ID.
func (s *Store) AppendAnomaly(ctx context.Context, a model.Anomaly) (int64, error) {
	var id int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var symbolID int64
		if err := tx.QueryRow(`SELECT id FROM symbols WHERE name = ?`, a.Symbol).Scan(&symbolID); err != nil {
			return fmt.Errorf("lookup symbol %s: %w", a.Symbol, err)
		}
		res, err := tx.Exec(`
			INSERT INTO anomalies (detected_at, cycle_ts, symbol_id, kind, severity, value, description, notified)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.DetectedAt.Unix(), a.CycleTS, symbolID, string(a.Kind), string(a.Severity), a.Value, a.Description, boolToInt(a.Notified))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// MarkNotified flags an anomaly as having been delivered.
func (s *Store) MarkNotified(ctx context.Context, anomalyID int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE anomalies SET notified=1 WHERE id=?`, anomalyID)
		return err
	})
}

// RecentAnomalies returns the most recent `limit` anomalies across all
// symbols, newest first.
func (s *Store) RecentAnomalies(ctx context.Context, limit int) ([]model.Anomaly, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT an.id, an.detected_at, an.cycle_ts, sy.name, an.kind, an.severity, an.value, an.description, an.notified
		FROM anomalies an JOIN symbols sy ON sy.id = an.symbol_id
		ORDER BY an.detected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Anomaly
	for rows.Next() {
		var a model.Anomaly
		var detectedAt int64
		var kind, severity string
		var notified int
		if err := rows.Scan(&a.ID, &detectedAt, &a.CycleTS, &a.Symbol, &kind, &severity, &a.Value, &a.Description, &notified); err != nil {
			return nil, err
		}
		a.DetectedAt = time.Unix(detectedAt, 0).UTC()
		a.Kind = model.AnomalyKind(kind)
		a.Severity = model.Severity(severity)
		a.Notified = notified != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// AnomaliesSince counts anomalies across all symbols detected at or after ts.
func (s *Store) AnomaliesSince(ctx context.Context, ts int64) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anomalies WHERE detected_at >= ?`, ts)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// AppendCollectorStats inserts one cycle summary row.
func (s *Store) AppendCollectorStats(ctx context.Context, cs model.CollectorStats) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO collector_stats (cycle_ts, duration_sec, requests_ok, requests_fail, pairs_collected, anomalies_found)
			VALUES (?, ?, ?, ?, ?, ?)`,
			cs.CycleTS, cs.DurationSec, cs.RequestsOK, cs.RequestsFail, cs.PairsCollected, cs.AnomaliesFound)
		return err
	})
}
