package store

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// archivableTable names one of the append-only timeseries tables plus the
// columns to dump, in order, when rows age out of the hot store.
type archivableTable struct {
	name    string
	columns []string
}

var archivableTables = []archivableTable{
	{"open_interest", []string{"timestamp", "symbol_id", "oi_contracts", "oi_usd", "mark_price"}},
	{"funding_rate", []string{"timestamp", "symbol_id", "rate", "next_funding_time"}},
	{"long_short_ratio", []string{"timestamp", "symbol_id", "ratio", "long_pct", "short_pct"}},
	{"taker_ratio", []string{"timestamp", "symbol_id", "buy_sell_ratio", "buy_vol", "sell_vol"}},
}

// ArchiveCursor returns the cutoff of the last archival pass that exported
// rows from table (every row strictly older than it has been archived), or 0
// if no pass has archived any of its rows.
func (s *Store) ArchiveCursor(ctx context.Context, table string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT cursor_ts FROM archive_cursor WHERE table_name = ?`, table)
	var cursor int64
	if err := row.Scan(&cursor); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return cursor, nil
}

// ArchiveOlderThan exports every row older than cutoff to a gzip-compressed
// CSV under dir (one file per table per day), then deletes the exported
// rows and advances the table's cursor. Rows exactly at cutoff are kept,
// matching the retention boundary the scheduled driver expects.
func (s *Store) ArchiveOlderThan(ctx context.Context, dir string, cutoff time.Time) (map[string]int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	dayLabel := cutoff.UTC().Format("2006-01-02")
	counts := make(map[string]int, len(archivableTables))

	for _, t := range archivableTables {
		n, err := s.archiveTable(ctx, dir, dayLabel, t, cutoff.Unix())
		if err != nil {
			return counts, fmt.Errorf("archive %s: %w", t.name, err)
		}
		counts[t.name] = n
	}
	return counts, nil
}

func (s *Store) archiveTable(ctx context.Context, dir, dayLabel string, t archivableTable, cutoffTS int64) (int, error) {
	cols := ""
	for i, c := range t.columns {
		if i > 0 {
			cols += ", "
		}
		cols += c
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE timestamp < ? ORDER BY timestamp`, cols, t.name), cutoffTS)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv.gz", t.name, dayLabel))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	defer gz.Close()
	w := csv.NewWriter(gz)
	defer w.Flush()

	vals := make([]interface{}, len(t.columns))
	ptrs := make([]interface{}, len(t.columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	n := 0
	record := make([]string, len(t.columns))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return n, err
		}
		for i, v := range vals {
			record[i] = formatCSVValue(v)
		}
		if err := w.Write(record); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return n, err
	}

	if n == 0 {
		return 0, nil
	}

	err = s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, t.name), cutoffTS); err != nil {
			return err
		}
		_, err := tx.Exec(`
			INSERT INTO archive_cursor (table_name, cursor_ts) VALUES (?, ?)
			ON CONFLICT(table_name) DO UPDATE SET cursor_ts=excluded.cursor_ts`, t.name, cutoffTS)
		return err
	})
	return n, err
}

func formatCSVValue(v interface{}) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Reclaim runs SQLite's incremental optimizer and a passive WAL checkpoint,
// called by the archival driver after a deletion pass frees a meaningful
// number of pages.
func (s *Store) Reclaim(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `PRAGMA optimize`); err != nil {
		return fmt.Errorf("pragma optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(PASSIVE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}
