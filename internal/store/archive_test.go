package store

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

func TestArchiveOlderThanKeepsRowExactlyAtCutoff(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids, err := s.UpsertSymbols(ctx, []string{"BTCUSDT"}, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	cutoff := time.Unix(100000, 0).UTC()
	rows := []model.OISample{
		{Symbol: "BTCUSDT", Timestamp: cutoff.Unix() - 1, OIContracts: 1, OIUSD: 10, MarkPrice: 1}, // strictly older: archived
		{Symbol: "BTCUSDT", Timestamp: cutoff.Unix(), OIContracts: 2, OIUSD: 20, MarkPrice: 1},      // exactly at cutoff: kept
		{Symbol: "BTCUSDT", Timestamp: cutoff.Unix() + 1, OIContracts: 3, OIUSD: 30, MarkPrice: 1},  // newer: kept
	}
	if err := s.InsertOI(ctx, ids, rows); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	counts, err := s.ArchiveOlderThan(ctx, dir, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if counts["open_interest"] != 1 {
		t.Fatalf("expected exactly 1 archived row, got %d", counts["open_interest"])
	}

	remaining, err := s.OIHistory(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 rows to remain (at and after cutoff), got %d", len(remaining))
	}
	if remaining[0].Timestamp != cutoff.Unix() {
		t.Errorf("expected the row exactly at cutoff to be the oldest survivor, got ts=%d", remaining[0].Timestamp)
	}
}

func TestArchiveOlderThanWritesGzipCSV(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids, err := s.UpsertSymbols(ctx, []string{"BTCUSDT"}, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	cutoff := time.Unix(100000, 0).UTC()
	row := []model.OISample{{Symbol: "BTCUSDT", Timestamp: cutoff.Unix() - 1, OIContracts: 1, OIUSD: 10, MarkPrice: 1}}
	if err := s.InsertOI(ctx, ids, row); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if _, err := s.ArchiveOlderThan(ctx, dir, cutoff); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "open_interest_"+cutoff.Format("2006-01-02")+".csv.gz")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("expected archive file to exist: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer gz.Close()
	records, err := csv.NewReader(gz).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 CSV record, got %d", len(records))
	}
}

func TestArchiveCursorAdvancesAfterArchival(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids, err := s.UpsertSymbols(ctx, []string{"BTCUSDT"}, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	cutoff := time.Unix(100000, 0).UTC()
	row := []model.OISample{{Symbol: "BTCUSDT", Timestamp: cutoff.Unix() - 1, OIContracts: 1, OIUSD: 10, MarkPrice: 1}}
	if err := s.InsertOI(ctx, ids, row); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ArchiveOlderThan(ctx, t.TempDir(), cutoff); err != nil {
		t.Fatal(err)
	}
	cursor, err := s.ArchiveCursor(ctx, "open_interest")
	if err != nil {
		t.Fatal(err)
	}
	if cursor != cutoff.Unix() {
		t.Errorf("expected cursor to advance to %d, got %d", cutoff.Unix(), cursor)
	}
}
