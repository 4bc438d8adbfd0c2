package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertSymbolsAndSymbolMap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids, err := s.UpsertSymbols(ctx, []string{"BTCUSDT", "ETHUSDT"}, map[string]string{"BTCUSDT": "BTC", "ETHUSDT": "ETH"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(ids))
	}

	// Re-upserting the same names should update, not duplicate.
	ids2, err := s.UpsertSymbols(ctx, []string{"BTCUSDT"}, map[string]string{"BTCUSDT": "BTC"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if ids2["BTCUSDT"] != ids["BTCUSDT"] {
		t.Error("expected the same symbol id across upserts")
	}
}

func TestSetHotAppliesThreshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertSymbols(ctx, []string{"BTCUSDT", "DOGEUSDT"}, nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetHot(ctx, map[string]float64{"BTCUSDT": 2e6, "DOGEUSDT": 1e3}, 1e6); err != nil {
		t.Fatal(err)
	}
	hot, err := s.HotSymbols(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(hot) != 1 || hot[0] != "BTCUSDT" {
		t.Errorf("expected only BTCUSDT to be hot, got %v", hot)
	}
}

func TestInsertOIAndHistoryRoundTripOldestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids, err := s.UpsertSymbols(ctx, []string{"BTCUSDT"}, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	rows := []model.OISample{
		{Symbol: "BTCUSDT", Timestamp: 300, OIContracts: 100, OIUSD: 1000, MarkPrice: 10},
		{Symbol: "BTCUSDT", Timestamp: 100, OIContracts: 90, OIUSD: 900, MarkPrice: 10},
		{Symbol: "BTCUSDT", Timestamp: 200, OIContracts: 95, OIUSD: 950, MarkPrice: 10},
	}
	if err := s.InsertOI(ctx, ids, rows); err != nil {
		t.Fatal(err)
	}

	hist, err := s.OIHistory(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Timestamp < hist[i-1].Timestamp {
			t.Fatal("expected OIHistory to return rows oldest-first")
		}
	}
}

func TestInsertOIIsIdempotentOnConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids, err := s.UpsertSymbols(ctx, []string{"BTCUSDT"}, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	row := []model.OISample{{Symbol: "BTCUSDT", Timestamp: 100, OIContracts: 1, OIUSD: 10, MarkPrice: 10}}
	if err := s.InsertOI(ctx, ids, row); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertOI(ctx, ids, row); err != nil {
		t.Fatal(err)
	}
	hist, err := s.OIHistory(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected the duplicate insert to be ignored, got %d rows", len(hist))
	}
}

func TestSaveStatsAndLoadStatsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertSymbols(ctx, []string{"BTCUSDT"}, nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	stats := model.SymbolStats{Symbol: "BTCUSDT", UpdatedAt: time.Now().UTC(), MeanFunding: 0.001, HasFunding: true, AvgOIUSD: 5e6}
	if err := s.SaveStats(ctx, stats); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadStats(ctx, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.MeanFunding != 0.001 || !got.HasFunding {
		t.Fatalf("unexpected stats round-trip: %+v", got)
	}

	// Re-saving should upsert in place, not duplicate.
	stats.MeanFunding = 0.002
	if err := s.SaveStats(ctx, stats); err != nil {
		t.Fatal(err)
	}
	got2, err := s.LoadStats(ctx, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if got2.MeanFunding != 0.002 {
		t.Errorf("expected updated mean funding 0.002, got %.4f", got2.MeanFunding)
	}
}

func TestAppendAnomalyAndRecentAnomalies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertSymbols(ctx, []string{"BTCUSDT"}, nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	a := model.Anomaly{
		Symbol: "BTCUSDT", Kind: model.KindFundingSpike, Severity: model.SeverityHigh,
		DetectedAt: time.Now().UTC(), CycleTS: 1000, Value: 0.01, Description: "test",
	}
	id, err := s.AppendAnomaly(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero assigned id")
	}
	recent, err := s.RecentAnomalies(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected recent anomalies: %+v", recent)
	}
}
