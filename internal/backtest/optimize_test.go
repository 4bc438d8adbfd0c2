package backtest

import "testing"

func TestRunGridFiltersBelowMinClosedTrades(t *testing.T) {
	signals := []Signal{
		{Symbol: "BTCUSDT", EntryIndex: 0, EntryPrice: 100},
	}
	prices := []PricePoint{
		{Timestamp: 0, Price: 100},
		{Timestamp: 300, Price: 97},
	}
	cfg := GridConfig{TPRange: []float64{3}, SLRange: []float64{3}, MaxHoldPoints: 0, MinClosedTrades: 5}

	results, err := RunGrid(signals, prices, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no combos to clear MinClosedTrades=5 with a single signal, got %d", len(results))
	}
}

func TestRunGridKeepsQualifyingCombos(t *testing.T) {
	var signals []Signal
	for i := 0; i < 5; i++ {
		signals = append(signals, Signal{Symbol: "BTCUSDT", EntryIndex: i * 2, EntryPrice: 100})
	}
	prices := make([]PricePoint, 12)
	for i := range prices {
		price := 100.0
		if i%2 == 1 {
			price = 97
		}
		prices[i] = PricePoint{Timestamp: int64(i * 300), Price: price}
	}
	cfg := GridConfig{TPRange: []float64{3}, SLRange: []float64{3}, MaxHoldPoints: 0, MinClosedTrades: 5}

	results, err := RunGrid(signals, prices, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one qualifying combo")
	}
}

func TestPickWinnersMaxProfitIsGlobalArgmax(t *testing.T) {
	results := []ComboResult{
		{Filter: FilterAll, TP: 3, SL: 2, Trades: 5, TotalPnL: 10},
		{Filter: FilterBoth, TP: 4, SL: 2, Trades: 5, TotalPnL: 25},
		{Filter: FilterLSAbove2, TP: 2, SL: 2, Trades: 5, TotalPnL: -5},
	}
	w := PickWinners(results)
	if w.MaxProfit == nil || w.MaxProfit.TotalPnL != 25 {
		t.Fatalf("expected max profit combo with pnl=25, got %+v", w.MaxProfit)
	}
}

func TestPickWinnersMaxWinRateRequiresProfitableAndFiveTrades(t *testing.T) {
	results := []ComboResult{
		{Filter: FilterAll, Trades: 4, WinRate: 90, TotalPnL: 10},  // too few trades
		{Filter: FilterAll, Trades: 5, WinRate: 80, TotalPnL: -1},  // unprofitable
		{Filter: FilterAll, Trades: 5, WinRate: 60, TotalPnL: 5},   // eligible
	}
	w := PickWinners(results)
	if w.MaxWinRate == nil || w.MaxWinRate.WinRate != 60 {
		t.Fatalf("expected the only eligible combo (60%% win rate), got %+v", w.MaxWinRate)
	}
}

func TestPickBalancedRelaxesAcrossTiers(t *testing.T) {
	// No combo clears RR>=1.5, but one clears the trades>=5 relaxed tier.
	results := []ComboResult{
		{Filter: FilterAll, TP: 2, SL: 2, RR: 1.0, Trades: 5, WinRate: 60, TotalPnL: 5},
	}
	w := PickWinners(results)
	if w.Balanced == nil {
		t.Fatal("expected pickBalanced to find a combo in the relaxed tier")
	}
}

func TestPickBalancedComparesPerFilterTierWinnersAcrossFilters(t *testing.T) {
	// FilterAll only clears the relaxed (Trades>=3) tier, but scores far
	// higher than FilterBoth's tier-1 match. pickBalanced must resolve tiers
	// within each filter independently, then pick the best-scoring winner
	// across filters — not let FilterBoth's weak tier-1 hit win just because
	// it matched an earlier tier than FilterAll's match.
	results := []ComboResult{
		{Filter: FilterBoth, TP: 1, SL: 1, RR: 2.0, Trades: 5, WinRate: 51, TotalPnL: 2},
		{Filter: FilterAll, TP: 3, SL: 2, RR: 1.0, Trades: 3, WinRate: 90, TotalPnL: 1000},
	}
	w := PickWinners(results)
	if w.Balanced == nil {
		t.Fatal("expected a balanced winner")
	}
	if w.Balanced.Filter != FilterAll {
		t.Fatalf("expected FilterAll's high-scoring relaxed-tier match to win, got %+v", w.Balanced)
	}
}

func TestPickBalancedNilWhenNothingQualifies(t *testing.T) {
	results := []ComboResult{
		{Filter: FilterAll, Trades: 1, WinRate: 20, TotalPnL: -3},
	}
	w := PickWinners(results)
	if w.Balanced != nil {
		t.Errorf("expected no balanced winner, got %+v", w.Balanced)
	}
}
