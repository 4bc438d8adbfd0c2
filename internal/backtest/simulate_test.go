package backtest

import "testing"

func TestSimulateShortTakeProfit(t *testing.T) {
	sig := Signal{EntryIndex: 0, EntryPrice: 100}
	prices := []PricePoint{
		{Timestamp: 0, Price: 100},
		{Timestamp: 300, Price: 97}, // -3% move: reaches the short's TP(3); SL(3) needs +3%
	}
	trade := SimulateShort(sig, prices, 3, 3, 0)
	if trade.Outcome != OutcomeTP {
		t.Fatalf("expected TP, got %s", trade.Outcome)
	}
	if trade.PnLPct != 3 {
		t.Errorf("expected pnl=3, got %.2f", trade.PnLPct)
	}
}

func TestSimulateShortStopLoss(t *testing.T) {
	sig := Signal{EntryIndex: 0, EntryPrice: 100}
	prices := []PricePoint{
		{Timestamp: 0, Price: 100},
		{Timestamp: 300, Price: 103},
	}
	trade := SimulateShort(sig, prices, 5, 2, 0)
	if trade.Outcome != OutcomeSL {
		t.Fatalf("expected SL, got %s", trade.Outcome)
	}
	if trade.PnLPct != -2 {
		t.Errorf("expected pnl=-2, got %.2f", trade.PnLPct)
	}
}

func TestSimulateShortTimeoutClosesAtUnrealizedPnL(t *testing.T) {
	sig := Signal{EntryIndex: 0, EntryPrice: 100}
	prices := []PricePoint{
		{Timestamp: 0, Price: 100},
		{Timestamp: 300, Price: 101},
		{Timestamp: 600, Price: 101},
	}
	trade := SimulateShort(sig, prices, 10, 10, 2)
	if trade.Outcome != OutcomeTime {
		t.Fatalf("expected timeout close, got %s", trade.Outcome)
	}
	if trade.PnLPct != -1 {
		t.Errorf("expected pnl=-1 (short losing 1%% unrealized), got %.2f", trade.PnLPct)
	}
}

func TestSimulateShortOpenWhenDataRunsOut(t *testing.T) {
	sig := Signal{EntryIndex: 0, EntryPrice: 100}
	prices := []PricePoint{
		{Timestamp: 0, Price: 100},
		{Timestamp: 300, Price: 100.5},
	}
	trade := SimulateShort(sig, prices, 10, 10, 0)
	if trade.Outcome != OutcomeOpen {
		t.Fatalf("expected open trade, got %s", trade.Outcome)
	}
}
