package backtest

// TradeOutcome is the terminal state of one simulated SHORT trade.
type TradeOutcome string

const (
	OutcomeTP   TradeOutcome = "tp"
	OutcomeSL   TradeOutcome = "sl"
	OutcomeTime TradeOutcome = "timeout"
	OutcomeOpen TradeOutcome = "open"
)

// Trade is one simulated SHORT position opened at a signal.
type Trade struct {
	Signal  Signal
	Outcome TradeOutcome
	PnLPct  float64 // positive is profit for the short
	ExitIdx int
}

// PricePoint is one mark-price observation in the replay series, aligned to
// the same index space as the signal's originating OI history.
type PricePoint struct {
	Timestamp int64
	Price     float64
}

// SimulateShort walks prices starting just after sig's entry index, closing
// the trade on the first TP or SL breach, on a MAX_HOLD_POINTS timeout
// closed at the unrealised P&L of that moment, or leaving it open if the
// series runs out first. TP is checked before SL on a tie index.
func SimulateShort(sig Signal, prices []PricePoint, tp, sl float64, maxHoldPoints int) Trade {
	entry := sig.EntryPrice
	held := 0
	for i := sig.EntryIndex + 1; i < len(prices); i++ {
		pct := (prices[i].Price - entry) / entry * 100
		held++

		if pct <= -tp {
			return Trade{Signal: sig, Outcome: OutcomeTP, PnLPct: tp, ExitIdx: i}
		}
		if pct >= sl {
			return Trade{Signal: sig, Outcome: OutcomeSL, PnLPct: -sl, ExitIdx: i}
		}
		if maxHoldPoints > 0 && held >= maxHoldPoints {
			return Trade{Signal: sig, Outcome: OutcomeTime, PnLPct: -pct, ExitIdx: i}
		}
	}
	return Trade{Signal: sig, Outcome: OutcomeOpen, PnLPct: 0, ExitIdx: len(prices) - 1}
}

// SimulateAll runs SimulateShort for every signal against the same price
// series.
func SimulateAll(signals []Signal, prices []PricePoint, tp, sl float64, maxHoldPoints int) []Trade {
	out := make([]Trade, 0, len(signals))
	for _, sig := range signals {
		out = append(out, SimulateShort(sig, prices, tp, sl, maxHoldPoints))
	}
	return out
}
