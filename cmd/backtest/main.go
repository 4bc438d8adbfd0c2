// Command backtest replays a symbol's stored history against one of the two
// signal-enumeration strategies and simulates SHORT trades against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vvriasc-boop/MarketDataCollector/internal/backtest"
	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/store"
)

func main() {
	symbol := flag.String("symbol", "", "symbol to backtest, e.g. BTCUSDT")
	strategy := flag.String("strategy", "oi_flush", "oi_flush or ls_taker")
	dbPath := flag.String("db", "./data/monitor.db", "path to the monitor's SQLite database")
	tp := flag.Float64("tp", 3.0, "take-profit percent")
	sl := flag.Float64("sl", 2.0, "stop-loss percent")
	maxHold := flag.Int("max-hold", 48, "max hold points before timeout close, 0 disables")
	flag.Parse()

	log := logging.Global()
	if *symbol == "" {
		fmt.Fprintln(os.Stderr, "-symbol is required")
		os.Exit(2)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open store failed", err, nil)
	}
	defer db.Close()

	ctx := context.Background()
	history, err := db.OIHistory(ctx, *symbol, 1_000_000)
	if err != nil {
		log.Fatalf("load oi history failed", err, nil)
	}
	if len(history) == 0 {
		fmt.Printf("no OI history for %s\n", *symbol)
		return
	}

	prices := make([]backtest.PricePoint, len(history))
	for i, h := range history {
		prices[i] = backtest.PricePoint{Timestamp: h.Timestamp, Price: h.MarkPrice}
	}

	sigCfg := backtest.SignalConfig{
		WindowSize: 24, SignalCooldown: 6,
		OIBuildupThreshold: 3.0, OIFlushCurrentMax: 2.0, OIFlushDropPct: 2.0, OIBuildupMinPoints: 12,
		LSZScore: 2.0, LSMinAbs: 1.5, LSMinDatapoints: 24, TakerThreshold: 1.0,
	}

	var signals []backtest.Signal
	switch *strategy {
	case "oi_flush":
		signals = backtest.EnumerateOIFlush(*symbol, history, sigCfg)
	case "ls_taker":
		series, err := loadLSTakerSeries(ctx, db, *symbol)
		if err != nil {
			log.Fatalf("load ls/taker series failed", err, nil)
		}
		signals = backtest.EnumerateLSTaker(*symbol, series, sigCfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown strategy %q\n", *strategy)
		os.Exit(2)
	}

	trades := backtest.SimulateAll(signals, prices, *tp, *sl, *maxHold)

	wins, closed := 0, 0
	var totalPnL float64
	for _, t := range trades {
		if t.Outcome == backtest.OutcomeOpen {
			continue
		}
		closed++
		totalPnL += t.PnLPct
		if t.PnLPct > 0 {
			wins++
		}
		fmt.Printf("%s  entry=%.4f  outcome=%-8s  pnl=%.2f%%\n", t.Signal.Symbol, t.Signal.EntryPrice, t.Outcome, t.PnLPct)
	}

	fmt.Printf("\nsignals=%d closed=%d wins=%d total_pnl=%.2f%%\n", len(signals), closed, wins, totalPnL)
}

func loadLSTakerSeries(ctx context.Context, db *store.Store, symbol string) ([]backtest.LSTakerSeries, error) {
	ls, err := db.LSHistory(ctx, symbol, 1_000_000)
	if err != nil {
		return nil, err
	}
	taker, err := db.TakerHistory(ctx, symbol, 1_000_000)
	if err != nil {
		return nil, err
	}
	oi, err := db.OIHistory(ctx, symbol, 1_000_000)
	if err != nil {
		return nil, err
	}

	takerByTS := make(map[int64]float64, len(taker))
	for _, t := range taker {
		takerByTS[t.Timestamp] = t.BuySellRatio
	}
	priceByTS := make(map[int64]float64, len(oi))
	for _, o := range oi {
		priceByTS[o.Timestamp] = o.MarkPrice
	}

	out := make([]backtest.LSTakerSeries, 0, len(ls))
	for _, l := range ls {
		out = append(out, backtest.LSTakerSeries{
			Timestamp: l.Timestamp,
			LSRatio:   l.Ratio,
			Taker:     takerByTS[l.Timestamp],
			MarkPrice: priceByTS[l.Timestamp],
		})
	}
	return out, nil
}
