// Command optimize grid-searches TP/SL combinations across signal filters
// for a symbol and reports the three canonical ranked winners.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vvriasc-boop/MarketDataCollector/internal/analytics"
	"github.com/vvriasc-boop/MarketDataCollector/internal/backtest"
	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/store"
)

func main() {
	symbol := flag.String("symbol", "", "symbol to optimize, e.g. BTCUSDT")
	dbPath := flag.String("db", "./data/monitor.db", "path to the monitor's SQLite database")
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
	signals := backtest.EnumerateOIFlush(*symbol, history, sigCfg)

	gridCfg := backtest.GridConfig{
		TPRange:         rangeFloat(1, 10, 1),
		SLRange:         rangeFloat(1, 10, 1),
		MaxHoldPoints:   48,
		MinClosedTrades: 3,
		TopN:            3,
	}

	results, err := backtest.RunGrid(signals, prices, gridCfg)
	if err != nil {
		log.Fatalf("grid search failed", err, nil)
	}

	winners := backtest.PickWinners(results)
	printWinner("max profit", winners.MaxProfit)
	printWinner("max win rate", winners.MaxWinRate)
	printWinner("balanced", winners.Balanced)

	heatmap := backtest.Heatmap(results)
	fmt.Println("\nTP x SL total-P&L heatmap (unfiltered):")
	for _, tp := range gridCfg.TPRange {
		for _, sl := range gridCfg.SLRange {
			fmt.Printf("%6.2f", heatmap[tp][sl])
		}
		fmt.Println()
	}

	if dsn := os.Getenv("ANALYTICS_POSTGRES_DSN"); dsn != "" {
		sink, err := analytics.Open(ctx, dsn)
		if err != nil {
			log.Warnf("analytics sink unavailable", logging.Fields{"error": err.Error()})
		} else {
			defer sink.Close()
			if err := sink.RecordWinners(ctx, winners); err != nil {
				log.Warnf("analytics sink write failed", logging.Fields{"error": err.Error()})
			}
		}
	}
}

func printWinner(label string, r *backtest.ComboResult) {
	if r == nil {
		fmt.Printf("%-14s: no qualifying combo\n", label)
		return
	}
	fmt.Printf("%-14s: filter=%-12s tp=%.1f sl=%.1f trades=%d win_rate=%.1f%% total_pnl=%.2f%% profit_factor=%.2f\n",
		label, r.Filter, r.TP, r.SL, r.Trades, r.WinRate, r.TotalPnL, r.ProfitFactor)
}

func rangeFloat(start, end, step float64) []float64 {
	var out []float64
	for v := start; v <= end; v += step {
		out = append(out, v)
	}
	return out
}
