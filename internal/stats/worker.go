// Package stats computes the nightly per-symbol baseline (mean/stddev) that
// the anomaly engine uses for adaptive thresholds.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/metrics"
	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
	"github.com/vvriasc-boop/MarketDataCollector/internal/store"
)

// Config tunes the worker's run hour and data requirements.
type Config struct {
	RunHourUTC   int
	LookbackDays int
	MinPoints    int
}

// StatsRefresher is notified with the freshly computed map after each run,
// so the anomaly engine can atomically swap its baseline lookup.
type StatsRefresher func(map[string]*model.SymbolStats)

// Worker runs once per day, recomputing every active symbol's baseline.
type Worker struct {
	cfg      Config
	db       *store.Store
	refresh  StatsRefresher
	log      *logging.Logger
}

// New builds a stats worker.
func New(cfg Config, db *store.Store, refresh StatsRefresher) *Worker {
	return &Worker{cfg: cfg, db: db, refresh: refresh, log: logging.Global()}
}

// Run blocks, waking at RunHourUTC every day until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		next := nextRunTime(time.Now().UTC(), w.cfg.RunHourUTC)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			w.runOnce(ctx)
		}
	}
}

// nextRunTime returns the next occurrence of hourUTC strictly after now,
// advancing by a full day via time.Date's own month/year normalization
// rather than a naive increment of the day field, which silently produces
// invalid dates at month boundaries.
func nextRunTime(now time.Time, hourUTC int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !candidate.After(now) {
		candidate = time.Date(now.Year(), now.Month(), now.Day()+1, hourUTC, 0, 0, 0, time.UTC)
	}
	return candidate
}

func (w *Worker) runOnce(ctx context.Context) {
	start := time.Now()
	symbols, err := w.db.AllSymbols(ctx)
	if err != nil {
		w.log.Warnf("stats worker failed to load symbols", logging.Fields{"error": err.Error()})
		return
	}

	lookbackStart := time.Now().UTC().AddDate(0, 0, -w.cfg.LookbackDays).Unix()
	out := make(map[string]*model.SymbolStats, len(symbols))
	updated, skipped := 0, 0

	for _, sym := range symbols {
		st, err := w.computeOne(ctx, sym.Name, lookbackStart)
		if err != nil {
			w.log.Warnf("stats worker failed for symbol", logging.Fields{"symbol": sym.Name, "error": err.Error()})
			skipped++
			continue
		}
		if st == nil {
			skipped++
			continue
		}
		if err := w.db.SaveStats(ctx, *st); err != nil {
			w.log.Warnf("stats worker failed to save", logging.Fields{"symbol": sym.Name, "error": err.Error()})
			skipped++
			continue
		}
		out[sym.Name] = st
		updated++
	}

	if w.refresh != nil {
		w.refresh(out)
	}

	elapsed := time.Since(start).Seconds()
	metrics.StatsWorkerSymbolsUpdated.Set(float64(updated))
	metrics.StatsWorkerLastRunUnix.Set(float64(time.Now().Unix()))
	w.log.StatsLog(updated, skipped, elapsed)
}

func (w *Worker) computeOne(ctx context.Context, symbol string, lookbackStart int64) (*model.SymbolStats, error) {
	fundingHistory, err := w.db.FundingHistory(ctx, symbol, 100000)
	if err != nil {
		return nil, fmt.Errorf("funding history: %w", err)
	}
	oiHistory, err := w.db.OIHistory(ctx, symbol, 100000)
	if err != nil {
		return nil, fmt.Errorf("oi history: %w", err)
	}
	lsHistory, err := w.db.LSHistory(ctx, symbol, 100000)
	if err != nil {
		return nil, fmt.Errorf("ls history: %w", err)
	}
	takerHistory, err := w.db.TakerHistory(ctx, symbol, 100000)
	if err != nil {
		return nil, fmt.Errorf("taker history: %w", err)
	}

	fundingValues := sinceValues(fundingHistory, lookbackStart, func(f model.FundingSample) (int64, float64) { return f.Timestamp, f.Rate })
	lsValues := sinceValues(lsHistory, lookbackStart, func(l model.LSSample) (int64, float64) { return l.Timestamp, l.Ratio })
	takerValues := sinceValues(takerHistory, lookbackStart, func(t model.TakerSample) (int64, float64) { return t.Timestamp, t.BuySellRatio })
	oiChangeValues, avgOIUSD := oiChangesSince(oiHistory, lookbackStart)

	total := len(fundingValues) + len(oiChangeValues) + len(lsValues) + len(takerValues)
	if total < w.cfg.MinPoints {
		return nil, nil
	}

	meanFunding, stdFunding, hasFunding := meanStd(fundingValues)
	meanOIChange, stdOIChange, hasOIChange := meanStd(oiChangeValues)
	meanLS, stdLS, hasLS := meanStd(lsValues)
	meanTaker, stdTaker, hasTaker := meanStd(takerValues)

	return &model.SymbolStats{
		Symbol:         symbol,
		UpdatedAt:      time.Now().UTC(),
		MeanFunding:    meanFunding, StdFunding: stdFunding, HasFunding: hasFunding,
		MeanOIChange1h: meanOIChange, StdOIChange1h: stdOIChange, HasOIChange: hasOIChange,
		MeanLS: meanLS, StdLS: stdLS, HasLS: hasLS,
		MeanTaker: meanTaker, StdTaker: stdTaker, HasTaker: hasTaker,
		AvgOIUSD: avgOIUSD,
	}, nil
}

func sinceValues[T any](rows []T, lookbackStart int64, extract func(T) (int64, float64)) []float64 {
	var out []float64
	for _, r := range rows {
		ts, v := extract(r)
		if ts >= lookbackStart {
			out = append(out, v)
		}
	}
	return out
}

// oiChangesSince computes 1h OI fractional changes ((cur-prev)/prev, so 0.10
// is +10%) and the mean USD OI over
// the lookback window.
func oiChangesSince(history []model.OISample, lookbackStart int64) ([]float64, float64) {
	var changes []float64
	var usdSum float64
	var usdCount int
	for i, h := range history {
		if h.Timestamp < lookbackStart {
			continue
		}
		usdSum += h.OIUSD
		usdCount++

		prev := oiAtOrBefore(history, h.Timestamp-3600, i)
		if prev != nil && prev.OIContracts != 0 {
			changes = append(changes, (h.OIContracts-prev.OIContracts)/prev.OIContracts)
		}
	}
	avg := 0.0
	if usdCount > 0 {
		avg = usdSum / float64(usdCount)
	}
	return changes, avg
}

func oiAtOrBefore(history []model.OISample, ts int64, before int) *model.OISample {
	for i := before; i >= 0; i-- {
		if history[i].Timestamp <= ts {
			return &history[i]
		}
	}
	return nil
}

func meanStd(values []float64) (mean, std float64, has bool) {
	if len(values) == 0 {
		return 0, 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))
	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}
	std = math.Sqrt(sqDiff / float64(len(values)))
	return mean, std, true
}
