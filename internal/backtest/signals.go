// Package backtest replays stored OI and ratio series offline to enumerate
// entry signals, simulate SHORT trades against them, and grid-search
// TP/SL configurations.
package backtest

import (
	"math"

	"github.com/vvriasc-boop/MarketDataCollector/internal/anomaly"
	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

// Signal is one candidate SHORT entry point, at OI sample index EntryIndex
// in the series it was enumerated from.
type Signal struct {
	Symbol     string
	EntryIndex int
	EntryTS    int64
	EntryPrice float64
	Strategy   string // "oi_flush" or "ls_taker"

	LSRatio  float64
	HasLS    bool
	Taker    float64
	HasTaker bool
}

// SignalConfig tunes both enumeration strategies.
type SignalConfig struct {
	WindowSize   int
	SignalCooldown int

	OIBuildupThreshold float64
	OIFlushCurrentMax  float64
	OIFlushDropPct     float64
	OIBuildupMinPoints int

	LSZScore       float64
	LSMinAbs       float64
	LSMinDatapoints int
	TakerThreshold float64
}

// EnumerateOIFlush scans OI history in windows of WindowSize for the shared
// flush pattern, enforcing a per-symbol cooldown of SignalCooldown sample
// indices between emitted signals.
func EnumerateOIFlush(symbol string, history []model.OISample, cfg SignalConfig) []Signal {
	var out []Signal
	lastSignalIdx := -cfg.SignalCooldown - 1

	for end := cfg.WindowSize; end <= len(history); end++ {
		window := history[end-cfg.WindowSize : end]
		sig := anomaly.ScanOIFlush(window, cfg.OIBuildupThreshold, cfg.OIFlushCurrentMax, cfg.OIFlushDropPct, cfg.OIBuildupMinPoints)
		if sig == nil {
			continue
		}
		idx := end - 1
		if idx-lastSignalIdx < cfg.SignalCooldown {
			continue
		}
		out = append(out, Signal{
			Symbol: symbol, EntryIndex: idx, EntryTS: history[idx].Timestamp,
			EntryPrice: history[idx].MarkPrice, Strategy: "oi_flush",
		})
		lastSignalIdx = idx
	}
	return out
}

// LSTakerSeries is one aligned sample of L/S ratio, taker ratio, and mark
// price at a timestamp, used for the L/S + taker enumeration strategy.
type LSTakerSeries struct {
	Timestamp int64
	LSRatio   float64
	Taker     float64
	MarkPrice float64
}

// EnumerateLSTaker computes an adaptive L/S threshold from the series' own
// mean/stddev (floored at LSMinAbs) and emits a signal wherever L/S exceeds
// it and taker is below TakerThreshold, subject to the same cooldown.
func EnumerateLSTaker(symbol string, series []LSTakerSeries, cfg SignalConfig) []Signal {
	if len(series) < cfg.LSMinDatapoints {
		return nil
	}

	ls := make([]float64, len(series))
	for i, s := range series {
		ls[i] = s.LSRatio
	}
	mean, std := meanStdDev(ls)
	threshold := mean + cfg.LSZScore*std
	if threshold < cfg.LSMinAbs {
		threshold = cfg.LSMinAbs
	}

	var out []Signal
	lastSignalIdx := -cfg.SignalCooldown - 1
	for i, s := range series {
		if s.LSRatio <= threshold || s.Taker >= cfg.TakerThreshold {
			continue
		}
		if i-lastSignalIdx < cfg.SignalCooldown {
			continue
		}
		out = append(out, Signal{
			Symbol: symbol, EntryIndex: i, EntryTS: s.Timestamp, EntryPrice: s.MarkPrice, Strategy: "ls_taker",
			LSRatio: s.LSRatio, HasLS: true, Taker: s.Taker, HasTaker: true,
		})
		lastSignalIdx = i
	}
	return out
}

func meanStdDev(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
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
	return mean, std
}
