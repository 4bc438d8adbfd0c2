// Package anomaly implements the adaptive-threshold and pattern detectors
// that turn a symbol's freshest readings into anomaly records.
package anomaly

import (
	"fmt"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

// Thresholds holds the static fallback thresholds used when a symbol has no
// baseline stats yet, plus the tunables for the combined and flush detectors.
type Thresholds struct {
	FundingSpike  float64
	OISurge       float64
	LSExtreme     float64
	TakerExtreme  float64

	OIBuildupThreshold float64
	OIBuildupMinPoints int
	OIFlushDropPct     float64
	OIFlushCurrentMax  float64
	OIFlushLookback    int

	MinHistoryForAnomaly int
	SeverityCriticalOI   float64
	SeverityMediumOI     float64

	AlertCooldown    time.Duration
	OIFlushCooldown  time.Duration
}

// StatsLookup returns the baseline stats for a symbol, or nil if none exist.
type StatsLookup func(symbol string) *model.SymbolStats

// OIHistoryLookup returns up to n of the most recent OI samples for symbol,
// oldest first.
type OIHistoryLookup func(symbol string, n int) []model.OISample

// TopNLookup reports whether symbol is in the top-N symbols by average OI.
type TopNLookup func(symbol string) bool

// Engine evaluates anomaly detectors for one symbol at a time. Its data
// dependencies are injected as callbacks so it can be exercised without a
// live store.
type Engine struct {
	thresholds Thresholds
	stats      StatsLookup
	oiHistory  OIHistoryLookup
	topN       TopNLookup

	cooldowns map[cooldownKey]time.Time
}

type cooldownKey struct {
	symbol string
	kind   model.AnomalyKind
}

// New builds an engine with its data dependencies injected.
func New(thresholds Thresholds, stats StatsLookup, oiHistory OIHistoryLookup, topN TopNLookup) *Engine {
	return &Engine{
		thresholds: thresholds,
		stats:      stats,
		oiHistory:  oiHistory,
		topN:       topN,
		cooldowns:  make(map[cooldownKey]time.Time),
	}
}

// SetStatsLookup replaces the stats callback, used when the stats worker
// atomically refreshes the in-memory map the engine reads from.
func (e *Engine) SetStatsLookup(fn StatsLookup) { e.stats = fn }

// SetTopN replaces the top-N-by-average-OI callback, called once per cycle
// by the collector after it recomputes the set from the current stats.
func (e *Engine) SetTopN(fn TopNLookup) { e.topN = fn }

func (e *Engine) cooldownFor(kind model.AnomalyKind) time.Duration {
	if kind == model.KindOIFlush {
		return e.thresholds.OIFlushCooldown
	}
	return e.thresholds.AlertCooldown
}

func (e *Engine) onCooldown(symbol string, kind model.AnomalyKind, now time.Time) bool {
	key := cooldownKey{symbol, kind}
	until, ok := e.cooldowns[key]
	return ok && now.Before(until)
}

func (e *Engine) arm(symbol string, kind model.AnomalyKind, now time.Time) {
	e.cooldowns[cooldownKey{symbol, kind}] = now.Add(e.cooldownFor(kind))
}

// Evaluate runs every detector for one symbol's freshest values and returns
// zero or more anomalies for cycleTS.
func (e *Engine) Evaluate(cycleTS int64, now time.Time, fv model.FreshValues) []model.Anomaly {
	history := e.oiHistory(fv.Symbol, e.thresholds.OIFlushLookback)
	if len(history) < e.thresholds.MinHistoryForAnomaly {
		return nil
	}

	stats := e.stats(fv.Symbol)
	severity := e.severity(fv.Symbol, stats)

	var out []model.Anomaly
	firedFunding := false
	firedOISurge := false
	firedLS := false
	var oiChange float64

	if fv.HasFunding {
		threshold := e.thresholds.FundingSpike
		if stats != nil && stats.HasFunding && stats.StdFunding > 0 {
			threshold = absF(stats.MeanFunding) + 3*stats.StdFunding
		}
		if absF(fv.Funding) > threshold {
			firedFunding = true
			if !e.onCooldown(fv.Symbol, model.KindFundingSpike, now) {
				out = append(out, e.newAnomaly(cycleTS, now, fv.Symbol, model.KindFundingSpike, severity, fv.Funding,
					fmt.Sprintf("funding rate %.5f exceeds threshold %.5f", fv.Funding, threshold)))
				e.arm(fv.Symbol, model.KindFundingSpike, now)
			}
		}
	}

	if prevIdx := len(history) - 1; prevIdx >= 0 {
		prev := oiAtOrBefore(history, cycleTS-3600)
		if prev != nil && prev.OIContracts != 0 {
			oiChange = (history[prevIdx].OIContracts - prev.OIContracts) / prev.OIContracts
			threshold := e.thresholds.OISurge
			if stats != nil && stats.HasOIChange && stats.StdOIChange1h > 0 {
				threshold = absF(stats.MeanOIChange1h) + 3*stats.StdOIChange1h
			}
			if absF(oiChange) > threshold {
				firedOISurge = true
				if !e.onCooldown(fv.Symbol, model.KindOISurge, now) {
					direction := "surge"
					if oiChange < 0 {
						direction = "drop"
					}
					out = append(out, e.newAnomaly(cycleTS, now, fv.Symbol, model.KindOISurge, severity, oiChange,
						fmt.Sprintf("open interest %s of %.2f%% over 1h", direction, oiChange*100)))
					e.arm(fv.Symbol, model.KindOISurge, now)
				}
			}
		}
	}

	if fv.HasLS {
		threshold := e.thresholds.LSExtreme
		if stats != nil && stats.HasLS && stats.StdLS > 0 {
			threshold = stats.MeanLS + 3*stats.StdLS
		}
		if fv.LSRatio > threshold {
			firedLS = true
			if !e.onCooldown(fv.Symbol, model.KindLSExtreme, now) {
				out = append(out, e.newAnomaly(cycleTS, now, fv.Symbol, model.KindLSExtreme, severity, fv.LSRatio,
					fmt.Sprintf("long/short ratio %.2f exceeds threshold %.2f", fv.LSRatio, threshold)))
				e.arm(fv.Symbol, model.KindLSExtreme, now)
			}
		}
	}

	if fv.HasTaker {
		threshold := e.thresholds.TakerExtreme
		if stats != nil && stats.HasTaker && stats.StdTaker > 0 {
			threshold = stats.MeanTaker + 3*stats.StdTaker
		}
		if fv.TakerRatio > threshold {
			if !e.onCooldown(fv.Symbol, model.KindTakerExtreme, now) {
				out = append(out, e.newAnomaly(cycleTS, now, fv.Symbol, model.KindTakerExtreme, severity, fv.TakerRatio,
					fmt.Sprintf("taker buy/sell ratio %.2f exceeds threshold %.2f", fv.TakerRatio, threshold)))
				e.arm(fv.Symbol, model.KindTakerExtreme, now)
			}
		}
	}

	if firedFunding && firedOISurge && firedLS && !e.onCooldown(fv.Symbol, model.KindCombinedOverheat, now) {
		out = append(out, e.newAnomaly(cycleTS, now, fv.Symbol, model.KindCombinedOverheat, severity, fv.Funding,
			"funding, open-interest and long/short signals fired together: overheat"))
		e.arm(fv.Symbol, model.KindCombinedOverheat, now)
	}

	if firedFunding && firedOISurge && fv.HasPrevFunding && signOf(fv.Funding) != 0 && signOf(fv.PrevFunding) != 0 && signOf(fv.Funding) != signOf(fv.PrevFunding) &&
		!e.onCooldown(fv.Symbol, model.KindCombinedCapitulation, now) {
		out = append(out, e.newAnomaly(cycleTS, now, fv.Symbol, model.KindCombinedCapitulation, severity, fv.Funding,
			"funding flipped sign alongside an open-interest surge: capitulation"))
		e.arm(fv.Symbol, model.KindCombinedCapitulation, now)
	}

	if flush := e.detectOIFlush(cycleTS, now, fv, history, severity); flush != nil {
		out = append(out, *flush)
	}

	return out
}

func (e *Engine) severity(symbol string, stats *model.SymbolStats) model.Severity {
	if stats == nil {
		return model.SeverityMedium
	}
	switch {
	case stats.AvgOIUSD > e.thresholds.SeverityCriticalOI:
		return model.SeverityCritical
	case e.topN(symbol):
		return model.SeverityHigh
	case stats.AvgOIUSD > e.thresholds.SeverityMediumOI:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func (e *Engine) newAnomaly(cycleTS int64, now time.Time, symbol string, kind model.AnomalyKind, severity model.Severity, value float64, desc string) model.Anomaly {
	return model.Anomaly{
		DetectedAt:  now,
		CycleTS:     cycleTS,
		Symbol:      symbol,
		Kind:        kind,
		Severity:    severity,
		Value:       value,
		Description: desc,
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func signOf(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func oiAtOrBefore(history []model.OISample, ts int64) *model.OISample {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Timestamp <= ts {
			return &history[i]
		}
	}
	return nil
}
