package anomaly

import (
	"fmt"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

// FlushSignal describes one detected buildup-then-drop window, shared by the
// live engine and the offline backtester so both scan the same way.
type FlushSignal struct {
	Index       int // index into the OI history slice where the drop is observed
	PeakPct     float64
	CurrentPct  float64
	BuildupFrom int
	BuildupTo   int
}

// ScanOIFlush looks for the longest contiguous run of percentage-from-start
// points at or above buildupThreshold that reaches to within minPoints of
// the window's end, followed by a drop of at least dropPct from the run's
// peak down to a current value below currentMax. Returns nil if no such
// pattern exists in history.
func ScanOIFlush(history []model.OISample, buildupThreshold, currentMax, dropPct float64, minPoints int) *FlushSignal {
	n := len(history)
	if n == 0 {
		return nil
	}
	base := history[0].OIContracts
	if base == 0 {
		return nil
	}
	pct := make([]float64, n)
	for i, h := range history {
		pct[i] = (h.OIContracts - base) / base * 100
	}

	bestStart, bestEnd := -1, -1
	runStart := -1
	for i := 0; i < n; i++ {
		if pct[i] >= buildupThreshold {
			if runStart == -1 {
				runStart = i
			}
			if i == n-1 || pct[i+1] < buildupThreshold {
				if runStart != -1 && i-runStart+1 > bestEnd-bestStart {
					bestStart, bestEnd = runStart, i
				}
				runStart = -1
			}
		}
	}
	if bestStart == -1 {
		return nil
	}

	runLen := bestEnd - bestStart + 1
	if runLen < minPoints {
		return nil
	}
	if bestEnd < n-minPoints {
		return nil
	}

	current := pct[n-1]
	if current >= currentMax {
		return nil
	}

	peak := pct[bestStart]
	for i := bestStart; i <= bestEnd; i++ {
		if pct[i] > peak {
			peak = pct[i]
		}
	}

	if peak-current < dropPct {
		return nil
	}

	return &FlushSignal{
		Index:       n - 1,
		PeakPct:     peak,
		CurrentPct:  current,
		BuildupFrom: bestStart,
		BuildupTo:   bestEnd,
	}
}

// detectOIFlush evaluates the shared flush scan against the live store's
// gating thresholds, cooldown, and context-dependent interpretation.
func (e *Engine) detectOIFlush(cycleTS int64, now time.Time, fv model.FreshValues, history []model.OISample, severity model.Severity) *model.Anomaly {
	if e.onCooldown(fv.Symbol, model.KindOIFlush, now) {
		return nil
	}
	sig := ScanOIFlush(history, e.thresholds.OIBuildupThreshold, e.thresholds.OIFlushCurrentMax, e.thresholds.OIFlushDropPct, e.thresholds.OIBuildupMinPoints)
	if sig == nil {
		return nil
	}

	peakSample := history[sig.BuildupFrom]
	for i := sig.BuildupFrom; i <= sig.BuildupTo; i++ {
		if history[i].OIUSD > peakSample.OIUSD {
			peakSample = history[i]
		}
	}
	current := history[len(history)-1]
	buildupDuration := time.Unix(history[sig.BuildupTo].Timestamp, 0).Sub(time.Unix(history[sig.BuildupFrom].Timestamp, 0))
	dropDuration := time.Unix(current.Timestamp, 0).Sub(time.Unix(history[sig.BuildupTo].Timestamp, 0))

	interpretation := interpretFlush(fv)

	desc := fmt.Sprintf(
		"OI flush: peak %.0f USD after %s buildup, now %.0f USD, dropped %.2f%% over %s (%s)",
		peakSample.OIUSD, buildupDuration.Round(time.Minute), current.OIUSD, sig.PeakPct-sig.CurrentPct, dropDuration.Round(time.Minute), interpretation,
	)

	a := e.newAnomaly(cycleTS, now, fv.Symbol, model.KindOIFlush, severity, sig.PeakPct-sig.CurrentPct, desc)
	e.arm(fv.Symbol, model.KindOIFlush, now)
	return &a
}

func interpretFlush(fv model.FreshValues) string {
	switch {
	case fv.HasFunding && fv.Funding > 0 && fv.HasLS && fv.LSRatio > 2.0:
		return "long liquidation"
	case fv.HasFunding && fv.Funding < 0 && fv.HasLS && fv.LSRatio < 1.0:
		return "short liquidation"
	case fv.HasTaker && fv.TakerRatio < 1.0:
		return "aggressive spot selling"
	default:
		return "position flush"
	}
}
