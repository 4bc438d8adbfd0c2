package anomaly

import (
	"testing"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

func testThresholds() Thresholds {
	return Thresholds{
		FundingSpike: 0.001, OISurge: 0.10, LSExtreme: 3.0, TakerExtreme: 2.0,
		OIBuildupThreshold: 3.0, OIBuildupMinPoints: 12, OIFlushDropPct: 2.0, OIFlushCurrentMax: 2.0, OIFlushLookback: 24,
		MinHistoryForAnomaly: 12, SeverityCriticalOI: 1e10, SeverityMediumOI: 1e8,
		AlertCooldown: time.Hour, OIFlushCooldown: 30 * time.Minute,
	}
}

func flatHistory(n int) []model.OISample {
	out := make([]model.OISample, n)
	for i := range out {
		out[i] = model.OISample{Timestamp: int64(i * 300), OIContracts: 1000, OIUSD: 1e7, MarkPrice: 10}
	}
	return out
}

func TestEngineSkipsSymbolsWithThinHistory(t *testing.T) {
	e := New(testThresholds(), func(string) *model.SymbolStats { return nil },
		func(string, int) []model.OISample { return flatHistory(5) },
		func(string) bool { return false })

	anomalies := e.Evaluate(1000, time.Now(), model.FreshValues{Symbol: "BTCUSDT", Funding: 0.01, HasFunding: true})
	if len(anomalies) != 0 {
		t.Fatalf("expected no anomalies with thin history, got %d", len(anomalies))
	}
}

func TestEngineFundingSpikeStaticThreshold(t *testing.T) {
	e := New(testThresholds(), func(string) *model.SymbolStats { return nil },
		func(string, int) []model.OISample { return flatHistory(12) },
		func(string) bool { return false })

	anomalies := e.Evaluate(1000, time.Now(), model.FreshValues{Symbol: "BTCUSDT", Funding: 0.01, HasFunding: true})
	found := false
	for _, a := range anomalies {
		if a.Kind == model.KindFundingSpike {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a funding_spike anomaly to fire")
	}
}

func TestEngineCooldownSuppressesRepeat(t *testing.T) {
	e := New(testThresholds(), func(string) *model.SymbolStats { return nil },
		func(string, int) []model.OISample { return flatHistory(12) },
		func(string) bool { return false })

	now := time.Now()
	fv := model.FreshValues{Symbol: "BTCUSDT", Funding: 0.01, HasFunding: true}
	first := e.Evaluate(1000, now, fv)
	second := e.Evaluate(1300, now.Add(time.Minute), fv)

	if len(first) == 0 {
		t.Fatal("expected first evaluation to fire")
	}
	for _, a := range second {
		if a.Kind == model.KindFundingSpike {
			t.Fatal("expected funding_spike to be suppressed by cooldown")
		}
	}
}

func TestEngineAdaptiveThresholdOverridesStatic(t *testing.T) {
	stats := &model.SymbolStats{Symbol: "BTCUSDT", HasFunding: true, MeanFunding: 0, StdFunding: 0.02}
	e := New(testThresholds(), func(string) *model.SymbolStats { return stats },
		func(string, int) []model.OISample { return flatHistory(12) },
		func(string) bool { return false })

	// 0.01 would fire against the static 0.001 threshold but not against
	// the adaptive 3*0.02 = 0.06 threshold.
	anomalies := e.Evaluate(1000, time.Now(), model.FreshValues{Symbol: "BTCUSDT", Funding: 0.01, HasFunding: true})
	for _, a := range anomalies {
		if a.Kind == model.KindFundingSpike {
			t.Fatal("expected adaptive threshold to suppress a value within 3 sigma")
		}
	}
}

func TestEngineSeverityCriticalFromAvgOI(t *testing.T) {
	stats := &model.SymbolStats{Symbol: "BTCUSDT", AvgOIUSD: 2e10}
	e := New(testThresholds(), func(string) *model.SymbolStats { return stats },
		func(string, int) []model.OISample { return flatHistory(12) },
		func(string) bool { return false })

	anomalies := e.Evaluate(1000, time.Now(), model.FreshValues{Symbol: "BTCUSDT", Funding: 0.01, HasFunding: true})
	if len(anomalies) == 0 {
		t.Fatal("expected an anomaly to fire")
	}
	if anomalies[0].Severity != model.SeverityCritical {
		t.Errorf("expected critical severity, got %s", anomalies[0].Severity)
	}
}
