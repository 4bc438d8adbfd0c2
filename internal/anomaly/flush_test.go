package anomaly

import (
	"testing"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

func buildHistory(pcts []float64) []model.OISample {
	base := 1000.0
	out := make([]model.OISample, len(pcts))
	for i, p := range pcts {
		oi := base * (1 + p/100)
		out[i] = model.OISample{Timestamp: int64(i * 300), OIContracts: oi, OIUSD: oi * 10, MarkPrice: 10}
	}
	return out
}

func TestScanOIFlushDetectsBuildupThenDrop(t *testing.T) {
	pcts := make([]float64, 24)
	for i := 0; i < 12; i++ {
		pcts[i] = 0
	}
	for i := 12; i < 23; i++ {
		pcts[i] = 5.0
	}
	pcts[23] = 1.0 // drop below currentMax after a run reaching near the end

	history := buildHistory(pcts)
	sig := ScanOIFlush(history, 3.0, 2.0, 2.0, 11)
	if sig == nil {
		t.Fatal("expected a flush signal, got nil")
	}
	if sig.PeakPct < 4.9 {
		t.Errorf("expected peak near 5.0, got %.2f", sig.PeakPct)
	}
}

func TestScanOIFlushNoBuildupNoSignal(t *testing.T) {
	pcts := make([]float64, 24)
	history := buildHistory(pcts)
	if sig := ScanOIFlush(history, 3.0, 2.0, 2.0, 11); sig != nil {
		t.Errorf("expected no signal for flat history, got %+v", sig)
	}
}

func TestScanOIFlushRunTooShort(t *testing.T) {
	pcts := make([]float64, 24)
	for i := 20; i < 23; i++ {
		pcts[i] = 5.0
	}
	pcts[23] = 1.0
	history := buildHistory(pcts)
	if sig := ScanOIFlush(history, 3.0, 2.0, 2.0, 11); sig != nil {
		t.Errorf("expected no signal for a run shorter than minPoints, got %+v", sig)
	}
}

func TestScanOIFlushCurrentStillElevatedNoSignal(t *testing.T) {
	pcts := make([]float64, 24)
	for i := 12; i < 24; i++ {
		pcts[i] = 5.0
	}
	history := buildHistory(pcts)
	if sig := ScanOIFlush(history, 3.0, 2.0, 2.0, 11); sig != nil {
		t.Errorf("expected no signal when current pct is still above currentMax, got %+v", sig)
	}
}
