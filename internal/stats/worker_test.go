package stats

import (
	"testing"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

func TestNextRunTimeLaterSameDay(t *testing.T) {
	now := time.Date(2026, time.March, 15, 1, 0, 0, 0, time.UTC)
	got := nextRunTime(now, 2)
	want := time.Date(2026, time.March, 15, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextRunTimeRollsToTomorrow(t *testing.T) {
	now := time.Date(2026, time.March, 15, 3, 0, 0, 0, time.UTC)
	got := nextRunTime(now, 2)
	want := time.Date(2026, time.March, 16, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextRunTimeRollsAcrossMonthBoundary(t *testing.T) {
	now := time.Date(2026, time.January, 31, 23, 0, 0, 0, time.UTC)
	got := nextRunTime(now, 2)
	want := time.Date(2026, time.February, 1, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextRunTimeRollsAcrossYearBoundary(t *testing.T) {
	now := time.Date(2025, time.December, 31, 23, 0, 0, 0, time.UTC)
	got := nextRunTime(now, 0)
	want := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOiChangesSinceComputesOneHourChange(t *testing.T) {
	history := []model.OISample{
		{Timestamp: 0, OIContracts: 1000, OIUSD: 10000},
		{Timestamp: 3600, OIContracts: 1100, OIUSD: 11000},
	}
	changes, avgUSD := oiChangesSince(history, 0)
	if len(changes) != 1 {
		t.Fatalf("expected one computed change, got %d", len(changes))
	}
	if changes[0] < 0.099 || changes[0] > 0.101 {
		t.Errorf("expected ~0.10 change, got %.4f", changes[0])
	}
	if avgUSD != 10500 {
		t.Errorf("expected avg USD OI of 10500, got %.2f", avgUSD)
	}
}

func TestMeanStdEmptyHasFalse(t *testing.T) {
	_, _, has := meanStd(nil)
	if has {
		t.Error("expected has=false for an empty series")
	}
}
