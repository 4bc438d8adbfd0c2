// Package model holds the shared data types persisted and passed between
// the collection, detection, and notification layers of the monitor.
package model

import "time"

// SymbolStatus is the lifecycle state of a tracked symbol.
type SymbolStatus string

const (
	SymbolActive    SymbolStatus = "active"
	SymbolDelisted  SymbolStatus = "delisted"
)

// Symbol is a tracked perpetual-futures instrument.
type Symbol struct {
	ID          int64
	Name        string // e.g. BTCUSDT
	BaseAsset   string
	Status      SymbolStatus
	Hot         bool
	QuoteVolume float64
	FirstSeen   time.Time
	LastSeen    time.Time
}

// OISample is one open-interest reading for a symbol at a cycle timestamp.
type OISample struct {
	Timestamp   int64
	Symbol      string
	OIContracts float64
	OIUSD       float64
	MarkPrice   float64
}

// FundingSample is one funding-rate reading.
type FundingSample struct {
	Timestamp       int64
	Symbol          string
	Rate            float64
	NextFundingTime int64
}

// LSSample is one long/short account-ratio reading.
type LSSample struct {
	Timestamp int64
	Symbol    string
	Ratio     float64
	LongPct   float64
	ShortPct  float64
}

// TakerSample is one aggressive taker buy/sell-volume ratio reading.
type TakerSample struct {
	Timestamp    int64
	Symbol       string
	BuySellRatio float64
	BuyVol       float64
	SellVol      float64
}

// Severity is the anomaly priority label, ordered critical > high > medium > low.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank gives the total order used for comparisons and the notifier's
// priority queue: lower rank sorts first (higher urgency).
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:      1,
	SeverityMedium:    2,
	SeverityLow:       3,
}

// Rank returns the numeric priority of a severity; lower is more urgent.
// Unknown severities rank below SeverityLow so they never starve real alerts.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// AtLeast reports whether s is at least as severe as other (e.g.
// SeverityCritical.AtLeast(SeverityHigh) is true).
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() <= other.Rank()
}

// AnomalyKind names the specific detector that fired.
type AnomalyKind string

const (
	KindFundingSpike         AnomalyKind = "funding_spike"
	KindOISurge              AnomalyKind = "oi_surge"
	KindLSExtreme            AnomalyKind = "ls_extreme"
	KindTakerExtreme         AnomalyKind = "taker_extreme"
	KindCombinedOverheat     AnomalyKind = "combined_overheat"
	KindCombinedCapitulation AnomalyKind = "combined_capitulation"
	KindOIFlush              AnomalyKind = "oi_flush"
)

// Anomaly is one detected deviation, appended to the anomaly log.
type Anomaly struct {
	ID          int64
	DetectedAt  time.Time
	CycleTS     int64
	Symbol      string
	Kind        AnomalyKind
	Severity    Severity
	Value       float64
	Description string
	Notified    bool
}

// SymbolStats is the per-symbol baseline computed nightly by the stats worker.
type SymbolStats struct {
	Symbol         string
	UpdatedAt      time.Time
	MeanFunding    float64
	StdFunding     float64
	HasFunding     bool
	MeanOIChange1h float64
	StdOIChange1h  float64
	HasOIChange    bool
	MeanLS         float64
	StdLS          float64
	HasLS          bool
	MeanTaker      float64
	StdTaker       float64
	HasTaker       bool
	AvgOIUSD       float64
}

// CollectorStats is one row summarizing a single collection cycle.
type CollectorStats struct {
	CycleTS         int64
	DurationSec     float64
	RequestsOK      int
	RequestsFail    int
	PairsCollected  int
	AnomaliesFound  int
}

// FreshValues bundles the newest known reading of every metric for a symbol,
// whether from the current cycle or from the last-values cache.
type FreshValues struct {
	Symbol          string
	MarkPrice       float64
	OIContracts     float64
	HasOI           bool
	Funding         float64
	HasFunding      bool
	PrevFunding     float64
	HasPrevFunding  bool
	LSRatio         float64
	HasLS           bool
	TakerRatio      float64
	HasTaker        bool
}
