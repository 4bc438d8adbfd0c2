package backtest

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FilterName identifies one of the four signal subsets the grid is run
// against.
type FilterName string

const (
	FilterAll       FilterName = "all"
	FilterLSAbove2  FilterName = "ls_above_2"
	FilterTakerBelow1 FilterName = "taker_below_1"
	FilterBoth      FilterName = "both"
)

var filterOrder = []FilterName{FilterAll, FilterLSAbove2, FilterTakerBelow1, FilterBoth}

func applyFilter(signals []Signal, name FilterName) []Signal {
	var out []Signal
	for _, s := range signals {
		lsOK := !s.HasLS || s.LSRatio > 2.0
		takerOK := !s.HasTaker || s.Taker < 1.0
		switch name {
		case FilterAll:
			out = append(out, s)
		case FilterLSAbove2:
			if lsOK {
				out = append(out, s)
			}
		case FilterTakerBelow1:
			if takerOK {
				out = append(out, s)
			}
		case FilterBoth:
			if lsOK && takerOK {
				out = append(out, s)
			}
		}
	}
	return out
}

// ComboResult summarizes one (TP, SL) combination's simulated performance.
type ComboResult struct {
	Filter     FilterName
	TP, SL     float64
	Trades     int
	Wins       int
	WinRate    float64
	TotalPnL   float64
	AvgPnL     float64
	ProfitFactor float64
	RR         float64
}

// GridConfig bounds the TP/SL sweep and minimum sample sizes.
type GridConfig struct {
	TPRange       []float64
	SLRange       []float64
	MaxHoldPoints int
	MinClosedTrades int
	TopN          int
}

// RunGrid simulates every (TP, SL) combination in cfg against every filter
// of signals, concurrently, and returns all qualifying combos.
func RunGrid(signals []Signal, prices []PricePoint, cfg GridConfig) ([]ComboResult, error) {
	type job struct {
		filter FilterName
		tp, sl float64
	}
	var jobs []job
	for _, f := range filterOrder {
		for _, tp := range cfg.TPRange {
			for _, sl := range cfg.SLRange {
				jobs = append(jobs, job{f, tp, sl})
			}
		}
	}

	results := make([]*ComboResult, len(jobs))
	filtered := make(map[FilterName][]Signal, len(filterOrder))
	for _, f := range filterOrder {
		filtered[f] = applyFilter(signals, f)
	}

	var g errgroup.Group
	g.SetLimit(8)
	var mu sync.Mutex

	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			trades := SimulateAll(filtered[j.filter], prices, j.tp, j.sl, cfg.MaxHoldPoints)
			res := summarize(j.filter, j.tp, j.sl, trades)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("grid search: %w", err)
	}

	out := make([]ComboResult, 0, len(results))
	for _, r := range results {
		if r != nil && r.Trades >= cfg.MinClosedTrades {
			out = append(out, *r)
		}
	}
	return out, nil
}

func summarize(filter FilterName, tp, sl float64, trades []Trade) *ComboResult {
	closed := 0
	wins := 0
	var totalPnL, grossProfit, grossLoss float64
	for _, t := range trades {
		if t.Outcome == OutcomeOpen {
			continue
		}
		closed++
		totalPnL += t.PnLPct
		if t.PnLPct > 0 {
			wins++
			grossProfit += t.PnLPct
		} else {
			grossLoss += -t.PnLPct
		}
	}
	r := &ComboResult{Filter: filter, TP: tp, SL: sl, Trades: closed, Wins: wins, TotalPnL: totalPnL, RR: 0}
	if sl > 0 {
		r.RR = tp / sl
	}
	if closed > 0 {
		r.WinRate = float64(wins) / float64(closed) * 100
		r.AvgPnL = totalPnL / float64(closed)
	}
	if grossLoss > 0 {
		r.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		r.ProfitFactor = grossProfit
	}
	return r
}

// RankTopN returns the top N combos for filter by total P&L, and the top N
// by (win rate, total P&L) among combos with at least 5 trades.
func RankTopN(results []ComboResult, filter FilterName, n int) (byPnL, byWinRate []ComboResult) {
	var subset []ComboResult
	for _, r := range results {
		if r.Filter == filter {
			subset = append(subset, r)
		}
	}

	byPnLSlice := append([]ComboResult(nil), subset...)
	sort.Slice(byPnLSlice, func(i, j int) bool { return byPnLSlice[i].TotalPnL > byPnLSlice[j].TotalPnL })
	if len(byPnLSlice) > n {
		byPnLSlice = byPnLSlice[:n]
	}

	var eligible []ComboResult
	for _, r := range subset {
		if r.Trades >= 5 {
			eligible = append(eligible, r)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].WinRate != eligible[j].WinRate {
			return eligible[i].WinRate > eligible[j].WinRate
		}
		return eligible[i].TotalPnL > eligible[j].TotalPnL
	})
	if len(eligible) > n {
		eligible = eligible[:n]
	}

	return byPnLSlice, eligible
}

// Winners holds the three overall ranked configurations across every filter.
type Winners struct {
	MaxProfit  *ComboResult
	MaxWinRate *ComboResult
	Balanced   *ComboResult
}

// PickWinners selects the three canonical overall winners across all
// filters and combos.
func PickWinners(results []ComboResult) Winners {
	var w Winners

	for i := range results {
		r := &results[i]
		if w.MaxProfit == nil || r.TotalPnL > w.MaxProfit.TotalPnL {
			w.MaxProfit = r
		}
	}

	for i := range results {
		r := &results[i]
		if r.Trades < 5 || r.TotalPnL <= 0 {
			continue
		}
		if w.MaxWinRate == nil || r.WinRate > w.MaxWinRate.WinRate {
			w.MaxWinRate = r
		}
	}

	w.Balanced = pickBalanced(results)
	return w
}

var balancedTiers = []func(ComboResult) bool{
	func(r ComboResult) bool { return r.WinRate > 50 && r.TotalPnL > 0 && r.RR >= 1.5 && r.Trades >= 5 },
	func(r ComboResult) bool { return r.WinRate > 50 && r.TotalPnL > 0 && r.Trades >= 5 },
	func(r ComboResult) bool { return r.WinRate > 50 && r.TotalPnL > 0 && r.Trades >= 3 },
}

// pickBalanced finds each filter's own best combo within the first tier that
// has a match for that filter, then returns the highest-scoring of those
// per-filter winners across filters. Tiers are resolved per filter, not
// pooled, so one filter's best match can't be hidden behind a weaker but
// earlier-tier match from a different filter.
func pickBalanced(results []ComboResult) *ComboResult {
	byFilter := make(map[FilterName][]ComboResult, len(filterOrder))
	for _, r := range results {
		byFilter[r.Filter] = append(byFilter[r.Filter], r)
	}

	var best *ComboResult
	var bestScore float64
	for _, f := range filterOrder {
		winner := bestInTiers(byFilter[f])
		if winner == nil {
			continue
		}
		score := winner.TotalPnL * winner.WinRate / 100
		if best == nil || score > bestScore {
			best = winner
			bestScore = score
		}
	}
	return best
}

// bestInTiers returns the highest-scoring combo in the first tier of
// balancedTiers that has at least one match within combos.
func bestInTiers(combos []ComboResult) *ComboResult {
	for _, matches := range balancedTiers {
		var best *ComboResult
		var bestScore float64
		for i := range combos {
			r := &combos[i]
			if !matches(*r) {
				continue
			}
			score := r.TotalPnL * r.WinRate / 100
			if best == nil || score > bestScore {
				best = r
				bestScore = score
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

// Heatmap builds a coarse TP x SL total-P&L grid for the unfiltered
// ("all") result set, for quick visual inspection.
func Heatmap(results []ComboResult) map[float64]map[float64]float64 {
	out := make(map[float64]map[float64]float64)
	for _, r := range results {
		if r.Filter != FilterAll {
			continue
		}
		if out[r.TP] == nil {
			out[r.TP] = make(map[float64]float64)
		}
		out[r.TP][r.SL] = r.TotalPnL
	}
	return out
}
