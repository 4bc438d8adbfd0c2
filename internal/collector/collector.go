// Package collector runs one collection cycle: refreshing the symbol
// universe if stale, pulling exchange readings, detecting per-symbol
// changes, persisting them, and handing fresh values to the anomaly engine.
package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/govalues/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vvriasc-boop/MarketDataCollector/internal/anomaly"
	"github.com/vvriasc-boop/MarketDataCollector/internal/exchange"
	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/metrics"
	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
	"github.com/vvriasc-boop/MarketDataCollector/internal/store"
	"github.com/vvriasc-boop/MarketDataCollector/internal/symbols"
)

// Config tunes the collector's fan-out and per-cycle thresholds.
type Config struct {
	MaxConcurrent   int
	RequestDelay    time.Duration
	LSPeriod        string
	TakerPeriod     string
	SeverityTopN    int
}

// Notifier is the narrow surface the collector needs to hand off anomalies.
type Notifier interface {
	Enqueue(a model.Anomaly)
}

// Collector runs cycles against one exchange client, one registry, and one
// store, caching the last-seen value of every metric to suppress
// unchanged writes.
type Collector struct {
	cfg      Config
	exch     *exchange.Client
	registry *symbols.Registry
	db       *store.Store
	engine   *anomaly.Engine
	notifier Notifier
	log      *logging.Logger

	mu    sync.Mutex
	cache map[string]*model.FreshValues
}

// New builds a collector. cache should be seeded from Store.HydrateLastValues
// on startup.
func New(cfg Config, exch *exchange.Client, registry *symbols.Registry, db *store.Store, engine *anomaly.Engine, notifier Notifier, cache map[string]*model.FreshValues) *Collector {
	if cache == nil {
		cache = make(map[string]*model.FreshValues)
	}
	return &Collector{
		cfg:      cfg,
		exch:     exch,
		registry: registry,
		db:       db,
		engine:   engine,
		notifier: notifier,
		log:      logging.Global(),
		cache:    cache,
	}
}

// RunCycle executes one full collection cycle at cycleTS.
func (c *Collector) RunCycle(ctx context.Context, cycleTS int64, now time.Time) error {
	start := time.Now()

	if c.registry.NeedsRefresh(now) {
		if err := c.registry.Refresh(ctx, now); err != nil {
			c.log.Warnf("symbol registry refresh failed", logging.Fields{"error": err.Error()})
		}
	}

	symbolMap, err := c.db.SymbolMap(ctx)
	if err != nil {
		return fmt.Errorf("load symbol map: %w", err)
	}
	allSymbols, err := c.db.AllSymbols(ctx)
	if err != nil {
		return fmt.Errorf("load symbols: %w", err)
	}
	hotSet := make(map[string]bool)
	for _, s := range allSymbols {
		if s.Hot {
			hotSet[s.Name] = true
		}
	}

	premiums, err := c.exch.PremiumIndexAll(ctx)
	if err != nil {
		return fmt.Errorf("premium_index: %w", err)
	}
	markPrice := make(map[string]float64, len(premiums))
	fundingRows := make([]model.FundingSample, 0, len(premiums))

	for _, p := range premiums {
		markPrice[p.Symbol] = p.MarkPrice
		cached := c.getCache(p.Symbol)
		if cached.HasFunding && cached.Funding == p.LastFundingRate {
			continue
		}
		fundingRows = append(fundingRows, model.FundingSample{
			Timestamp: cycleTS, Symbol: p.Symbol, Rate: p.LastFundingRate, NextFundingTime: p.NextFundingTime,
		})
		c.updateCacheFunding(p.Symbol, p.LastFundingRate)
	}

	var (
		oiRows    []model.OISample
		lsRows    []model.LSSample
		takerRows []model.TakerSample
		mu        sync.Mutex
		okCount   = 1 // the premium_index call above succeeded
		failCount int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrent)

	for i, sym := range allSymbols {
		sym := sym
		if i > 0 && c.cfg.RequestDelay > 0 {
			select {
			case <-time.After(c.cfg.RequestDelay):
			case <-gctx.Done():
			}
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			mp := markPrice[sym.Name]
			oi, err := c.exch.OpenInterest(gctx, sym.Name)
			mu.Lock()
			if err != nil {
				failCount++
				mu.Unlock()
				return nil
			}
			okCount++
			mu.Unlock()

			oiUSD := computeOIUSD(oi, mp)
			cached := c.getCache(sym.Name)
			if !cached.HasOI || cached.OIContracts != oi {
				mu.Lock()
				oiRows = append(oiRows, model.OISample{Timestamp: cycleTS, Symbol: sym.Name, OIContracts: oi, OIUSD: oiUSD, MarkPrice: mp})
				mu.Unlock()
				c.updateCacheOI(sym.Name, oi, mp)
			}

			if !hotSet[sym.Name] {
				return nil
			}

			if ls, err := c.exch.LongShortRatio(gctx, sym.Name, c.cfg.LSPeriod); err == nil && ls != nil {
				mu.Lock()
				okCount++
				mu.Unlock()
				cached := c.getCache(sym.Name)
				if !cached.HasLS || cached.LSRatio != ls.LongShortRatio {
					mu.Lock()
					lsRows = append(lsRows, model.LSSample{Timestamp: cycleTS, Symbol: sym.Name, Ratio: ls.LongShortRatio, LongPct: ls.LongAccount, ShortPct: ls.ShortAccount})
					mu.Unlock()
					c.updateCacheLS(sym.Name, ls.LongShortRatio)
				}
			} else if err != nil {
				mu.Lock()
				failCount++
				mu.Unlock()
			}

			if tk, err := c.exch.TakerBuySellRatio(gctx, sym.Name, c.cfg.TakerPeriod); err == nil && tk != nil {
				mu.Lock()
				okCount++
				mu.Unlock()
				cached := c.getCache(sym.Name)
				if !cached.HasTaker || cached.TakerRatio != tk.BuySellRatio {
					mu.Lock()
					takerRows = append(takerRows, model.TakerSample{Timestamp: cycleTS, Symbol: sym.Name, BuySellRatio: tk.BuySellRatio, BuyVol: tk.BuyVol, SellVol: tk.SellVol})
					mu.Unlock()
					c.updateCacheTaker(sym.Name, tk.BuySellRatio)
				}
			} else if err != nil {
				mu.Lock()
				failCount++
				mu.Unlock()
			}

			return nil
		})
	}
	_ = g.Wait()

	if len(fundingRows) > 0 {
		if err := c.db.InsertFunding(ctx, symbolMap, fundingRows); err != nil {
			return fmt.Errorf("insert funding: %w", err)
		}
	}
	if len(oiRows) > 0 {
		if err := c.db.InsertOI(ctx, symbolMap, oiRows); err != nil {
			return fmt.Errorf("insert oi: %w", err)
		}
	}
	if len(lsRows) > 0 {
		if err := c.db.InsertLS(ctx, symbolMap, lsRows); err != nil {
			return fmt.Errorf("insert ls: %w", err)
		}
	}
	if len(takerRows) > 0 {
		if err := c.db.InsertTaker(ctx, symbolMap, takerRows); err != nil {
			return fmt.Errorf("insert taker: %w", err)
		}
	}

	topN := c.topNByAvgOI(ctx, allSymbols, c.cfg.SeverityTopN)
	c.engine.SetTopN(func(symbol string) bool { return topN[symbol] })
	anomaliesFound := 0
	for _, sym := range allSymbols {
		fv := c.getCache(sym.Name)
		fv.Symbol = sym.Name
		found := c.engine.Evaluate(cycleTS, now, *fv)
		for _, a := range found {
			id, err := c.db.AppendAnomaly(ctx, a)
			if err != nil {
				c.log.Warnf("append anomaly failed", logging.Fields{"error": err.Error(), "symbol": sym.Name})
				continue
			}
			a.ID = id
			metrics.AnomaliesTotal.WithLabelValues(string(a.Kind), string(a.Severity)).Inc()
			c.log.AnomalyLog(a.Symbol, string(a.Kind), string(a.Severity), a.Value, cycleTS)
			c.notifier.Enqueue(a)
			anomaliesFound++
		}
	}

	elapsed := time.Since(start).Seconds()
	metrics.CycleDuration.Observe(elapsed)
	cs := model.CollectorStats{
		CycleTS: cycleTS, DurationSec: elapsed, RequestsOK: okCount, RequestsFail: failCount,
		PairsCollected: len(allSymbols), AnomaliesFound: anomaliesFound,
	}
	if err := c.db.AppendCollectorStats(ctx, cs); err != nil {
		c.log.Warnf("append collector stats failed", logging.Fields{"error": err.Error()})
	}
	c.log.CycleLog(cycleTS, elapsed, okCount, failCount, len(allSymbols), anomaliesFound)
	return nil
}

// topNByAvgOI returns the set of symbol names with the N highest average OI
// (from their baseline stats), used by the anomaly engine's severity rule.
func (c *Collector) topNByAvgOI(ctx context.Context, syms []model.Symbol, n int) map[string]bool {
	allStats, err := c.db.LoadAllStats(ctx)
	if err != nil || n <= 0 {
		return map[string]bool{}
	}
	type pair struct {
		name string
		avg  float64
	}
	pairs := make([]pair, 0, len(allStats))
	for name, st := range allStats {
		pairs = append(pairs, pair{name, st.AvgOIUSD})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].avg > pairs[j].avg })
	out := make(map[string]bool)
	for i := 0; i < len(pairs) && i < n; i++ {
		out[pairs[i].name] = true
	}
	return out
}

func (c *Collector) getCache(symbol string) *model.FreshValues {
	c.mu.Lock()
	defer c.mu.Unlock()
	fv, ok := c.cache[symbol]
	if !ok {
		fv = &model.FreshValues{Symbol: symbol}
		c.cache[symbol] = fv
	}
	cp := *fv
	return &cp
}

func (c *Collector) updateCacheFunding(symbol string, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fv := c.cache[symbol]
	if fv == nil {
		fv = &model.FreshValues{Symbol: symbol}
		c.cache[symbol] = fv
	}
	if fv.HasFunding {
		fv.PrevFunding = fv.Funding
		fv.HasPrevFunding = true
	}
	fv.Funding = rate
	fv.HasFunding = true
}

func (c *Collector) updateCacheOI(symbol string, oi, markPrice float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fv := c.cache[symbol]
	if fv == nil {
		fv = &model.FreshValues{Symbol: symbol}
		c.cache[symbol] = fv
	}
	fv.OIContracts = oi
	fv.HasOI = true
	fv.MarkPrice = markPrice
}

func (c *Collector) updateCacheLS(symbol string, ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fv := c.cache[symbol]
	if fv == nil {
		fv = &model.FreshValues{Symbol: symbol}
		c.cache[symbol] = fv
	}
	fv.LSRatio = ratio
	fv.HasLS = true
}

func (c *Collector) updateCacheTaker(symbol string, ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fv := c.cache[symbol]
	if fv == nil {
		fv = &model.FreshValues{Symbol: symbol}
		c.cache[symbol] = fv
	}
	fv.TakerRatio = ratio
	fv.HasTaker = true
}

// computeOIUSD multiplies contract-denominated OI by mark price using exact
// decimal arithmetic, so the product never carries float64 rounding noise.
func computeOIUSD(oiContracts, markPrice float64) float64 {
	oiDec, err1 := decimal.NewFromFloat64(oiContracts)
	priceDec, err2 := decimal.NewFromFloat64(markPrice)
	if err1 != nil || err2 != nil {
		return oiContracts * markPrice
	}
	product, err := oiDec.Mul(priceDec)
	if err != nil {
		return oiContracts * markPrice
	}
	f, ok := product.Float64()
	if !ok {
		return oiContracts * markPrice
	}
	return f
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
