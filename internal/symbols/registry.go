// Package symbols maintains the set of tracked perpetual-futures instruments
// and their hot/cold classification by 24h quote volume.
package symbols

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/exchange"
	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/store"
)

// Registry tracks active symbols and refreshes them from the exchange on a
// slow cadence relative to the collection cycle.
type Registry struct {
	exchangeClient *exchange.Client
	db             *store.Store
	hotThreshold   float64
	refreshEvery   time.Duration
	log            *logging.Logger

	mu           sync.RWMutex
	lastRefresh  time.Time
	activeNames  []string
	hotNames     map[string]bool
}

// New builds a registry backed by db, polling exchangeClient on refresh.
func New(exchangeClient *exchange.Client, db *store.Store, hotThreshold float64, refreshEvery time.Duration) *Registry {
	return &Registry{
		exchangeClient: exchangeClient,
		db:             db,
		hotThreshold:   hotThreshold,
		refreshEvery:   refreshEvery,
		log:            logging.Global(),
		hotNames:       make(map[string]bool),
	}
}

// NeedsRefresh reports whether the registry's last refresh is stale.
func (r *Registry) NeedsRefresh(now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh.IsZero() || now.Sub(r.lastRefresh) >= r.refreshEvery
}

// Refresh pulls the active symbol list and 24h volumes from the exchange,
// upserts them, and recomputes the hot set.
func (r *Registry) Refresh(ctx context.Context, now time.Time) error {
	infos, err := r.exchangeClient.ExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("exchange_info: %w", err)
	}
	names := make([]string, 0, len(infos))
	baseAssets := make(map[string]string, len(infos))
	for _, info := range infos {
		names = append(names, info.Symbol)
		baseAssets[info.Symbol] = info.BaseAsset
	}

	if _, err := r.db.UpsertSymbols(ctx, names, baseAssets, now); err != nil {
		return fmt.Errorf("upsert symbols: %w", err)
	}

	volumes, err := r.exchangeClient.Ticker24h(ctx)
	if err != nil {
		return fmt.Errorf("ticker_24h: %w", err)
	}
	if err := r.db.SetHot(ctx, volumes, r.hotThreshold); err != nil {
		return fmt.Errorf("set hot: %w", err)
	}

	hot := make(map[string]bool)
	for name, vol := range volumes {
		if vol > r.hotThreshold {
			hot[name] = true
		}
	}

	r.mu.Lock()
	r.lastRefresh = now
	r.activeNames = names
	r.hotNames = hot
	r.mu.Unlock()

	r.log.Infof("symbol registry refreshed", logging.Fields{
		"event_type":    "registry_refresh",
		"symbol_count":  len(names),
		"hot_count":     len(hot),
	})
	return nil
}

// ActiveSymbols returns the current cached set of active symbol names.
func (r *Registry) ActiveSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.activeNames))
	copy(out, r.activeNames)
	return out
}

// IsHot reports whether symbol is currently classified hot.
func (r *Registry) IsHot(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hotNames[symbol]
}

// LastRefresh returns the time of the last successful refresh.
func (r *Registry) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh
}
