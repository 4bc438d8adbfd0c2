// Command monitor runs the long-lived collection, detection, and
// notification process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/anomaly"
	"github.com/vvriasc-boop/MarketDataCollector/internal/apiserver"
	"github.com/vvriasc-boop/MarketDataCollector/internal/archivist"
	"github.com/vvriasc-boop/MarketDataCollector/internal/collector"
	"github.com/vvriasc-boop/MarketDataCollector/internal/config"
	"github.com/vvriasc-boop/MarketDataCollector/internal/cycle"
	"github.com/vvriasc-boop/MarketDataCollector/internal/dashboard"
	"github.com/vvriasc-boop/MarketDataCollector/internal/exchange"
	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/metrics"
	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
	"github.com/vvriasc-boop/MarketDataCollector/internal/notifier"
	"github.com/vvriasc-boop/MarketDataCollector/internal/stats"
	"github.com/vvriasc-boop/MarketDataCollector/internal/store"
	"github.com/vvriasc-boop/MarketDataCollector/internal/symbols"
	"net/http"
)

func main() {
	log := logging.Global()

	cfg, err := config.Load(os.Getenv("CONFIG_YAML"), ".env")
	if err != nil {
		log.Fatalf("config load failed", err, nil)
	}

	db, err := store.Open(cfg.StoragePath)
	if err != nil {
		log.Fatalf("store open failed", err, nil)
	}
	defer db.Close()

	exch := exchange.New(cfg.ExchangeBaseURL)
	registry := symbols.New(exch, db, cfg.HotVolumeThreshold, cfg.SymbolsRefreshInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hub *dashboard.Hub
	var transport notifier.Transport = noopTransport{}
	if webhookURL := os.Getenv("NOTIFIER_WEBHOOK_URL"); webhookURL != "" {
		transport = notifier.NewWebhookTransport(webhookURL, []byte(os.Getenv("NOTIFIER_WEBHOOK_SECRET")))
	}
	if cfg.DashboardWSEnabled {
		hub = dashboard.NewHub()
	}

	notif := notifier.New(notifier.Config{
		MaxQueue:           cfg.NotifierMaxQueue,
		Delay:              cfg.NotifierDelay,
		MinAlertSeverity:   model.Severity(cfg.MinAlertSeverity),
		MassAlertWindow:    cfg.MassAlertWindow,
		MassAlertThreshold: cfg.MassAlertThreshold,
	}, transport, hub)
	notif.Start(ctx)

	statsMap, err := db.LoadAllStats(ctx)
	if err != nil {
		log.Warnf("initial stats load failed", logging.Fields{"error": err.Error()})
		statsMap = map[string]*model.SymbolStats{}
	}
	var statsMu sync.RWMutex

	engine := anomaly.New(anomaly.Thresholds{
		FundingSpike:         cfg.FundingSpikeThreshold,
		OISurge:              cfg.OISurgeThreshold,
		LSExtreme:            cfg.LSExtremeThreshold,
		TakerExtreme:         cfg.TakerExtremeThreshold,
		OIBuildupThreshold:   cfg.OIBuildupThreshold,
		OIBuildupMinPoints:   cfg.OIBuildupMinPoints,
		OIFlushDropPct:       cfg.OIFlushDropPct,
		OIFlushCurrentMax:    cfg.OIFlushCurrentMax,
		OIFlushLookback:      cfg.OIFlushLookback,
		MinHistoryForAnomaly: cfg.MinHistoryForAnomaly,
		SeverityCriticalOI:   cfg.SeverityCriticalOI,
		SeverityMediumOI:     cfg.SeverityMediumOI,
		AlertCooldown:        cfg.AlertCooldown,
		OIFlushCooldown:      cfg.OIFlushCooldown,
	}, func(symbol string) *model.SymbolStats {
		statsMu.RLock()
		defer statsMu.RUnlock()
		return statsMap[symbol]
	}, func(symbol string, n int) []model.OISample {
		h, err := db.OIHistory(ctx, symbol, n)
		if err != nil {
			return nil
		}
		return h
	}, func(symbol string) bool {
		return false // populated per-cycle by the collector's own top-N pass
	})

	cache, err := db.HydrateLastValues(ctx)
	if err != nil {
		log.Warnf("hydrate last values failed", logging.Fields{"error": err.Error()})
		cache = map[string]*model.FreshValues{}
	}

	coll := collector.New(collector.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		RequestDelay:  cfg.RequestDelay,
		LSPeriod:      "5m",
		TakerPeriod:   "5m",
		SeverityTopN:  cfg.SeverityTopN,
	}, exch, registry, db, engine, notif, cache)

	statsWorker := stats.New(stats.Config{
		RunHourUTC:   cfg.StatsWorkerHourUTC,
		LookbackDays: cfg.StatsLookbackDays,
		MinPoints:    cfg.StatsMinPoints,
	}, db, func(fresh map[string]*model.SymbolStats) {
		statsMu.Lock()
		defer statsMu.Unlock()
		statsMap = fresh
	})

	sched := cycle.New(cfg.CollectInterval, cfg.WatchdogTimeout, coll, notif)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		statsWorker.Run(ctx)
	}()

	if cfg.ArchiveIntervalHours > 0 {
		archiver := archivist.New(archivist.Config{
			Interval:      time.Duration(cfg.ArchiveIntervalHours) * time.Hour,
			RetentionDays: cfg.ArchiveRetentionDays,
			Dir:           cfg.ArchiveDir,
		}, db)
		wg.Add(1)
		go func() {
			defer wg.Done()
			archiver.Run(ctx)
		}()
	}

	if cfg.MetricsEnabled {
		metricsSrv := &http.Server{Addr: ":9090", Handler: metrics.Handler()}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnf("metrics server stopped", logging.Fields{"error": err.Error()})
			}
		}()
	}

	if hub != nil {
		dashSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.DashboardWSPort), Handler: hub}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			dashSrv.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := dashSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnf("dashboard server stopped", logging.Fields{"error": err.Error()})
			}
		}()
	}

	if cfg.OperatorAPIEnabled {
		apiSrv, err := apiserver.New(fmt.Sprintf(":%d", cfg.OperatorAPIPort), cfg.OperatorAPIToken, db)
		if err != nil {
			log.Fatalf("operator API init failed", err, nil)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiSrv.Start(ctx); err != nil {
				log.Warnf("operator API stopped", logging.Fields{"error": err.Error()})
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Infof("shutdown signal received", nil)
	cancel()
	wg.Wait()
}

// noopTransport is used when no chat webhook is configured, so the notifier
// still exercises its pacing and retry logic without a real destination.
type noopTransport struct{}

func (noopTransport) Send(ctx context.Context, text string) notifier.SendResult {
	return notifier.SendResult{OK: true}
}
