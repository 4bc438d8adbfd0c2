// Package archivist runs the scheduled cold-storage pass: export rows older
// than the retention window to gzip CSV, delete them, and reclaim space.
package archivist

import (
	"context"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/metrics"
	"github.com/vvriasc-boop/MarketDataCollector/internal/store"
)

// Config tunes the archival cadence, retention window, and output directory.
type Config struct {
	Interval      time.Duration
	RetentionDays int
	Dir           string
}

// Driver runs ArchiveOlderThan on a fixed interval.
type Driver struct {
	cfg Config
	db  *store.Store
	log *logging.Logger
}

// New builds an archival driver.
func New(cfg Config, db *store.Store) *Driver {
	return &Driver{cfg: cfg, db: db, log: logging.Global()}
}

// Run blocks, archiving on every tick of cfg.Interval until ctx is
// cancelled. A row is kept, not archived, exactly at the retention
// boundary: the cutoff is strictly older than RetentionDays.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

func (d *Driver) runOnce(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.cfg.RetentionDays)
	counts, err := d.db.ArchiveOlderThan(ctx, d.cfg.Dir, cutoff)
	if err != nil {
		d.log.Warnf("archival pass failed", logging.Fields{"error": err.Error()})
		return
	}

	total := 0
	for table, n := range counts {
		if n > 0 {
			metrics.ArchivedRowsTotal.WithLabelValues(table).Add(float64(n))
		}
		total += n
	}
	if total == 0 {
		return
	}

	if err := d.db.Reclaim(ctx); err != nil {
		d.log.Warnf("archival reclaim failed", logging.Fields{"error": err.Error()})
	}
	d.log.Infof("archival pass complete", logging.Fields{"event_type": "archive", "rows_archived": total, "cutoff": cutoff.Format(time.RFC3339)})
}
