// Command migrate applies the store's schema to a database file (creating
// it if needed) and can trigger a one-off archival pass.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/store"
)

func main() {
	dbPath := flag.String("db", "./data/monitor.db", "path to the monitor's SQLite database")
	archiveNow := flag.Bool("archive-now", false, "run one archival pass before exiting")
	archiveDir := flag.String("archive-dir", "./archive", "directory for archived CSV output")
	retentionDays := flag.Int("retention-days", 90, "rows older than this many days are archived")
	flag.Parse()

	log := logging.Global()
	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open store failed", err, nil)
	}
	defer db.Close()
	fmt.Printf("schema applied to %s\n", *dbPath)

	if *archiveNow {
		ctx := context.Background()
		cutoff := time.Now().UTC().AddDate(0, 0, -*retentionDays)
		counts, err := db.ArchiveOlderThan(ctx, *archiveDir, cutoff)
		if err != nil {
			log.Fatalf("archival pass failed", err, nil)
		}
		for table, n := range counts {
			fmt.Printf("archived %d rows from %s\n", n, table)
		}
		if err := db.Reclaim(ctx); err != nil {
			log.Fatalf("reclaim failed", err, nil)
		}
	}
}
