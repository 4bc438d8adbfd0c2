// Package cycle orchestrates the periodic collection loop: timing, watchdog
// enforcement, and graceful shutdown of the wired sub-components.
package cycle

import (
	"context"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/metrics"
)

// Runner executes one collection cycle.
type Runner interface {
	RunCycle(ctx context.Context, cycleTS int64, now time.Time) error
}

// Stoppable is drained/closed on scheduler shutdown.
type Stoppable interface {
	Stop()
}

// Scheduler ticks Runner at Period, abandoning any cycle that exceeds
// Watchdog, then sleeps the remainder of the period.
type Scheduler struct {
	Period   time.Duration
	Watchdog time.Duration
	Runner   Runner
	Notifier Stoppable
	log      *logging.Logger
}

// New builds a scheduler with the given period and watchdog timeout.
func New(period, watchdog time.Duration, runner Runner, notifier Stoppable) *Scheduler {
	return &Scheduler{Period: period, Watchdog: watchdog, Runner: runner, Notifier: notifier, log: logging.Global()}
}

// Run blocks, ticking cycles until ctx is cancelled. On cancellation it
// stops the notifier so queued alerts drain before returning.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := time.Now().UTC()
		cycleTS := now.Unix() / int64(s.Period.Seconds()) * int64(s.Period.Seconds())
		start := time.Now()

		cycleCtx, cancel := context.WithTimeout(ctx, s.Watchdog)
		done := make(chan error, 1)
		go func() {
			done <- s.Runner.RunCycle(cycleCtx, cycleTS, now)
		}()

		select {
		case err := <-done:
			if err != nil {
				s.log.Warnf("cycle returned error", logging.Fields{"error": err.Error(), "cycle_ts": cycleTS})
			}
		case <-cycleCtx.Done():
			metrics.CyclesAbandonedTotal.Inc()
			s.log.Warnf("cycle abandoned: watchdog expired", logging.Fields{"cycle_ts": cycleTS, "watchdog_sec": s.Watchdog.Seconds()})
		}
		cancel()

		elapsed := time.Since(start)
		sleep := s.Period - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			if s.Notifier != nil {
				s.Notifier.Stop()
			}
			return
		case <-time.After(sleep):
		}
	}
}
