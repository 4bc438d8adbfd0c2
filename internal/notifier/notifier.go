// Package notifier delivers anomaly alerts through a bounded, priority-
// ordered queue to a chat transport, with mass-alert grouping and an
// outbound dashboard broadcast.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/metrics"
	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

// SendResult is the outcome of one transport delivery attempt.
type SendResult struct {
	OK         bool
	RetryAfter time.Duration // non-zero if the transport signalled a rate limit
	Err        error
}

// Transport is the chat delivery surface the notifier sends rendered text
// to. It is an external collaborator: this package only composes text and
// applies the retry policy against whatever Send reports.
type Transport interface {
	Send(ctx context.Context, text string) SendResult
}

// DashboardHub is the outbound broadcast surface for connected operator
// dashboards. Implemented by the A5 websocket hub.
type DashboardHub interface {
	BroadcastAlert(a model.Anomaly, id string)
}

// Config tunes queueing, pacing, and grouping behavior.
type Config struct {
	MaxQueue          int
	Delay             time.Duration
	MinAlertSeverity  model.Severity
	MassAlertWindow   time.Duration
	MassAlertThreshold int
}

// Notifier owns the bounded queue and its delivery worker.
type Notifier struct {
	cfg       Config
	transport Transport
	hub       DashboardHub
	log       *logging.Logger

	mu     sync.Mutex
	queue  *boundedQueue
	recent map[model.AnomalyKind][]recentEntry

	stopCh chan struct{}
	doneCh chan struct{}
}

type recentEntry struct {
	at     time.Time
	symbol string
}

// New builds a notifier. hub may be nil if dashboard push is disabled.
func New(cfg Config, transport Transport, hub DashboardHub) *Notifier {
	return &Notifier{
		cfg:       cfg,
		transport: transport,
		hub:       hub,
		log:       logging.Global(),
		queue:     newBoundedQueue(cfg.MaxQueue),
		recent:    make(map[model.AnomalyKind][]recentEntry),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// ShouldNotify reports whether an anomaly is eligible for enqueue: oi_flush
// always qualifies; otherwise severity must meet the configured floor.
func (n *Notifier) ShouldNotify(a model.Anomaly) bool {
	if a.Kind == model.KindOIFlush {
		return true
	}
	return a.Severity.AtLeast(n.cfg.MinAlertSeverity)
}

// Enqueue admits an anomaly into the queue if it passes ShouldNotify and the
// queue has room; otherwise it is dropped and logged.
func (n *Notifier) Enqueue(a model.Anomaly) {
	if !n.ShouldNotify(a) {
		return
	}
	msg := &message{
		ID:         uuid.New().String(),
		Anomaly:    a,
		Symbol:     a.Symbol,
		Text:       renderText(a),
		EnqueuedAt: time.Now().UTC(),
	}

	n.mu.Lock()
	ok := n.queue.tryPush(msg)
	depth := n.queue.len()
	n.mu.Unlock()

	if !ok {
		metrics.NotifierDroppedTotal.Inc()
		n.log.NotifyLog(msg.ID, "queue", "dropped", logging.Fields{"symbol": a.Symbol, "kind": string(a.Kind)})
		return
	}
	metrics.NotifierQueueDepth.Set(float64(depth))
}

// Start launches the delivery worker. Call Stop to drain and terminate.
func (n *Notifier) Start(ctx context.Context) {
	go n.run(ctx)
}

func (n *Notifier) run(ctx context.Context) {
	defer close(n.doneCh)
	ticker := time.NewTicker(n.cfg.Delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			n.drain(context.Background())
			return
		case <-n.stopCh:
			n.drain(context.Background())
			return
		case <-ticker.C:
			n.deliverNext(ctx)
		}
	}
}

// Stop signals the worker to drain the remaining queue and exit, then
// blocks until it has done so.
func (n *Notifier) Stop() {
	close(n.stopCh)
	<-n.doneCh
}

// drain delivers every remaining message at the configured pace before
// returning, used on shutdown.
func (n *Notifier) drain(ctx context.Context) {
	for {
		n.mu.Lock()
		empty := n.queue.len() == 0
		n.mu.Unlock()
		if empty {
			return
		}
		n.deliverNext(ctx)
		time.Sleep(n.cfg.Delay)
	}
}

func (n *Notifier) deliverNext(ctx context.Context) {
	n.mu.Lock()
	msg := n.queue.pop()
	if msg != nil {
		metrics.NotifierQueueDepth.Set(float64(n.queue.len()))
	}
	n.mu.Unlock()
	if msg == nil {
		return
	}

	text := msg.Text
	if grouped, symbols := n.checkMassAlert(msg); grouped {
		text = renderMassAlert(msg.Anomaly.Kind, symbols)
	}

	n.send(ctx, msg, text)
}

// checkMassAlert records msg in the sliding window for its kind and reports
// whether the window now exceeds the mass-alert threshold; if so it purges
// the window for that kind and returns up to six symbols for the grouped
// message.
func (n *Notifier) checkMassAlert(msg *message) (bool, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	kind := msg.Anomaly.Kind
	cutoff := time.Now().UTC().Add(-n.cfg.MassAlertWindow)
	entries := n.recent[kind]
	kept := entries[:0]
	for _, e := range entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	kept = append(kept, recentEntry{at: time.Now().UTC(), symbol: msg.Symbol})
	n.recent[kind] = kept

	if len(kept) <= n.cfg.MassAlertThreshold {
		return false, nil
	}

	symbols := make([]string, 0, 6)
	seen := make(map[string]bool)
	for _, e := range kept {
		if seen[e.symbol] {
			continue
		}
		seen[e.symbol] = true
		symbols = append(symbols, e.symbol)
		if len(symbols) == 6 {
			break
		}
	}
	delete(n.recent, kind)
	return true, symbols
}

func (n *Notifier) send(ctx context.Context, msg *message, text string) {
	result := n.transport.Send(ctx, text)
	if result.OK {
		metrics.NotificationsSentTotal.WithLabelValues("chat", "sent").Inc()
		n.log.NotifyLog(msg.ID, "chat", "sent", logging.Fields{"symbol": msg.Symbol, "kind": string(msg.Anomaly.Kind)})
		n.broadcastDashboard(msg)
		return
	}

	if result.RetryAfter > 0 {
		wait := result.RetryAfter
		if wait <= 0 {
			wait = 5 * time.Second
		}
		time.Sleep(wait)
		retry := n.transport.Send(ctx, text)
		if retry.OK {
			metrics.NotificationsSentTotal.WithLabelValues("chat", "sent").Inc()
			n.log.NotifyLog(msg.ID, "chat", "sent", logging.Fields{"symbol": msg.Symbol, "retried": true})
			n.broadcastDashboard(msg)
			return
		}
		metrics.NotificationsSentTotal.WithLabelValues("chat", "failed").Inc()
		n.log.NotifyLog(msg.ID, "chat", "failed", logging.Fields{"symbol": msg.Symbol, "error": errString(retry.Err)})
		return
	}

	metrics.NotificationsSentTotal.WithLabelValues("chat", "failed").Inc()
	n.log.NotifyLog(msg.ID, "chat", "failed", logging.Fields{"symbol": msg.Symbol, "error": errString(result.Err)})
}

func (n *Notifier) broadcastDashboard(msg *message) {
	if n.hub == nil {
		return
	}
	n.hub.BroadcastAlert(msg.Anomaly, msg.ID)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func renderText(a model.Anomaly) string {
	return fmt.Sprintf("[%s] %s %s: %s", a.Severity, a.Symbol, a.Kind, a.Description)
}

func renderMassAlert(kind model.AnomalyKind, symbols []string) string {
	return fmt.Sprintf("MASS ALERT: %s across %s", kind, joinSymbols(symbols))
}

func joinSymbols(symbols []string) string {
	out := ""
	for i, s := range symbols {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
