package notifier

import (
	"testing"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

func TestBoundedQueuePopsBySeverityThenFIFO(t *testing.T) {
	q := newBoundedQueue(10)
	low := &message{Anomaly: model.Anomaly{Severity: model.SeverityLow}}
	critical1 := &message{Anomaly: model.Anomaly{Severity: model.SeverityCritical}}
	medium := &message{Anomaly: model.Anomaly{Severity: model.SeverityMedium}}
	critical2 := &message{Anomaly: model.Anomaly{Severity: model.SeverityCritical}}

	for _, m := range []*message{low, critical1, medium, critical2} {
		if !q.tryPush(m) {
			t.Fatal("expected push to succeed under capacity")
		}
	}

	if got := q.pop(); got != critical1 {
		t.Errorf("expected the first-enqueued critical message first, got %+v", got)
	}
	if got := q.pop(); got != critical2 {
		t.Errorf("expected the second critical message next, got %+v", got)
	}
	if got := q.pop(); got != medium {
		t.Errorf("expected medium next, got %+v", got)
	}
	if got := q.pop(); got != low {
		t.Errorf("expected low last, got %+v", got)
	}
	if got := q.pop(); got != nil {
		t.Errorf("expected empty queue to pop nil, got %+v", got)
	}
}

func TestBoundedQueueDropsOnFull(t *testing.T) {
	q := newBoundedQueue(2)
	a := &message{Anomaly: model.Anomaly{Severity: model.SeverityLow}}
	b := &message{Anomaly: model.Anomaly{Severity: model.SeverityLow}}
	c := &message{Anomaly: model.Anomaly{Severity: model.SeverityCritical}}

	if !q.tryPush(a) || !q.tryPush(b) {
		t.Fatal("expected first two pushes to succeed")
	}
	if q.tryPush(c) {
		t.Fatal("expected push at capacity to be rejected, even for a critical message")
	}
	if q.len() != 2 {
		t.Errorf("expected queue length 2, got %d", q.len())
	}
}
