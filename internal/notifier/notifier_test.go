package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

type fakeTransport struct {
	sent []string
}

func (f *fakeTransport) Send(ctx context.Context, text string) SendResult {
	f.sent = append(f.sent, text)
	return SendResult{OK: true}
}

func baseConfig() Config {
	return Config{
		MaxQueue: 10, Delay: time.Millisecond,
		MinAlertSeverity: model.SeverityMedium,
		MassAlertWindow:  time.Minute, MassAlertThreshold: 2,
	}
}

func TestShouldNotifyOIFlushAlwaysQualifies(t *testing.T) {
	n := New(baseConfig(), &fakeTransport{}, nil)
	a := model.Anomaly{Kind: model.KindOIFlush, Severity: model.SeverityLow}
	if !n.ShouldNotify(a) {
		t.Fatal("expected oi_flush to always qualify regardless of severity floor")
	}
}

func TestShouldNotifyRespectsSeverityFloor(t *testing.T) {
	n := New(baseConfig(), &fakeTransport{}, nil)
	low := model.Anomaly{Kind: model.KindFundingSpike, Severity: model.SeverityLow}
	if n.ShouldNotify(low) {
		t.Error("expected a low-severity non-flush anomaly below the floor to be rejected")
	}
	high := model.Anomaly{Kind: model.KindFundingSpike, Severity: model.SeverityHigh}
	if !n.ShouldNotify(high) {
		t.Error("expected a high-severity anomaly to qualify")
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxQueue = 1
	n := New(cfg, &fakeTransport{}, nil)
	a := model.Anomaly{Symbol: "BTCUSDT", Kind: model.KindFundingSpike, Severity: model.SeverityCritical}
	n.Enqueue(a)
	n.Enqueue(a)
	if n.queue.len() != 1 {
		t.Errorf("expected queue to stay at capacity 1 after a dropped enqueue, got %d", n.queue.len())
	}
}

func TestCheckMassAlertGroupsAndPurgesOnThreshold(t *testing.T) {
	n := New(baseConfig(), &fakeTransport{}, nil)
	kind := model.KindFundingSpike

	msg1 := &message{Anomaly: model.Anomaly{Kind: kind}, Symbol: "BTCUSDT"}
	if grouped, _ := n.checkMassAlert(msg1); grouped {
		t.Fatal("expected no mass alert on the first occurrence")
	}
	msg2 := &message{Anomaly: model.Anomaly{Kind: kind}, Symbol: "ETHUSDT"}
	if grouped, _ := n.checkMassAlert(msg2); grouped {
		t.Fatal("expected no mass alert on the second occurrence (threshold is 2)")
	}
	msg3 := &message{Anomaly: model.Anomaly{Kind: kind}, Symbol: "SOLUSDT"}
	grouped, symbols := n.checkMassAlert(msg3)
	if !grouped {
		t.Fatal("expected the third occurrence to exceed the mass-alert threshold")
	}
	if len(symbols) != 3 {
		t.Errorf("expected 3 grouped symbols, got %d: %v", len(symbols), symbols)
	}

	msg4 := &message{Anomaly: model.Anomaly{Kind: kind}, Symbol: "BNBUSDT"}
	if grouped, _ := n.checkMassAlert(msg4); grouped {
		t.Fatal("expected the window to have been purged after triggering, starting the count over")
	}
}
