package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"signal-executor/internal/events"
	"signal-executor/internal/state"
	"signal-executor/pkg/config"
)

type recorder struct {
	mu   sync.Mutex
	msgs []events.Message
}

func (r *recorder) Notify(m events.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func seed(t *testing.T, h *state.History, trades ...state.TradeRecord) {
	t.Helper()
	for _, tr := range trades {
		if err := h.Append(context.Background(), tr); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestDailyReportCoversPreviousDay(t *testing.T) {
	h := state.NewHistory(nil)
	now := time.Date(2024, 3, 2, 0, 0, 5, 0, time.UTC)
	seed(t, h,
		state.TradeRecord{Symbol: "OLD", PnL: 100, ClosedAt: now.AddDate(0, 0, -3)},
		state.TradeRecord{Symbol: "BTCUSDT", PnL: 20, HoldHours: 2, ClosedAt: now.Add(-6 * time.Hour)},
		state.TradeRecord{Symbol: "ETHUSDT", PnL: -5, HoldHours: 1, ClosedAt: now.Add(-3 * time.Hour)},
	)
	rec := &recorder{}
	s := New(h, config.NewStaticStore(config.DefaultTradingConfig()), rec)
	s.now = func() time.Time { return now }

	s.DailyReport()
	if len(rec.msgs) != 1 {
		t.Fatalf("expected one report, got %d", len(rec.msgs))
	}
	msg := rec.msgs[0]
	if msg.Event != events.EventDailyReport {
		t.Fatalf("event = %s", msg.Event)
	}
	for _, want := range []string{"2024-03-01", "Trades: 2 (W 1 / L 1)", "Total PnL: +15.00 USDT", "Win rate: 50.0%"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("report missing %q:\n%s", want, msg.Text)
		}
	}
}

func TestDailyLossAlertsOncePerDay(t *testing.T) {
	h := state.NewHistory(nil)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cfg := config.DefaultTradingConfig()
	cfg.MaxDailyLoss = 50
	rec := &recorder{}
	s := New(h, config.NewStaticStore(cfg), rec)
	s.now = func() time.Time { return now }

	seed(t, h, state.TradeRecord{PnL: -30, ClosedAt: now.Add(-time.Hour)})
	s.CheckDailyLoss()
	if len(rec.msgs) != 0 {
		t.Fatalf("alert below limit")
	}

	seed(t, h, state.TradeRecord{PnL: -20, ClosedAt: now.Add(-time.Minute)})
	s.CheckDailyLoss()
	s.CheckDailyLoss()
	if len(rec.msgs) != 1 || rec.msgs[0].Event != events.EventDailyLossBreached {
		t.Fatalf("expected exactly one breach alert, got %+v", rec.msgs)
	}

	// next UTC day starts clean
	now = now.Add(24 * time.Hour)
	seed(t, h, state.TradeRecord{PnL: -60, ClosedAt: now.Add(-time.Minute)})
	s.CheckDailyLoss()
	if len(rec.msgs) != 2 {
		t.Fatalf("expected a second alert on the next day, got %d", len(rec.msgs))
	}
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	s := New(state.NewHistory(nil), config.NewStaticStore(config.DefaultTradingConfig()), &recorder{})
	if err := s.Register(Specs{DailyReport: "not a cron"}); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := s.Register(Specs{DailyReport: "0 0 0 * * *", DailyLossCheck: "0 */5 * * * *"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if n := len(s.cron.Entries()); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
}
