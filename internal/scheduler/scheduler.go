// Package scheduler runs the executor's periodic reports on cron specs
// (with seconds, evaluated in UTC).
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"signal-executor/internal/events"
	"signal-executor/internal/state"
	"signal-executor/pkg/config"

	"github.com/robfig/cron/v3"
)

// History reads closed trades.
type History interface {
	Stats(since time.Time) state.Stats
	DailyRealizedLoss(now time.Time) float64
}

// ConfigSource returns the current trading config.
type ConfigSource interface {
	Config() config.TradingConfig
}

// Notifier is the fire-and-forget notification sink.
type Notifier interface {
	Notify(msg events.Message)
}

// Specs are the cron expressions for each job. Empty disables the job.
type Specs struct {
	DailyReport    string
	DailyLossCheck string
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron     *cron.Cron
	history  History
	trading  ConfigSource
	notifier Notifier
	now      func() time.Time

	mu        sync.Mutex
	breachDay string // UTC date the loss alert last fired
}

func New(history History, trading ConfigSource, notifier Notifier) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		history:  history,
		trading:  trading,
		notifier: notifier,
		now:      time.Now,
	}
}

// Register adds the jobs named in specs.
func (s *Scheduler) Register(specs Specs) error {
	if specs.DailyReport != "" {
		if _, err := s.cron.AddFunc(specs.DailyReport, s.DailyReport); err != nil {
			return fmt.Errorf("daily report spec %q: %w", specs.DailyReport, err)
		}
	}
	if specs.DailyLossCheck != "" {
		if _, err := s.cron.AddFunc(specs.DailyLossCheck, s.CheckDailyLoss); err != nil {
			return fmt.Errorf("daily loss spec %q: %w", specs.DailyLossCheck, err)
		}
	}
	return nil
}

// Start runs jobs until ctx is done, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	log.Printf("✓ scheduler started (%d jobs)", len(s.cron.Entries()))
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		log.Printf("✓ scheduler stopped")
	}()
}

// DailyReport summarizes trades closed during the previous UTC day.
func (s *Scheduler) DailyReport() {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -1)
	stats := s.history.Stats(since)

	s.notifier.Notify(events.Message{
		Event: events.EventDailyReport,
		Text: fmt.Sprintf("📊 Daily report %s\nTrades: %d (W %d / L %d)\nWin rate: %.1f%%\nTotal PnL: %+.2f USDT\nAvg hold: %.2fh",
			since.Format("2006-01-02"), stats.TotalTrades, stats.Wins, stats.Losses, stats.WinRate, stats.TotalPnL, stats.AvgHoldTimeHours),
		Data: map[string]any{"stats": stats, "since": since},
	})
}

// CheckDailyLoss alerts once per UTC day when realized loss reaches the limit.
func (s *Scheduler) CheckDailyLoss() {
	now := s.now().UTC()
	limit := s.trading.Config().MaxDailyLoss
	loss := s.history.DailyRealizedLoss(now)
	if limit <= 0 || loss < limit {
		return
	}

	day := now.Format("2006-01-02")
	s.mu.Lock()
	if s.breachDay == day {
		s.mu.Unlock()
		return
	}
	s.breachDay = day
	s.mu.Unlock()

	s.notifier.Notify(events.Message{
		Event: events.EventDailyLossBreached,
		Level: events.LevelError,
		Text:  fmt.Sprintf("🛑 Daily loss %.2f USDT reached the %.2f limit; new signals are rejected until 00:00 UTC", loss, limit),
		Data:  map[string]any{"loss": loss, "limit": limit},
	})
}
