package state

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"signal-executor/pkg/exchanges/common"
)

// Stats summarizes closed trades.
type Stats struct {
	TotalTrades      int     `json:"total_trades"`
	TotalPnL         float64 `json:"total_pnl"`
	WinRate          float64 `json:"win_rate"`
	AvgHoldTimeHours float64 `json:"avg_hold_time_hours"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
}

// History is the append-only trade log.
type History struct {
	mu     sync.RWMutex
	trades []TradeRecord
	store  Persister
}

// NewHistory creates a history backed by store; nil keeps it in memory.
func NewHistory(store Persister) *History {
	return &History{store: store}
}

// Load reads existing trades from the store.
func (h *History) Load(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	trades, err := h.store.LoadTrades(ctx)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	h.mu.Lock()
	h.trades = trades
	h.mu.Unlock()
	return nil
}

// Append persists and records a closed trade.
func (h *History) Append(ctx context.Context, t TradeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t.TPHits = append([]bool(nil), t.TPHits...)
	if h.store != nil {
		if err := h.store.AppendTrade(ctx, t); err != nil {
			return fmt.Errorf("append trade: %w", err)
		}
	}
	h.trades = append(h.trades, t)
	return nil
}

// List returns trades closed at or after since (zero = all), oldest first.
func (h *History) List(since time.Time) []TradeRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]TradeRecord, 0, len(h.trades))
	for _, t := range h.trades {
		if since.IsZero() || !t.ClosedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out
}

// Stats computes statistics over trades closed at or after since.
func (h *History) Stats(since time.Time) Stats {
	return ComputeStats(h.List(since))
}

// ComputeStats returns total PnL (2dp), win rate % (1dp) and average hold hours (2dp).
func ComputeStats(trades []TradeRecord) Stats {
	s := Stats{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return s
	}
	var pnl, hold float64
	for _, t := range trades {
		pnl += t.PnL
		hold += t.HoldHours
		if t.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	s.TotalPnL = common.Round(pnl, 2)
	s.WinRate = common.Round(float64(s.Wins)/float64(len(trades))*100, 1)
	s.AvgHoldTimeHours = common.Round(hold/float64(len(trades)), 2)
	return s
}

// DailyRealizedLoss returns the absolute sum of losing trades closed since
// 00:00 UTC of now's day.
func (h *History) DailyRealizedLoss(now time.Time) float64 {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var loss float64
	for _, t := range h.List(midnight) {
		if t.PnL < 0 {
			loss += t.PnL
		}
	}
	return math.Abs(loss)
}
