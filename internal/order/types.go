package order

import (
	"errors"
	"time"

	"signal-executor/internal/risk"
	"signal-executor/internal/state"
)

var (
	ErrInvalidSignal = errors.New("invalid signal")
	ErrQueueClosed   = errors.New("signal queue closed")
	ErrRateLimited   = errors.New("too many signals, slow down")
)

// Stage is where a signal is in the pipeline.
type Stage string

const (
	StageQueued     Stage = "Queued"
	StageValidating Stage = "Validating"
	StageSizing     Stage = "Sizing"
	StageExecuting  Stage = "Executing"
	StageDone       Stage = "Done"
	StageRejected   Stage = "Rejected"
	StageFailed     Stage = "Failed"
)

// Terminal reports whether no further transition follows.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageRejected || s == StageFailed
}

// TradeSignal is a structured trade instruction from an external parser.
type TradeSignal struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Direction   state.Direction  `json:"direction"`
	EntryPrice  float64          `json:"entry_price"`
	StopLoss    float64          `json:"stop_loss"`
	TakeProfits []float64        `json:"take_profits"`
	Leverage    int              `json:"leverage,omitempty"`
	Class       state.TradeClass `json:"trade_type"`
	Confidence  float64          `json:"confidence"`
	Source      string           `json:"source"`
	ReceivedAt  time.Time        `json:"received_at"`
}

// Result is the outcome of executing one signal.
type Result struct {
	SignalID     string    `json:"signal_id"`
	Symbol       string    `json:"symbol"`
	Stage        Stage     `json:"stage"`
	Rule         risk.Rule `json:"rule,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	MarketPrice  float64   `json:"market_price,omitempty"`
	Size         float64   `json:"size,omitempty"`
	Leverage     int       `json:"leverage,omitempty"`
	EntryOrderID string    `json:"entry_order_id,omitempty"`
	TakeProfits  []float64 `json:"take_profit_legs,omitempty"` // ladder prices actually placed
	StopLossSet  bool      `json:"stop_loss_placed"`
	Unprotected  bool      `json:"unprotected"`
	Elapsed      string    `json:"elapsed"`
}
