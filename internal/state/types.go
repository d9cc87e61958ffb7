package state

import (
	"context"
	"time"

	"signal-executor/pkg/exchanges/common"
)

// Direction of a trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Valid reports whether d is long or short.
func (d Direction) Valid() bool { return d == Long || d == Short }

// EntrySide is the order side that opens a position in this direction.
func (d Direction) EntrySide() common.Side {
	if d == Short {
		return common.SideSell
	}
	return common.SideBuy
}

// ExitSide is the order side that reduces a position in this direction.
func (d Direction) ExitSide() common.Side { return d.EntrySide().Opposite() }

// TradeClass is the instrument class a signal targets.
type TradeClass string

const (
	Futures TradeClass = "futures"
	Spot    TradeClass = "spot"
)

// Valid reports whether c is futures or spot.
func (c TradeClass) Valid() bool { return c == Futures || c == Spot }

// Market maps the class to the exchange market.
func (c TradeClass) Market() common.MarketType {
	if c == Spot {
		return common.MarketSpot
	}
	return common.MarketUSDTFut
}

// LevelHit records the first crossing of a TP or SL level.
type LevelHit struct {
	Hit   bool      `json:"hit"`
	Price float64   `json:"price,omitempty"` // level price
	Mark  float64   `json:"mark,omitempty"`  // observed price at the crossing
	At    time.Time `json:"at,omitempty"`
}

// Position is the local record of one open symbol.
type Position struct {
	Symbol       string     `json:"symbol"`
	Direction    Direction  `json:"direction"`
	Class        TradeClass `json:"trade_class"`
	EntryPrice   float64    `json:"entry_price"`
	StopLoss     float64    `json:"stop_loss"`
	TakeProfits  []float64  `json:"take_profits"`
	Size         float64    `json:"position_size"`
	Leverage     int        `json:"leverage"`
	EntryOrderID string     `json:"entry_order_id"`
	SignalID     string     `json:"signal_id,omitempty"`
	Source       string     `json:"source"`
	CreatedAt    time.Time  `json:"timestamp"`

	TPHits      []LevelHit `json:"tp_hits"`
	SLHit       LevelHit   `json:"sl_hit"`
	Confirmed   bool       `json:"position_opened_confirmed"`
	ConfirmedAt time.Time  `json:"confirmed_at,omitempty"`
	LastPnL     float64    `json:"last_pnl"`
	LastPrice   float64    `json:"last_price"`
}

// Clone returns a deep copy safe to mutate.
func (p Position) Clone() Position {
	p.TakeProfits = append([]float64(nil), p.TakeProfits...)
	p.TPHits = append([]LevelHit(nil), p.TPHits...)
	return p
}

// EnsureHits sizes TPHits to match TakeProfits.
func (p *Position) EnsureHits() {
	for len(p.TPHits) < len(p.TakeProfits) {
		p.TPHits = append(p.TPHits, LevelHit{Price: p.TakeProfits[len(p.TPHits)]})
	}
}

// HighestTPHit returns the 1-based index of the highest TP level hit, or 0.
func (p Position) HighestTPHit() int {
	highest := 0
	for i, h := range p.TPHits {
		if h.Hit {
			highest = i + 1
		}
	}
	return highest
}

// TradeRecord is one closed trade. Never mutated after append.
type TradeRecord struct {
	Symbol      string     `json:"symbol"`
	Direction   Direction  `json:"direction"`
	Class       TradeClass `json:"trade_type"`
	EntryPrice  float64    `json:"entry_price"`
	ExitPrice   float64    `json:"exit_price"`
	Size        float64    `json:"position_size"`
	Leverage    int        `json:"leverage"`
	PnL         float64    `json:"pnl"`
	ROI         float64    `json:"roi"`
	HoldHours   float64    `json:"hold_time_hours"`
	Source      string     `json:"source"`
	OpenedAt    time.Time  `json:"timestamp"`
	ClosedAt    time.Time  `json:"close_time"`
	TPHits      []bool     `json:"tp_hits"`
	SLHit       bool       `json:"sl_hit"`
	CloseReason string     `json:"close_reason"`
	SignalID    string     `json:"signal_id,omitempty"`
}

// Persister stores the position book and trade history.
// SavePositions always receives the full set of open positions.
type Persister interface {
	LoadPositions(ctx context.Context) ([]Position, error)
	SavePositions(ctx context.Context, positions []Position) error
	LoadTrades(ctx context.Context) ([]TradeRecord, error)
	AppendTrade(ctx context.Context, t TradeRecord) error
}
