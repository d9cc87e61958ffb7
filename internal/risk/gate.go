// Package risk holds the validation gate every signal passes before orders are placed.
package risk

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-executor/internal/state"
	"signal-executor/pkg/config"
	"signal-executor/pkg/exchanges/common"
)

// Rule names the gate check that produced a decision.
type Rule string

const (
	RuleTradingDisabled  Rule = "trading_disabled"
	RuleBlacklisted      Rule = "blacklisted"
	RuleClassUnsupported Rule = "class_unsupported"
	RuleDuplicate        Rule = "duplicate_position"
	RulePositionLimit    Rule = "position_limit"
	RuleDailyLoss        Rule = "daily_loss_limit"
	RuleMinSize          Rule = "min_order_size"
)

// Decision is the gate verdict. Rejections are values, not errors.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Rule    Rule   `json:"rule,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func reject(rule Rule, format string, args ...any) Decision {
	return Decision{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// Request is what the gate needs to know about a signal.
type Request struct {
	Symbol    string
	Direction state.Direction
	Class     state.TradeClass
}

// Book is the local open-position view.
type Book interface {
	Has(symbol string, d state.Direction) bool
	CountByClass(c state.TradeClass) int
}

// LossSource reports today's realized loss.
type LossSource interface {
	DailyRealizedLoss(now time.Time) float64
}

// PositionSource reports live exchange positions.
type PositionSource interface {
	Positions(ctx context.Context) ([]common.Position, error)
}

// Manager evaluates the gate in order, stopping at the first failing rule.
type Manager struct {
	book     Book
	losses   LossSource
	exchange PositionSource
	now      func() time.Time
}

// NewManager creates a gate. exchange may be nil to check the local book only.
func NewManager(book Book, losses LossSource, exchange PositionSource) *Manager {
	return &Manager{book: book, losses: losses, exchange: exchange, now: time.Now}
}

// Evaluate runs every rule except the order-size check, which needs a price
// and filters; see CheckSize.
func (m *Manager) Evaluate(ctx context.Context, cfg config.TradingConfig, req Request) Decision {
	if !cfg.IsTradingEnabled {
		return reject(RuleTradingDisabled, "trading is disabled")
	}
	if cfg.IsBlacklisted(req.Symbol) {
		return reject(RuleBlacklisted, "%s is blacklisted", req.Symbol)
	}
	if req.Class == state.Spot && !cfg.IsLive() {
		return reject(RuleClassUnsupported, "spot trading requires live mode (mode=%s)", cfg.Mode)
	}

	var live []common.Position
	if m.exchange != nil {
		var err error
		live, err = m.exchange.Positions(ctx)
		if err != nil {
			// cannot prove there is no duplicate
			log.Printf("⚠️ duplicate check for %s failed: %v", req.Symbol, err)
			return reject(RuleDuplicate, "could not verify exchange positions: %v", err)
		}
	}

	if m.book.Has(req.Symbol, req.Direction) {
		return reject(RuleDuplicate, "%s %s already tracked", req.Symbol, req.Direction)
	}
	for _, p := range live {
		if p.Symbol == req.Symbol && p.Market == common.MarketUSDTFut && p.Direction() == string(req.Direction) {
			return reject(RuleDuplicate, "%s %s already open on exchange", req.Symbol, req.Direction)
		}
	}

	limit := cfg.MaxFuturesTrade
	if req.Class == state.Spot {
		limit = cfg.MaxSpotTrade
	}
	open := m.book.CountByClass(req.Class)
	if req.Class == state.Futures {
		onExchange := 0
		for _, p := range live {
			if p.Market == common.MarketUSDTFut {
				onExchange++
			}
		}
		open = max(open, onExchange)
	}
	if open >= limit {
		return reject(RulePositionLimit, "max %s positions reached (%d/%d)", req.Class, open, limit)
	}

	if loss := m.losses.DailyRealizedLoss(m.now()); loss >= cfg.MaxDailyLoss {
		return reject(RuleDailyLoss, "daily loss limit reached (%.2f/%.2f)", loss, cfg.MaxDailyLoss)
	}
	return allow()
}

// CheckSize is the last gate rule: the computed order must clear exchange minimums.
func (m *Manager) CheckSize(check common.SizeCheck) Decision {
	if !check.Valid {
		return reject(RuleMinSize, "order too small: %s", check.Reason)
	}
	return allow()
}
