package order

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-executor/pkg/exchanges/common"
)

// Submission limits shared by every intake surface.
const (
	DefaultSubmitLimit  = 60
	DefaultSubmitWindow = time.Minute
)

// Submitter accepts validated signals.
type Submitter interface {
	Submit(ctx context.Context, sig TradeSignal) (TradeSignal, error)
}

// SymbolNormalizer maps free-form symbols to exchange notation.
type SymbolNormalizer interface {
	NormalizeSymbol(raw string) string
}

// Intake is the boundary for externally parsed signals: rate limit,
// normalize, validate, then enqueue.
type Intake struct {
	next       Submitter
	trading    ConfigSource
	normalizer SymbolNormalizer
	limiter    *common.SlidingWindow
}

func NewIntake(next Submitter, trading ConfigSource, normalizer SymbolNormalizer, limit int, window time.Duration) *Intake {
	if limit <= 0 {
		limit = DefaultSubmitLimit
	}
	if window <= 0 {
		window = DefaultSubmitWindow
	}
	return &Intake{
		next:       next,
		trading:    trading,
		normalizer: normalizer,
		limiter:    common.NewSlidingWindow(limit, window),
	}
}

// Submit returns the queued signal with its assigned ID.
func (i *Intake) Submit(ctx context.Context, sig TradeSignal) (TradeSignal, error) {
	if !i.limiter.Allow() {
		log.Printf("⚠️ signal %s rejected: submission rate limit", sig.Symbol)
		return sig, ErrRateLimited
	}
	sig.Normalize()
	if i.normalizer != nil {
		sig.Symbol = i.normalizer.NormalizeSymbol(sig.Symbol)
	}
	if err := ValidateSignal(sig, LimitsFrom(i.trading.Config())); err != nil {
		log.Printf("⚠️ signal %s rejected at intake: %v", sig.Symbol, err)
		return sig, err
	}
	queued, err := i.next.Submit(ctx, sig)
	if err != nil {
		return queued, fmt.Errorf("enqueue %s: %w", sig.Symbol, err)
	}
	return queued, nil
}
