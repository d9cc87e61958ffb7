package order

import (
	"fmt"
	"math"
	"strings"

	"signal-executor/internal/state"
	"signal-executor/pkg/config"
)

// Limits bound what a signal may ask for.
type Limits struct {
	MinConfidence   float64
	MaxRiskReward   float64
	MaxStopDistance float64 // fraction of entry
	MaxLeverage     int
}

// LimitsFrom derives signal limits from the trading config.
func LimitsFrom(cfg config.TradingConfig) Limits {
	return Limits{
		MinConfidence:   cfg.MinConfidence,
		MaxRiskReward:   cfg.MaxRiskReward,
		MaxStopDistance: 0.20,
		MaxLeverage:     100,
	}
}

// Normalize fills defaults and canonicalizes enum fields in place.
func (s *TradeSignal) Normalize() {
	s.Direction = state.Direction(strings.ToLower(strings.TrimSpace(string(s.Direction))))
	s.Class = state.TradeClass(strings.ToLower(strings.TrimSpace(string(s.Class))))
	if s.Class == "" || s.Class == "future" {
		s.Class = state.Futures
	}
	if s.Source == "" {
		s.Source = "unknown"
	}
}

// CheckOrdering enforces the price invariant: for long, stop < entry < every
// take-profit; for short, the reverse.
func CheckOrdering(s TradeSignal) error {
	if !s.Direction.Valid() {
		return fmt.Errorf("%w: direction must be long or short, got %q", ErrInvalidSignal, s.Direction)
	}
	if !s.Class.Valid() {
		return fmt.Errorf("%w: trade type must be futures or spot, got %q", ErrInvalidSignal, s.Class)
	}
	if s.EntryPrice <= 0 || s.StopLoss <= 0 {
		return fmt.Errorf("%w: entry and stop loss must be positive", ErrInvalidSignal)
	}
	if len(s.TakeProfits) == 0 {
		return fmt.Errorf("%w: at least one take profit required", ErrInvalidSignal)
	}
	long := s.Direction == state.Long
	if long && s.StopLoss >= s.EntryPrice {
		return fmt.Errorf("%w: long stop loss %g must be below entry %g", ErrInvalidSignal, s.StopLoss, s.EntryPrice)
	}
	if !long && s.StopLoss <= s.EntryPrice {
		return fmt.Errorf("%w: short stop loss %g must be above entry %g", ErrInvalidSignal, s.StopLoss, s.EntryPrice)
	}
	for i, tp := range s.TakeProfits {
		if tp <= 0 {
			return fmt.Errorf("%w: take profit %d must be positive", ErrInvalidSignal, i+1)
		}
		if long && tp <= s.EntryPrice {
			return fmt.Errorf("%w: long take profit %d (%g) must be above entry %g", ErrInvalidSignal, i+1, tp, s.EntryPrice)
		}
		if !long && tp >= s.EntryPrice {
			return fmt.Errorf("%w: short take profit %d (%g) must be below entry %g", ErrInvalidSignal, i+1, tp, s.EntryPrice)
		}
	}
	return nil
}

// ValidateSignal is the full boundary check run by every submission surface.
func ValidateSignal(s TradeSignal, l Limits) error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidSignal)
	}
	if err := CheckOrdering(s); err != nil {
		return err
	}
	risk := math.Abs(s.EntryPrice - s.StopLoss)
	reward := math.Abs(s.TakeProfits[0] - s.EntryPrice)
	if l.MaxRiskReward > 0 && risk/reward > l.MaxRiskReward {
		return fmt.Errorf("%w: risk/reward %.2f exceeds %.2f", ErrInvalidSignal, risk/reward, l.MaxRiskReward)
	}
	if l.MaxStopDistance > 0 && risk/s.EntryPrice > l.MaxStopDistance {
		return fmt.Errorf("%w: stop loss %.1f%% away from entry, max %.0f%%", ErrInvalidSignal, risk/s.EntryPrice*100, l.MaxStopDistance*100)
	}
	if s.Confidence < l.MinConfidence {
		return fmt.Errorf("%w: confidence %.2f below %.2f", ErrInvalidSignal, s.Confidence, l.MinConfidence)
	}
	if s.Leverage < 0 || (l.MaxLeverage > 0 && s.Leverage > l.MaxLeverage) {
		return fmt.Errorf("%w: leverage %d out of range", ErrInvalidSignal, s.Leverage)
	}
	return nil
}

// ResolveLeverage picks the config override, then the signal's own, then 1.
func ResolveLeverage(configured, requested int) int {
	switch {
	case configured > 0:
		return configured
	case requested > 0:
		return requested
	default:
		return 1
	}
}
