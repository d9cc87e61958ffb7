package order

import (
	"errors"
	"testing"

	"signal-executor/internal/state"
	"signal-executor/pkg/config"
)

func btcLong() TradeSignal {
	return TradeSignal{
		Symbol:      "BTCUSDT",
		Direction:   state.Long,
		EntryPrice:  45000,
		StopLoss:    44000,
		TakeProfits: []float64{46000, 47000, 48000, 49000, 50000},
		Leverage:    10,
		Class:       state.Futures,
		Confidence:  0.8,
		Source:      "test",
	}
}

func TestValidateSignal(t *testing.T) {
	limits := LimitsFrom(config.DefaultTradingConfig())

	tests := []struct {
		name   string
		mutate func(*TradeSignal)
		ok     bool
	}{
		{name: "valid long", ok: true},
		{name: "valid short", mutate: func(s *TradeSignal) {
			s.Direction = state.Short
			s.StopLoss = 46000
			s.TakeProfits = []float64{44000, 43000}
		}, ok: true},
		{name: "missing symbol", mutate: func(s *TradeSignal) { s.Symbol = "" }},
		{name: "bad direction", mutate: func(s *TradeSignal) { s.Direction = "up" }},
		{name: "no take profit", mutate: func(s *TradeSignal) { s.TakeProfits = nil }},
		{name: "long stop above entry", mutate: func(s *TradeSignal) { s.StopLoss = 45500 }},
		{name: "long take profit below entry", mutate: func(s *TradeSignal) { s.TakeProfits = []float64{46000, 44500} }},
		{name: "short ordering reversed", mutate: func(s *TradeSignal) { s.Direction = state.Short }},
		{name: "risk reward too wide", mutate: func(s *TradeSignal) { s.TakeProfits = []float64{45100} }},
		{name: "stop too far", mutate: func(s *TradeSignal) {
			s.StopLoss = 30000
			s.TakeProfits = []float64{60000}
		}},
		{name: "low confidence", mutate: func(s *TradeSignal) { s.Confidence = 0.1 }},
		{name: "leverage over 100", mutate: func(s *TradeSignal) { s.Leverage = 125 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := btcLong()
			if tt.mutate != nil {
				tt.mutate(&sig)
			}
			err := ValidateSignal(sig, limits)
			if tt.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidSignal) {
				t.Fatalf("expected ErrInvalidSignal, got %v", err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	sig := TradeSignal{Direction: " LONG ", Class: ""}
	sig.Normalize()
	if sig.Direction != state.Long || sig.Class != state.Futures || sig.Source != "unknown" {
		t.Fatalf("unexpected normalized signal %+v", sig)
	}
}

func TestResolveLeverage(t *testing.T) {
	tests := []struct{ configured, requested, want int }{
		{20, 10, 20},
		{0, 10, 10},
		{0, 0, 1},
	}
	for _, tt := range tests {
		if got := ResolveLeverage(tt.configured, tt.requested); got != tt.want {
			t.Errorf("ResolveLeverage(%d, %d) = %d, want %d", tt.configured, tt.requested, got, tt.want)
		}
	}
}
