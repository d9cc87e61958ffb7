package order

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"signal-executor/pkg/config"
)

type captureSubmitter struct{ got []TradeSignal }

func (c *captureSubmitter) Submit(_ context.Context, sig TradeSignal) (TradeSignal, error) {
	sig.ID = "queued"
	c.got = append(c.got, sig)
	return sig, nil
}

type upperNormalizer struct{}

func (upperNormalizer) NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.ReplaceAll(raw, "/", ""))
	if !strings.HasSuffix(s, "USDT") {
		s += "USDT"
	}
	return s
}

func TestIntakeNormalizesAndValidates(t *testing.T) {
	next := &captureSubmitter{}
	in := NewIntake(next, config.NewStaticStore(config.DefaultTradingConfig()), upperNormalizer{}, 10, time.Minute)

	sig := btcLong()
	sig.Symbol = "btc"
	sig.Direction = "LONG"
	queued, err := in.Submit(context.Background(), sig)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if queued.ID != "queued" || next.got[0].Symbol != "BTCUSDT" || next.got[0].Direction != "long" {
		t.Fatalf("unexpected forwarded signal %+v", next.got[0])
	}

	bad := btcLong()
	bad.StopLoss = 46000
	if _, err := in.Submit(context.Background(), bad); !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected invalid signal, got %v", err)
	}
	if len(next.got) != 1 {
		t.Fatalf("invalid signal must not be forwarded")
	}
}

func TestIntakeRateLimit(t *testing.T) {
	next := &captureSubmitter{}
	in := NewIntake(next, config.NewStaticStore(config.DefaultTradingConfig()), nil, 2, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := in.Submit(context.Background(), btcLong()); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if _, err := in.Submit(context.Background(), btcLong()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}
