package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newWeightServer(t *testing.T, weight string, calls *atomic.Int32) *Transport {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-MBX-USED-WEIGHT-1M", weight)
		w.Write([]byte(`{"price":"45000"}`))
	}))
	t.Cleanup(srv.Close)
	return NewTransport(Config{
		BaseURL:      srv.URL,
		WeightLimit:  2400,
		WeightWindow: time.Hour,
	})
}

func TestSendHoldsRequestsWhenWeightSpent(t *testing.T) {
	var calls atomic.Int32
	tr := newWeightServer(t, "2300", &calls)

	if _, err := tr.Public(context.Background(), "/fapi/v1/ticker/price", nil); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.Public(ctx, "/fapi/v1/ticker/price", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the request to be held until the deadline, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("held request reached the server: %d calls", n)
	}
}

func TestSendProceedsUnderWeightBudget(t *testing.T) {
	var calls atomic.Int32
	tr := newWeightServer(t, "100", &calls)

	for i := 0; i < 3; i++ {
		if _, err := tr.Public(context.Background(), "/fapi/v1/ticker/price", nil); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
}

func TestSign(t *testing.T) {
	// HMAC-SHA256 example from the Binance API docs.
	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got := Sign(query, secret); got != want {
		t.Fatalf("Sign = %s, want %s", got, want)
	}
}
