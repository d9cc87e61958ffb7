package spot

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"signal-executor/pkg/binance"
	"signal-executor/pkg/exchanges/common"
)

const testSecret = "secret"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:    "key",
		APISecret: testSecret,
		BaseURL:   srv.URL,
		Retry: common.RetryPolicy{
			MaxAttempts:       3,
			BaseDelay:         time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			ClockSkewAttempts: 3,
			ClockSkewPause:    time.Millisecond,
			RateLimitFallback: time.Millisecond,
		},
	})
}

// signedPayload returns the request's parameters and verifies the trailing signature.
func signedPayload(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	raw := r.URL.RawQuery
	if r.Method == http.MethodPost {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
	}
	idx := strings.LastIndex(raw, "&signature=")
	if idx < 0 {
		t.Errorf("missing signature in %q", raw)
		return nil
	}
	if got, want := raw[idx+len("&signature="):], binance.Sign(raw[:idx], testSecret); got != want {
		t.Errorf("bad signature: got %s want %s", got, want)
	}
	if r.Header.Get("X-MBX-APIKEY") != "key" {
		t.Errorf("missing api key header")
	}
	v, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	return v
}

func TestSubmitLimitShape(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/order" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		got = signedPayload(t, r)
		w.Write([]byte(`{"symbol":"BTCUSDT","orderId":7,"clientOrderId":"cid","status":"NEW"}`))
	})

	res, err := c.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Qty:      0.00222222,
		Price:    45000,
		ClientID: "cid",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.ExchangeOrderID != "7" || res.Status != common.StatusNew || res.ClientID != "cid" {
		t.Fatalf("unexpected result %+v", res)
	}

	want := map[string]string{
		"symbol":           "BTCUSDT",
		"side":             "BUY",
		"type":             "LIMIT",
		"quantity":         "0.00222222",
		"price":            "45000",
		"timeInForce":      "GTC",
		"newClientOrderId": "cid",
	}
	for k, v := range want {
		if got.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, got.Get(k), v)
		}
	}
	for _, k := range []string{"reduceOnly", "stopPrice", "workingType"} {
		if got.Has(k) {
			t.Errorf("spot order must not carry %s", k)
		}
	}
}

func TestSubmitMarketOmitsPrice(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = signedPayload(t, r)
		w.Write([]byte(`{"orderId":8,"status":"FILLED"}`))
	})

	res, err := c.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol: "ETHUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 1,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Status != common.StatusFilled {
		t.Fatalf("status = %s", res.Status)
	}
	if got.Get("type") != "MARKET" || got.Has("price") || got.Has("timeInForce") {
		t.Fatalf("unexpected market payload %v", got)
	}
}

func TestGetHoldingsReportsPositions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/account" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		signedPayload(t, r)
		w.Write([]byte(`{"canTrade":true,"balances":[
			{"asset":"USDT","free":"250.5","locked":"0"},
			{"asset":"BTC","free":"0.002","locked":"0.001"},
			{"asset":"ETH","free":"0","locked":"0"}
		]}`))
	})

	holdings, err := c.GetHoldings(context.Background())
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("expected only BTC as a holding, got %+v", holdings)
	}
	h := holdings[0]
	if h.Symbol != "BTCUSDT" || h.Market != common.MarketSpot || h.Leverage != 1 || h.Direction() != "long" {
		t.Fatalf("unexpected holding %+v", h)
	}
	if h.Amount < 0.0029999 || h.Amount > 0.0030001 {
		t.Fatalf("amount = %v, want free+locked", h.Amount)
	}

	balances, err := c.GetBalances(context.Background())
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 2 || balances[0].Asset != "USDT" || balances[0].Available != 250.5 {
		t.Fatalf("unexpected balances %+v", balances)
	}
}

func TestOpenOrdersAndCancel(t *testing.T) {
	var cancelled url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v3/openOrders" && r.Method == http.MethodGet:
			if q := signedPayload(t, r); q.Get("symbol") != "BTCUSDT" {
				t.Errorf("symbol = %q", q.Get("symbol"))
			}
			w.Write([]byte(`[{"symbol":"BTCUSDT","orderId":5,"clientOrderId":"se-1","side":"BUY","type":"LIMIT","price":"44000","stopPrice":"0","origQty":"0.01","status":"NEW"}]`))
		case r.URL.Path == "/api/v3/order" && r.Method == http.MethodDelete:
			cancelled = signedPayload(t, r)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	orders, err := c.GetOpenOrders(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	o := orders[0]
	if o.OrderID != "5" || o.Market != common.MarketSpot || o.Side != common.SideBuy || o.Price != 44000 || o.Qty != 0.01 || o.Status != common.StatusNew {
		t.Fatalf("unexpected order %+v", o)
	}

	if err := c.CancelOrder(context.Background(), "BTCUSDT", o.OrderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Get("symbol") != "BTCUSDT" || cancelled.Get("orderId") != "5" {
		t.Fatalf("unexpected cancel params %v", cancelled)
	}
}

func TestGetSymbolFiltersNotional(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("exchangeInfo must be scoped to the symbol")
		}
		w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","filters":[
			{"filterType":"LOT_SIZE","minQty":"0.00001","stepSize":"0.00001"},
			{"filterType":"NOTIONAL","minNotional":"5"}
		]}]}`))
	})

	f, err := c.GetSymbolFilters(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("filters: %v", err)
	}
	if f.MinQty != 0.00001 || f.MinNotional != 5 || f.Defaulted {
		t.Fatalf("unexpected filters %+v", f)
	}
}

func TestTickerRejectsZeroPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"0"}`))
	})
	if _, err := c.GetTickerPrice(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected error for zero price")
	}
}
