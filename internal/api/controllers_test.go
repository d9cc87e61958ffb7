package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"signal-executor/internal/balance"
	"signal-executor/internal/events"
	"signal-executor/internal/monitor"
	"signal-executor/internal/order"
	"signal-executor/internal/state"
	"signal-executor/pkg/config"
)

const testAPIKey = "control-key"

type fakeIntake struct {
	mu   sync.Mutex
	got  []order.TradeSignal
	err  error
	next int
}

func (f *fakeIntake) Submit(_ context.Context, sig order.TradeSignal) (order.TradeSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return sig, f.err
	}
	f.next++
	sig.ID = fmt.Sprintf("sig-%d", f.next)
	f.got = append(f.got, sig)
	return sig, nil
}

type fakeQueue struct{}

func (fakeQueue) Pending() []order.TradeSignal { return nil }
func (fakeQueue) QueueLen() int                { return 0 }
func (fakeQueue) Alive() bool                  { return true }
func (fakeQueue) Restarts() int64              { return 0 }

type fakeTracker struct{}

func (fakeTracker) ActivePositionsSummary(context.Context) (string, error) {
	return "No active positions", nil
}

type fakeCanceller struct {
	symbol string
}

func (f *fakeCanceller) CancelAllOrders(_ context.Context, symbol string) (int, error) {
	f.symbol = symbol
	return 3, nil
}

type fakeBalances struct{}

func (fakeBalances) GetBalance() balance.Snapshot {
	return balance.Snapshot{Quote: map[string]balance.Quote{
		"USDT_FUTURES": {Total: 1000, Available: 800, Locked: 200},
	}}
}

type testEnv struct {
	srv     *httptest.Server
	intake  *fakeIntake
	cancel  *fakeCanceller
	store   *config.Store
	history *state.History
	bus     *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		intake:  &fakeIntake{},
		cancel:  &fakeCanceller{},
		store:   config.NewStaticStore(config.DefaultTradingConfig()),
		history: state.NewHistory(nil),
		bus:     events.NewBus(),
	}
	server := NewServer(Deps{
		Intake:  env.intake,
		Queue:   fakeQueue{},
		Book:    state.NewManager(nil),
		History: env.history,
		Tracker: fakeTracker{},
		Orders:  env.cancel,
		Balance: fakeBalances{},
		Config:  env.store,
		Metrics: monitor.NewSystemMetrics(),
		Bus:     env.bus,
	}, Auth{JWTSecret: "test-secret", APIKey: testAPIKey}, SystemMeta{HostID: "host-1", Version: "test"})

	env.srv = httptest.NewServer(server.Router)
	t.Cleanup(env.srv.Close)
	return env
}

func doJSONRequest(t *testing.T, method, url, token string, payload any, out any) int {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	var out struct {
		Token string `json:"token"`
	}
	if code := doJSONRequest(t, http.MethodPost, e.srv.URL+"/api/auth/token", "", map[string]string{"api_key": testAPIKey}, &out); code != http.StatusOK {
		t.Fatalf("token status %d", code)
	}
	if out.Token == "" {
		t.Fatalf("empty token")
	}
	return out.Token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var out map[string]any
	if code := doJSONRequest(t, http.MethodGet, env.srv.URL+"/health", "", nil, &out); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if out["status"] != "ok" || out["host_id"] != "host-1" || out["mode"] != config.ModePaper {
		t.Fatalf("unexpected health %v", out)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	if code := doJSONRequest(t, http.MethodGet, env.srv.URL+"/api/queue", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", code)
	}
	if code := doJSONRequest(t, http.MethodGet, env.srv.URL+"/api/queue", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d", code)
	}
	if code := doJSONRequest(t, http.MethodPost, env.srv.URL+"/api/auth/token", "", map[string]string{"api_key": "wrong"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status %d", code)
	}

	token := env.token(t)
	if code := doJSONRequest(t, http.MethodGet, env.srv.URL+"/api/queue", token, nil, nil); code != http.StatusOK {
		t.Fatalf("valid token: status %d", code)
	}
}

func TestSubmitSignal(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	payload := map[string]any{
		"symbol":       "BTCUSDT",
		"direction":    "long",
		"entry_price":  45000,
		"stop_loss":    44000,
		"take_profits": []float64{46000, 47000},
		"trade_type":   "futures",
		"confidence":   0.8,
	}
	var out struct {
		SignalID string `json:"signal_id"`
		Stage    string `json:"stage"`
	}
	if code := doJSONRequest(t, http.MethodPost, env.srv.URL+"/api/signals", token, payload, &out); code != http.StatusAccepted {
		t.Fatalf("status %d", code)
	}
	if out.SignalID != "sig-1" || out.Stage != string(order.StageQueued) {
		t.Fatalf("unexpected response %+v", out)
	}
	got := env.intake.got[0]
	if got.Symbol != "BTCUSDT" || got.Class != state.Futures || len(got.TakeProfits) != 2 {
		t.Fatalf("signal not forwarded intact: %+v", got)
	}
	if got.Source != "api:operator" {
		t.Fatalf("source = %q", got.Source)
	}
}

func TestSubmitSignalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("%w: stop loss on wrong side", order.ErrInvalidSignal), http.StatusBadRequest},
		{"rate limited", order.ErrRateLimited, http.StatusTooManyRequests},
		{"closed", order.ErrQueueClosed, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			token := env.token(t)
			env.intake.err = tt.err
			if code := doJSONRequest(t, http.MethodPost, env.srv.URL+"/api/signals", token, map[string]any{"symbol": "BTCUSDT"}, nil); code != tt.want {
				t.Fatalf("status %d, want %d", code, tt.want)
			}
		})
	}
}

func TestCancelAll(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	if code := doJSONRequest(t, http.MethodPost, env.srv.URL+"/api/orders/cancel-all", token, map[string]string{}, nil); code != http.StatusBadRequest {
		t.Fatalf("missing symbol: status %d", code)
	}
	var out struct {
		Cancelled int `json:"cancelled"`
	}
	if code := doJSONRequest(t, http.MethodPost, env.srv.URL+"/api/orders/cancel-all", token, map[string]string{"symbol": " btcusdt "}, &out); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if out.Cancelled != 3 || env.cancel.symbol != "BTCUSDT" {
		t.Fatalf("unexpected cancel %+v %q", out, env.cancel.symbol)
	}
}

func TestTradeStats(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := state.TradeRecord{Symbol: "ETHUSDT", PnL: -5, HoldHours: 1, ClosedAt: now.AddDate(0, 0, -10)}
	recent := state.TradeRecord{Symbol: "BTCUSDT", PnL: 12.5, HoldHours: 3, ClosedAt: now.Add(-time.Hour)}
	for _, r := range []state.TradeRecord{old, recent} {
		if err := env.history.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var stats state.Stats
	if code := doJSONRequest(t, http.MethodGet, env.srv.URL+"/api/trades/stats?days=7", token, nil, &stats); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if stats.TotalTrades != 1 || stats.TotalPnL != 12.5 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	var all struct {
		Count int `json:"count"`
	}
	doJSONRequest(t, http.MethodGet, env.srv.URL+"/api/trades", token, nil, &all)
	if all.Count != 2 {
		t.Fatalf("expected 2 trades, got %d", all.Count)
	}

	if code := doJSONRequest(t, http.MethodGet, env.srv.URL+"/api/trades/stats?days=abc", token, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad days: status %d", code)
	}
}

func TestPatchConfig(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	var out struct {
		Version uint64               `json:"version"`
		Config  config.TradingConfig `json:"config"`
	}
	patch := map[string]any{"leverage": 5, "blacklist": []string{"DOGEUSDT"}}
	if code := doJSONRequest(t, http.MethodPatch, env.srv.URL+"/api/config", token, patch, &out); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if out.Version != 2 || out.Config.Leverage != 5 || out.Config.MaxFuturesTrade != 2 {
		t.Fatalf("unexpected config %+v", out)
	}
	if !env.store.Config().IsBlacklisted("DOGEUSDT") {
		t.Fatalf("store not updated")
	}

	if code := doJSONRequest(t, http.MethodPatch, env.srv.URL+"/api/config", token, map[string]any{"mode": "yolo"}, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid mode: status %d", code)
	}
	if env.store.Current().Version != 2 {
		t.Fatalf("rejected patch must not publish")
	}
}

func TestWebsocketStreamsEvents(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.bus.Subscribers(events.EventAll) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	env.bus.Publish(events.EventPositionClosed, events.Message{Event: events.EventPositionClosed, Symbol: "BTCUSDT"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg events.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Event != events.EventPositionClosed || msg.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestGetBalances(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	var out balance.Snapshot
	if code := doJSONRequest(t, http.MethodGet, env.srv.URL+"/api/balances", token, nil, &out); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if q := out.Quote["USDT_FUTURES"]; q.Available != 800 || q.Locked != 200 {
		t.Fatalf("unexpected balances %+v", out)
	}
}
