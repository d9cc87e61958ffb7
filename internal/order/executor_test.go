package order

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"signal-executor/internal/events"
	"signal-executor/internal/risk"
	"signal-executor/internal/state"
	"signal-executor/pkg/config"
	"signal-executor/pkg/exchanges/common"
)

type placed struct {
	kind     string
	side     common.Side
	qty      float64
	price    float64
	market   common.MarketType
	leverage int
}

type fakeExchange struct {
	mu        sync.Mutex
	price     float64
	filters   common.SymbolFilters
	entryErr  error
	stopErr   error
	panicOnce bool
	calls     []placed
	nextID    int
}

func (f *fakeExchange) record(p placed) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	f.nextID++
	return fmt.Sprint(f.nextID)
}

func (f *fakeExchange) orders() []placed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]placed(nil), f.calls...)
}

func (f *fakeExchange) TickerPrice(context.Context, common.MarketType, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnce {
		f.panicOnce = false
		panic("ticker exploded")
	}
	return f.price, nil
}

func (f *fakeExchange) SymbolFilters(context.Context, common.MarketType, string) common.SymbolFilters {
	return f.filters
}

func (f *fakeExchange) SetLeverage(_ context.Context, _ string, leverage int) error {
	f.record(placed{kind: "leverage", leverage: leverage})
	return nil
}

func (f *fakeExchange) PlaceLimitOrder(_ context.Context, m common.MarketType, _ string, side common.Side, qty, price float64) (common.OrderResult, error) {
	if f.entryErr != nil {
		return common.OrderResult{}, f.entryErr
	}
	id := f.record(placed{kind: "entry", side: side, qty: qty, price: price, market: m})
	return common.OrderResult{ExchangeOrderID: id, Status: common.StatusNew}, nil
}

func (f *fakeExchange) PlaceTakeProfit(_ context.Context, _ string, side common.Side, qty, trigger float64) (common.OrderResult, error) {
	id := f.record(placed{kind: "tp", side: side, qty: qty, price: trigger})
	return common.OrderResult{ExchangeOrderID: id, Status: common.StatusNew}, nil
}

func (f *fakeExchange) PlaceStopLoss(_ context.Context, _ string, side common.Side, qty, trigger float64) (common.OrderResult, error) {
	if f.stopErr != nil {
		return common.OrderResult{}, f.stopErr
	}
	id := f.record(placed{kind: "sl", side: side, qty: qty, price: trigger})
	return common.OrderResult{ExchangeOrderID: id, Status: common.StatusNew}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []events.Message
	ch   chan events.Message
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan events.Message, 64)}
}

func (n *recordingNotifier) Notify(msg events.Message) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	select {
	case n.ch <- msg:
	default:
	}
}

func (n *recordingNotifier) has(e events.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.msgs {
		if m.Event == e {
			return true
		}
	}
	return false
}

// waitFor blocks until a message with one of the events arrives.
func (n *recordingNotifier) waitFor(t *testing.T, want ...events.Event) events.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-n.ch:
			for _, e := range want {
				if msg.Event == e {
					return msg
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

type harness struct {
	exchange *fakeExchange
	book     *state.Manager
	notifier *recordingNotifier
	trading  *config.Store
	pipeline *Pipeline
}

func newHarness(mutate func(*config.TradingConfig)) *harness {
	cfg := config.DefaultTradingConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		exchange: &fakeExchange{price: 45000, filters: common.SymbolFilters{MinQty: 0.001, MinNotional: 5}},
		book:     state.NewManager(nil),
		notifier: newRecordingNotifier(),
		trading:  config.NewStaticStore(cfg),
	}
	h.pipeline = NewPipeline(Options{TakeProfitGap: -1, PollTimeout: 20 * time.Millisecond, RestartDelay: time.Millisecond}, Deps{
		Exchange: h.exchange,
		Gate:     risk.NewManager(h.book, state.NewHistory(nil), nil),
		Book:     h.book,
		Notifier: h.notifier,
		Trading:  h.trading,
	})
	return h
}

func TestExecutePlacesFullOrderSet(t *testing.T) {
	h := newHarness(nil)
	sig := btcLong()
	sig.ID = "sig-1"

	res := h.pipeline.Execute(context.Background(), sig)
	if res.Stage != StageDone {
		t.Fatalf("expected Done, got %+v", res)
	}
	if res.Size != 0.003333 || res.Leverage != 10 {
		t.Fatalf("unexpected sizing %+v", res)
	}

	want := []placed{
		{kind: "leverage", leverage: 10},
		{kind: "entry", side: common.SideBuy, qty: 0.003333, price: 45000, market: common.MarketUSDTFut},
		{kind: "tp", side: common.SideSell, qty: 0.001111, price: 46000},
		{kind: "tp", side: common.SideSell, qty: 0.001111, price: 48000},
		{kind: "tp", side: common.SideSell, qty: 0.001111, price: 50000},
		{kind: "sl", side: common.SideSell, qty: 0.003333, price: 44000},
	}
	if got := h.exchange.orders(); !reflect.DeepEqual(got, want) {
		t.Fatalf("orders:\n got %+v\nwant %+v", got, want)
	}

	pos, ok := h.book.Get("BTCUSDT")
	if !ok {
		t.Fatalf("position not recorded")
	}
	if pos.Confirmed || pos.EntryOrderID != "2" || len(pos.TakeProfits) != 5 || len(pos.TPHits) != 5 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if !h.notifier.has(events.EventExecutionSucceeded) {
		t.Fatalf("expected success notification")
	}
}

func TestExecuteMinNotionalLimitsTakeProfits(t *testing.T) {
	h := newHarness(nil)
	h.exchange.filters = common.SymbolFilters{MinQty: 0.001, MinNotional: 100}

	res := h.pipeline.Execute(context.Background(), btcLong())
	if res.Stage != StageDone {
		t.Fatalf("expected Done, got %+v", res)
	}
	var tps, sls int
	for _, o := range h.exchange.orders() {
		switch o.kind {
		case "tp":
			tps++
			if o.qty != 0.003333 || o.price != 46000 {
				t.Errorf("unexpected tp leg %+v", o)
			}
		case "sl":
			sls++
		}
	}
	if tps != 1 || sls != 1 {
		t.Fatalf("expected 1 tp and 1 sl, got %d and %d", tps, sls)
	}
}

func TestExecuteRejectionsPlaceNothing(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.TradingConfig)
		filters *common.SymbolFilters
		rule    risk.Rule
	}{
		{name: "trading disabled", mutate: func(c *config.TradingConfig) { c.IsTradingEnabled = false }, rule: risk.RuleTradingDisabled},
		{name: "blacklisted", mutate: func(c *config.TradingConfig) { c.Blacklist = []string{"BTCUSDT"} }, rule: risk.RuleBlacklisted},
		{name: "position limit", mutate: func(c *config.TradingConfig) { c.MaxFuturesTrade = 0 }, rule: risk.RulePositionLimit},
		{name: "below minimum", filters: &common.SymbolFilters{MinQty: 0.001, MinNotional: 200}, rule: risk.RuleMinSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.mutate)
			if tt.filters != nil {
				h.exchange.filters = *tt.filters
			}
			res := h.pipeline.Execute(context.Background(), btcLong())
			if res.Stage != StageRejected || res.Rule != tt.rule {
				t.Fatalf("expected rejection by %s, got %+v", tt.rule, res)
			}
			if n := len(h.exchange.orders()); n != 0 {
				t.Fatalf("expected no exchange writes, got %d", n)
			}
			if h.book.Len() != 0 {
				t.Fatalf("expected no position recorded")
			}
		})
	}
}

func TestExecuteDailyLossLimit(t *testing.T) {
	h := newHarness(nil)
	history := state.NewHistory(nil)
	history.Append(context.Background(), state.TradeRecord{Symbol: "ETHUSDT", PnL: -350, ClosedAt: time.Now().UTC()})
	h.pipeline.deps.Gate = risk.NewManager(h.book, history, nil)

	res := h.pipeline.Execute(context.Background(), btcLong())
	if res.Stage != StageRejected || res.Rule != risk.RuleDailyLoss {
		t.Fatalf("expected daily loss rejection, got %+v", res)
	}
	if len(h.exchange.orders()) != 0 {
		t.Fatalf("orders placed despite loss limit")
	}
}

func TestExecuteEntryFailureRejects(t *testing.T) {
	h := newHarness(nil)
	h.exchange.entryErr = &common.APIError{Kind: common.KindInsufficientBalance, Code: -2019, Message: "Margin is insufficient."}

	res := h.pipeline.Execute(context.Background(), btcLong())
	if res.Stage != StageRejected {
		t.Fatalf("expected Rejected, got %+v", res)
	}
	for _, o := range h.exchange.orders() {
		if o.kind == "tp" || o.kind == "sl" {
			t.Fatalf("exit order placed after failed entry: %+v", o)
		}
	}
	if h.book.Len() != 0 {
		t.Fatalf("position recorded after failed entry")
	}
	if !h.notifier.has(events.EventSignalRejected) {
		t.Fatalf("expected rejection notification")
	}
}

func TestExecuteStopLossFailureKeepsEntry(t *testing.T) {
	h := newHarness(nil)
	h.exchange.stopErr = errors.New("stop price invalid")

	res := h.pipeline.Execute(context.Background(), btcLong())
	if res.Stage != StageDone || !res.Unprotected || res.StopLossSet {
		t.Fatalf("expected Done and unprotected, got %+v", res)
	}
	if _, ok := h.book.Get("BTCUSDT"); !ok {
		t.Fatalf("position must still be recorded")
	}
	if !h.notifier.has(events.EventPositionUnprotected) {
		t.Fatalf("expected unprotected notification")
	}
}

func TestExecuteSpotPlacesEntryOnly(t *testing.T) {
	h := newHarness(func(c *config.TradingConfig) { c.Mode = config.ModeLive })
	sig := btcLong()
	sig.Class = state.Spot

	res := h.pipeline.Execute(context.Background(), sig)
	if res.Stage != StageDone {
		t.Fatalf("expected Done, got %+v", res)
	}
	orders := h.exchange.orders()
	if len(orders) != 1 || orders[0].kind != "entry" || orders[0].market != common.MarketSpot {
		t.Fatalf("expected a single spot entry, got %+v", orders)
	}
	if orders[0].qty != 0.00222222 {
		t.Fatalf("spot size = %v, want 0.00222222", orders[0].qty)
	}
}

func TestExecuteRejectsSecondSignalForSymbol(t *testing.T) {
	h := newHarness(nil)
	if res := h.pipeline.Execute(context.Background(), btcLong()); res.Stage != StageDone {
		t.Fatalf("first signal: %+v", res)
	}
	short := btcLong()
	short.Direction = state.Short
	short.StopLoss = 46000
	short.TakeProfits = []float64{44000}
	if res := h.pipeline.Execute(context.Background(), short); res.Stage != StageRejected || res.Rule != risk.RuleDuplicate {
		t.Fatalf("expected duplicate rejection, got %+v", res)
	}
}

func TestPipelineDrainsQueue(t *testing.T) {
	h := newHarness(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.pipeline.Start(ctx)
	defer h.pipeline.Stop()

	sig, err := h.pipeline.Submit(ctx, btcLong())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sig.ID == "" {
		t.Fatalf("expected assigned id")
	}
	msg := h.notifier.waitFor(t, events.EventExecutionSucceeded, events.EventExecutionFailed, events.EventSignalRejected)
	if msg.Event != events.EventExecutionSucceeded {
		t.Fatalf("unexpected outcome %+v", msg)
	}
}

func TestPipelineRestartsWorkerAfterPanic(t *testing.T) {
	h := newHarness(nil)
	h.exchange.panicOnce = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.pipeline.Start(ctx)
	defer h.pipeline.Stop()

	h.pipeline.Submit(ctx, btcLong())
	failed := h.notifier.waitFor(t, events.EventExecutionFailed)
	if failed.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected failure message %+v", failed)
	}

	h.pipeline.Submit(ctx, btcLong())
	h.notifier.waitFor(t, events.EventExecutionSucceeded)
	if h.pipeline.Restarts() != 1 {
		t.Fatalf("expected 1 restart, got %d", h.pipeline.Restarts())
	}
}

func TestSubmitOverflowDropsOldest(t *testing.T) {
	h := newHarness(nil)
	h.pipeline = NewPipeline(Options{QueueSize: 2}, h.pipeline.deps)

	var ids []string
	for range 3 {
		sig, err := h.pipeline.Submit(context.Background(), btcLong())
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, sig.ID)
	}
	pending := h.pipeline.Pending()
	if len(pending) != 2 || pending[0].ID != ids[1] || pending[1].ID != ids[2] {
		t.Fatalf("unexpected pending %+v", pending)
	}
	if !h.notifier.has(events.EventSignalDropped) {
		t.Fatalf("expected drop notification")
	}
}
