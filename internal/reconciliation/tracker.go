// Package reconciliation keeps the local position book consistent with the
// exchange and turns exchange-side closes into trade history.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"signal-executor/internal/events"
	"signal-executor/internal/state"
	"signal-executor/pkg/exchanges/common"
)

// Exchange is the gateway view the tracker polls.
type Exchange interface {
	Positions(ctx context.Context) ([]common.Position, error)
	TickerPrice(ctx context.Context, m common.MarketType, symbol string) (float64, error)
}

// Book is the local position store.
type Book interface {
	List() []state.Position
	Update(ctx context.Context, p state.Position) error
	Remove(ctx context.Context, symbol string) error
}

// History receives closed trades.
type History interface {
	Append(ctx context.Context, t state.TradeRecord) error
	Stats(since time.Time) state.Stats
}

// Notifier is the fire-and-forget notification sink.
type Notifier interface {
	Notify(msg events.Message)
}

// TickObserver receives per-tick timing.
type TickObserver interface {
	ObserveTick(elapsed time.Duration, err error)
}

// Options tune the loop.
type Options struct {
	Interval       time.Duration // between ticks
	ErrorBackoff   time.Duration // after a failed tick
	SignificantPnL float64       // unrealized PnL change worth a notification
}

func (o *Options) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 30 * time.Second
	}
	if o.SignificantPnL <= 0 {
		o.SignificantPnL = 5.0
	}
}

// Deps wires the tracker. Observer is optional.
type Deps struct {
	Exchange Exchange
	Book     Book
	History  History
	Notifier Notifier
	Observer TickObserver
}

// Report summarizes one reconciliation pass.
type Report struct {
	Timestamp time.Time           `json:"timestamp"`
	Checked   int                 `json:"checked"`
	Confirmed int                 `json:"confirmed"`
	Discarded int                 `json:"discarded"`
	Closed    int                 `json:"closed"`
	Untracked int                 `json:"untracked"`
	TPHits    int                 `json:"tp_hits"`
	SLHits    int                 `json:"sl_hits"`
	Trades    []state.TradeRecord `json:"trades,omitempty"`
}

// Tracker is the periodic reconciliation loop.
type Tracker struct {
	opts Options
	deps Deps

	mu      sync.Mutex // one pass at a time
	lastPnL map[string]float64
	warned  map[string]bool
	closing map[string]state.TradeRecord // appended to history, book removal pending

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

func NewTracker(opts Options, deps Deps) *Tracker {
	opts.setDefaults()
	return &Tracker{
		opts:    opts,
		deps:    deps,
		lastPnL: make(map[string]float64),
		warned:  make(map[string]bool),
		closing: make(map[string]state.TradeRecord),
		now:     time.Now,
	}
}

// Start runs one pass immediately, reports it, then keeps polling until Stop.
func (t *Tracker) Start(ctx context.Context) {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.run(ctx)
	log.Printf("✓ position tracker started (interval %v)", t.opts.Interval)
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (t *Tracker) Stop() {
	t.runMu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("✓ position tracker stopped")
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	report, err := t.tick(ctx)
	if report != nil {
		t.notify(events.Message{
			Event: events.EventReconcileReport,
			Text: fmt.Sprintf("Startup reconciliation: %d tracked, %d confirmed, %d discarded, %d closed, %d untracked",
				report.Checked, report.Confirmed, report.Discarded, report.Closed, report.Untracked),
			Data: map[string]any{"report": report},
		})
	}

	for {
		wait := t.opts.Interval
		if err != nil {
			wait = t.opts.ErrorBackoff
		}
		if common.Sleep(ctx, wait) != nil {
			return
		}
		_, err = t.tick(ctx)
	}
}

func (t *Tracker) tick(ctx context.Context) (*Report, error) {
	start := t.now()
	report, err := t.Reconcile(ctx)
	if t.deps.Observer != nil {
		t.deps.Observer.ObserveTick(t.now().Sub(start), err)
	}
	if err != nil && ctx.Err() == nil {
		log.Printf("❌ reconciliation failed, next pass in %v: %v", t.opts.ErrorBackoff, err)
	}
	return report, err
}

func key(m common.MarketType, symbol string) string { return string(m) + ":" + symbol }

// Reconcile runs one pass. A non-nil report may accompany an error when only
// some positions could be processed.
func (t *Tracker) Reconcile(ctx context.Context) (*Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshotAt := t.now()
	live, err := t.deps.Exchange.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	byKey := make(map[string]common.Position, len(live))
	for _, p := range live {
		byKey[key(p.Market, p.Symbol)] = p
	}

	report := &Report{Timestamp: snapshotAt}
	tracked := make(map[string]bool)
	var errs []error

	for _, pos := range t.deps.Book.List() {
		k := key(pos.Class.Market(), pos.Symbol)
		tracked[k] = true
		if pos.CreatedAt.After(snapshotAt) {
			// recorded after the snapshot; judge it next pass
			continue
		}
		report.Checked++

		if lp, ok := byKey[k]; ok {
			if err := t.observe(ctx, pos, lp, report); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if !pos.Confirmed {
			if err := t.discard(ctx, pos); err != nil {
				errs = append(errs, err)
				continue
			}
			report.Discarded++
			continue
		}
		rec, err := t.close(ctx, pos)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Closed++
		report.Trades = append(report.Trades, rec)
	}

	for _, lp := range live {
		k := key(lp.Market, lp.Symbol)
		if tracked[k] || t.warned[k] {
			continue
		}
		t.warned[k] = true
		report.Untracked++
		t.notify(events.Message{
			Event:  events.EventUntrackedPosition,
			Level:  events.LevelWarning,
			Symbol: lp.Symbol,
			Text:   fmt.Sprintf("Untracked %s position %s (%g), ignoring", lp.Market, lp.Symbol, lp.Amount),
		})
	}

	return report, errors.Join(errs...)
}

// observe advances a position the exchange still reports.
func (t *Tracker) observe(ctx context.Context, pos state.Position, lp common.Position, report *Report) error {
	k := key(lp.Market, lp.Symbol)
	now := t.now().UTC()
	pos.EnsureHits()
	changed := false

	if !pos.Confirmed {
		pos.Confirmed = true
		pos.ConfirmedAt = now
		changed = true
		report.Confirmed++
		t.notify(events.Message{
			Event:  events.EventPositionConfirmed,
			Symbol: pos.Symbol,
			Text:   fmt.Sprintf("Position %s %s confirmed open on exchange (size %g)", pos.Symbol, pos.Direction, math.Abs(lp.Amount)),
		})
	}

	if prev, seen := t.lastPnL[k]; seen {
		if change := lp.UnrealizedPnL - prev; math.Abs(change) > t.opts.SignificantPnL {
			t.notify(events.Message{
				Event:  events.EventPnLChanged,
				Symbol: pos.Symbol,
				Text:   fmt.Sprintf("%s PnL: %+.2f USDT (%+.2f)", pos.Symbol, lp.UnrealizedPnL, change),
				Data:   map[string]any{"pnl": lp.UnrealizedPnL, "change": change},
			})
		}
	}
	t.lastPnL[k] = lp.UnrealizedPnL
	pos.LastPnL = lp.UnrealizedPnL

	mark := lp.MarkPrice
	if mark <= 0 {
		price, err := t.deps.Exchange.TickerPrice(ctx, lp.Market, lp.Symbol)
		if err != nil {
			log.Printf("⚠️ no price for %s, skipping level checks: %v", pos.Symbol, err)
		} else {
			mark = price
		}
	}

	if mark > 0 {
		pos.LastPrice = mark
		long := pos.Direction == state.Long
		for i, tp := range pos.TakeProfits {
			if pos.TPHits[i].Hit {
				continue
			}
			if (long && mark >= tp) || (!long && mark <= tp) {
				pos.TPHits[i] = state.LevelHit{Hit: true, Price: tp, Mark: mark, At: now}
				changed = true
				report.TPHits++
				t.notify(events.Message{
					Event:  events.EventTakeProfitHit,
					Symbol: pos.Symbol,
					Text: fmt.Sprintf("🎯 TP%d hit: %s %s target %g, price %g, entry %g (%.2f%%)",
						i+1, pos.Symbol, pos.Direction, tp, mark, pos.EntryPrice, math.Abs(mark-pos.EntryPrice)/pos.EntryPrice*100),
					Data: map[string]any{"level": i + 1, "target": tp, "price": mark},
				})
			}
		}
		if !pos.SLHit.Hit && ((long && mark <= pos.StopLoss) || (!long && mark >= pos.StopLoss)) {
			pos.SLHit = state.LevelHit{Hit: true, Price: pos.StopLoss, Mark: mark, At: now}
			changed = true
			report.SLHits++
			t.notify(events.Message{
				Event:  events.EventStopLossHit,
				Level:  events.LevelWarning,
				Symbol: pos.Symbol,
				Text: fmt.Sprintf("🛑 Stop loss hit: %s %s stop %g, price %g, entry %g (-%.2f%%)",
					pos.Symbol, pos.Direction, pos.StopLoss, mark, pos.EntryPrice, math.Abs(mark-pos.EntryPrice)/pos.EntryPrice*100),
				Data: map[string]any{"stop": pos.StopLoss, "price": mark},
			})
		}
	}

	if !changed {
		return nil
	}
	if err := t.deps.Book.Update(ctx, pos); err != nil {
		return fmt.Errorf("update %s: %w", pos.Symbol, err)
	}
	return nil
}

// discard drops a record whose entry never filled. No trade is recorded.
func (t *Tracker) discard(ctx context.Context, pos state.Position) error {
	if err := t.deps.Book.Remove(ctx, pos.Symbol); err != nil {
		return fmt.Errorf("discard %s: %w", pos.Symbol, err)
	}
	t.notify(events.Message{
		Event:  events.EventPositionDiscarded,
		Symbol: pos.Symbol,
		Text:   fmt.Sprintf("Pending entry for %s never filled, record removed", pos.Symbol),
	})
	return nil
}

// close finalizes a confirmed position the exchange no longer reports.
func (t *Tracker) close(ctx context.Context, pos state.Position) (state.TradeRecord, error) {
	m := pos.Class.Market()
	k := key(m, pos.Symbol)

	rec, pending := t.closing[k]
	if !pending {
		price, err := t.deps.Exchange.TickerPrice(ctx, m, pos.Symbol)
		if err != nil {
			return state.TradeRecord{}, fmt.Errorf("close %s: price: %w", pos.Symbol, err)
		}
		rec = BuildTradeRecord(pos, price, t.now().UTC())
		if err := t.deps.History.Append(ctx, rec); err != nil {
			return state.TradeRecord{}, fmt.Errorf("close %s: %w", pos.Symbol, err)
		}
		t.closing[k] = rec
	}
	if err := t.deps.Book.Remove(ctx, pos.Symbol); err != nil {
		// trade already recorded; only the removal is retried next pass
		return state.TradeRecord{}, fmt.Errorf("close %s: remove: %w", pos.Symbol, err)
	}
	delete(t.closing, k)
	delete(t.lastPnL, k)

	emoji := "🟢"
	level := events.LevelInfo
	if rec.PnL < 0 {
		emoji = "🔴"
		level = events.LevelWarning
	}
	t.notify(events.Message{
		Event:  events.EventPositionClosed,
		Level:  level,
		Symbol: pos.Symbol,
		Text: fmt.Sprintf("%s POSITION CLOSED %s %s\nEntry: %g  Exit: %g\nClose Reason: %s\nHold Time: %.2fh\nFinal PnL: %+.2f USDT  ROI: %+.2f%%\nSource: %s",
			emoji, pos.Symbol, pos.Direction, rec.EntryPrice, rec.ExitPrice, rec.CloseReason, rec.HoldHours, rec.PnL, rec.ROI, rec.Source),
		Data: map[string]any{"trade": rec},
	})
	return rec, nil
}

// BuildTradeRecord computes realized PnL, ROI and close reason for pos closed at price.
func BuildTradeRecord(pos state.Position, price float64, closedAt time.Time) state.TradeRecord {
	pnl := (price - pos.EntryPrice) * pos.Size
	if pos.Direction == state.Short {
		pnl = (pos.EntryPrice - price) * pos.Size
	}
	pnl = common.Round(pnl, 2)

	leverage := max(pos.Leverage, 1)
	var roi float64
	if margin := pos.Size * pos.EntryPrice / float64(leverage); margin > 0 {
		roi = common.Round(pnl/margin*100, 2)
	}

	hits := make([]bool, len(pos.TakeProfits))
	for i := range hits {
		hits[i] = i < len(pos.TPHits) && pos.TPHits[i].Hit
	}

	return state.TradeRecord{
		Symbol:      pos.Symbol,
		Direction:   pos.Direction,
		Class:       pos.Class,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   price,
		Size:        pos.Size,
		Leverage:    leverage,
		PnL:         pnl,
		ROI:         roi,
		HoldHours:   common.Round(closedAt.Sub(pos.CreatedAt).Hours(), 2),
		Source:      pos.Source,
		OpenedAt:    pos.CreatedAt,
		ClosedAt:    closedAt,
		TPHits:      hits,
		SLHit:       pos.SLHit.Hit,
		CloseReason: CloseReason(pos, pnl),
		SignalID:    pos.SignalID,
	}
}

// CloseReason ranks stop loss over take profit over a manual close.
func CloseReason(pos state.Position, pnl float64) string {
	if pos.SLHit.Hit {
		return "Stop Loss"
	}
	if n := pos.HighestTPHit(); n > 0 {
		return fmt.Sprintf("Take Profit (TP%d)", n)
	}
	if pnl >= 0 {
		return "Manual Close (Profit)"
	}
	return "Manual Close (Loss)"
}

// TradeStatistics summarizes trades closed at or after since (zero = all).
func (t *Tracker) TradeStatistics(since time.Time) state.Stats {
	return t.deps.History.Stats(since)
}

func (t *Tracker) notify(msg events.Message) {
	if t.deps.Notifier != nil {
		t.deps.Notifier.Notify(msg)
	}
}
