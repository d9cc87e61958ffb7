package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"signal-executor/internal/events"
	"signal-executor/internal/risk"
	"signal-executor/internal/state"
	"signal-executor/pkg/config"
	"signal-executor/pkg/exchanges/common"
)

// Exchange is the slice of the gateway the pipeline needs.
type Exchange interface {
	TickerPrice(ctx context.Context, m common.MarketType, symbol string) (float64, error)
	SymbolFilters(ctx context.Context, m common.MarketType, symbol string) common.SymbolFilters
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceLimitOrder(ctx context.Context, m common.MarketType, symbol string, side common.Side, qty, price float64) (common.OrderResult, error)
	PlaceTakeProfit(ctx context.Context, symbol string, side common.Side, qty, trigger float64) (common.OrderResult, error)
	PlaceStopLoss(ctx context.Context, symbol string, side common.Side, qty, trigger float64) (common.OrderResult, error)
}

// Gate is the risk validation gate.
type Gate interface {
	Evaluate(ctx context.Context, cfg config.TradingConfig, req risk.Request) risk.Decision
	CheckSize(check common.SizeCheck) risk.Decision
}

// Book receives new position records. It holds at most one record per symbol.
type Book interface {
	Add(ctx context.Context, p state.Position) error
	Get(symbol string) (state.Position, bool)
}

// Notifier is the fire-and-forget notification sink.
type Notifier interface {
	Notify(msg events.Message)
}

// ConfigSource hands out the current trading config snapshot.
type ConfigSource interface {
	Config() config.TradingConfig
}

// Audit records every signal and its stage transitions.
type Audit interface {
	RecordSignal(ctx context.Context, sig TradeSignal, stage Stage, reason string) error
	UpdateStage(ctx context.Context, id string, stage Stage, reason string) error
}

// Observer receives pipeline metrics.
type Observer interface {
	ObserveExecution(elapsed time.Duration)
	IncrementWorkerRestarts()
	SetQueueDepth(n int)
}

// Deps wires the pipeline's collaborators. Audit and Observer are optional.
type Deps struct {
	Exchange Exchange
	Gate     Gate
	Book     Book
	Notifier Notifier
	Trading  ConfigSource
	Audit    Audit
	Observer Observer
}

// Options tune pipeline timing.
type Options struct {
	QueueSize     int
	PollTimeout   time.Duration // how long the worker waits on an empty queue
	TakeProfitGap time.Duration // pause between take-profit legs; negative disables
	RestartDelay  time.Duration
}

func (o *Options) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = time.Second
	}
	if o.TakeProfitGap < 0 {
		o.TakeProfitGap = 0
	} else if o.TakeProfitGap == 0 {
		o.TakeProfitGap = 100 * time.Millisecond
	}
	if o.RestartDelay <= 0 {
		o.RestartDelay = time.Second
	}
}

// Pipeline queues signals and executes them one at a time on a supervised worker.
type Pipeline struct {
	opts  Options
	deps  Deps
	queue *Queue

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	current atomic.Pointer[TradeSignal]

	restarts  atomic.Int64
	heartbeat atomic.Int64 // unix nanos of the last worker loop
	now       func() time.Time
}

// NewPipeline builds a pipeline; call Start to begin draining the queue.
func NewPipeline(opts Options, deps Deps) *Pipeline {
	opts.setDefaults()
	return &Pipeline{
		opts:  opts,
		deps:  deps,
		queue: NewQueue(opts.QueueSize),
		now:   time.Now,
	}
}

// Submit enqueues sig. Accepted means queued, not executed.
func (p *Pipeline) Submit(ctx context.Context, sig TradeSignal) (TradeSignal, error) {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.ReceivedAt.IsZero() {
		sig.ReceivedAt = p.now()
	}
	sig.TakeProfits = append([]float64(nil), sig.TakeProfits...)

	dropped, err := p.queue.Push(sig)
	if err != nil {
		return sig, err
	}
	p.audit(ctx, sig, StageQueued, "")
	p.observeDepth()

	if dropped != nil {
		reason := fmt.Sprintf("dropped from full queue to admit %s", sig.ID)
		p.transition(ctx, dropped.ID, StageRejected, reason)
		p.notify(events.Message{
			Event:  events.EventSignalDropped,
			Level:  events.LevelWarning,
			Symbol: dropped.Symbol,
			Text:   fmt.Sprintf("Signal %s %s dropped: queue full (%d)", dropped.Symbol, dropped.Direction, p.opts.QueueSize),
			Data:   map[string]any{"signal_id": dropped.ID},
		})
	}
	p.notify(events.Message{
		Event:  events.EventSignalQueued,
		Symbol: sig.Symbol,
		Text:   fmt.Sprintf("Signal queued: %s %s @ %g (queue %d)", strings.ToUpper(string(sig.Direction)), sig.Symbol, sig.EntryPrice, p.queue.Len()),
		Data:   map[string]any{"signal_id": sig.ID, "source": sig.Source},
	})
	return sig, nil
}

// Pending lists queued signals not yet picked up by the worker.
func (p *Pipeline) Pending() []TradeSignal { return p.queue.Pending() }

// QueueLen is the number of waiting signals.
func (p *Pipeline) QueueLen() int { return p.queue.Len() }

// Restarts counts worker restarts since start.
func (p *Pipeline) Restarts() int64 { return p.restarts.Load() }

// Alive reports whether the worker looped within the last few poll intervals.
func (p *Pipeline) Alive() bool {
	last := p.heartbeat.Load()
	return last != 0 && p.now().Sub(time.Unix(0, last)) < 5*p.opts.PollTimeout
}

// Start launches the supervised worker.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.supervise(ctx)
	log.Printf("✓ signal pipeline started (queue %d)", p.opts.QueueSize)
}

// Stop cancels the worker and waits for it to exit, including any in-flight execution.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.queue.Close()
	log.Printf("✓ signal pipeline stopped (%d pending dropped)", p.queue.Len())
}

func (p *Pipeline) supervise(ctx context.Context) {
	defer close(p.done)
	for {
		exited := make(chan struct{})
		go func() {
			defer close(exited)
			p.work(ctx)
		}()
		<-exited
		if ctx.Err() != nil {
			return
		}
		n := p.restarts.Add(1)
		if p.deps.Observer != nil {
			p.deps.Observer.IncrementWorkerRestarts()
		}
		log.Printf("🔄 signal worker died, restarting (restart #%d)", n)
		if err := common.Sleep(ctx, p.opts.RestartDelay); err != nil {
			return
		}
	}
}

// work drains the queue until ctx is done. A panic ends the loop and the
// supervisor starts a new one.
func (p *Pipeline) work(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ signal worker panic: %v\n%s", r, debug.Stack())
			if sig := p.current.Swap(nil); sig != nil {
				p.finish(context.Background(), *sig, Result{SignalID: sig.ID, Symbol: sig.Symbol, Stage: StageFailed, Reason: fmt.Sprintf("panic: %v", r)})
			}
		}
	}()
	for {
		p.heartbeat.Store(p.now().UnixNano())
		sig, ok, err := p.queue.Pop(ctx, p.opts.PollTimeout)
		if err != nil {
			return
		}
		if !ok {
			continue
		}
		p.observeDepth()
		p.current.Store(&sig)
		p.Execute(ctx, sig)
		p.current.Store(nil)
	}
}

// Execute runs one signal through validation, sizing and order placement.
// It never returns an error: every outcome is a Result with a terminal stage.
func (p *Pipeline) Execute(ctx context.Context, sig TradeSignal) Result {
	start := p.now()
	res := p.execute(ctx, sig)
	res.Elapsed = p.now().Sub(start).Truncate(time.Millisecond).String()
	if p.deps.Observer != nil {
		p.deps.Observer.ObserveExecution(p.now().Sub(start))
	}
	p.finish(ctx, sig, res)
	return res
}

func (p *Pipeline) execute(ctx context.Context, sig TradeSignal) Result {
	res := Result{SignalID: sig.ID, Symbol: sig.Symbol}
	rejected := func(rule risk.Rule, reason string) Result {
		res.Stage, res.Rule, res.Reason = StageRejected, rule, reason
		return res
	}
	failed := func(reason string, err error) Result {
		res.Stage, res.Reason = StageFailed, fmt.Sprintf("%s: %v", reason, err)
		return res
	}

	p.transition(ctx, sig.ID, StageValidating, "")
	if err := CheckOrdering(sig); err != nil {
		return rejected("", err.Error())
	}
	cfg := p.deps.Trading.Config()
	if d := p.deps.Gate.Evaluate(ctx, cfg, risk.Request{Symbol: sig.Symbol, Direction: sig.Direction, Class: sig.Class}); !d.Allowed {
		return rejected(d.Rule, d.Reason)
	}
	if held, ok := p.deps.Book.Get(sig.Symbol); ok {
		return rejected(risk.RuleDuplicate, fmt.Sprintf("%s already tracked as %s", sig.Symbol, held.Direction))
	}

	p.transition(ctx, sig.ID, StageSizing, "")
	market := sig.Class.Market()
	price, err := p.deps.Exchange.TickerPrice(ctx, market, sig.Symbol)
	if err != nil {
		return failed("ticker price", err)
	}
	res.MarketPrice = price

	notional := cfg.FuturesPositionSize
	if sig.Class == state.Spot {
		notional = cfg.SpotPositionSize
	}
	precision := common.QtyPrecision(market)
	size := common.TruncateQty(notional/price, precision)
	res.Size = size

	filters := p.deps.Exchange.SymbolFilters(ctx, market, sig.Symbol)
	if d := p.deps.Gate.CheckSize(filters.Check(size, sig.EntryPrice)); !d.Allowed {
		return rejected(d.Rule, d.Reason)
	}

	leverage := ResolveLeverage(cfg.Leverage, sig.Leverage)
	if sig.Class == state.Spot {
		leverage = 1
	}
	res.Leverage = leverage

	var plan LadderPlan
	if sig.Class == state.Futures {
		plan = PlanLadder(SelectLadder(sig.TakeProfits), size, precision, filters)
		if plan.Reason != "" {
			log.Printf("⚠️ %s %s: %s", sig.ID, sig.Symbol, plan.Reason)
		}
	}

	p.transition(ctx, sig.ID, StageExecuting, "")
	p.notify(events.Message{
		Event:  events.EventExecutionStarted,
		Symbol: sig.Symbol,
		Text:   fmt.Sprintf("Executing %s %s: size %s @ %g, %dx", strings.ToUpper(string(sig.Direction)), sig.Symbol, common.FormatDecimal(size), sig.EntryPrice, leverage),
		Data:   map[string]any{"signal_id": sig.ID},
	})

	if sig.Class == state.Futures && leverage > 1 {
		if err := p.deps.Exchange.SetLeverage(ctx, sig.Symbol, leverage); err != nil {
			return failed("set leverage", err)
		}
	}

	entry, err := p.deps.Exchange.PlaceLimitOrder(ctx, market, sig.Symbol, sig.Direction.EntrySide(), size, sig.EntryPrice)
	if err != nil {
		return rejected("", fmt.Sprintf("entry order: %v", err))
	}
	res.EntryOrderID = entry.ExchangeOrderID
	log.Printf("✓ %s entry placed %s id=%s", sig.ID, sig.Symbol, entry.ExchangeOrderID)

	var exitErrs []error
	if sig.Class == state.Futures {
		if plan.Legs() == 0 && plan.Reason != "" {
			exitErrs = append(exitErrs, errors.New(plan.Reason))
		}
		exitSide := sig.Direction.ExitSide()
		for i, tp := range plan.Prices {
			if i > 0 {
				if err := common.Sleep(ctx, p.opts.TakeProfitGap); err != nil {
					exitErrs = append(exitErrs, fmt.Errorf("take profit %d: %w", i+1, err))
					break
				}
			}
			if _, err := p.deps.Exchange.PlaceTakeProfit(ctx, sig.Symbol, exitSide, plan.Qtys[i], tp); err != nil {
				exitErrs = append(exitErrs, fmt.Errorf("take profit %d @ %g: %w", i+1, tp, err))
				continue
			}
			res.TakeProfits = append(res.TakeProfits, tp)
		}
		if _, err := p.deps.Exchange.PlaceStopLoss(ctx, sig.Symbol, exitSide, size, sig.StopLoss); err != nil {
			exitErrs = append(exitErrs, fmt.Errorf("stop loss @ %g: %w", sig.StopLoss, err))
		} else {
			res.StopLossSet = true
		}
	}

	if len(exitErrs) > 0 {
		res.Unprotected = true
		p.notify(events.Message{
			Event:  events.EventPositionUnprotected,
			Level:  events.LevelError,
			Symbol: sig.Symbol,
			Text:   fmt.Sprintf("Entry %s is live but exit orders failed: %v", entry.ExchangeOrderID, errors.Join(exitErrs...)),
			Data:   map[string]any{"signal_id": sig.ID, "entry_order_id": entry.ExchangeOrderID},
		})
	}

	pos := state.Position{
		Symbol:       sig.Symbol,
		Direction:    sig.Direction,
		Class:        sig.Class,
		EntryPrice:   sig.EntryPrice,
		StopLoss:     sig.StopLoss,
		TakeProfits:  append([]float64(nil), sig.TakeProfits...),
		Size:         size,
		Leverage:     leverage,
		EntryOrderID: entry.ExchangeOrderID,
		SignalID:     sig.ID,
		Source:       sig.Source,
		CreatedAt:    p.now().UTC(),
	}
	pos.EnsureHits()
	if err := p.deps.Book.Add(ctx, pos); err != nil {
		return failed("record position", err)
	}

	res.Stage = StageDone
	return res
}

// finish records the terminal stage and emits the matching notification.
func (p *Pipeline) finish(ctx context.Context, sig TradeSignal, res Result) {
	p.transition(ctx, sig.ID, res.Stage, res.Reason)
	msg := events.Message{
		Symbol: sig.Symbol,
		Data:   map[string]any{"signal_id": sig.ID, "result": res},
	}
	switch res.Stage {
	case StageDone:
		msg.Event = events.EventExecutionSucceeded
		msg.Text = fmt.Sprintf("Trade placed: %s %s size %s @ %g, %d TP, SL %s, %dx",
			strings.ToUpper(string(sig.Direction)), sig.Symbol, common.FormatDecimal(res.Size), sig.EntryPrice,
			len(res.TakeProfits), stopLossWord(res.StopLossSet), res.Leverage)
	case StageRejected:
		msg.Event = events.EventSignalRejected
		msg.Level = events.LevelWarning
		msg.Text = fmt.Sprintf("Signal rejected: %s %s: %s", strings.ToUpper(string(sig.Direction)), sig.Symbol, res.Reason)
	default:
		msg.Event = events.EventExecutionFailed
		msg.Level = events.LevelError
		msg.Text = fmt.Sprintf("Execution failed: %s %s: %s", strings.ToUpper(string(sig.Direction)), sig.Symbol, res.Reason)
	}
	p.notify(msg)
}

func stopLossWord(placed bool) string {
	if placed {
		return "set"
	}
	return "missing"
}

func (p *Pipeline) transition(ctx context.Context, id string, stage Stage, reason string) {
	log.Printf("signal %s → %s %s", id, stage, reason)
	if p.deps.Audit == nil {
		return
	}
	if err := p.deps.Audit.UpdateStage(context.WithoutCancel(ctx), id, stage, reason); err != nil {
		log.Printf("⚠️ audit %s %s: %v", id, stage, err)
	}
}

func (p *Pipeline) audit(ctx context.Context, sig TradeSignal, stage Stage, reason string) {
	if p.deps.Audit == nil {
		return
	}
	if err := p.deps.Audit.RecordSignal(ctx, sig, stage, reason); err != nil {
		log.Printf("⚠️ audit record %s: %v", sig.ID, err)
	}
}

func (p *Pipeline) notify(msg events.Message) {
	if p.deps.Notifier != nil {
		p.deps.Notifier.Notify(msg)
	}
}

func (p *Pipeline) observeDepth() {
	if p.deps.Observer != nil {
		p.deps.Observer.SetQueueDepth(p.queue.Len())
	}
}
