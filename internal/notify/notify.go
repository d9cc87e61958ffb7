// Package notify delivers lifecycle messages to the log, the event bus and
// external chat sinks without blocking the caller.
package notify

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"signal-executor/internal/events"
)

// Sink is an external delivery target.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg events.Message) error
}

// Dispatcher fans messages out: synchronously to the log and bus, asynchronously to sinks.
type Dispatcher struct {
	bus     *events.Bus
	sinks   []Sink
	queue   chan events.Message
	timeout time.Duration
	dropped atomic.Uint64
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. bus may be nil.
func NewDispatcher(bus *events.Bus, buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 100
	}
	return &Dispatcher{
		bus:     bus,
		sinks:   sinks,
		queue:   make(chan events.Message, buffer),
		timeout: 10 * time.Second,
		now:     time.Now,
	}
}

// Notify never blocks; when the sink queue is full the message only reaches the log and bus.
func (d *Dispatcher) Notify(msg events.Message) {
	if msg.Time.IsZero() {
		msg.Time = d.now()
	}
	if msg.Level == "" {
		msg.Level = events.LevelInfo
	}
	log.Printf("%s [%s] %s", glyph(msg.Level), msg.Event, msg.Text)

	if d.bus != nil {
		d.bus.Publish(msg.Event, msg)
	}
	if len(d.sinks) == 0 || msg.Event.Silent() {
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.dropped.Add(1)
		log.Printf("⚠️ notification queue full, dropped %s", msg.Event)
	}
}

// Dropped reports how many messages never reached the sinks.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Start delivers queued messages until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				d.drain()
				return
			case msg := <-d.queue:
				d.deliver(ctx, msg)
			}
		}
	}()
}

// Wait blocks until the delivery goroutine has exited.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// drain flushes what is already queued with a fresh deadline.
func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for {
		select {
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg events.Message) {
	for _, s := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		if err := s.Send(sendCtx, msg); err != nil {
			log.Printf("⚠️ notify via %s failed: %v", s.Name(), err)
		}
		cancel()
	}
}

func glyph(l events.Level) string {
	switch l {
	case events.LevelError:
		return "❌"
	case events.LevelWarning:
		return "⚠️"
	default:
		return "✓"
	}
}
