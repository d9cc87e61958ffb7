package order

import (
	"context"
	"sync"
	"time"
)

// DefaultQueueSize bounds pending signals.
const DefaultQueueSize = 50

// Queue is a bounded FIFO of signals. When full, Push evicts the oldest entry.
type Queue struct {
	mu     sync.Mutex
	items  []TradeSignal
	size   int
	ready  chan struct{}
	closed bool
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		items: make([]TradeSignal, 0, size),
		size:  size,
		ready: make(chan struct{}, 1),
	}
}

// Push admits sig and returns the evicted signal, if any.
func (q *Queue) Push(sig TradeSignal) (*TradeSignal, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	var dropped *TradeSignal
	if len(q.items) >= q.size {
		oldest := q.items[0]
		dropped = &oldest
		q.items = q.items[1:]
	}
	q.items = append(q.items, sig)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return dropped, nil
}

// Pop waits up to timeout for a signal. ok is false when the wait timed out.
// It returns ErrQueueClosed once the queue is closed and empty.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (sig TradeSignal, ok bool, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			sig = q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return sig, true, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return TradeSignal{}, false, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return TradeSignal{}, false, ctx.Err()
		case <-timer.C:
			return TradeSignal{}, false, nil
		case <-q.ready:
		}
	}
}

// Len returns the number of waiting signals.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the waiting signals, oldest first.
func (q *Queue) Pending() []TradeSignal {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]TradeSignal(nil), q.items...)
}

// Close rejects further pushes and wakes a waiting reader.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
