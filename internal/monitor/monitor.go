package monitor

import (
	"context"
	"log"
	"sync/atomic"

	"signal-executor/internal/events"
)

// Monitor turns lifecycle events into counters.
type Monitor struct {
	Bus     *events.Bus
	Metrics *SystemMetrics
}

// Start subscribes to every event until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Metrics == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.Subscribe(events.EventAll, 256)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				if ev, ok := msg.(events.Message); ok {
					m.Metrics.count(ev.Event)
				}
			}
		}
	}()
}

func (m *SystemMetrics) count(e events.Event) {
	switch e {
	case events.EventSignalQueued:
		atomic.AddUint64(&m.signalsQueued, 1)
	case events.EventSignalDropped:
		atomic.AddUint64(&m.signalsDropped, 1)
	case events.EventExecutionSucceeded:
		atomic.AddUint64(&m.signalsDone, 1)
	case events.EventSignalRejected:
		atomic.AddUint64(&m.signalsRejected, 1)
	case events.EventExecutionFailed:
		atomic.AddUint64(&m.signalsFailed, 1)
	case events.EventPositionClosed:
		atomic.AddUint64(&m.positionsClosed, 1)
	}
}
