package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"signal-executor/internal/events"
)

func TestLatencyHistogramWindow(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, v := range []float64{100, 1, 2, 3} {
		h.Record(v)
	}
	s := h.Stats()
	if s.Count != 3 || s.Max != 3 || s.Min != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if s.Avg != 2 {
		t.Fatalf("avg = %v, want 2", s.Avg)
	}
}

func TestObserveRequest(t *testing.T) {
	m := NewSystemMetrics()
	m.ObserveRequest("GET", "/fapi/v1/ticker/price", 5*time.Millisecond, nil)
	m.ObserveRequest("POST", "/fapi/v1/order", 7*time.Millisecond, errors.New("boom"))

	snap := m.GetSnapshot()
	if snap.GatewayRequests != 2 || snap.GatewayErrors != 1 {
		t.Fatalf("unexpected counters %+v", snap)
	}
	if snap.GatewayLatency.Count != 2 {
		t.Fatalf("expected 2 latency samples, got %d", snap.GatewayLatency.Count)
	}
}

func TestMonitorCountsEvents(t *testing.T) {
	bus := events.NewBus()
	m := NewSystemMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	(&Monitor{Bus: bus, Metrics: m}).Start(ctx)

	bus.Publish(events.EventSignalQueued, events.Message{Event: events.EventSignalQueued})
	bus.Publish(events.EventSignalDropped, events.Message{Event: events.EventSignalDropped})
	bus.Publish(events.EventPositionClosed, events.Message{Event: events.EventPositionClosed})

	deadline := time.After(time.Second)
	for {
		snap := m.GetSnapshot()
		if snap.SignalsQueued == 1 && snap.SignalsDropped == 1 && snap.PositionsClosed == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("counters not updated: %+v", snap)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
