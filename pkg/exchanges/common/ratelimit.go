package common

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"
)

// SlidingWindow admits at most max requests in any trailing window.
// It is shared by every call a client makes to one exchange category.
type SlidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

// NewSlidingWindow creates a limiter; max <= 0 disables limiting.
func NewSlidingWindow(max int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		max:    max,
		window: window,
		stamps: make([]time.Time, 0, max),
		now:    time.Now,
	}
}

// prune drops timestamps older than the window. Caller holds mu.
func (w *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// reserve takes a slot if one is free, otherwise returns how long to wait.
func (w *SlidingWindow) reserve() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.max <= 0 {
		return 0, true
	}
	now := w.now()
	w.prune(now)
	if len(w.stamps) < w.max {
		w.stamps = append(w.stamps, now)
		return 0, true
	}
	return w.stamps[0].Add(w.window).Sub(now), false
}

// Wait blocks until a slot is free or ctx is done.
func (w *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait, ok := w.reserve()
		if ok {
			return nil
		}
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow takes a slot without blocking.
func (w *SlidingWindow) Allow() bool {
	_, ok := w.reserve()
	return ok
}

// InFlight returns the number of requests counted in the current window.
func (w *SlidingWindow) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.stamps)
}

// WeightMonitor tracks the server-reported request weight. The exchange resets
// the budget on fixed window boundaries (each wall-clock minute).
type WeightMonitor struct {
	mu            sync.RWMutex
	usedWeight    int
	limit         int
	window        time.Time // start of the window usedWeight belongs to
	resetInterval time.Duration
	now           func() time.Time
}

// NewWeightMonitor creates a monitor.
// limit: maximum weight allowed (e.g., 6000 for spot, 2400 for futures)
// resetInterval: time window (e.g., 1 minute)
func NewWeightMonitor(limit int, resetInterval time.Duration) *WeightMonitor {
	if resetInterval <= 0 {
		resetInterval = time.Minute
	}
	return &WeightMonitor{
		limit:         limit,
		resetInterval: resetInterval,
		now:           time.Now,
	}
}

// UpdateFromHeader records the X-MBX-USED-WEIGHT-1M header value.
func (m *WeightMonitor) UpdateFromHeader(headerValue string) {
	if headerValue == "" || m.limit <= 0 {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = m.now().Truncate(m.resetInterval)
	m.usedWeight = weight

	pct := float64(m.usedWeight) / float64(m.limit) * 100
	if pct >= 95 {
		log.Printf("❌ rate limit critical: %d/%d (%.1f%%)", m.usedWeight, m.limit, pct)
	} else if pct >= 80 {
		log.Printf("⚠️ rate limit warning: %d/%d (%.1f%%)", m.usedWeight, m.limit, pct)
	}
}

// Usage returns the last reported weight, zeroed once the window has rolled.
func (m *WeightMonitor) Usage() (used int, limit int, percentage float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.limit <= 0 || !m.now().Truncate(m.resetInterval).Equal(m.window) {
		return 0, m.limit, 0
	}
	return m.usedWeight, m.limit, float64(m.usedWeight) / float64(m.limit) * 100
}

// ShouldDelay returns true when the weight budget is nearly spent.
func (m *WeightMonitor) ShouldDelay() bool {
	_, _, pct := m.Usage()
	return pct >= 90
}

// Pause returns how long to hold requests: until the current window rolls
// when ShouldDelay, otherwise zero.
func (m *WeightMonitor) Pause() time.Duration {
	if !m.ShouldDelay() {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.window.Add(m.resetInterval).Sub(m.now())
}
