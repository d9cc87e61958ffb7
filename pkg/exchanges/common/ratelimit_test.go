package common

import (
	"context"
	"testing"
	"time"
)

func TestSlidingWindowAdmitsUpToMax(t *testing.T) {
	w := NewSlidingWindow(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !w.Allow() {
			t.Fatalf("request %d rejected", i)
		}
	}
	if w.Allow() {
		t.Fatal("fourth request should be rejected inside the window")
	}
	if got := w.InFlight(); got != 3 {
		t.Fatalf("InFlight=%d, want 3", got)
	}
}

func TestSlidingWindowSlides(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w := NewSlidingWindow(2, 10*time.Second)
	w.now = func() time.Time { return now }

	w.Allow()
	now = now.Add(6 * time.Second)
	w.Allow()
	if w.Allow() {
		t.Fatal("window full")
	}
	now = now.Add(5 * time.Second) // first stamp is now 11s old
	if !w.Allow() {
		t.Fatal("oldest stamp should have expired")
	}
}

func TestSlidingWindowWaitHonorsContext(t *testing.T) {
	w := NewSlidingWindow(1, time.Hour)
	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx); err == nil {
		t.Fatal("expected context error while window is full")
	}
}

func TestSlidingWindowWaitUnblocks(t *testing.T) {
	w := NewSlidingWindow(1, 30*time.Millisecond)
	_ = w.Wait(context.Background())
	start := time.Now()
	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("wait returned after %v, expected to block for the window", elapsed)
	}
}

func TestWeightMonitorPausesUntilWindowRolls(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 20, 0, time.UTC)
	m := NewWeightMonitor(2400, time.Minute)
	m.now = func() time.Time { return now }

	m.UpdateFromHeader("1000")
	if m.ShouldDelay() || m.Pause() != 0 {
		t.Fatalf("no pause expected at 1000/2400")
	}

	m.UpdateFromHeader("2200")
	if !m.ShouldDelay() {
		t.Fatalf("expected delay at 2200/2400")
	}
	if got := m.Pause(); got != 40*time.Second {
		t.Fatalf("pause = %v, want 40s", got)
	}

	now = now.Add(45 * time.Second)
	if used, _, _ := m.Usage(); used != 0 {
		t.Fatalf("usage must reset in the next window, got %d", used)
	}
	if m.Pause() != 0 {
		t.Fatalf("no pause expected after the window rolled")
	}
}

func TestWeightMonitorIgnoresBadHeaders(t *testing.T) {
	m := NewWeightMonitor(2400, time.Minute)
	m.UpdateFromHeader("")
	m.UpdateFromHeader("abc")
	if used, limit, _ := m.Usage(); used != 0 || limit != 2400 {
		t.Fatalf("unexpected usage %d/%d", used, limit)
	}

	off := NewWeightMonitor(0, time.Minute)
	off.UpdateFromHeader("5000")
	if off.ShouldDelay() {
		t.Fatalf("disabled monitor must never delay")
	}
}
