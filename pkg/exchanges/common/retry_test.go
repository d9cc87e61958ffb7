package common

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingClock struct{ syncs int }

func (c *countingClock) Sync(context.Context) error {
	c.syncs++
	return nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		ClockSkewAttempts: 3,
		ClockSkewPause:    time.Millisecond,
		RateLimitFallback: time.Millisecond,
	}
}

func TestDoRetriesByKind(t *testing.T) {
	skew := &APIError{Kind: KindClockSkew, Code: -1021, Message: "Timestamp for this request is outside of the recvWindow."}
	limited := &APIError{Kind: KindRateLimited, Status: 429, RetryAfter: time.Millisecond}
	invalid := &APIError{Kind: KindValidation, Code: -1121, Message: "Invalid symbol."}
	network := &APIError{Kind: KindNetwork, Status: 503}

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantSyncs int
		wantErr   bool
	}{
		{name: "success first try", wantCalls: 1},
		{name: "clock skew recovers", failures: []error{skew, skew}, wantCalls: 3, wantSyncs: 2},
		{name: "clock skew gives up after three attempts", failures: []error{skew, skew, skew, skew}, wantCalls: 3, wantSyncs: 2, wantErr: true},
		{name: "rate limit retried once", failures: []error{limited}, wantCalls: 2},
		{name: "rate limit twice fails", failures: []error{limited, limited}, wantCalls: 2, wantErr: true},
		{name: "validation never retried", failures: []error{invalid}, wantCalls: 1, wantErr: true},
		{name: "network bounded", failures: []error{network, network, network, network}, wantCalls: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &countingClock{}
			calls := 0
			_, err := Do(context.Background(), fastPolicy(), clock, func(context.Context) ([]byte, error) {
				calls++
				if calls <= len(tt.failures) {
					return nil, tt.failures[calls-1]
				}
				return []byte("ok"), nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls=%d, want %d", calls, tt.wantCalls)
			}
			if clock.syncs != tt.wantSyncs {
				t.Fatalf("syncs=%d, want %d", clock.syncs, tt.wantSyncs)
			}
		})
	}
}

func TestDoStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, fastPolicy(), nil, func(ctx context.Context) ([]byte, error) {
		calls++
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
}

func TestBackoffBounded(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := time.Second
	for attempt := 0; attempt < 40; attempt++ {
		d := Backoff(attempt, base, maxDelay)
		if d > maxDelay {
			t.Fatalf("attempt %d: backoff %v exceeds cap", attempt, d)
		}
		if d < base/2 && attempt == 0 {
			t.Fatalf("attempt 0: backoff %v below half base", d)
		}
	}
}
