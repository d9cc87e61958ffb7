package common

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how a client retries classified failures.
type RetryPolicy struct {
	MaxAttempts       int           // network/timeout attempts, including the first
	BaseDelay         time.Duration // first backoff step
	MaxDelay          time.Duration // cap for a single backoff sleep
	ClockSkewAttempts int           // attempts when the exchange rejects the timestamp
	ClockSkewPause    time.Duration // pause after a resync
	RateLimitFallback time.Duration // sleep on 429 without Retry-After
}

// DefaultRetryPolicy mirrors the exchange's documented tolerances.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		ClockSkewAttempts: 3,
		ClockSkewPause:    100 * time.Millisecond,
		RateLimitFallback: time.Second,
	}
}

// Backoff returns base*2^attempt with full jitter over the upper half, capped at maxDelay.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	d := maxDelay
	if attempt < 30 {
		if step := base * time.Duration(1<<attempt); step > 0 && step < maxDelay {
			d = step
		}
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

// Resyncer re-measures the local clock offset.
type Resyncer interface {
	Sync(ctx context.Context) error
}

// Do runs call until it succeeds or fails with an error that must not be retried.
// call is invoked fresh on every attempt so timestamps and signatures are rebuilt.
func Do(ctx context.Context, p RetryPolicy, clock Resyncer, call func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	var (
		netAttempts   int
		skewAttempts  int
		rateLimitUsed bool
	)
	for {
		body, err := call(ctx)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		switch KindOf(err) {
		case KindClockSkew:
			skewAttempts++
			if skewAttempts >= p.ClockSkewAttempts || clock == nil {
				return nil, err
			}
			log.Printf("🔄 timestamp rejected, resyncing clock (attempt %d/%d)", skewAttempts, p.ClockSkewAttempts)
			if syncErr := clock.Sync(ctx); syncErr != nil {
				log.Printf("⚠️ clock resync failed: %v", syncErr)
			}
			if err := Sleep(ctx, p.ClockSkewPause); err != nil {
				return nil, err
			}

		case KindRateLimited:
			if rateLimitUsed {
				return nil, err
			}
			rateLimitUsed = true
			wait := p.RateLimitFallback
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			log.Printf("⚠️ rate limited, retrying once after %v", wait)
			if err := Sleep(ctx, wait); err != nil {
				return nil, err
			}

		case KindNetwork:
			netAttempts++
			if netAttempts >= p.MaxAttempts {
				return nil, err
			}
			wait := Backoff(netAttempts-1, p.BaseDelay, p.MaxDelay)
			log.Printf("⚠️ network error, retry %d/%d in %v: %v", netAttempts, p.MaxAttempts-1, wait, err)
			if err := Sleep(ctx, wait); err != nil {
				return nil, err
			}

		default:
			return nil, err
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
