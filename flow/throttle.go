package flow

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle delays a call to stay under upstream per-minute quotas.
type Throttle interface {
	Wait(ctx context.Context) error
}

// DefaultThrottleDelay is the flat delay inserted before peer calls.
const DefaultThrottleDelay = 2 * time.Second

// FixedDelay waits a constant duration on every call.
type FixedDelay struct {
	Delay time.Duration
	// After replaces time.After in tests.
	After func(time.Duration) <-chan time.Time
}

// NewFixedDelay returns a FixedDelay; d <= 0 selects DefaultThrottleDelay.
func NewFixedDelay(d time.Duration) *FixedDelay {
	if d <= 0 {
		d = DefaultThrottleDelay
	}
	return &FixedDelay{Delay: d, After: time.After}
}

// Wait implements Throttle.
func (f *FixedDelay) Wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}

	after := f.After
	if after == nil {
		after = time.After
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-after(f.Delay):
		return nil
	}
}

// RateThrottle is a token bucket alternative to FixedDelay.
type RateThrottle struct {
	limiter *rate.Limiter
}

// NewRateThrottle allows perMinute calls per minute with the given burst.
func NewRateThrottle(perMinute float64, burst int) *RateThrottle {
	if burst < 1 {
		burst = 1
	}
	return &RateThrottle{limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst)}
}

// Wait implements Throttle.
func (r *RateThrottle) Wait(ctx context.Context) error { return r.limiter.Wait(ctx) }

// NoThrottle never waits.
type NoThrottle struct{}

// Wait implements Throttle.
func (NoThrottle) Wait(context.Context) error { return nil }
