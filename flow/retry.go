package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hupe1980/teammesh/model"
)

// RetryPolicy is the outer retry tier around a model call. Only overload
// errors are retried; everything else propagates immediately.
type RetryPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxRetries      uint64
	// IsRetryable classifies errors. Defaults to IsOverloaded.
	IsRetryable func(error) bool
	// Timer replaces the wall-clock timer in tests.
	Timer backoff.Timer
}

// DefaultRetryPolicy waits 1s, 2s and 4s between at most 3 retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Second,
		Multiplier:      2,
		MaxRetries:      3,
		IsRetryable:     IsOverloaded,
	}
}

// IsOverloaded reports whether err signals provider overload, matching
// "overloaded" case-insensitively anywhere in the error chain's text.
func IsOverloaded(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "overloaded")
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = p.InitialInterval << 10
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// Do runs op, retrying retryable failures with exponential backoff. notify is
// called before each wait and may be nil.
func (p RetryPolicy) Do(ctx context.Context, op func() (*model.Response, error), notify func(error, time.Duration)) (*model.Response, error) {
	retryable := p.IsRetryable
	if retryable == nil {
		retryable = IsOverloaded
	}

	var resp *model.Response

	operation := func() error {
		r, err := op()
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	var err error
	if p.Timer != nil {
		err = backoff.RetryNotifyWithTimer(operation, p.backOff(ctx), notify, p.Timer)
	} else {
		err = backoff.RetryNotify(operation, p.backOff(ctx), notify)
	}
	if err != nil {
		return nil, err
	}

	return resp, nil
}
