package core

import (
	"fmt"
	"sync"
)

// StepLimiter enforces a maximum number of model steps per turn.
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a limiter. max == 0 allows unlimited steps.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Increment consumes one step and fails once the budget is exceeded.
func (l *StepLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("%w: %d", ErrStepLimit, l.max)
	}

	return nil
}

// Count returns the steps consumed so far.
func (l *StepLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns the steps left, or -1 when unlimited.
func (l *StepLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1
	}

	return l.max - l.count
}
