// Package code evaluates stored custom-tool logic inside a sandbox. Scripts
// are expr-lang expressions: side-effect free, bounded in size and time, with
// access only to the env handed in by the caller.
package code

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"golang.org/x/sync/semaphore"
)

// Executor defines the interface for executing code snippets.
type Executor interface {
	// Execute evaluates code against env and returns its result.
	Execute(ctx context.Context, code string, env map[string]any) (any, error)
}

// ErrTimeout is returned when evaluation exceeds the configured time limit.
var ErrTimeout = errors.New("script timed out")

// ExprOptions configure the expr-lang executor.
type ExprOptions struct {
	Timeout  time.Duration
	MaxNodes uint
	// MaxInFlight bounds concurrent evaluations, including ones that already
	// timed out but have not yet finished.
	MaxInFlight int64
}

// ExprExecutor runs expr-lang expressions.
type ExprExecutor struct {
	opts     ExprOptions
	inflight *semaphore.Weighted
}

// NewExprExecutor creates an executor with a 2s timeout, a 2000 node limit and
// 16 concurrent evaluations unless overridden.
func NewExprExecutor(optFns ...func(o *ExprOptions)) *ExprExecutor {
	opts := ExprOptions{
		Timeout:     2 * time.Second,
		MaxNodes:    2000,
		MaxInFlight: 16,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}

	return &ExprExecutor{opts: opts, inflight: semaphore.NewWeighted(opts.MaxInFlight)}
}

// Execute compiles and runs code. The compile step type-checks against env.
//
// The expr VM cannot be interrupted. On timeout or cancellation Execute
// returns at once, but the evaluation keeps running in the background and
// holds its MaxInFlight slot until it finishes. When every slot is held,
// further calls wait for one until their own deadline and then fail with
// ErrTimeout.
func (e *ExprExecutor) Execute(ctx context.Context, code string, env map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if env == nil {
		env = map[string]any{}
	}

	program, err := expr.Compile(code, expr.Env(env), expr.MaxNodes(e.opts.MaxNodes))
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	if err := e.inflight.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}

	type result struct {
		out any
		err error
	}

	done := make(chan result, 1)

	go func() {
		defer e.inflight.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("script panic: %v", r)}
			}
		}()
		out, err := expr.Run(program, env)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("run script: %w", r.err)
		}
		return r.out, nil
	}
}
