// Package deadline races slow remote calls against a fixed timeout.
//
// The call keeps running after the deadline; its late result is dropped.
// Cancellation is left to the callee's own transport timeouts.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the call does not finish in time.
var ErrTimeout = errors.New("deadline: timed out")

type result[T any] struct {
	val T
	err error
}

// Race runs fn and returns its result, or ErrTimeout after d, or ctx's
// error if ctx ends first. Panics in fn are converted to errors.
func Race[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	// Buffered so a late sender never blocks.
	ch := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result[T]{err: fmt.Errorf("deadline: call panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result[T]{val: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %v", ErrTimeout, d)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
