// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

// Package resilience provides the retry policy used by the network clients
// (speech service, MCP). The composer and dispatcher never retry.
package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jllopis/neuralchat/pkg/errors"
)

// Policy controls retries with exponential backoff. The zero value makes a
// single attempt.
type Policy struct {
	// MaxAttempts is the total number of attempts; values below 1 mean 1.
	MaxAttempts int

	InitialDelay time.Duration
	// MaxDelay caps the backoff; zero means no cap.
	MaxDelay time.Duration
	// Multiplier defaults to 2.
	Multiplier float64
	// Jitter in [0,1]; 0.1 means ±10%.
	Jitter float64

	// Retryable decides whether an error is worth another attempt. Nil means
	// IsRecoverable.
	Retryable func(error) bool
}

// DefaultPolicy makes up to three attempts starting at 100ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
}

// WithMaxAttempts returns a copy of p with MaxAttempts set.
func (p Policy) WithMaxAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// WithInitialDelay returns a copy of p with InitialDelay set.
func (p Policy) WithInitialDelay(d time.Duration) Policy {
	p.InitialDelay = d
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned. Cancellation of ctx while
// waiting ends the loop with a CodeTimeout error wrapping ctx.Err().
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRecoverable
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			timer := time.NewTimer(p.backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.New(errors.CodeTimeout, "cancelled while retrying", ctx.Err()).
					WithContext("attempt", attempt).
					WithContext("last_error", lastErr.Error())
			case <-timer.C:
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return lastErr
}

func (p Policy) backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (2*rand.Float64() - 1))
	}
	return max(d, 0)
}

// IsRecoverable retries ChatErrors flagged recoverable and untyped errors,
// but never context cancellation or expiry.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ce *errors.ChatError
	if stderrors.As(err, &ce) {
		return ce.Recoverable
	}
	return true
}
