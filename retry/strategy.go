// Package retry provides the bounded retry policy used when acquiring storage
// connections. The backing store may come up after the consumers do, so the
// first writes of a process are allowed to wait for it within a fixed budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrExhausted is matched (via errors.Is) by the error Do returns when every
// attempt failed.
var ErrExhausted = errors.New("retry budget exhausted")

// Strategy defines retry behavior.
//
// The delay before attempt n+1 follows:
//
//	delay = min(BaseDelay * ExponentialBase^(n-1), MaxDelay)
//
// With ExponentialBase 1.0 the delay is fixed, which is what the connect path
// uses by default: 15 attempts, 2s apart.
type Strategy struct {
	MaxAttempts     int           // Total attempts, including the first one
	BaseDelay       time.Duration // Delay after the first failed attempt
	MaxDelay        time.Duration // Cap for growing delays (0 = no cap)
	ExponentialBase float64       // Backoff multiplier, 1.0 for a fixed delay
}

// DefaultConnectStrategy returns the connect-with-retry defaults:
// 15 attempts with a fixed 2000ms pause between them.
func DefaultConnectStrategy() Strategy {
	return FixedDelay(15, 2*time.Second)
}

// FixedDelay returns a strategy with a constant pause between attempts.
func FixedDelay(maxAttempts int, delay time.Duration) Strategy {
	return Strategy{
		MaxAttempts:     maxAttempts,
		BaseDelay:       delay,
		MaxDelay:        delay,
		ExponentialBase: 1.0,
	}
}

// Validate reports configuration errors.
func (s Strategy) Validate() error {
	if s.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", s.MaxAttempts)
	}
	if s.BaseDelay < 0 {
		return fmt.Errorf("base delay must be >= 0, got %v", s.BaseDelay)
	}
	if s.ExponentialBase < 1.0 {
		return fmt.Errorf("exponential base must be >= 1.0, got %v", s.ExponentialBase)
	}
	return nil
}

// CalculateRetryDelay returns the pause after the given failed attempt (1-based).
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 1 || s.ExponentialBase <= 1.0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber-1))
	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// IsRetryable reports whether another attempt is allowed after attemptCount attempts.
func (s Strategy) IsRetryable(attemptCount int) bool {
	return attemptCount < s.MaxAttempts
}

// GetRetrySchedule returns a human-readable description of the schedule,
// handy for startup logs.
//
// Example output: "15 attempts: 2s → 2s → ... (28s total)".
func (s Strategy) GetRetrySchedule() string {
	var total time.Duration
	for i := 1; i < s.MaxAttempts; i++ {
		total += s.CalculateRetryDelay(i)
	}
	if s.MaxAttempts <= 1 {
		return fmt.Sprintf("%d attempt: no retries", s.MaxAttempts)
	}
	return fmt.Sprintf("%d attempts: %v → %v → ... (%v total)",
		s.MaxAttempts, s.CalculateRetryDelay(1), s.CalculateRetryDelay(2), total)
}

// Wait blocks for the delay that follows the given failed attempt,
// returning early with ctx.Err() if ctx is done.
func (s Strategy) Wait(ctx context.Context, attemptNumber int) error {
	delay := s.CalculateRetryDelay(attemptNumber)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExhaustedError is returned by Do when all attempts failed.
// It unwraps to the last underlying error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is matches ErrExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not retryable. Do stops and returns err unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it succeeds, returns a Permanent error, or the budget is
// spent. It returns the number of attempts made.
//
// On exhaustion the error is an *ExhaustedError carrying the last cause.
// If ctx ends while waiting, the error joins ctx.Err() with the last cause.
func Do(ctx context.Context, s Strategy, op func(ctx context.Context, attempt int) error) (int, error) {
	var last error
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		last = err

		if !s.IsRetryable(attempt) {
			break
		}
		if waitErr := s.Wait(ctx, attempt); waitErr != nil {
			return attempt, errors.Join(waitErr, last)
		}
	}
	return s.MaxAttempts, &ExhaustedError{Attempts: s.MaxAttempts, Last: last}
}
