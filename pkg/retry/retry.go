// Package retry repeats operations that fail with errors marked Retryable,
// waiting an exponentially growing, jittered delay between attempts.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryableError marks Err as worth another attempt.
type RetryableError struct {
	Err error

	// After overrides the computed backoff when positive.
	After time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err for another attempt. It returns nil for nil.
func Retryable(err error) error {
	return RetryableAfter(err, 0)
}

// RetryableAfter marks err for another attempt no sooner than d.
func RetryableAfter(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, After: d}
}

type settings struct {
	attempts int
	initial  time.Duration
	ceiling  time.Duration
	factor   float64
	jitter   float64
	onRetry  func(attempt int, err error, delay time.Duration)
}

// Option adjusts a Retrier.
type Option func(*settings)

// WithMaxAttempts sets the total number of attempts, the first included.
func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithInitialDelay sets the wait before the second attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.initial = d
		}
	}
}

// WithMaxDelay caps a single wait.
func WithMaxDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.ceiling = d
		}
	}
}

// WithJitter spreads each wait by up to ±j of itself. j must be in [0, 1].
func WithJitter(j float64) Option {
	return func(s *settings) {
		if j >= 0 && j <= 1 {
			s.jitter = j
		}
	}
}

// WithOnRetry registers fn to run before every wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(s *settings) { s.onRetry = fn }
}

// Retrier runs operations under one retry policy. It is safe for
// concurrent use.
type Retrier struct {
	s settings
}

// New creates a Retrier. Without options it makes 3 attempts starting at
// 100ms, doubling up to 30s with 10% jitter.
func New(opts ...Option) *Retrier {
	s := settings{
		attempts: 3,
		initial:  100 * time.Millisecond,
		ceiling:  30 * time.Second,
		factor:   2,
		jitter:   0.1,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Retrier{s: s}
}

// Do calls op until it succeeds or returns an error that is not
// Retryable, attempts run out, or ctx ends. Retryable wrappers are
// removed from the returned error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	delay := r.s.initial

	for attempt := 1; ; attempt++ {
		err := op(ctx)

		var marked *RetryableError
		if !errors.As(err, &marked) {
			return err
		}
		if attempt >= r.s.attempts {
			return marked.Err
		}

		wait := marked.After
		if wait <= 0 {
			wait = r.spread(min(delay, r.s.ceiling))
		}
		delay = time.Duration(float64(delay) * r.s.factor)

		if r.s.onRetry != nil {
			r.s.onRetry(attempt, marked.Err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return marked.Err
		case <-timer.C:
		}
	}
}

func (r *Retrier) spread(d time.Duration) time.Duration {
	if r.s.jitter == 0 {
		return d
	}
	return max(0, d+time.Duration(float64(d)*r.s.jitter*(rand.Float64()*2-1)))
}

// DoWithData is Do for operations that produce a value.
func DoWithData[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// TelegramRetrier returns the policy used for Bot API calls. opts are
// applied after the defaults.
func TelegramRetrier(attempts int, initialDelay time.Duration, opts ...Option) *Retrier {
	base := []Option{
		WithMaxAttempts(attempts),
		WithInitialDelay(initialDelay),
		WithMaxDelay(30 * time.Second),
	}
	return New(append(base, opts...)...)
}
