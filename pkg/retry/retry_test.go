package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDo_RetriesRetryableErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	var delays []time.Duration

	err := New(
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(_ int, _ error, d time.Duration) { delays = append(delays, d) }),
	).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(boom)
	})

	assert.Equal(t, boom, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestDo_StopsOnPlainError(t *testing.T) {
	calls := 0
	err := New(WithMaxAttempts(5)).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})

	assert.EqualError(t, err, "bad request")
	assert.Equal(t, 1, calls)
}

func TestDo_HonoursRetryAfter(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := New(
		WithMaxAttempts(2),
		WithOnRetry(func(_ int, _ error, d time.Duration) { delays = append(delays, d) }),
	).Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return RetryableAfter(errors.New("slow down"), 5*time.Millisecond)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, delays)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), New(WithInitialDelay(0), WithJitter(0)), func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, Retryable(errors.New("later"))
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}
