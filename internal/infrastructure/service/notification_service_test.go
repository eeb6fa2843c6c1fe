package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/attendify/attendify/internal/domain/shared"
	"github.com/attendify/attendify/internal/infrastructure/external/telegram"
	"github.com/attendify/attendify/pkg/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSender) SendText(_ context.Context, _ int64, text string) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return &telegram.Message{MessageID: int64(len(f.texts))}, nil
}

type fakeThrottle struct {
	claimed  map[string]bool
	released []string
}

func (f *fakeThrottle) Allow(_ context.Context, code string, _, _ int) (bool, error) {
	if f.claimed[code] {
		return false, nil
	}
	f.claimed[code] = true
	return true, nil
}

func (f *fakeThrottle) Release(_ context.Context, code string) error {
	delete(f.claimed, code)
	f.released = append(f.released, code)
	return nil
}

func TestFormatWarning(t *testing.T) {
	assert.Equal(t, "Attendance in CS 2063 is 40%, below required 80%.", FormatWarning("CS 2063", 40, 80))
}

func TestTelegramNotifier_Sends(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, TelegramNotifierConfig{ChatID: 42})

	require.NoError(t, n.NotifyBelowThreshold(context.Background(), "CS 2063", 40, 80))
	require.Len(t, sender.texts, 1)
	assert.Equal(t, NotificationTitle+"\nAttendance in CS 2063 is 40%, below required 80%.", sender.texts[0])
}

func TestTelegramNotifier_NotConfigured(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, TelegramNotifierConfig{})

	require.NoError(t, n.NotifyBelowThreshold(context.Background(), "CS", 10, 50))
	assert.Empty(t, sender.texts)

	require.NoError(t, NewTelegramNotifier(nil, TelegramNotifierConfig{ChatID: 1}).
		NotifyBelowThreshold(context.Background(), "CS", 10, 50))
}

func TestTelegramNotifier_Throttled(t *testing.T) {
	sender := &fakeSender{}
	throttle := &fakeThrottle{claimed: map[string]bool{}}
	n := NewTelegramNotifier(sender, TelegramNotifierConfig{ChatID: 42, Throttle: throttle})

	ctx := context.Background()
	require.NoError(t, n.NotifyBelowThreshold(ctx, "CS", 10, 50))
	require.NoError(t, n.NotifyBelowThreshold(ctx, "CS", 9, 50))
	require.NoError(t, n.NotifyBelowThreshold(ctx, "MATH", 9, 50))

	assert.Len(t, sender.texts, 2)
}

func TestTelegramNotifier_ChatUnavailableIsSilent(t *testing.T) {
	sender := &fakeSender{err: &telegram.APIError{Code: http.StatusForbidden, Description: "bot was blocked by the user"}}
	n := NewTelegramNotifier(sender, TelegramNotifierConfig{ChatID: 42})

	assert.NoError(t, n.NotifyBelowThreshold(context.Background(), "CS", 10, 50))
}

func TestTelegramNotifier_FailureReleasesThrottle(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection reset")}
	throttle := &fakeThrottle{claimed: map[string]bool{}}
	n := NewTelegramNotifier(sender, TelegramNotifierConfig{ChatID: 42, Throttle: throttle})

	err := n.NotifyBelowThreshold(context.Background(), "CS", 10, 50)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotificationFailed)
	assert.Equal(t, []string{"CS"}, throttle.released)
}

func TestTelegramNotifier_BreakerOpens(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection reset")}
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "test",
		FailureThreshold: 2,
		CoolDown:         time.Hour,
	})
	n := NewTelegramNotifier(sender, TelegramNotifierConfig{ChatID: 42, Breaker: breaker})
	ctx := context.Background()

	_ = n.NotifyBelowThreshold(ctx, "CS", 10, 50)
	_ = n.NotifyBelowThreshold(ctx, "CS", 10, 50)
	err := n.NotifyBelowThreshold(ctx, "CS", 10, 50)

	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Len(t, sender.texts, 2)
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(nil).NotifyBelowThreshold(context.Background(), "CS", 10, 50))
}
