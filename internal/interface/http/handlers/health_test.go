package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	up   = NewPingCheck(pingFunc(func(context.Context) error { return nil }))
	down = NewPingCheck(pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }))
)

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	status := NewCompositeHealthChecker("v1").Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, StatusOK, status.Status)
	assert.Equal(t, "v1", status.Version)
	assert.Empty(t, status.Message)
}

func TestCompositeHealthChecker_RequiredFailure(t *testing.T) {
	hc := NewCompositeHealthChecker("v1")
	hc.AddCheck("postgres", down)
	hc.AddOptionalCheck("redis", up)

	status := hc.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, StatusDown, status.Status)
	assert.Equal(t, "failing checks: postgres", status.Message)
	assert.True(t, status.Checks["postgres"].Required)
	assert.Equal(t, "dial tcp: refused", status.Checks["postgres"].Message)
	assert.True(t, status.Checks["redis"].Healthy)
}

func TestCompositeHealthChecker_OptionalFailureDegrades(t *testing.T) {
	hc := NewCompositeHealthChecker("v1")
	hc.AddCheck("postgres", up)
	hc.AddOptionalCheck("redis", down)

	status := hc.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, "failing checks: redis", status.Message)
	assert.False(t, status.Checks["redis"].Required)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	hc := NewCompositeHealthChecker("v1")
	hc.SetTimeout(10 * time.Millisecond)
	hc.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := hc.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}
