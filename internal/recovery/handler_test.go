package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eol-tester/internal/domain"
)

func newHandler() *Handler {
	return NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func kindErr(kind domain.ErrorKind) error {
	return &domain.Error{Kind: kind, Op: "test", Message: "boom"}
}

func TestClassifyByKind(t *testing.T) {
	h := newHandler()

	c := h.Classify(kindErr(domain.KindHardwareConnection))
	assert.Equal(t, CategoryHardware, c.Category)
	assert.True(t, c.RetryAllowed)
	assert.Equal(t, 3, c.MaxRetryAttempts)
	assert.Equal(t, StrategyReconnectHardware, c.RecoveryStrategy)

	c = h.Classify(kindErr(domain.KindUnsafeOperation))
	assert.Equal(t, SeverityCritical, c.Severity)
	assert.False(t, c.RetryAllowed)
	assert.True(t, c.EscalationRequired)
	assert.False(t, c.AutoRecovery, "emergency stop is never run automatically here")
}

func TestClassifyUnknownFallsBack(t *testing.T) {
	h := newHandler()
	c := h.Classify(errors.New("plain error"))
	assert.Equal(t, CategoryUnknown, c.Category)
	assert.False(t, c.RetryAllowed)
	assert.True(t, c.NotificationRequired)
}

func TestClassifyTypedDomainErrors(t *testing.T) {
	h := newHandler()

	c := h.Classify(&domain.InvalidStateError{Current: domain.StatusRunning, Operation: "PrepareTest"})
	assert.Equal(t, CategoryBusinessRule, c.Category)

	c = h.Classify(&domain.ConfigurationNotFoundError{Profile: "missing"})
	assert.Equal(t, CategoryConfiguration, c.Category)
}

func TestSetRuleOverridesRetryBudget(t *testing.T) {
	h := newHandler()
	err := kindErr(domain.KindHardwareConnection)
	assert.False(t, h.ShouldRetry(err, "connect", 3))

	rule, ok := h.Rule(domain.KindHardwareConnection)
	require.True(t, ok)
	rule.MaxRetryAttempts = 5
	h.SetRule(domain.KindHardwareConnection, rule)

	assert.True(t, h.ShouldRetry(err, "connect", 3))
	assert.False(t, h.ShouldRetry(err, "connect", 5))

	_, ok = h.Rule(domain.ErrorKind("nonexistent"))
	assert.False(t, ok)
}

func TestShouldRetryBoundary(t *testing.T) {
	h := newHandler()
	err := kindErr(domain.KindHardwareTimeout) // max 2 attempts

	assert.True(t, h.ShouldRetry(err, "initialize", 0))
	assert.True(t, h.ShouldRetry(err, "initialize", 1))
	assert.False(t, h.ShouldRetry(err, "initialize", 2))

	assert.False(t, h.ShouldRetry(kindErr(domain.KindInvalidState), "initialize", 0))
}

func TestShouldRetryTracksContext(t *testing.T) {
	h := newHandler()
	err := kindErr(domain.KindHardwareConnection)

	require.True(t, h.ShouldRetry(err, "connect", 0))
	rc, ok := h.RetryContextFor("connect")
	require.True(t, ok)
	assert.Equal(t, 0, rc.AttemptCount)
	assert.Equal(t, 3, rc.TotalAttempts)

	require.True(t, h.ShouldRetry(err, "connect", 1))
	rc, _ = h.RetryContextFor("connect")
	assert.Equal(t, 1, rc.AttemptCount)

	// Contexts are per handler instance, not shared.
	other := newHandler()
	_, ok = other.RetryContextFor("connect")
	assert.False(t, ok)

	h.ClearRetryContext("connect")
	_, ok = h.RetryContextFor("connect")
	assert.False(t, ok)
}

func TestRetryDelayBackoff(t *testing.T) {
	h := newHandler()
	err := kindErr(domain.KindHardwareConnection) // base 2s, multiplier 1.5, cap 60s

	assert.Equal(t, 2*time.Second, h.RetryDelay(err, 0))
	assert.Equal(t, 3*time.Second, h.RetryDelay(err, 1))
	assert.Equal(t, 4500*time.Millisecond, h.RetryDelay(err, 2))

	// A large attempt count hits the cap.
	assert.Equal(t, 60*time.Second, h.RetryDelay(err, 20))
}

func TestHandleRunsRecoveryStrategy(t *testing.T) {
	h := newHandler()
	recovered := false
	h.RegisterStrategy(StrategyReconnectHardware, func(ctx context.Context, cause error) error {
		recovered = true
		return nil
	})

	out := h.Handle(context.Background(), kindErr(domain.KindHardwareConnection), "connect")
	assert.True(t, out.Handled)
	assert.True(t, out.RecoveryAttempted)
	assert.True(t, out.RecoverySuccessful)
	assert.True(t, recovered)
	assert.Equal(t, domain.KindHardwareConnection, out.ErrorKind)
	assert.NotEmpty(t, out.UserMessage)
}

func TestHandleSwallowsStrategyFailure(t *testing.T) {
	h := newHandler()
	h.RegisterStrategy(StrategyReconnectHardware, func(ctx context.Context, cause error) error {
		return errors.New("still unreachable")
	})

	out := h.Handle(context.Background(), kindErr(domain.KindHardwareConnection), "connect")
	assert.True(t, out.RecoveryAttempted)
	assert.False(t, out.RecoverySuccessful)
	assert.Equal(t, "still unreachable", out.RecoveryError)
}

func TestHandleWithoutRegisteredStrategy(t *testing.T) {
	h := newHandler()
	out := h.Handle(context.Background(), kindErr(domain.KindHardwareConnection), "connect")
	assert.True(t, out.Handled)
	assert.False(t, out.RecoveryAttempted)
}

func TestHandleSkipsRecoveryWithoutAutoFlag(t *testing.T) {
	h := newHandler()
	called := false
	h.RegisterStrategy(StrategyEmergencyStop, func(ctx context.Context, cause error) error {
		called = true
		return nil
	})

	out := h.Handle(context.Background(), kindErr(domain.KindUnsafeOperation), "force_sequence")
	assert.False(t, out.RecoveryAttempted)
	assert.False(t, called)
	assert.True(t, out.RequiresEscalation)
}

func TestHandleClearsRetryContextOnNonRetryable(t *testing.T) {
	h := newHandler()
	require.True(t, h.ShouldRetry(kindErr(domain.KindHardwareTimeout), "op", 0))

	h.Handle(context.Background(), kindErr(domain.KindUnsafeOperation), "op")
	_, ok := h.RetryContextFor("op")
	assert.False(t, ok)
}
