package simulated

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eol-tester/internal/domain"
)

func newTestFacade() *Facade {
	return NewFacade(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testCfg() *domain.TestConfiguration {
	return &domain.TestConfiguration{
		TemperatureList: []float64{25, 85},
		StrokePositions: []float64{1000, 2000},
	}
}

func TestFullSequence(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()
	cfg := testCfg()
	hw := &domain.HardwareConfig{}

	require.NoError(t, f.ConnectAll(ctx, hw))
	require.NoError(t, f.Initialize(ctx, cfg, hw))
	require.NoError(t, f.SetupTest(ctx, cfg, hw))

	m, err := f.PerformForceTestSequence(ctx, cfg, hw)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Count())

	status := f.Status(ctx)
	assert.True(t, status["robot"])
	assert.True(t, status["power"])

	require.NoError(t, f.TeardownTest(ctx, cfg, hw))
	require.NoError(t, f.Shutdown(ctx))
	status = f.Status(ctx)
	assert.False(t, status["robot"])
}

func TestSequenceOrderEnforced(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()
	cfg := testCfg()
	hw := &domain.HardwareConfig{}

	err := f.Initialize(ctx, cfg, hw)
	require.Error(t, err)
	assert.Equal(t, domain.KindHardwareConnection, domain.KindOf(err))

	require.NoError(t, f.ConnectAll(ctx, hw))
	err = f.SetupTest(ctx, cfg, hw)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))

	_, err = f.PerformForceTestSequence(ctx, cfg, hw)
	require.Error(t, err)
}

func TestHomingResetForcesResetup(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()
	cfg := testCfg()
	hw := &domain.HardwareConfig{}

	require.NoError(t, f.ConnectAll(ctx, hw))
	require.NoError(t, f.Initialize(ctx, cfg, hw))
	require.NoError(t, f.SetupTest(ctx, cfg, hw))

	f.ResetRobotHomingState()
	_, err := f.PerformForceTestSequence(ctx, cfg, hw)
	require.Error(t, err, "an unhomed axis cannot run the sweep")
}

func TestFaultInjection(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()
	hw := &domain.HardwareConfig{}

	injected := &domain.Error{Kind: domain.KindHardwareConnection, Op: "connect", Message: "port closed"}
	f.InjectFault("ConnectAll", injected)
	assert.ErrorIs(t, f.ConnectAll(ctx, hw), injected)

	f.InjectFault("ConnectAll", nil)
	assert.NoError(t, f.ConnectAll(ctx, hw))
}

func TestEmergencyStopLatches(t *testing.T) {
	f := newTestFacade()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	es := NewEmergencyStop(f, logger)

	assert.False(t, es.IsEmergencyActive())
	require.NoError(t, es.ExecuteEmergencyStop(context.Background()))
	assert.True(t, es.IsEmergencyActive())

	// Idempotent once latched.
	require.NoError(t, es.ExecuteEmergencyStop(context.Background()))

	es.Reset()
	assert.False(t, es.IsEmergencyActive())
}
