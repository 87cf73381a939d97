package usecase

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eol-tester/internal/domain"
	"eol-tester/internal/metrics"
)

// HardwareExecutor drives the facade through the fixed phase order. Each phase
// checks for cancellation before touching hardware; a cancelled context stops
// the sequence without issuing further commands.
type HardwareExecutor struct {
	facade domain.HardwareFacade
	logger *slog.Logger
	tracer trace.Tracer
}

func NewHardwareExecutor(facade domain.HardwareFacade, logger *slog.Logger) *HardwareExecutor {
	return &HardwareExecutor{
		facade: facade,
		logger: logger.With("component", "hardware-executor"),
		tracer: otel.Tracer("eol-tester-usecase"),
	}
}

// Connect brings up every hardware connection.
func (e *HardwareExecutor) Connect(ctx context.Context, hw *domain.HardwareConfig) error {
	return e.phase(ctx, "connect", func(ctx context.Context) error {
		return e.facade.ConnectAll(ctx, hw)
	})
}

// Initialize powers the DUT and brings the station to its ready envelope.
func (e *HardwareExecutor) Initialize(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) error {
	return e.phase(ctx, "initialize", func(ctx context.Context) error {
		return e.facade.Initialize(ctx, cfg, hw)
	})
}

// Setup homes the axis and moves the station into test position.
func (e *HardwareExecutor) Setup(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) error {
	return e.phase(ctx, "setup", func(ctx context.Context) error {
		return e.facade.SetupTest(ctx, cfg, hw)
	})
}

// RunForceSequence sweeps the temperature × position matrix and collects the
// force readings.
func (e *HardwareExecutor) RunForceSequence(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) (*domain.TestMeasurements, error) {
	var measurements *domain.TestMeasurements
	err := e.phase(ctx, "force_sequence", func(ctx context.Context) error {
		var err error
		measurements, err = e.facade.PerformForceTestSequence(ctx, cfg, hw)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("force sequence complete", "points", measurements.Count())
	return measurements, nil
}

// Teardown returns the station to a safe idle state.
func (e *HardwareExecutor) Teardown(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) error {
	return e.phase(ctx, "teardown", func(ctx context.Context) error {
		return e.facade.TeardownTest(ctx, cfg, hw)
	})
}

// Shutdown disconnects from all hardware.
func (e *HardwareExecutor) Shutdown(ctx context.Context) error {
	return e.phase(ctx, "shutdown", func(ctx context.Context) error {
		return e.facade.Shutdown(ctx)
	})
}

func (e *HardwareExecutor) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		e.logger.Warn("phase skipped, context cancelled", "phase", name)
		return err
	}

	ctx, span := e.tracer.Start(ctx, "hardware."+name,
		trace.WithAttributes(attribute.String("hardware.phase", name)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.PhaseDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hardware phase failed")
		e.logger.Error("hardware phase failed", "phase", name, "error", err)
		return err
	}
	e.logger.Debug("hardware phase complete", "phase", name, "elapsed", time.Since(start))
	return nil
}
