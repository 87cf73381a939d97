package usecase

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eol-tester/internal/domain"
)

// ConfigLoader resolves the active profile and produces a validated test
// configuration plus the hardware configuration. Results are cached per
// loader; Reset clears the cache so a fresh execution re-reads the profile.
type ConfigLoader struct {
	service   domain.ConfigurationService
	validator domain.ConfigurationValidator
	logger    *slog.Logger
	tracer    trace.Tracer

	cachedProfile string
	cachedTest    *domain.TestConfiguration
	cachedHW      *domain.HardwareConfig
}

func NewConfigLoader(service domain.ConfigurationService, validator domain.ConfigurationValidator, logger *slog.Logger) *ConfigLoader {
	return &ConfigLoader{
		service:   service,
		validator: validator,
		logger:    logger.With("component", "config-loader"),
		tracer:    otel.Tracer("eol-tester-usecase"),
	}
}

// Reset drops cached configuration. Called at the start of every execution so
// profile edits between runs take effect.
func (l *ConfigLoader) Reset() {
	l.cachedProfile = ""
	l.cachedTest = nil
	l.cachedHW = nil
}

// Load resolves the active profile, loads it, validates it, and loads the
// hardware configuration.
func (l *ConfigLoader) Load(ctx context.Context) (*domain.TestConfiguration, *domain.HardwareConfig, error) {
	ctx, span := l.tracer.Start(ctx, "loader.Load")
	defer span.End()

	if l.cachedTest != nil && l.cachedHW != nil {
		span.SetAttributes(attribute.Bool("config.cached", true))
		return l.cachedTest, l.cachedHW, nil
	}

	profile, err := l.service.ActiveProfileName(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve active profile")
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("config.profile", profile))

	testCfg, err := l.service.LoadTestConfiguration(ctx, profile)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load test configuration")
		return nil, nil, err
	}

	if err := l.validator.ValidateTestConfiguration(testCfg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "test configuration invalid")
		return nil, nil, err
	}

	hwCfg, err := l.service.LoadHardwareConfiguration(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load hardware configuration")
		return nil, nil, err
	}

	l.cachedProfile = profile
	l.cachedTest = testCfg
	l.cachedHW = hwCfg
	l.logger.Info("configuration loaded", "profile", profile, "matrix_size", testCfg.MatrixSize())
	return testCfg, hwCfg, nil
}

// ActiveProfile reports the profile name behind the cached configuration.
func (l *ConfigLoader) ActiveProfile() string { return l.cachedProfile }
