// Package simulated provides a software rendition of the test station for
// development and CI: the facade honors the real contract, tracks connection
// and homing state, and produces a deterministic force surface.
package simulated

import (
	"context"
	"log/slog"
	"sync"

	"eol-tester/internal/domain"
)

// ForceModel computes the simulated load-cell reading at a matrix point.
type ForceModel func(temperature, position float64) domain.ForceValue

// DefaultForceModel is a smooth surface: force grows with position and drops
// slightly with temperature.
func DefaultForceModel(temperature, position float64) domain.ForceValue {
	return domain.ForceValue(10 + position*0.1 - temperature*0.05)
}

// Facade implements domain.HardwareFacade in software.
type Facade struct {
	mu        sync.Mutex
	connected bool
	poweredOn bool
	homed     bool

	model  ForceModel
	faults map[string]error
	logger *slog.Logger
}

func NewFacade(logger *slog.Logger) *Facade {
	return &Facade{
		model:  DefaultForceModel,
		faults: make(map[string]error),
		logger: logger.With("component", "simulated-hardware"),
	}
}

// SetForceModel replaces the force surface.
func (f *Facade) SetForceModel(model ForceModel) {
	f.mu.Lock()
	f.model = model
	f.mu.Unlock()
}

// InjectFault makes the named operation fail with err until cleared with a
// nil err. Operation names match the facade method names.
func (f *Facade) InjectFault(operation string, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.faults, operation)
	} else {
		f.faults[operation] = err
	}
	f.mu.Unlock()
}

func (f *Facade) fault(operation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faults[operation]
}

func (f *Facade) ConnectAll(ctx context.Context, hw *domain.HardwareConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.fault("ConnectAll"); err != nil {
		return err
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.logger.Info("simulated hardware connected")
	return nil
}

func (f *Facade) Initialize(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.fault("Initialize"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return &domain.Error{Kind: domain.KindHardwareConnection, Op: "Initialize",
			Message: "hardware not connected"}
	}
	f.poweredOn = true
	return nil
}

func (f *Facade) SetupTest(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.fault("SetupTest"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.poweredOn {
		return &domain.Error{Kind: domain.KindInvalidState, Op: "SetupTest",
			Message: "hardware not initialized"}
	}
	f.homed = true
	return nil
}

func (f *Facade) PerformForceTestSequence(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) (*domain.TestMeasurements, error) {
	if err := f.fault("PerformForceTestSequence"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	homed := f.homed
	model := f.model
	f.mu.Unlock()
	if !homed {
		return nil, &domain.Error{Kind: domain.KindInvalidState, Op: "PerformForceTestSequence",
			Message: "axis not homed"}
	}

	measurements := domain.NewTestMeasurements()
	for _, temp := range cfg.TemperatureList {
		for _, pos := range cfg.StrokePositions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			measurements.Record(temp, pos, model(temp, pos))
		}
	}
	return measurements, nil
}

func (f *Facade) TeardownTest(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.fault("TeardownTest"); err != nil {
		return err
	}
	f.mu.Lock()
	f.poweredOn = false
	f.mu.Unlock()
	return nil
}

func (f *Facade) Shutdown(ctx context.Context) error {
	if err := f.fault("Shutdown"); err != nil {
		return err
	}
	f.mu.Lock()
	f.connected = false
	f.poweredOn = false
	f.mu.Unlock()
	f.logger.Info("simulated hardware disconnected")
	return nil
}

func (f *Facade) ResetRobotHomingState() {
	f.mu.Lock()
	f.homed = false
	f.mu.Unlock()
	f.logger.Info("robot homing state reset")
}

func (f *Facade) PowerOff(ctx context.Context) error {
	if err := f.fault("PowerOff"); err != nil {
		return err
	}
	f.mu.Lock()
	f.poweredOn = false
	f.mu.Unlock()
	f.logger.Warn("direct power off executed")
	return nil
}

func (f *Facade) Status(ctx context.Context) map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]bool{
		"robot":    f.connected,
		"mcu":      f.connected,
		"loadcell": f.connected,
		"power":    f.connected && f.poweredOn,
	}
}
