package simulated

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// EmergencyStop implements domain.EmergencyStopService against the simulated
// station: it latches the active flag and forces power off through the facade.
type EmergencyStop struct {
	facade *Facade
	active atomic.Bool
	logger *slog.Logger
}

func NewEmergencyStop(facade *Facade, logger *slog.Logger) *EmergencyStop {
	return &EmergencyStop{
		facade: facade,
		logger: logger.With("component", "emergency-stop"),
	}
}

func (e *EmergencyStop) IsEmergencyActive() bool { return e.active.Load() }

// ExecuteEmergencyStop is idempotent: the first call powers the station off
// and latches; later calls return immediately.
func (e *EmergencyStop) ExecuteEmergencyStop(ctx context.Context) error {
	if !e.active.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Warn("emergency stop executing")
	if err := e.facade.PowerOff(ctx); err != nil {
		e.logger.Error("emergency power off failed", "error", err)
		return err
	}
	return nil
}

// Reset clears the latch after the operator confirms the station is safe.
func (e *EmergencyStop) Reset() {
	e.active.Store(false)
	e.logger.Info("emergency stop reset")
}
