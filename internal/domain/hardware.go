package domain

import "context"

// HardwareFacade is the contract the orchestrator drives the station through.
// Operations are invoked strictly in order: ConnectAll → Initialize →
// SetupTest → PerformForceTestSequence → TeardownTest → Shutdown. The facade
// owns timeouts and per-device retries; a facade timeout surfaces as a
// KindHardwareTimeout error and flows through the classification engine.
type HardwareFacade interface {
	ConnectAll(ctx context.Context, hw *HardwareConfig) error
	Initialize(ctx context.Context, cfg *TestConfiguration, hw *HardwareConfig) error
	SetupTest(ctx context.Context, cfg *TestConfiguration, hw *HardwareConfig) error
	PerformForceTestSequence(ctx context.Context, cfg *TestConfiguration, hw *HardwareConfig) (*TestMeasurements, error)
	TeardownTest(ctx context.Context, cfg *TestConfiguration, hw *HardwareConfig) error
	Shutdown(ctx context.Context) error

	// ResetRobotHomingState clears the homed flag so the next run re-homes
	// the axis before trusting its coordinates. Idempotent.
	ResetRobotHomingState()

	// PowerOff is the direct power-subsystem path used for emergency power
	// off when routine teardown fails.
	PowerOff(ctx context.Context) error

	// Status reports per-subsystem connectivity for health checks.
	Status(ctx context.Context) map[string]bool
}

// EmergencyStopService de-energizes the station on cancellation or critical
// fault. ExecuteEmergencyStop is idempotent; IsEmergencyActive lets callers
// avoid racing an externally-triggered stop.
type EmergencyStopService interface {
	IsEmergencyActive() bool
	ExecuteEmergencyStop(ctx context.Context) error
}

// MESNotifier reports test start/completion to the manufacturing execution
// system. SendComplete carries the flattened force readings and the failed
// points alongside the result. Notification failures are logged by
// implementations and reported via the return value, never raised.
type MESNotifier interface {
	SendStart(ctx context.Context, serialNumber string) bool
	SendComplete(ctx context.Context, serialNumber string, result *TestExecutionResult,
		measurements map[string]Measurement, defects []FailedPoint) bool
}
