package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eol-tester/internal/domain"
	"eol-tester/internal/metrics"
	"eol-tester/internal/recovery"
)

// Command is the request to run one EOL test.
type Command struct {
	DUTInfo    DUTInfo `json:"dut_info" validate:"required"`
	OperatorID string  `json:"operator_id" validate:"required,min=2,max=30"`
}

// Orchestrator coordinates one test execution at a time through the fixed
// phase sequence: load configuration, create the entity, prepare hardware,
// run the force sweep, evaluate, persist, clean up. It never raises a
// business failure: out-of-spec tests come back as a FAILED result, system
// faults as an ERROR result. The only error Execute returns is the caller's
// own cancellation.
type Orchestrator struct {
	loader     *ConfigLoader
	factory    *EntityFactory
	executor   *HardwareExecutor
	state      *StateManager
	evaluator  *ResultEvaluator
	handler    *recovery.Handler
	facade     domain.HardwareFacade
	estop      domain.EmergencyStopService
	mes        domain.MESNotifier
	logger     *slog.Logger
	tracer     trace.Tracer
	running    atomic.Bool
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(
	loader *ConfigLoader,
	factory *EntityFactory,
	executor *HardwareExecutor,
	state *StateManager,
	evaluator *ResultEvaluator,
	handler *recovery.Handler,
	facade domain.HardwareFacade,
	estop domain.EmergencyStopService,
	mes domain.MESNotifier,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		loader:    loader,
		factory:   factory,
		executor:  executor,
		state:     state,
		evaluator: evaluator,
		handler:   handler,
		facade:    facade,
		estop:     estop,
		mes:       mes,
		logger:    logger.With("component", "test-orchestrator"),
		tracer:    otel.Tracer("eol-tester-usecase"),
		sleep:     sleepCtx,
	}
}

// IsRunning reports whether an execution is in progress.
func (o *Orchestrator) IsRunning() bool { return o.running.Load() }

// Execute runs one complete EOL test. A second concurrent call returns an
// ERROR result immediately without touching hardware. The returned error is
// non-nil only when ctx was cancelled; every other outcome, including
// hardware faults, is reported through the result.
func (o *Orchestrator) Execute(ctx context.Context, cmd Command) (*domain.TestExecutionResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Warn("execution rejected, test already running")
		return &domain.TestExecutionResult{
			TestStatus:   domain.StatusError,
			ErrorMessage: "a test is already running on this station",
		}, nil
	}
	metrics.TestRunning.Set(1)
	defer func() {
		o.running.Store(false)
		metrics.TestRunning.Set(0)
	}()

	ctx, span := o.tracer.Start(ctx, "orchestrator.Execute", trace.WithAttributes(
		attribute.String("dut.id", cmd.DUTInfo.DUTID),
		attribute.String("operator.id", cmd.OperatorID),
	))
	defer span.End()

	result, err := o.execute(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution cancelled")
	}
	if result != nil {
		span.SetAttributes(
			attribute.String("test.status", string(result.TestStatus)),
			attribute.Bool("test.passed", result.Passed),
		)
		metrics.TestExecutionsTotal.WithLabelValues(string(result.TestStatus)).Inc()
	}
	return result, err
}

func (o *Orchestrator) execute(ctx context.Context, cmd Command) (*domain.TestExecutionResult, error) {
	// Phase 1: configuration. The cache is cleared so profile edits between
	// runs take effect.
	o.loader.Reset()
	cfg, hw, err := o.loader.Load(ctx)
	if err != nil {
		o.handler.Handle(ctx, err, "load_configuration")
		return &domain.TestExecutionResult{
			TestStatus:   domain.StatusError,
			ErrorMessage: o.handler.UserMessage(err),
		}, nil
	}

	// Phase 2: entity creation.
	test, err := o.factory.CreateTest(ctx, cmd.DUTInfo, cmd.OperatorID, cfg)
	if err != nil {
		o.handler.Handle(ctx, err, "create_test")
		return &domain.TestExecutionResult{
			TestStatus:   domain.StatusError,
			ErrorMessage: o.handler.UserMessage(err),
		}, nil
	}
	o.state.SaveBestEffort(ctx, test)

	if o.mes != nil {
		o.mes.SendStart(ctx, test.DUT().SerialNumber)
	}

	result, err := o.runPhases(ctx, test, cfg, hw)

	if o.mes != nil && result != nil {
		// Completion notifications must go out even after cancellation.
		o.mes.SendComplete(context.WithoutCancel(ctx), test.DUT().SerialNumber, result,
			result.TestSummary.Flatten(), result.Defects)
	}
	return result, err
}

// runPhases drives the hardware-facing part of the execution. Cleanup always
// runs on the normal and fault paths; the cancellation path skips it and
// hands safety to the emergency stop.
func (o *Orchestrator) runPhases(ctx context.Context, test *domain.EOLTest,
	cfg *domain.TestConfiguration, hw *domain.HardwareConfig) (*domain.TestExecutionResult, error) {

	cleanupNeeded := false
	defer func() {
		if cleanupNeeded {
			o.cleanupHardware(context.WithoutCancel(ctx), cfg, hw)
		}
	}()

	// Phase 3: preparation.
	if err := test.PrepareTest(); err != nil {
		return o.failTest(ctx, test, err, "prepare_test"), nil
	}
	o.state.SaveBestEffort(ctx, test)

	cleanupNeeded = true
	if err := o.withRetry(ctx, "connect_hardware", func(ctx context.Context) error {
		return o.executor.Connect(ctx, hw)
	}); err != nil {
		return o.finishAfterFault(ctx, test, err, "connect_hardware", &cleanupNeeded)
	}
	if err := o.withRetry(ctx, "initialize_hardware", func(ctx context.Context) error {
		return o.executor.Initialize(ctx, cfg, hw)
	}); err != nil {
		return o.finishAfterFault(ctx, test, err, "initialize_hardware", &cleanupNeeded)
	}
	if err := o.withRetry(ctx, "setup_hardware", func(ctx context.Context) error {
		return o.executor.Setup(ctx, cfg, hw)
	}); err != nil {
		return o.finishAfterFault(ctx, test, err, "setup_hardware", &cleanupNeeded)
	}

	// Phase 4: execution.
	if err := test.StartExecution(); err != nil {
		return o.failTest(ctx, test, err, "start_execution"), nil
	}
	o.state.SaveBestEffort(ctx, test)

	measurements, err := o.runCycles(ctx, test, cfg, hw)
	if err != nil {
		return o.finishAfterFault(ctx, test, err, "force_sequence", &cleanupNeeded)
	}

	// Phase 5: evaluation. An out-of-spec result is a business outcome, the
	// test finishes FAILED and cleanup still runs.
	passed, defects, err := o.evaluator.EvaluateAndFinalize(ctx, test, measurements, cfg)
	if err != nil {
		return o.finishAfterFault(ctx, test, err, "evaluate_results", &cleanupNeeded)
	}

	// Phase 6: persistence.
	o.state.SaveBestEffort(ctx, test)

	result := o.buildResult(test, passed, measurements)
	result.Defects = defects
	o.logger.Info("test execution finished", "test_id", test.TestID(),
		"profile", o.loader.ActiveProfile(), "status", test.Status(), "passed", passed)
	return result, nil
}

// runCycles executes the force sweep RepeatCount times. Later cycles replace
// earlier readings at the same point; measurement identifiers carry a cycle
// suffix when more than one cycle runs.
func (o *Orchestrator) runCycles(ctx context.Context, test *domain.EOLTest,
	cfg *domain.TestConfiguration, hw *domain.HardwareConfig) (*domain.TestMeasurements, error) {

	repeat := cfg.RepeatCount
	if repeat < 1 {
		repeat = 1
	}

	merged := domain.NewTestMeasurements()
	for cycle := 1; cycle <= repeat; cycle++ {
		if cycle > 1 && cfg.CycleStabilization > 0 {
			if err := o.sleep(ctx, cfg.CycleStabilization); err != nil {
				return nil, err
			}
		}

		measurements, err := o.executor.RunForceSequence(ctx, cfg, hw)
		if err != nil {
			return nil, err
		}

		points := measurements.Points()
		for i, p := range points {
			merged.Record(p.Temperature, p.Position, p.Force)
			if repeat > 1 {
				test.AddMeasurementID(domain.MeasurementID(
					fmt.Sprintf("%s_cycle_%03d_M%03d", test.TestID(), cycle, i+1)))
			}
		}
		if repeat > 1 {
			o.logger.Info("cycle complete", "test_id", test.TestID(), "cycle", cycle, "of", repeat)
		}
	}
	if repeat == 1 {
		o.state.AttachMeasurements(test, merged)
	}
	return merged, nil
}

// withRetry runs a hardware operation under the classification engine's retry
// policy: bounded attempts with exponential backoff, cleared on success.
func (o *Orchestrator) withRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			o.handler.ClearRetryContext(operation)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !o.handler.ShouldRetry(err, operation, attempt) {
			return err
		}
		delay := o.handler.RetryDelay(err, attempt)
		o.logger.Warn("retrying operation", "operation", operation,
			"attempt", attempt+1, "delay", delay, "error", err)
		if serr := o.sleep(ctx, delay); serr != nil {
			return serr
		}
		attempt++
	}
}

// finishAfterFault routes a phase failure to either the cancellation branch
// or the fault branch.
func (o *Orchestrator) finishAfterFault(ctx context.Context, test *domain.EOLTest,
	err error, operation string, cleanupNeeded *bool) (*domain.TestExecutionResult, error) {

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		*cleanupNeeded = false
		return o.cancelTest(ctx, test), ctx.Err()
	}
	return o.failTest(ctx, test, err, operation), nil
}

// failTest runs the classification engine, moves the test to its terminal
// failure state and builds the error result. FailTest applies when the test
// is still active; otherwise the aggregate is marked ERROR. The caller always
// sees an ERROR result: FAILED is reserved for a DUT that ran and measured
// out of spec.
func (o *Orchestrator) failTest(ctx context.Context, test *domain.EOLTest, err error, operation string) *domain.TestExecutionResult {
	outcome := o.handler.Handle(ctx, err, operation)

	message := outcome.UserMessage
	if test.Status().IsActive() {
		if ferr := test.FailTest(message, nil); ferr != nil {
			o.logger.Error("could not mark test failed", "test_id", test.TestID(), "error", ferr)
		}
	} else if !test.Status().IsTerminal() {
		if merr := test.MarkError(message); merr != nil {
			o.logger.Error("could not mark test errored", "test_id", test.TestID(), "error", merr)
		}
	}
	o.state.SaveBestEffort(context.WithoutCancel(ctx), test)

	result := o.buildResult(test, false, nil)
	result.TestStatus = domain.StatusError
	result.ErrorMessage = message
	return result
}

// cancelTest handles operator cancellation: the aggregate moves to CANCELLED,
// the robot homing state is reset so the next run re-homes, routine cleanup
// is skipped, and the emergency stop is triggered unless one is already
// active.
func (o *Orchestrator) cancelTest(ctx context.Context, test *domain.EOLTest) *domain.TestExecutionResult {
	o.logger.Warn("test execution cancelled", "test_id", test.TestID())

	if err := test.CancelTest("operator requested stop"); err != nil {
		o.logger.Error("could not mark test cancelled", "test_id", test.TestID(), "error", err)
	}

	o.facade.ResetRobotHomingState()

	bg := context.WithoutCancel(ctx)
	if o.estop != nil && !o.estop.IsEmergencyActive() {
		if err := o.estop.ExecuteEmergencyStop(bg); err != nil {
			o.logger.Error("emergency stop failed after cancellation", "test_id", test.TestID(), "error", err)
		}
	}
	o.state.SaveBestEffort(bg, test)

	result := o.buildResult(test, false, nil)
	if result.ErrorMessage == "" {
		result.ErrorMessage = test.ErrorMessage()
	}
	return result
}

// cleanupHardware tears the station down and disconnects. A teardown failure
// falls back to direct power off before disconnecting.
func (o *Orchestrator) cleanupHardware(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) {
	if err := o.executor.Teardown(ctx, cfg, hw); err != nil {
		o.logger.Error("teardown failed, forcing power off", "error", err)
		if perr := o.facade.PowerOff(ctx); perr != nil {
			o.logger.Error("emergency power off failed", "error", perr)
		}
	}
	if err := o.executor.Shutdown(ctx); err != nil {
		o.logger.Error("hardware shutdown failed", "error", err)
	}
}

func (o *Orchestrator) buildResult(test *domain.EOLTest, passed bool, measurements *domain.TestMeasurements) *domain.TestExecutionResult {
	result := &domain.TestExecutionResult{
		TestID:         test.TestID(),
		TestStatus:     test.Status(),
		Passed:         passed,
		MeasurementIDs: test.MeasurementIDs(),
		TestSummary:    measurements,
		ErrorMessage:   test.ErrorMessage(),
	}
	if d, ok := test.Duration(); ok {
		result.Duration = d
		result.DurationText = d.String()
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
