package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eol-tester/internal/configsvc"
	"eol-tester/internal/domain"
	"eol-tester/internal/evaluation"
	"eol-tester/internal/infra/memory"
	"eol-tester/internal/infra/simulated"
	"eol-tester/internal/recovery"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConfigService serves a fixed in-memory profile.
type fakeConfigService struct {
	cfg     *domain.TestConfiguration
	hw      *domain.HardwareConfig
	loadErr error
}

func (f *fakeConfigService) ActiveProfileName(ctx context.Context) (string, error) {
	return "default", nil
}

func (f *fakeConfigService) LoadTestConfiguration(ctx context.Context, profile string) (*domain.TestConfiguration, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.cfg, nil
}

func (f *fakeConfigService) LoadHardwareConfiguration(ctx context.Context) (*domain.HardwareConfig, error) {
	return f.hw, nil
}

func (f *fakeConfigService) ListAvailableProfiles(ctx context.Context) ([]string, error) {
	return []string{"default"}, nil
}

// recordingFacade wraps the simulated facade and counts calls, with an
// optional hook run inside the force sequence.
type recordingFacade struct {
	*simulated.Facade
	mu             sync.Mutex
	teardownCalls  int
	shutdownCalls  int
	homingResets   int
	onForceSeq     func(ctx context.Context)
}

func (r *recordingFacade) PerformForceTestSequence(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) (*domain.TestMeasurements, error) {
	if r.onForceSeq != nil {
		r.onForceSeq(ctx)
	}
	return r.Facade.PerformForceTestSequence(ctx, cfg, hw)
}

func (r *recordingFacade) TeardownTest(ctx context.Context, cfg *domain.TestConfiguration, hw *domain.HardwareConfig) error {
	r.mu.Lock()
	r.teardownCalls++
	r.mu.Unlock()
	return r.Facade.TeardownTest(ctx, cfg, hw)
}

func (r *recordingFacade) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.shutdownCalls++
	r.mu.Unlock()
	return r.Facade.Shutdown(ctx)
}

func (r *recordingFacade) ResetRobotHomingState() {
	r.mu.Lock()
	r.homingResets++
	r.mu.Unlock()
	r.Facade.ResetRobotHomingState()
}

// recordingNotifier captures MES calls.
type recordingNotifier struct {
	mu           sync.Mutex
	starts       []string
	completes    []*domain.TestExecutionResult
	measurements []map[string]domain.Measurement
	defects      [][]domain.FailedPoint
}

func (n *recordingNotifier) SendStart(ctx context.Context, serialNumber string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.starts = append(n.starts, serialNumber)
	return true
}

func (n *recordingNotifier) SendComplete(ctx context.Context, serialNumber string, result *domain.TestExecutionResult,
	measurements map[string]domain.Measurement, defects []domain.FailedPoint) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completes = append(n.completes, result)
	n.measurements = append(n.measurements, measurements)
	n.defects = append(n.defects, defects)
	return true
}

func validTestConfig() *domain.TestConfiguration {
	return &domain.TestConfiguration{
		Voltage:         18,
		Current:         20,
		TemperatureList: []float64{25, 85},
		StrokePositions: []float64{1000, 2000},
		FanSpeed:        5,
		Velocity:        100,
		Acceleration:    100,
		Deceleration:    100,
		Timeout:         10 * time.Second,
		RepeatCount:     1,
		PassCriteria: domain.PassCriteria{
			ForceLimitMin:       0.1,
			ForceLimitMax:       2000,
			TemperatureLimitMin: -40,
			TemperatureLimitMax: 150,
		},
	}
}

type fixture struct {
	orchestrator *Orchestrator
	facade       *recordingFacade
	estop        *simulated.EmergencyStop
	repo         domain.TestRepository
	notifier     *recordingNotifier
	handler      *recovery.Handler
}

func newFixture(t *testing.T, cfg *domain.TestConfiguration) *fixture {
	t.Helper()
	logger := discardLogger()

	inner := simulated.NewFacade(logger)
	facade := &recordingFacade{Facade: inner}
	estop := simulated.NewEmergencyStop(inner, logger)
	repo := memory.NewTestRepository()
	notifier := &recordingNotifier{}
	handler := recovery.NewHandler(logger)

	svc := &fakeConfigService{cfg: cfg, hw: &domain.HardwareConfig{}}
	loader := NewConfigLoader(svc, configsvc.NewValidator(), logger)
	factory := NewEntityFactory(repo, logger)
	executor := NewHardwareExecutor(facade, logger)
	stateMgr := NewStateManager(repo, logger)
	resultEval := NewResultEvaluator(evaluation.NewEvaluator(logger), logger)

	orch := NewOrchestrator(loader, factory, executor, stateMgr, resultEval,
		handler, facade, estop, notifier, logger)
	// No real sleeping in tests.
	orch.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	return &fixture{
		orchestrator: orch,
		facade:       facade,
		estop:        estop,
		repo:         repo,
		notifier:     notifier,
		handler:      handler,
	}
}

func testCommand() Command {
	return Command{
		DUTInfo: DUTInfo{
			DUTID:        "DUT-001",
			ModelNumber:  "WF-2026",
			SerialNumber: "SN12345",
			Manufacturer: "ACME",
		},
		OperatorID: "j.doe",
	}
}

func TestExecuteHappyPath(t *testing.T) {
	f := newFixture(t, validTestConfig())

	result, err := f.orchestrator.Execute(context.Background(), testCommand())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.StatusCompleted, result.TestStatus)
	assert.True(t, result.Passed)
	assert.Empty(t, result.ErrorMessage)
	assert.Len(t, result.MeasurementIDs, 4, "one id per matrix point")
	assert.NotEmpty(t, result.DurationText)

	// Final state is persisted.
	snapshot, err := f.repo.FindByID(context.Background(), result.TestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, snapshot.Status)
	require.NotNil(t, snapshot.TestResult)
	assert.Len(t, snapshot.TestResult.ActualResults, 4)

	// Cleanup ran.
	assert.Equal(t, 1, f.facade.teardownCalls)
	assert.Equal(t, 1, f.facade.shutdownCalls)

	// MES saw both notifications, complete carrying the full matrix.
	assert.Equal(t, []string{"SN12345"}, f.notifier.starts)
	require.Len(t, f.notifier.completes, 1)
	require.Len(t, f.notifier.measurements, 1)
	assert.Len(t, f.notifier.measurements[0], 4)
	assert.Empty(t, f.notifier.defects[0])

	assert.False(t, f.orchestrator.IsRunning())
}

func TestExecuteHardwareFaultProducesErrorResult(t *testing.T) {
	f := newFixture(t, validTestConfig())
	f.facade.InjectFault("PerformForceTestSequence",
		&domain.Error{Kind: domain.KindUnsafeOperation, Op: "force", Message: "limit switch tripped"})

	result, err := f.orchestrator.Execute(context.Background(), testCommand())
	require.NoError(t, err, "hardware faults never surface as errors")
	require.NotNil(t, result)

	// The caller sees ERROR: the sequence could not run. FAILED is reserved
	// for a DUT that measured out of spec.
	assert.Equal(t, domain.StatusError, result.TestStatus)
	assert.False(t, result.Passed)
	assert.NotEmpty(t, result.ErrorMessage)

	// Cleanup still ran on the fault path.
	assert.Equal(t, 1, f.facade.teardownCalls)
	assert.Equal(t, 1, f.facade.shutdownCalls)

	// The aggregate records the failure on the active test.
	snapshot, err := f.repo.FindByID(context.Background(), result.TestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, snapshot.Status)
}

func TestExecuteConnectFaultRetriesThenErrors(t *testing.T) {
	f := newFixture(t, validTestConfig())
	f.facade.InjectFault("ConnectAll",
		&domain.Error{Kind: domain.KindHardwareConnection, Op: "connect", Message: "port closed"})

	result, err := f.orchestrator.Execute(context.Background(), testCommand())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, result.TestStatus)
	assert.False(t, result.Passed)

	// Teardown and shutdown run even when the station never connected.
	assert.Equal(t, 1, f.facade.teardownCalls)
	assert.Equal(t, 1, f.facade.shutdownCalls)
}

func TestExecuteOutOfSpecIsBusinessFailure(t *testing.T) {
	cfg := validTestConfig()
	cfg.PassCriteria.ForceLimitMin = 5000
	cfg.PassCriteria.ForceLimitMax = 6000
	f := newFixture(t, cfg)

	result, err := f.orchestrator.Execute(context.Background(), testCommand())
	require.NoError(t, err, "an out-of-spec result is an outcome, not an error")

	assert.Equal(t, domain.StatusFailed, result.TestStatus)
	assert.False(t, result.Passed)
	assert.Contains(t, result.ErrorMessage, "outside specification")
	assert.Len(t, result.MeasurementIDs, 4)

	// Every out-of-spec point is reported, and the MES completion carries
	// the readings and the defect list.
	require.Len(t, result.Defects, 4)
	assert.Equal(t, domain.FailureForceOutOfRange, result.Defects[0].Reason)
	require.Len(t, f.notifier.defects, 1)
	assert.Len(t, f.notifier.defects[0], 4)
	assert.Len(t, f.notifier.measurements[0], 4)

	// Cleanup runs on the business-failure path too.
	assert.Equal(t, 1, f.facade.teardownCalls)
	assert.Equal(t, 1, f.facade.shutdownCalls)
}

func TestExecuteCancellation(t *testing.T) {
	f := newFixture(t, validTestConfig())
	ctx, cancel := context.WithCancel(context.Background())
	f.facade.onForceSeq = func(context.Context) { cancel() }

	result, err := f.orchestrator.Execute(ctx, testCommand())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	assert.Equal(t, domain.StatusCancelled, result.TestStatus)
	assert.False(t, result.Passed)

	// The cancellation branch resets homing and hands safety to the
	// emergency stop instead of running routine teardown.
	assert.Equal(t, 1, f.facade.homingResets)
	assert.Equal(t, 0, f.facade.teardownCalls)
	assert.True(t, f.estop.IsEmergencyActive())

	snapshot, ferr := f.repo.FindByID(context.Background(), result.TestID)
	require.NoError(t, ferr)
	assert.Equal(t, domain.StatusCancelled, snapshot.Status)

	assert.False(t, f.orchestrator.IsRunning())
}

func TestExecuteRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, validTestConfig())

	started := make(chan struct{})
	release := make(chan struct{})
	f.facade.onForceSeq = func(context.Context) {
		close(started)
		<-release
	}

	var firstResult *domain.TestExecutionResult
	done := make(chan struct{})
	go func() {
		defer close(done)
		firstResult, _ = f.orchestrator.Execute(context.Background(), testCommand())
	}()

	<-started
	assert.True(t, f.orchestrator.IsRunning())

	second, err := f.orchestrator.Execute(context.Background(), testCommand())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, second.TestStatus)
	assert.Contains(t, second.ErrorMessage, "already running")

	close(release)
	<-done
	require.NotNil(t, firstResult)
	assert.Equal(t, domain.StatusCompleted, firstResult.TestStatus)
	assert.False(t, f.orchestrator.IsRunning())
}

func TestExecuteConfigurationErrorResult(t *testing.T) {
	f := newFixture(t, validTestConfig())
	svc := &fakeConfigService{
		cfg:     validTestConfig(),
		hw:      &domain.HardwareConfig{},
		loadErr: &domain.ConfigurationNotFoundError{Profile: "missing", Available: []string{"default"}},
	}
	f.orchestrator.loader = NewConfigLoader(svc, configsvc.NewValidator(), discardLogger())

	result, err := f.orchestrator.Execute(context.Background(), testCommand())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, result.TestStatus)
	assert.NotEmpty(t, result.ErrorMessage)
	assert.Empty(t, result.TestID, "no entity was created")
}

func TestExecuteInvalidDUTInfo(t *testing.T) {
	f := newFixture(t, validTestConfig())
	cmd := testCommand()
	cmd.DUTInfo.DUTID = "x"

	result, err := f.orchestrator.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, result.TestStatus)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestExecuteRepeatCountAddsCycleMeasurements(t *testing.T) {
	cfg := validTestConfig()
	cfg.RepeatCount = 3
	f := newFixture(t, cfg)

	result, err := f.orchestrator.Execute(context.Background(), testCommand())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, result.TestStatus)
	// 2 temperatures x 2 positions x 3 cycles.
	assert.Len(t, result.MeasurementIDs, 12)
}

func TestEntityFactoryResolvesIDCollisions(t *testing.T) {
	logger := discardLogger()
	repo := memory.NewTestRepository()
	factory := NewEntityFactory(repo, logger)
	fixed := time.Date(2026, 8, 24, 10, 15, 30, 0, time.UTC)
	factory.now = func() time.Time { return fixed }

	cfg := validTestConfig()
	first, err := factory.CreateTest(context.Background(), testCommand().DUTInfo, "j.doe", cfg)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), first.Snapshot()))

	second, err := factory.CreateTest(context.Background(), testCommand().DUTInfo, "j.doe", cfg)
	require.NoError(t, err)

	assert.Equal(t, domain.TestID("SN12345_20260824_101530_001"), first.TestID())
	assert.Equal(t, domain.TestID("SN12345_20260824_101530_002"), second.TestID())
}
