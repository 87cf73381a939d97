package domain

import "fmt"

// TestStatus is the lifecycle state of an EOL test.
type TestStatus string

const (
	StatusNotStarted TestStatus = "not_started"
	StatusPreparing  TestStatus = "preparing"
	StatusRunning    TestStatus = "running"
	StatusCompleted  TestStatus = "completed"
	StatusFailed     TestStatus = "failed"
	StatusCancelled  TestStatus = "cancelled"
	StatusError      TestStatus = "error"
)

// IsActive reports whether the test is in a state that can still progress.
func (s TestStatus) IsActive() bool {
	return s == StatusPreparing || s == StatusRunning
}

// IsTerminal reports whether the test has reached a final state.
func (s TestStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusError:
		return true
	}
	return false
}

// EOLTest is the aggregate root for one End-of-Line test execution. Status
// only moves through the named transition methods; the transition graph is
// NOT_STARTED → PREPARING → RUNNING → {COMPLETED, FAILED, CANCELLED, ERROR}.
type EOLTest struct {
	testID        TestID
	dut           *DUT
	operatorID    OperatorID
	configuration *TestConfiguration
	createdAt     Timestamp

	status    TestStatus
	startTime Timestamp
	endTime   Timestamp

	measurementIDs []MeasurementID
	testResult     *TestResult
	errorMessage   string
}

// NewEOLTest builds a fresh test aggregate in NOT_STARTED.
func NewEOLTest(testID TestID, dut *DUT, operatorID OperatorID, configuration *TestConfiguration) (*EOLTest, error) {
	if testID == "" {
		return nil, &Error{Kind: KindValidation, Op: "NewEOLTest", Message: "test id is required"}
	}
	if dut == nil {
		return nil, &Error{Kind: KindValidation, Op: "NewEOLTest", Message: "dut is required"}
	}
	if operatorID == "" {
		return nil, &Error{Kind: KindValidation, Op: "NewEOLTest", Message: "operator id is required"}
	}
	return &EOLTest{
		testID:        testID,
		dut:           dut,
		operatorID:    operatorID,
		configuration: configuration,
		createdAt:     TimestampNow(),
		status:        StatusNotStarted,
	}, nil
}

func (t *EOLTest) TestID() TestID                    { return t.testID }
func (t *EOLTest) DUT() *DUT                         { return t.dut }
func (t *EOLTest) OperatorID() OperatorID            { return t.operatorID }
func (t *EOLTest) Configuration() *TestConfiguration { return t.configuration }
func (t *EOLTest) Status() TestStatus                { return t.status }
func (t *EOLTest) StartTime() Timestamp              { return t.startTime }
func (t *EOLTest) EndTime() Timestamp                { return t.endTime }
func (t *EOLTest) Result() *TestResult               { return t.testResult }
func (t *EOLTest) ErrorMessage() string              { return t.errorMessage }

func (t *EOLTest) MeasurementIDs() []MeasurementID {
	out := make([]MeasurementID, len(t.measurementIDs))
	copy(out, t.measurementIDs)
	return out
}

// Duration returns elapsed time since the test started, using the end time
// once the test is terminal.
func (t *EOLTest) Duration() (TestDuration, bool) {
	if t.startTime.IsZero() {
		return TestDuration{}, false
	}
	end := t.endTime
	if end.IsZero() {
		end = TimestampNow()
	}
	d, err := t.startTime.DurationUntil(end)
	if err != nil {
		return TestDuration{}, false
	}
	return d, true
}

// PrepareTest transitions NOT_STARTED → PREPARING and records the start time.
func (t *EOLTest) PrepareTest() error {
	if t.status != StatusNotStarted {
		return &InvalidStateError{Current: t.status, Required: string(StatusNotStarted), Operation: "PrepareTest", TestID: t.testID}
	}
	t.status = StatusPreparing
	t.startTime = TimestampNow()
	t.errorMessage = ""
	return nil
}

// StartExecution transitions PREPARING → RUNNING.
func (t *EOLTest) StartExecution() error {
	if t.status != StatusPreparing {
		return &InvalidStateError{Current: t.status, Required: string(StatusPreparing), Operation: "StartExecution", TestID: t.testID}
	}
	t.status = StatusRunning
	return nil
}

// AddMeasurementID attaches a persisted measurement record to the test.
func (t *EOLTest) AddMeasurementID(id MeasurementID) {
	for _, existing := range t.measurementIDs {
		if existing == id {
			return
		}
	}
	t.measurementIDs = append(t.measurementIDs, id)
}

// CompleteTest transitions RUNNING → COMPLETED with the final result.
func (t *EOLTest) CompleteTest(result *TestResult) error {
	if t.status != StatusRunning {
		return &InvalidStateError{Current: t.status, Required: string(StatusRunning), Operation: "CompleteTest", TestID: t.testID}
	}
	t.status = StatusCompleted
	t.endTime = TimestampNow()
	t.testResult = result
	t.errorMessage = ""
	return nil
}

// FailTest transitions an active test to FAILED with the failure reason.
func (t *EOLTest) FailTest(errorMessage string, result *TestResult) error {
	if !t.status.IsActive() {
		return &InvalidStateError{Current: t.status, Required: "PREPARING or RUNNING", Operation: "FailTest", TestID: t.testID}
	}
	if errorMessage == "" {
		return &Error{Kind: KindValidation, Op: "FailTest", Message: "error message is required"}
	}
	t.status = StatusFailed
	t.endTime = TimestampNow()
	t.errorMessage = errorMessage
	t.testResult = result
	return nil
}

// CancelTest transitions an active test to CANCELLED.
func (t *EOLTest) CancelTest(reason string) error {
	if !t.status.IsActive() {
		return &InvalidStateError{Current: t.status, Required: "PREPARING or RUNNING", Operation: "CancelTest", TestID: t.testID}
	}
	t.status = StatusCancelled
	t.endTime = TimestampNow()
	if reason != "" {
		t.errorMessage = fmt.Sprintf("cancelled: %s", reason)
	}
	return nil
}

// MarkError transitions an active test to ERROR. Used by the orchestrator's
// best-effort failure save when FailTest itself is not applicable.
func (t *EOLTest) MarkError(errorMessage string) error {
	if t.status.IsTerminal() {
		return &InvalidStateError{Current: t.status, Required: "non-terminal", Operation: "MarkError", TestID: t.testID}
	}
	t.status = StatusError
	t.endTime = TimestampNow()
	t.errorMessage = errorMessage
	return nil
}

// Snapshot is the persisted form of an EOLTest.
type Snapshot struct {
	TestID         TestID          `json:"test_id"`
	DUT            *DUT            `json:"dut"`
	OperatorID     OperatorID      `json:"operator_id"`
	Status         TestStatus      `json:"status"`
	CreatedAt      string          `json:"created_at"`
	StartTime      string          `json:"start_time,omitempty"`
	EndTime        string          `json:"end_time,omitempty"`
	MeasurementIDs []MeasurementID `json:"measurement_ids"`
	TestResult     *TestResult     `json:"test_result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// Snapshot captures the aggregate's persistable state.
func (t *EOLTest) Snapshot() *Snapshot {
	s := &Snapshot{
		TestID:         t.testID,
		DUT:            t.dut,
		OperatorID:     t.operatorID,
		Status:         t.status,
		CreatedAt:      t.createdAt.ISO(),
		MeasurementIDs: t.MeasurementIDs(),
		TestResult:     t.testResult,
		ErrorMessage:   t.errorMessage,
	}
	if !t.startTime.IsZero() {
		s.StartTime = t.startTime.ISO()
	}
	if !t.endTime.IsZero() {
		s.EndTime = t.endTime.ISO()
	}
	return s
}

func (t *EOLTest) String() string {
	return fmt.Sprintf("EOLTest %s for %s (%s)", t.testID, t.dut, t.status)
}
