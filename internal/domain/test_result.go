package domain

// TestResult is the immutable outcome attached to a terminal test: what was
// measured, what the envelope was, and why the test ended the way it did.
type TestResult struct {
	Status         TestStatus             `json:"status"`
	StartTime      string                 `json:"start_time"`
	EndTime        string                 `json:"end_time"`
	MeasurementIDs []MeasurementID        `json:"measurement_ids"`
	PassCriteria   *PassCriteria          `json:"pass_criteria,omitempty"`
	ActualResults  map[string]Measurement `json:"actual_results,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
}

// NewTestResult validates the terminal-state invariants: a terminal status
// requires an end time, and the end time cannot precede the start time.
func NewTestResult(status TestStatus, start, end Timestamp, measurementIDs []MeasurementID,
	criteria *PassCriteria, actual map[string]Measurement, errorMessage string) (*TestResult, error) {

	if status.IsTerminal() && end.IsZero() {
		return nil, &Error{Kind: KindValidation, Op: "NewTestResult",
			Message: "terminal status requires an end time"}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, &Error{Kind: KindValidation, Op: "NewTestResult",
			Message: "end time precedes start time"}
	}
	r := &TestResult{
		Status:         status,
		MeasurementIDs: measurementIDs,
		PassCriteria:   criteria,
		ActualResults:  actual,
		ErrorMessage:   errorMessage,
	}
	if !start.IsZero() {
		r.StartTime = start.ISO()
	}
	if !end.IsZero() {
		r.EndTime = end.ISO()
	}
	return r, nil
}

// TestExecutionResult is what the orchestrator hands back to its caller: a
// non-throwing summary covering success, business failure and system error.
type TestExecutionResult struct {
	TestID         TestID            `json:"test_id"`
	TestStatus     TestStatus        `json:"test_status"`
	Duration       TestDuration      `json:"-"`
	DurationText   string            `json:"execution_duration"`
	Passed         bool              `json:"is_passed"`
	MeasurementIDs []MeasurementID   `json:"measurement_ids"`
	TestSummary    *TestMeasurements `json:"-"`
	Defects        []FailedPoint     `json:"defects,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
}
