package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTestNotFound is a sentinel error returned when a test record is not found.
var ErrTestNotFound = errors.New("test not found")

// ErrorKind tags a failure with the category it was produced under. Kinds are
// assigned at the failure site by each collaborator and dispatched through an
// explicit classification table, never by type-hierarchy matching.
type ErrorKind string

const (
	KindUnknown               ErrorKind = "unknown"
	KindValidation            ErrorKind = "validation"
	KindHardwareConnection    ErrorKind = "hardware_connection"
	KindHardwareTimeout       ErrorKind = "hardware_timeout"
	KindUnsafeOperation       ErrorKind = "unsafe_operation"
	KindLimitExceeded         ErrorKind = "limit_exceeded"
	KindInvalidState          ErrorKind = "invalid_state"
	KindMeasurementValidation ErrorKind = "measurement_validation"
	KindConfigurationInvalid  ErrorKind = "configuration_invalid"
	KindConfigurationMissing  ErrorKind = "configuration_missing"
	KindRepository            ErrorKind = "repository"
)

// Error is the kinded domain error.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// WrapError attaches a kind and operation to an underlying error.
func WrapError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from an error chain. Errors that carry no kind
// report KindUnknown.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var ise *InvalidStateError
	if errors.As(err, &ise) {
		return KindInvalidState
	}
	var cnf *ConfigurationNotFoundError
	if errors.As(err, &cnf) {
		return KindConfigurationMissing
	}
	return KindUnknown
}

// InvalidStateError reports a state-machine transition attempted from the
// wrong state. It indicates orchestrator misuse, never an expected runtime
// condition.
type InvalidStateError struct {
	Current   TestStatus
	Required  string
	Operation string
	TestID    TestID
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: test %s is %s, requires %s", e.Operation, e.TestID, e.Current, e.Required)
}

// ConfigurationNotFoundError reports a missing test profile, listing the
// profiles that are available.
type ConfigurationNotFoundError struct {
	Profile   string
	Available []string
}

func (e *ConfigurationNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("test profile %q not found (no profiles available)", e.Profile)
	}
	return fmt.Sprintf("test profile %q not found, available: %s", e.Profile, strings.Join(e.Available, ", "))
}

// FailureReason labels why a single measurement point failed evaluation.
type FailureReason string

const (
	FailureIncompleteData     FailureReason = "incomplete_data"
	FailureForceOutOfRange    FailureReason = "force_out_of_range"
	FailureCriteriaEvaluation FailureReason = "criteria_evaluation_error"
)

// Deviation reports how far an out-of-range force reading sits from each
// interpolated limit. Percentages are +Inf when the limit is zero.
type Deviation struct {
	FromLower    float64 `json:"from_lower"`
	FromUpper    float64 `json:"from_upper"`
	PercentLower float64 `json:"percent_lower"`
	PercentUpper float64 `json:"percent_upper"`
}

// FailedPoint describes one measurement point that failed evaluation.
type FailedPoint struct {
	Key         string        `json:"key"`
	Reason      FailureReason `json:"reason"`
	Message     string        `json:"message"`
	Temperature float64       `json:"temperature"`
	Position    float64       `json:"position"`
	Force       float64       `json:"force"`
	LowerLimit  float64       `json:"lower_limit,omitempty"`
	UpperLimit  float64       `json:"upper_limit,omitempty"`
	Deviation   *Deviation    `json:"deviation,omitempty"`
}

// EvaluationError carries the full list of failed points from a measurement
// evaluation. It is the marker the orchestrator uses to distinguish "ran but
// out of spec" (a business outcome) from "could not run" (a system error).
type EvaluationError struct {
	FailedPoints []FailedPoint
	TotalPoints  int
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed: %d/%d measurements outside specification",
		len(e.FailedPoints), e.TotalPoints)
}

// AsEvaluationError unwraps an EvaluationError from an error chain.
func AsEvaluationError(err error) (*EvaluationError, bool) {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
