package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// Test ID format: Serial_YYYYMMDD_HHMMSS_NNN, TEST_YYYYMMDD_HHMMSS_NNN, or UUID.
	testIDPattern = regexp.MustCompile(
		`^([A-Za-z0-9]+_\d{8}_\d{6}_\d{3}|TEST_\d{8}_\d{6}_\d{3}|[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`)

	dutIDPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	operatorIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

	// Measurement ID format: UUID or a test ID with a _Mnnn suffix.
	measurementIDPattern = regexp.MustCompile(
		`^([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}|[A-Za-z0-9_-]+_M\d{3})$`)

	serialCleaner = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// TestID uniquely identifies one EOL test execution.
type TestID string

// NewTestID validates and returns a test identifier.
func NewTestID(value string) (TestID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &Error{Kind: KindValidation, Op: "NewTestID", Message: "test id cannot be empty"}
	}
	if !testIDPattern.MatchString(value) {
		return "", &Error{
			Kind:    KindValidation,
			Op:      "NewTestID",
			Message: fmt.Sprintf("invalid test id %q: expected Serial_YYYYMMDD_HHMMSS_NNN, TEST_YYYYMMDD_HHMMSS_NNN, or UUID", value),
		}
	}
	return TestID(value), nil
}

// GenerateTestID returns a new random UUID-format test identifier.
func GenerateTestID() TestID {
	return TestID(uuid.NewString())
}

// TestIDFromSerial builds a deterministic test identifier from the DUT serial
// number, a timestamp, and a duplicate-resolution sequence number (1..999).
// Non-alphanumeric characters are stripped from the serial; an empty result
// falls back to "UNKNOWN".
func TestIDFromSerial(serialNumber string, ts time.Time, sequence int) TestID {
	serial := serialCleaner.ReplaceAllString(serialNumber, "")
	if serial == "" {
		serial = "UNKNOWN"
	}
	if sequence < 1 {
		sequence = 1
	}
	return TestID(fmt.Sprintf("%s_%s_%03d", serial, ts.Format("20060102_150405"), sequence))
}

func (id TestID) String() string { return string(id) }

// DUTID identifies a Device Under Test. 3-50 characters, alphanumeric with
// hyphens and underscores.
type DUTID string

func NewDUTID(value string) (DUTID, error) {
	value = strings.TrimSpace(value)
	if len(value) < 3 || len(value) > 50 {
		return "", &Error{Kind: KindValidation, Op: "NewDUTID",
			Message: fmt.Sprintf("dut id %q must be between 3 and 50 characters", value)}
	}
	if !dutIDPattern.MatchString(value) {
		return "", &Error{Kind: KindValidation, Op: "NewDUTID",
			Message: fmt.Sprintf("dut id %q may contain only alphanumerics, hyphens and underscores", value)}
	}
	return DUTID(value), nil
}

func (id DUTID) String() string { return string(id) }

// OperatorID identifies the operator running a test. 2-30 characters,
// alphanumeric with dots, hyphens and underscores.
type OperatorID string

func NewOperatorID(value string) (OperatorID, error) {
	value = strings.TrimSpace(value)
	if len(value) < 2 || len(value) > 30 {
		return "", &Error{Kind: KindValidation, Op: "NewOperatorID",
			Message: fmt.Sprintf("operator id %q must be between 2 and 30 characters", value)}
	}
	if !operatorIDPattern.MatchString(value) {
		return "", &Error{Kind: KindValidation, Op: "NewOperatorID",
			Message: fmt.Sprintf("operator id %q may contain only alphanumerics, dots, hyphens and underscores", value)}
	}
	return OperatorID(value), nil
}

func (id OperatorID) String() string { return string(id) }

// MeasurementID identifies a single persisted measurement record.
type MeasurementID string

func NewMeasurementID(value string) (MeasurementID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &Error{Kind: KindValidation, Op: "NewMeasurementID", Message: "measurement id cannot be empty"}
	}
	if !measurementIDPattern.MatchString(value) {
		return "", &Error{Kind: KindValidation, Op: "NewMeasurementID",
			Message: fmt.Sprintf("invalid measurement id %q: expected UUID or <test_id>_Mnnn", value)}
	}
	return MeasurementID(value), nil
}

// MeasurementIDFor derives the measurement identifier for the n-th point
// (1-based) of a test.
func MeasurementIDFor(testID TestID, n int) MeasurementID {
	return MeasurementID(fmt.Sprintf("%s_M%03d", testID, n))
}

func (id MeasurementID) String() string { return string(id) }
