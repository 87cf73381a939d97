package domain

import (
	"fmt"
	"time"
)

const maxTestDuration = 24 * time.Hour

var (
	timestampMin = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	timestampMax = time.Date(2100, 12, 31, 23, 59, 59, 0, time.UTC)
)

// Timestamp is a wall-clock instant bounded to [1970, 2100].
type Timestamp struct {
	t time.Time
}

func NewTimestamp(t time.Time) (Timestamp, error) {
	if t.Before(timestampMin) || t.After(timestampMax) {
		return Timestamp{}, &Error{Kind: KindValidation, Op: "NewTimestamp",
			Message: fmt.Sprintf("timestamp %s outside supported range [1970, 2100]", t.Format(time.RFC3339))}
	}
	return Timestamp{t: t.UTC()}, nil
}

// TimestampNow returns the current instant. The current clock is always
// within bounds.
func TimestampNow() Timestamp {
	return Timestamp{t: time.Now().UTC()}
}

func (ts Timestamp) Time() time.Time  { return ts.t }
func (ts Timestamp) IsZero() bool     { return ts.t.IsZero() }
func (ts Timestamp) ISO() string      { return ts.t.Format(time.RFC3339) }
func (ts Timestamp) String() string   { return ts.ISO() }
func (ts Timestamp) Before(o Timestamp) bool { return ts.t.Before(o.t) }

// DurationUntil returns the non-negative duration from ts to end.
func (ts Timestamp) DurationUntil(end Timestamp) (TestDuration, error) {
	if end.t.Before(ts.t) {
		return TestDuration{}, &Error{Kind: KindValidation, Op: "DurationUntil",
			Message: "end timestamp precedes start timestamp"}
	}
	return NewTestDuration(end.t.Sub(ts.t))
}

// TestDuration is an elapsed-time value bounded to [0, 24h]. Arithmetic that
// would produce a negative duration fails.
type TestDuration struct {
	d time.Duration
}

func NewTestDuration(d time.Duration) (TestDuration, error) {
	if d < 0 {
		return TestDuration{}, &Error{Kind: KindValidation, Op: "NewTestDuration",
			Message: fmt.Sprintf("duration %s cannot be negative", d)}
	}
	if d > maxTestDuration {
		return TestDuration{}, &Error{Kind: KindValidation, Op: "NewTestDuration",
			Message: fmt.Sprintf("duration %s exceeds 24h maximum", d)}
	}
	return TestDuration{d: d}, nil
}

// DurationFromSeconds builds a TestDuration from a second count.
func DurationFromSeconds(seconds float64) (TestDuration, error) {
	return NewTestDuration(time.Duration(seconds * float64(time.Second)))
}

func (td TestDuration) Duration() time.Duration { return td.d }
func (td TestDuration) Seconds() float64        { return td.d.Seconds() }

// Add returns the sum, capped by the 24h bound.
func (td TestDuration) Add(other TestDuration) (TestDuration, error) {
	return NewTestDuration(td.d + other.d)
}

// Sub returns the difference; a negative result is an error.
func (td TestDuration) Sub(other TestDuration) (TestDuration, error) {
	return NewTestDuration(td.d - other.d)
}

// String renders a human-readable form such as "1m 23.4s".
func (td TestDuration) String() string {
	d := td.d
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm %.1fs",
			int(d.Hours()), int(d.Minutes())%60, d.Seconds()-float64(int(d.Minutes()))*60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm %.1fs", int(d.Minutes()), d.Seconds()-float64(int(d.Minutes()))*60)
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}
