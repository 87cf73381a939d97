package evaluation

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eol-tester/internal/domain"
)

func newEvaluator() *Evaluator {
	return NewEvaluator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func evalConfig() *domain.TestConfiguration {
	return &domain.TestConfiguration{
		TemperatureList: []float64{25, 85},
		StrokePositions: []float64{1000, 2000},
		PassCriteria: domain.PassCriteria{
			ForceLimitMin: 10,
			ForceLimitMax: 20,
		},
	}
}

func record(m map[string]domain.Measurement, temp, pos, force float64) {
	m[domain.PointKey(temp, pos)] = domain.Measurement{
		Temperature: temp, Position: pos, Force: domain.ForceValue(force),
	}
}

func fullMeasurements(force float64) map[string]domain.Measurement {
	m := make(map[string]domain.Measurement)
	for _, temp := range []float64{25, 85} {
		for _, pos := range []float64{1000, 2000} {
			record(m, temp, pos, force)
		}
	}
	return m
}

func TestEvaluateAllInSpec(t *testing.T) {
	e := newEvaluator()
	err := e.EvaluateMeasurements(context.Background(), fullMeasurements(15), evalConfig())
	assert.NoError(t, err)
}

func TestEvaluateBoundsAreInclusive(t *testing.T) {
	e := newEvaluator()
	assert.NoError(t, e.EvaluateMeasurements(context.Background(), fullMeasurements(10), evalConfig()))
	assert.NoError(t, e.EvaluateMeasurements(context.Background(), fullMeasurements(20), evalConfig()))
}

func TestEvaluateOutOfRangePoint(t *testing.T) {
	e := newEvaluator()
	m := fullMeasurements(15)
	record(m, 85, 2000, 25) // above the 20N upper limit

	err := e.EvaluateMeasurements(context.Background(), m, evalConfig())
	require.Error(t, err)
	ee, ok := domain.AsEvaluationError(err)
	require.True(t, ok)
	require.Len(t, ee.FailedPoints, 1)
	assert.Equal(t, 4, ee.TotalPoints)

	fp := ee.FailedPoints[0]
	assert.Equal(t, domain.FailureForceOutOfRange, fp.Reason)
	assert.Equal(t, domain.PointKey(85, 2000), fp.Key)
	assert.Equal(t, 25.0, fp.Force)
	require.NotNil(t, fp.Deviation)
	assert.InDelta(t, 15.0, fp.Deviation.FromLower, 1e-9)
	assert.InDelta(t, 5.0, fp.Deviation.FromUpper, 1e-9)
	assert.InDelta(t, 150.0, fp.Deviation.PercentLower, 1e-9)
	assert.InDelta(t, 25.0, fp.Deviation.PercentUpper, 1e-9)
}

func TestEvaluateDeviationInfiniteOnZeroLimit(t *testing.T) {
	e := newEvaluator()
	cfg := evalConfig()
	cfg.PassCriteria.ForceLimitMin = 0
	cfg.PassCriteria.ForceLimitMax = 5

	m := fullMeasurements(3)
	record(m, 25, 1000, 8)

	err := e.EvaluateMeasurements(context.Background(), m, cfg)
	require.Error(t, err)
	ee, _ := domain.AsEvaluationError(err)
	require.Len(t, ee.FailedPoints, 1)
	assert.True(t, math.IsInf(ee.FailedPoints[0].Deviation.PercentLower, 1))
}

func TestEvaluateIncompletePointExcludedFromDenominator(t *testing.T) {
	e := newEvaluator()
	m := fullMeasurements(15)
	delete(m, domain.PointKey(25, 2000))

	summary := e.Evaluate(context.Background(), m, evalConfig())
	assert.Equal(t, 3, summary.TotalPoints, "missing point does not count as evaluated")
	assert.Equal(t, 3, summary.PassedPoints)
	assert.Equal(t, 1, summary.IncompletePoints)
	assert.False(t, summary.Passed())

	err := e.EvaluateMeasurements(context.Background(), m, evalConfig())
	require.Error(t, err)
	ee, _ := domain.AsEvaluationError(err)
	assert.Equal(t, 3, ee.TotalPoints)
	require.Len(t, ee.FailedPoints, 1)
	assert.Equal(t, domain.FailureIncompleteData, ee.FailedPoints[0].Reason)
}

func TestEvaluatePerPointCriteriaError(t *testing.T) {
	e := newEvaluator()
	cfg := evalConfig()
	// A two-point grid whose hull excludes temperature 85.
	cfg.PassCriteria.SpecPoints = []domain.SpecPoint{
		{Temperature: 20, Position: 1000, LowerLimit: 10, UpperLimit: 20},
		{Temperature: 30, Position: 1000, LowerLimit: 10, UpperLimit: 20},
	}
	cfg.StrokePositions = []float64{1000}

	m := make(map[string]domain.Measurement)
	record(m, 25, 1000, 15)
	record(m, 85, 1000, 15)

	summary := e.Evaluate(context.Background(), m, cfg)
	assert.Equal(t, 2, summary.TotalPoints)
	assert.Equal(t, 1, summary.PassedPoints)
	require.Equal(t, 1, summary.FailedPoints)
	assert.Equal(t, domain.FailureCriteriaEvaluation, summary.Failures[0].Reason)
}

func TestEvaluateCollectsEveryFailure(t *testing.T) {
	e := newEvaluator()
	m := fullMeasurements(25) // every point out of range

	err := e.EvaluateMeasurements(context.Background(), m, evalConfig())
	require.Error(t, err)
	ee, _ := domain.AsEvaluationError(err)
	assert.Len(t, ee.FailedPoints, 4, "evaluation does not stop at the first failure")
}
