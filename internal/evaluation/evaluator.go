// Package evaluation judges a collected force matrix against pass criteria.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eol-tester/internal/domain"
)

// Summary aggregates an evaluation pass.
type Summary struct {
	TotalPoints      int                  `json:"total_points"`
	PassedPoints     int                  `json:"passed_points"`
	FailedPoints     int                  `json:"failed_points"`
	IncompletePoints int                  `json:"incomplete_points"`
	Failures         []domain.FailedPoint `json:"failures,omitempty"`
}

func (s Summary) Passed() bool { return s.FailedPoints == 0 && s.IncompletePoints == 0 }

// Evaluator applies pass criteria to collected measurements.
type Evaluator struct {
	logger *slog.Logger
	tracer trace.Tracer
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With("component", "result-evaluator"),
		tracer: otel.Tracer("evaluation"),
	}
}

// EvaluateMeasurements checks every expected (temperature, position) point of
// the configuration against the criteria. It returns nil when every point
// passes, or a *domain.EvaluationError carrying each failed point. Points with
// no reading are reported as incomplete but excluded from the evaluated-point
// denominator. A per-point limit lookup failure fails that point only, it does
// not abort the evaluation.
func (e *Evaluator) EvaluateMeasurements(ctx context.Context, measurements map[string]domain.Measurement, cfg *domain.TestConfiguration) error {
	summary := e.Evaluate(ctx, measurements, cfg)
	if summary.Passed() {
		return nil
	}
	return &domain.EvaluationError{
		FailedPoints: summary.Failures,
		TotalPoints:  summary.TotalPoints,
	}
}

// Evaluate runs the point-by-point check and returns the full summary.
func (e *Evaluator) Evaluate(ctx context.Context, measurements map[string]domain.Measurement, cfg *domain.TestConfiguration) Summary {
	_, span := e.tracer.Start(ctx, "Evaluator.Evaluate")
	defer span.End()

	criteria := &cfg.PassCriteria
	var summary Summary

	for _, temp := range cfg.TemperatureList {
		for _, pos := range cfg.StrokePositions {
			key := domain.PointKey(temp, pos)

			m, ok := measurements[key]
			if !ok {
				summary.IncompletePoints++
				summary.Failures = append(summary.Failures, domain.FailedPoint{
					Key:         key,
					Reason:      domain.FailureIncompleteData,
					Message:     fmt.Sprintf("no measurement recorded at temp=%.1f pos=%.1f", temp, pos),
					Temperature: temp,
					Position:    pos,
				})
				continue
			}
			summary.TotalPoints++

			lower, upper, err := criteria.ForceLimitsAt(temp, pos)
			if err != nil {
				summary.FailedPoints++
				summary.Failures = append(summary.Failures, domain.FailedPoint{
					Key:         key,
					Reason:      domain.FailureCriteriaEvaluation,
					Message:     err.Error(),
					Temperature: temp,
					Position:    pos,
					Force:       m.Force.Newtons(),
				})
				continue
			}

			force := m.Force.Newtons()
			if force < lower || force > upper {
				summary.FailedPoints++
				summary.Failures = append(summary.Failures, domain.FailedPoint{
					Key:         key,
					Reason:      domain.FailureForceOutOfRange,
					Message:     fmt.Sprintf("force %.2fN outside [%.2f, %.2f]", force, lower, upper),
					Temperature: temp,
					Position:    pos,
					Force:       force,
					LowerLimit:  lower,
					UpperLimit:  upper,
					Deviation:   deviation(force, lower, upper),
				})
				continue
			}
			summary.PassedPoints++
		}
	}

	span.SetAttributes(
		attribute.Int("evaluation.total_points", summary.TotalPoints),
		attribute.Int("evaluation.failed_points", summary.FailedPoints),
		attribute.Int("evaluation.incomplete_points", summary.IncompletePoints),
	)
	if !summary.Passed() {
		span.SetStatus(codes.Error, "measurements outside specification")
		e.logger.Warn("evaluation failed",
			"total", summary.TotalPoints,
			"failed", summary.FailedPoints,
			"incomplete", summary.IncompletePoints)
	} else {
		e.logger.Info("evaluation passed", "total", summary.TotalPoints)
	}
	return summary
}

// deviation reports the reading's distance from each limit. Percentages
// against a zero limit are +Inf.
func deviation(force, lower, upper float64) *domain.Deviation {
	d := &domain.Deviation{
		FromLower: force - lower,
		FromUpper: force - upper,
	}
	if lower == 0 {
		d.PercentLower = math.Inf(1)
	} else {
		d.PercentLower = d.FromLower / lower * 100
	}
	if upper == 0 {
		d.PercentUpper = math.Inf(1)
	} else {
		d.PercentUpper = d.FromUpper / upper * 100
	}
	return d
}
