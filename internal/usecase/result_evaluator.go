package usecase

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eol-tester/internal/domain"
	"eol-tester/internal/evaluation"
	"eol-tester/internal/metrics"
)

// ResultEvaluator judges collected measurements and moves the aggregate to
// its terminal business state. An out-of-spec result is a FAILED test, not an
// error: only unexpected faults propagate.
type ResultEvaluator struct {
	evaluator *evaluation.Evaluator
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewResultEvaluator(evaluator *evaluation.Evaluator, logger *slog.Logger) *ResultEvaluator {
	return &ResultEvaluator{
		evaluator: evaluator,
		logger:    logger.With("component", "result-evaluator"),
		tracer:    otel.Tracer("eol-tester-usecase"),
	}
}

// EvaluateAndFinalize evaluates the force matrix against the configuration's
// pass criteria and completes or fails the test accordingly. The returned
// bool reports whether the test passed; on a failed evaluation the list of
// out-of-spec points comes back for the result and the MES report.
func (r *ResultEvaluator) EvaluateAndFinalize(ctx context.Context, test *domain.EOLTest,
	measurements *domain.TestMeasurements, cfg *domain.TestConfiguration) (bool, []domain.FailedPoint, error) {

	ctx, span := r.tracer.Start(ctx, "evaluator.EvaluateAndFinalize")
	defer span.End()
	span.SetAttributes(attribute.String("test.id", test.TestID().String()))

	flat := measurements.Flatten()
	summary := r.evaluator.Evaluate(ctx, flat, cfg)

	metrics.MeasurementsEvaluatedTotal.WithLabelValues("pass").Add(float64(summary.PassedPoints))
	metrics.MeasurementsEvaluatedTotal.WithLabelValues("fail").Add(float64(summary.FailedPoints))
	metrics.MeasurementsEvaluatedTotal.WithLabelValues("incomplete").Add(float64(summary.IncompletePoints))

	if summary.Passed() {
		result, err := domain.NewTestResult(domain.StatusCompleted, test.StartTime(), domain.TimestampNow(),
			test.MeasurementIDs(), &cfg.PassCriteria, flat, "")
		if err != nil {
			span.RecordError(err)
			return false, nil, err
		}
		if err := test.CompleteTest(result); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to complete test")
			return false, nil, err
		}
		r.logger.Info("test passed", "test_id", test.TestID(), "points", summary.TotalPoints)
		return true, nil, nil
	}

	evalErr := &domain.EvaluationError{FailedPoints: summary.Failures, TotalPoints: summary.TotalPoints}
	result, err := domain.NewTestResult(domain.StatusFailed, test.StartTime(), domain.TimestampNow(),
		test.MeasurementIDs(), &cfg.PassCriteria, flat, evalErr.Error())
	if err != nil {
		span.RecordError(err)
		return false, nil, err
	}
	if err := test.FailTest(evalErr.Error(), result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fail test")
		return false, nil, err
	}
	span.SetAttributes(
		attribute.Int("evaluation.failed_points", summary.FailedPoints),
		attribute.Int("evaluation.incomplete_points", summary.IncompletePoints),
	)
	r.logger.Warn("test failed evaluation", "test_id", test.TestID(),
		"failed", summary.FailedPoints, "incomplete", summary.IncompletePoints, "total", summary.TotalPoints)
	return false, summary.Failures, nil
}
