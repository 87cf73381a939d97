package usecase

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eol-tester/internal/domain"
)

// StateManager persists aggregate snapshots and derives measurement record
// identifiers. Saves during cleanup are best effort: persistence failures are
// logged, never raised into the orchestration flow.
type StateManager struct {
	repo   domain.TestRepository
	logger *slog.Logger
	tracer trace.Tracer
}

func NewStateManager(repo domain.TestRepository, logger *slog.Logger) *StateManager {
	return &StateManager{
		repo:   repo,
		logger: logger.With("component", "state-manager"),
		tracer: otel.Tracer("eol-tester-usecase"),
	}
}

// Save persists the current aggregate state.
func (m *StateManager) Save(ctx context.Context, test *domain.EOLTest) error {
	ctx, span := m.tracer.Start(ctx, "state.Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("test.id", test.TestID().String()),
		attribute.String("test.status", string(test.Status())),
	)

	if err := m.repo.Save(ctx, test.Snapshot()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save test snapshot")
		return domain.WrapError(domain.KindRepository, "StateManager.Save", err)
	}
	return nil
}

// SaveBestEffort persists the state and only logs on failure. Used on the
// failure and cancellation paths where the original error must win.
func (m *StateManager) SaveBestEffort(ctx context.Context, test *domain.EOLTest) {
	if err := m.Save(ctx, test); err != nil {
		m.logger.Error("best-effort save failed", "test_id", test.TestID(), "error", err)
	}
}

// AttachMeasurements derives one measurement identifier per recorded point and
// attaches them to the aggregate.
func (m *StateManager) AttachMeasurements(test *domain.EOLTest, measurements *domain.TestMeasurements) []domain.MeasurementID {
	count := measurements.Count()
	ids := make([]domain.MeasurementID, 0, count)
	for n := 1; n <= count; n++ {
		id := domain.MeasurementIDFor(test.TestID(), n)
		test.AddMeasurementID(id)
		ids = append(ids, id)
	}
	m.logger.Debug("measurements attached", "test_id", test.TestID(), "count", count)
	return ids
}
