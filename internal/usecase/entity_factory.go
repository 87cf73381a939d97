package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eol-tester/internal/domain"
)

const maxIDSequence = 999

// DUTInfo is the caller-supplied device description.
type DUTInfo struct {
	DUTID        string `json:"dut_id" validate:"required,min=3,max=50"`
	ModelNumber  string `json:"model_number" validate:"required"`
	SerialNumber string `json:"serial_number" validate:"required"`
	Manufacturer string `json:"manufacturer"`
}

// EntityFactory builds the EOLTest aggregate with a collision-free identifier.
// Identifiers are derived from the DUT serial number and timestamp; on
// collision the sequence number is advanced, and if the whole range is taken
// the factory falls back to a random UUID.
type EntityFactory struct {
	repo   domain.TestRepository
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewEntityFactory(repo domain.TestRepository, logger *slog.Logger) *EntityFactory {
	return &EntityFactory{
		repo:   repo,
		logger: logger.With("component", "entity-factory"),
		tracer: otel.Tracer("eol-tester-usecase"),
		now:    time.Now,
	}
}

// CreateTest validates the DUT info and operator, generates a unique test ID
// and returns a NOT_STARTED aggregate.
func (f *EntityFactory) CreateTest(ctx context.Context, info DUTInfo, operator string, cfg *domain.TestConfiguration) (*domain.EOLTest, error) {
	ctx, span := f.tracer.Start(ctx, "factory.CreateTest")
	defer span.End()

	dutID, err := domain.NewDUTID(info.DUTID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid dut id")
		return nil, err
	}
	operatorID, err := domain.NewOperatorID(operator)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid operator id")
		return nil, err
	}
	dut, err := domain.NewDUT(dutID, info.ModelNumber, info.SerialNumber, info.Manufacturer, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid dut")
		return nil, err
	}

	testID, err := f.uniqueTestID(ctx, info.SerialNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate test id")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("test.id", testID.String()),
		attribute.String("dut.id", dutID.String()),
	)

	test, err := domain.NewEOLTest(testID, dut, operatorID, cfg)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	f.logger.Info("test entity created", "test_id", testID, "dut_id", dutID, "operator_id", operatorID)
	return test, nil
}

// uniqueTestID scans sequence numbers 1..999 for the serial+timestamp base,
// taking the first identifier the repository has no record of.
func (f *EntityFactory) uniqueTestID(ctx context.Context, serialNumber string) (domain.TestID, error) {
	ts := f.now()
	for seq := 1; seq <= maxIDSequence; seq++ {
		candidate := domain.TestIDFromSerial(serialNumber, ts, seq)
		_, err := f.repo.FindByID(ctx, candidate)
		if errors.Is(err, domain.ErrTestNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", domain.WrapError(domain.KindRepository, "uniqueTestID", err)
		}
		// Record exists, try the next sequence number.
	}
	id := domain.GenerateTestID()
	f.logger.Warn("sequence range exhausted, falling back to uuid test id", "test_id", id)
	return id, nil
}
