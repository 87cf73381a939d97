// internal/scheduler/health_scheduler.go
package scheduler

import (
	"context"
	"log/slog"

	"eol-tester/internal/domain"
	"eol-tester/internal/metrics"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HealthScheduler periodically polls hardware connectivity on a cron
// schedule and exports the result as metrics. Polls are skipped while a test
// is executing so the check never competes with the test for the bus.
type HealthScheduler struct {
	cron    *cron.Cron
	facade  domain.HardwareFacade
	busy    func() bool
	logger  *slog.Logger
	tracer  trace.Tracer
	entryID cron.EntryID
}

func NewHealthScheduler(facade domain.HardwareFacade, busy func() bool, logger *slog.Logger) *HealthScheduler {
	return &HealthScheduler{
		cron:   cron.New(cron.WithSeconds()),
		facade: facade,
		busy:   busy,
		logger: logger.With("component", "health-scheduler"),
		tracer: otel.Tracer("eol-tester-scheduler"),
	}
}

// Schedule registers the poll at the given cron expression (with seconds
// field), replacing any previous schedule.
func (s *HealthScheduler) Schedule(expr string) error {
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	entryID, err := s.cron.AddFunc(expr, s.poll)
	if err != nil {
		s.logger.Error("failed to schedule health check", "schedule", expr, "error", err)
		return err
	}
	s.entryID = entryID
	s.logger.Info("health check scheduled", "schedule", expr)
	return nil
}

// Start runs the scheduler until ctx is cancelled.
func (s *HealthScheduler) Start(ctx context.Context) error {
	s.logger.Info("health scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("health scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("health scheduler stopped")
	return ctx.Err()
}

func (s *HealthScheduler) poll() {
	if s.busy != nil && s.busy() {
		s.logger.Debug("health check skipped, test running")
		return
	}

	ctx, span := s.tracer.Start(context.Background(), "scheduler.HealthCheck")
	defer span.End()

	status := s.facade.Status(ctx)
	healthy := 0
	for component, ok := range status {
		v := 0.0
		if ok {
			v = 1.0
			healthy++
		}
		metrics.HardwareHealthy.WithLabelValues(component).Set(v)
	}
	span.SetAttributes(
		attribute.Int("hardware.components", len(status)),
		attribute.Int("hardware.healthy", healthy),
	)
	if healthy < len(status) {
		s.logger.Warn("hardware health degraded", "healthy", healthy, "total", len(status))
	}
}
