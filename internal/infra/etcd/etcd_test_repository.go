// internal/infra/etcd/etcd_test_repository.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"eol-tester/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TestRecordDir = "/eol/tests/"
)

type etcdTestRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdTestRepository creates a test-record repository backed by etcd.
// Keys are structured as /eol/tests/{testID}.
func NewEtcdTestRepository(client *clientv3.Client, logger *slog.Logger) domain.TestRepository {
	return &etcdTestRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("eol-tester-etcd-test-repo"),
	}
}

// Save persists a test snapshot, overwriting any previous state for the same
// test identifier.
func (r *etcdTestRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveTest")
	defer span.End()

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal test snapshot")
		return fmt.Errorf("failed to marshal test %s to JSON: %w", snapshot.TestID, err)
	}

	key := path.Join(TestRecordDir, snapshot.TestID.String())
	span.SetAttributes(
		attribute.String("test.id", snapshot.TestID.String()),
		attribute.String("etcd.key", key),
	)

	_, err = r.client.Put(ctx, key, string(snapshotJSON))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put test snapshot to etcd")
		return fmt.Errorf("failed to save test %s to etcd: %w", snapshot.TestID, err)
	}
	return nil
}

// FindByID retrieves one test snapshot. A missing key reports
// domain.ErrTestNotFound so the identifier uniqueness scan can distinguish
// "free slot" from a storage fault.
func (r *etcdTestRepository) FindByID(ctx context.Context, id domain.TestID) (*domain.Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.FindTest")
	defer span.End()
	span.SetAttributes(attribute.String("test.id", id.String()))

	key := path.Join(TestRecordDir, id.String())
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get test snapshot from etcd")
		return nil, fmt.Errorf("failed to get test %s from etcd: %w", id, err)
	}

	if len(resp.Kvs) == 0 {
		return nil, domain.ErrTestNotFound
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(resp.Kvs[0].Value, &snapshot); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal test snapshot")
		return nil, fmt.Errorf("failed to unmarshal test %s from JSON: %w", id, err)
	}
	return &snapshot, nil
}

// ListByDUT retrieves every stored test for a device, newest first by create
// revision. The record set on one station is small enough to scan.
func (r *etcdTestRepository) ListByDUT(ctx context.Context, dutID domain.DUTID) ([]*domain.Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListTestsByDUT")
	defer span.End()
	span.SetAttributes(attribute.String("dut.id", dutID.String()))

	resp, err := r.client.Get(ctx, TestRecordDir,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortDescend),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list test snapshots from etcd")
		return nil, fmt.Errorf("failed to list tests for dut %s from etcd: %w", dutID, err)
	}

	var snapshots []*domain.Snapshot
	for _, kv := range resp.Kvs {
		var snapshot domain.Snapshot
		if err := json.Unmarshal(kv.Value, &snapshot); err != nil {
			r.logger.Warn("failed to unmarshal test snapshot from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		if snapshot.DUT != nil && snapshot.DUT.ID == dutID {
			snapshots = append(snapshots, &snapshot)
		}
	}
	span.SetAttributes(attribute.Int("records_returned", len(snapshots)))
	return snapshots, nil
}
