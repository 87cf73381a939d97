package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eol-tester/internal/domain"
)

func snapshot(testID, dutID string) *domain.Snapshot {
	return &domain.Snapshot{
		TestID: domain.TestID(testID),
		DUT:    &domain.DUT{ID: domain.DUTID(dutID), ModelNumber: "WF-2026", SerialNumber: "SN1"},
		Status: domain.StatusCompleted,
	}
}

func TestFindByIDMissing(t *testing.T) {
	repo := NewTestRepository()
	_, err := repo.FindByID(context.Background(), "TEST_20260824_101530_001")
	assert.ErrorIs(t, err, domain.ErrTestNotFound)
}

func TestSaveAndFind(t *testing.T) {
	repo := NewTestRepository()
	s := snapshot("TEST_20260824_101530_001", "DUT-001")
	require.NoError(t, repo.Save(context.Background(), s))

	got, err := repo.FindByID(context.Background(), s.TestID)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	// Overwrite with a newer state.
	updated := snapshot("TEST_20260824_101530_001", "DUT-001")
	updated.Status = domain.StatusFailed
	require.NoError(t, repo.Save(context.Background(), updated))

	got, err = repo.FindByID(context.Background(), s.TestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
}

func TestListByDUTNewestFirst(t *testing.T) {
	repo := NewTestRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, snapshot("SN1_20260824_101530_001", "DUT-001")))
	require.NoError(t, repo.Save(ctx, snapshot("SN1_20260824_101531_001", "DUT-001")))
	require.NoError(t, repo.Save(ctx, snapshot("SN2_20260824_101530_001", "DUT-002")))

	list, err := repo.ListByDUT(ctx, "DUT-001")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.TestID("SN1_20260824_101531_001"), list[0].TestID)
	assert.Equal(t, domain.TestID("SN1_20260824_101530_001"), list[1].TestID)

	list, err = repo.ListByDUT(ctx, "DUT-003")
	require.NoError(t, err)
	assert.Empty(t, list)
}
