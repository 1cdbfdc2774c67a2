package repository_test

import (
	"context"
	"testing"
	"time"

	"eval-orchestrator/internal/adapter/repository"
	"eval-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun() *domain.EvaluationRun {
	return &domain.EvaluationRun{
		ID:             uuid.New(),
		Name:           "run",
		WorkspaceID:    "ws",
		Status:         domain.RunStatusPending,
		TotalQuestions: 4,
		CreatedAt:      time.Now(),
	}
}

func TestMemoryStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	run := newRun()

	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPending, got.Status)

	require.NoError(t, store.MarkStarted(ctx, run.ID))
	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	require.NoError(t, store.UpdateProgress(ctx, run.ID, 2, 50))
	got, _ = store.GetRun(ctx, run.ID)
	assert.Equal(t, 2, got.CompletedQuestions)
	assert.Equal(t, 50, got.Progress)

	require.NoError(t, store.MarkCompleted(ctx, run.ID, &domain.RunSummary{TotalCostUSD: 0.5}))
	got, _ = store.GetRun(ctx, run.ID)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 4, got.CompletedQuestions)
	require.NotNil(t, got.Summary)
	assert.InDelta(t, 0.5, got.Summary.TotalCostUSD, 1e-9)
	assert.NotNil(t, got.CompletedAt)
}

func TestMemoryStore_UnknownRun(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	_, err := store.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
	assert.ErrorIs(t, store.MarkStarted(ctx, uuid.New()), domain.ErrRunNotFound)
	assert.ErrorIs(t, store.UpdateProgress(ctx, uuid.New(), 1, 10), domain.ErrRunNotFound)
	assert.ErrorIs(t, store.UpdateStatus(ctx, uuid.New(), domain.RunStatusFailed, "x"), domain.ErrRunNotFound)
}

func TestMemoryStore_ResultsAndQuality(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	runID := uuid.New()

	result := &domain.GenerationResult{ID: uuid.New(), RunID: runID, ModelKey: "m:a", Answer: "hi"}
	require.NoError(t, store.SaveResult(ctx, result))

	// Mutating the saved pointer must not leak into the store.
	result.Answer = "changed"
	stored, err := store.ListResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "hi", stored[0].Answer)

	quality := &domain.QualityScores{Faithfulness: 0.9}
	require.NoError(t, store.AttachQuality(ctx, result.ID, quality))
	stored, _ = store.ListResults(ctx, runID)
	require.NotNil(t, stored[0].Quality)
	assert.InDelta(t, 0.9, stored[0].Quality.Faithfulness, 1e-9)

	assert.Error(t, store.AttachQuality(ctx, uuid.New(), quality))
}

func TestMemoryStore_ListRunsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	old := newRun()
	old.CreatedAt = time.Now().Add(-time.Hour)
	recent := newRun()
	require.NoError(t, store.CreateRun(ctx, old))
	require.NoError(t, store.CreateRun(ctx, recent))

	runs, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recent.ID, runs[0].ID)
}
