package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"eval-orchestrator/internal/adapter/repository"
	"eval-orchestrator/internal/domain"
	"eval-orchestrator/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stubs ---

type stubProvider struct{}

func (stubProvider) Generate(context.Context, []domain.ChatMessage, domain.GenerationOptions) (*domain.GenerationResponse, error) {
	return &domain.GenerationResponse{Content: "answer", TokensIn: 10, TokensOut: 5}, nil
}

func (stubProvider) Name() string { return "stub" }

type stubProviderFactory struct{}

func (stubProviderFactory) Provider(string, string) (domain.GenerationProvider, error) {
	return stubProvider{}, nil
}

type stubRetriever struct{}

func (stubRetriever) Retrieve(context.Context, string, int) (*domain.RetrievalResult, error) {
	return &domain.RetrievalResult{Context: "ctx"}, nil
}

type stubRetrieverFactory struct{}

func (stubRetrieverFactory) ForWorkspace(string) usecase.Retriever { return stubRetriever{} }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestWorker(t *testing.T) (*RunWorker, *repository.MemoryStore, *usecase.RunEvaluationUsecase) {
	t.Helper()
	store := repository.NewMemoryStore()
	uc := usecase.NewRunEvaluationUsecase(store, store, stubRetrieverFactory{}, stubProviderFactory{}, testLogger())
	return NewRunWorker(uc, testLogger()), store, uc
}

func pendingRun(t *testing.T, uc *usecase.RunEvaluationUsecase) uuid.UUID {
	t.Helper()
	run := &domain.EvaluationRun{
		Name:        "bg run",
		WorkspaceID: "ws",
		Questions:   []domain.Question{{Text: "q1"}, {Text: "q2"}},
		ModelConfigs: []domain.ModelConfig{
			{Provider: "stub", Model: "m1"},
		},
	}
	require.NoError(t, uc.CreateRun(context.Background(), run))
	return run.ID
}

func waitForStatus(t *testing.T, store *repository.MemoryStore, id uuid.UUID, want domain.RunStatus) *domain.EvaluationRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := store.GetRun(context.Background(), id)
		require.NoError(t, err)
		if run.Status == want {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached status %s", id, want)
	return nil
}

// --- tests ---

func TestRunWorker_ExecutesRunInBackground(t *testing.T) {
	w, store, uc := newTestWorker(t)
	runID := pendingRun(t, uc)

	require.True(t, w.StartRun(runID))

	run := waitForStatus(t, store, runID, domain.RunStatusCompleted)
	assert.Equal(t, 100, run.Progress)
	assert.Equal(t, 2, run.CompletedQuestions)

	w.Stop()
}

func TestRunWorker_RunsConcurrently(t *testing.T) {
	w, store, uc := newTestWorker(t)
	first := pendingRun(t, uc)
	second := pendingRun(t, uc)

	require.True(t, w.StartRun(first))
	require.True(t, w.StartRun(second))

	waitForStatus(t, store, first, domain.RunStatusCompleted)
	waitForStatus(t, store, second, domain.RunStatusCompleted)

	w.Stop()
}

func TestRunWorker_StopRefusesNewTasks(t *testing.T) {
	w, _, uc := newTestWorker(t)
	runID := pendingRun(t, uc)

	w.Stop()

	assert.False(t, w.StartRun(runID))
	assert.False(t, w.StartJudgmentPass(runID))
}

func TestRunWorker_StopWaitsForInFlightRuns(t *testing.T) {
	w, store, uc := newTestWorker(t)
	runID := pendingRun(t, uc)

	require.True(t, w.StartRun(runID))
	w.Stop()

	// After Stop returns the run must have finished, not been abandoned.
	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
}
