package evalhttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"eval-orchestrator/internal/adapter/evalhttp"
	"eval-orchestrator/internal/adapter/repository"
	"eval-orchestrator/internal/domain"
	"eval-orchestrator/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stubs ---

type recordingStarter struct {
	mu       sync.Mutex
	runs     []uuid.UUID
	judgment []uuid.UUID
	refuse   bool
}

func (s *recordingStarter) StartRun(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse {
		return false
	}
	s.runs = append(s.runs, id)
	return true
}

func (s *recordingStarter) StartJudgmentPass(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse {
		return false
	}
	s.judgment = append(s.judgment, id)
	return true
}

type stubChunker struct{}

func (stubChunker) Chunk(text string) ([]domain.Chunk, error) {
	return []domain.Chunk{
		{Index: 0, Content: text, TokenCount: len(text), StartChar: 0, EndChar: len(text)},
	}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) (*domain.EmbeddingResult, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return &domain.EmbeddingResult{Vectors: vectors, Tokens: len(texts)}, nil
}

func (stubEmbedder) Dimension() int { return 3 }
func (stubEmbedder) Name() string   { return "stub" }

type stubVectorStore struct {
	mu      sync.Mutex
	records map[string]domain.VectorRecord
}

func newStubVectorStore() *stubVectorStore {
	return &stubVectorStore{records: make(map[string]domain.VectorRecord)}
}

func (s *stubVectorStore) Upsert(_ context.Context, collection string, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[collection+"/"+r.ChunkID] = r
	}
	return nil
}

func (s *stubVectorStore) Query(context.Context, string, []float32, int) ([]domain.VectorMatch, error) {
	return nil, nil
}

func (s *stubVectorStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.records {
		if strings.HasPrefix(key, collection+"/") {
			n++
		}
	}
	return n, nil
}

type cannedProvider struct {
	content string
	err     error
}

func (p cannedProvider) Generate(context.Context, []domain.ChatMessage, domain.GenerationOptions) (*domain.GenerationResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &domain.GenerationResponse{Content: p.content, TokensIn: 10, TokensOut: 5}, nil
}

func (p cannedProvider) Name() string { return "stub" }

type cannedProviderFactory struct{ provider domain.GenerationProvider }

func (f cannedProviderFactory) Provider(string, string) (domain.GenerationProvider, error) {
	return f.provider, nil
}

type noopRetrieverFactory struct{}

type noopRetriever struct{}

func (noopRetriever) Retrieve(context.Context, string, int) (*domain.RetrievalResult, error) {
	return &domain.RetrievalResult{Context: "ctx"}, nil
}

func (noopRetrieverFactory) ForWorkspace(string) usecase.Retriever { return noopRetriever{} }

type stubTextProvider struct{}

func (stubTextProvider) Extract(_ context.Context, path string) (string, error) {
	if path == "notes.txt" {
		return "Text loaded from disk.", nil
	}
	return "", fmt.Errorf("failed to read document %q", path)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

// --- fixture ---

type fixture struct {
	echo    *echo.Echo
	store   *repository.MemoryStore
	starter *recordingStarter
}

func newFixture(t *testing.T, pinger evalhttp.Pinger) *fixture {
	t.Helper()
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := repository.NewMemoryStore()

	runner := usecase.NewRunEvaluationUsecase(
		store, store, noopRetrieverFactory{}, cannedProviderFactory{cannedProvider{content: "answer"}}, log)
	indexes := usecase.NewIndexManager(stubEmbedder{}, newStubVectorStore(), log)
	indexer := usecase.NewIndexDocumentUsecase(stubChunker{}, indexes, log)
	synth := usecase.NewSyntheticGenerator(cannedProvider{content: syntheticJSON}, log)

	starter := &recordingStarter{}
	h := evalhttp.NewHandler(runner, store, starter, indexer, synth, stubChunker{}, stubTextProvider{}, pinger)

	e := echo.New()
	h.RegisterRoutes(e)
	return &fixture{echo: e, store: store, starter: starter}
}

const syntheticJSON = `[
  {"question": "What is covered?", "answer": "Chunking.", "question_type": "factual", "difficulty": "easy"},
  {"question": "Why overlap chunks?", "answer": "Continuity.", "question_type": "analytical", "difficulty": "medium"}
]`

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func seedRun(t *testing.T, store *repository.MemoryStore, status domain.RunStatus) *domain.EvaluationRun {
	t.Helper()
	run := &domain.EvaluationRun{
		ID:             uuid.New(),
		Name:           "seeded",
		WorkspaceID:    "ws",
		Questions:      []domain.Question{{ID: uuid.New(), Text: "q"}},
		ModelConfigs:   []domain.ModelConfig{{Provider: "stub", Model: "m"}},
		Status:         status,
		TotalQuestions: 1,
	}
	require.NoError(t, store.CreateRun(context.Background(), run))
	return run
}

// --- tests ---

func TestCreateEvaluation(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/evaluations", map[string]any{
		"name":         "nightly",
		"workspace_id": "ws",
		"questions":    []map[string]string{{"text": "What is a chunk?"}},
		"models": []map[string]any{
			{"provider": "stub", "model": "alpha"},
			{"provider": "stub", "model": "beta"},
		},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp["status"])

	runID, err := uuid.Parse(resp["run_id"])
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{runID}, f.starter.runs)

	run, err := f.store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPending, run.Status)
	assert.Equal(t, 1, run.TotalQuestions)
}

func TestCreateEvaluation_ValidationError(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/evaluations", map[string]any{
		"name":      "no models",
		"questions": []map[string]string{{"text": "q"}},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.starter.runs)
}

func TestCreateEvaluation_WhileShuttingDown(t *testing.T) {
	f := newFixture(t, nil)
	f.starter.refuse = true

	rec := f.do(http.MethodPost, "/v1/evaluations", map[string]any{
		"questions": []map[string]string{{"text": "q"}},
		"models":    []map[string]any{{"provider": "stub", "model": "alpha"}},
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetEvaluation(t *testing.T) {
	f := newFixture(t, nil)
	run := seedRun(t, f.store, domain.RunStatusRunning)

	rec := f.do(http.MethodGet, "/v1/evaluations/"+run.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, run.ID.String(), resp["id"])
	assert.Equal(t, "running", resp["status"])
}

func TestGetEvaluation_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/v1/evaluations/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/v1/evaluations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEvaluations(t *testing.T) {
	f := newFixture(t, nil)
	seedRun(t, f.store, domain.RunStatusCompleted)
	seedRun(t, f.store, domain.RunStatusPending)

	rec := f.do(http.MethodGet, "/v1/evaluations?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs []map[string]any `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 1)
}

func TestGetMetrics_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, fmt.Sprintf("/v1/evaluations/%s/metrics", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartJudgment(t *testing.T) {
	f := newFixture(t, nil)
	run := seedRun(t, f.store, domain.RunStatusCompleted)

	rec := f.do(http.MethodPost, fmt.Sprintf("/v1/evaluations/%s/judgment", run.ID), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []uuid.UUID{run.ID}, f.starter.judgment)
}

func TestStartJudgment_RequiresCompletedRun(t *testing.T) {
	f := newFixture(t, nil)
	run := seedRun(t, f.store, domain.RunStatusRunning)

	rec := f.do(http.MethodPost, fmt.Sprintf("/v1/evaluations/%s/judgment", run.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, f.starter.judgment)
}

func TestIndexDocument(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/documents", map[string]any{
		"workspace_id": "Team 42",
		"text":         "Chunking splits documents into token windows.",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ws_team_42", resp["collection"])
	assert.Equal(t, float64(1), resp["chunk_count"])
	assert.NotEmpty(t, resp["document_id"])
}

func TestIndexDocument_FromPath(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/documents", map[string]any{
		"workspace_id": "ws",
		"path":         "notes.txt",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/v1/documents", map[string]any{
		"workspace_id": "ws",
		"path":         "missing.txt",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexDocument_MissingText(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/documents", map[string]any{"workspace_id": "ws"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateSyntheticDataset(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/datasets/synthetic", map[string]any{
		"document_id": "doc-1",
		"text":        "Chunking splits documents into token windows.",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Questions []domain.SyntheticQuestion `json:"questions"`
		Count     int                        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "doc-1", resp.Questions[0].DocumentID)
}

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/readyz", nil).Code)

	unready := newFixture(t, failingPinger{})
	assert.Equal(t, http.StatusServiceUnavailable, unready.do(http.MethodGet, "/readyz", nil).Code)
}
