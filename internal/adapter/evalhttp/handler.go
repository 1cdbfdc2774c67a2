package evalhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"eval-orchestrator/internal/domain"
	"eval-orchestrator/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// TaskStarter launches background work for a run. Returns false when
// the worker is shutting down.
type TaskStarter interface {
	StartRun(runID uuid.UUID) bool
	StartJudgmentPass(runID uuid.UUID) bool
}

// Pinger reports storage health for the readiness probe. A nil Pinger
// means the deployment has no external storage to check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	runner  *usecase.RunEvaluationUsecase
	runRepo domain.RunRepository
	worker  TaskStarter
	indexer *usecase.IndexDocumentUsecase
	synth   *usecase.SyntheticGenerator
	chunker domain.Chunker
	// texts serves path-based ingestion; nil disables it.
	texts  domain.DocumentTextProvider
	pinger Pinger
}

func NewHandler(
	runner *usecase.RunEvaluationUsecase,
	runRepo domain.RunRepository,
	worker TaskStarter,
	indexer *usecase.IndexDocumentUsecase,
	synth *usecase.SyntheticGenerator,
	chunker domain.Chunker,
	texts domain.DocumentTextProvider,
	pinger Pinger,
) *Handler {
	return &Handler{
		runner:  runner,
		runRepo: runRepo,
		worker:  worker,
		indexer: indexer,
		synth:   synth,
		chunker: chunker,
		texts:   texts,
		pinger:  pinger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	e.GET("/readyz", h.Readyz)

	e.POST("/v1/evaluations", h.CreateEvaluation)
	e.GET("/v1/evaluations", h.ListEvaluations)
	e.GET("/v1/evaluations/:id", h.GetEvaluation)
	e.GET("/v1/evaluations/:id/metrics", h.GetMetrics)
	e.POST("/v1/evaluations/:id/judgment", h.StartJudgment)

	e.POST("/v1/documents", h.IndexDocument)
	e.POST("/v1/datasets/synthetic", h.GenerateSyntheticDataset)
}

type createRunRequest struct {
	Name        string               `json:"name"`
	WorkspaceID string               `json:"workspace_id"`
	Questions   []domain.Question    `json:"questions"`
	Models      []domain.ModelConfig `json:"models"`
	Judge       domain.JudgeConfig   `json:"judge"`
	TopK        int                  `json:"top_k"`
}

type runResponse struct {
	ID                 uuid.UUID          `json:"id"`
	Name               string             `json:"name"`
	WorkspaceID        string             `json:"workspace_id"`
	Status             string             `json:"status"`
	Progress           int                `json:"progress"`
	CompletedQuestions int                `json:"completed_questions"`
	TotalQuestions     int                `json:"total_questions"`
	ErrorMessage       string             `json:"error_message,omitempty"`
	Summary            *domain.RunSummary `json:"summary,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	StartedAt          *time.Time         `json:"started_at,omitempty"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
}

func toRunResponse(run *domain.EvaluationRun) runResponse {
	return runResponse{
		ID:                 run.ID,
		Name:               run.Name,
		WorkspaceID:        run.WorkspaceID,
		Status:             string(run.Status),
		Progress:           run.Progress,
		CompletedQuestions: run.CompletedQuestions,
		TotalQuestions:     run.TotalQuestions,
		ErrorMessage:       run.ErrorMessage,
		Summary:            run.Summary,
		CreatedAt:          run.CreatedAt,
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
	}
}

// Create an evaluation run and start it in the background.
// (POST /v1/evaluations)
func (h *Handler) CreateEvaluation(ctx echo.Context) error {
	var req createRunRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	run := &domain.EvaluationRun{
		Name:         req.Name,
		WorkspaceID:  req.WorkspaceID,
		Questions:    req.Questions,
		ModelConfigs: req.Models,
		JudgeConfig:  req.Judge,
		TopK:         req.TopK,
	}
	if err := h.runner.CreateRun(ctx.Request().Context(), run); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if !h.worker.StartRun(run.ID) {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
	}

	return ctx.JSON(http.StatusAccepted, map[string]string{
		"run_id": run.ID.String(),
		"status": string(run.Status),
	})
}

// (GET /v1/evaluations)
func (h *Handler) ListEvaluations(ctx echo.Context) error {
	limit := 50
	if raw := ctx.QueryParam("limit"); raw != "" {
		if err := echo.QueryParamsBinder(ctx).Int("limit", &limit).BindError(); err != nil || limit <= 0 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
	}

	runs, err := h.runRepo.ListRuns(ctx.Request().Context(), limit)
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	return ctx.JSON(http.StatusOK, map[string]any{"runs": out})
}

// (GET /v1/evaluations/:id)
func (h *Handler) GetEvaluation(ctx echo.Context) error {
	runID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}

	run, err := h.runRepo.GetRun(ctx.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusOK, toRunResponse(run))
}

// (GET /v1/evaluations/:id/metrics)
func (h *Handler) GetMetrics(ctx echo.Context) error {
	runID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}

	metrics, err := h.runner.Metrics(ctx.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusOK, metrics)
}

// Re-run judging over a completed run's stored answers.
// (POST /v1/evaluations/:id/judgment)
func (h *Handler) StartJudgment(ctx echo.Context) error {
	runID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}

	run, err := h.runRepo.GetRun(ctx.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if run.Status != domain.RunStatusCompleted {
		return ctx.JSON(http.StatusConflict, map[string]string{
			"error": "judgment pass requires a completed run",
		})
	}

	if !h.worker.StartJudgmentPass(runID) {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
	}

	return ctx.JSON(http.StatusAccepted, map[string]string{
		"run_id": runID.String(),
		"status": string(domain.RunStatusJudging),
	})
}

type indexDocumentRequest struct {
	WorkspaceID string            `json:"workspace_id"`
	DocumentID  string            `json:"document_id"`
	Text        string            `json:"text"`
	Path        string            `json:"path"`
	Metadata    map[string]string `json:"metadata"`
}

// Chunk a document and upsert it into the workspace retrieval index.
// The document arrives either inline as text or as a path resolved
// through the configured text provider.
// (POST /v1/documents)
func (h *Handler) IndexDocument(ctx echo.Context) error {
	var req indexDocumentRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Text == "" && req.Path != "" {
		if h.texts == nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "path ingestion is not configured"})
		}
		text, err := h.texts.Extract(ctx.Request().Context(), req.Path)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		req.Text = text
	}
	if req.Text == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "missing text"})
	}

	out, err := h.indexer.Execute(ctx.Request().Context(), usecase.IndexDocumentInput{
		WorkspaceID: req.WorkspaceID,
		DocumentID:  req.DocumentID,
		Text:        req.Text,
		Metadata:    req.Metadata,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingUnavailable) {
			return ctx.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"document_id": out.DocumentID,
		"collection":  out.Collection,
		"chunk_count": out.ChunkCount,
	})
}

type syntheticRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	PerChunk   int    `json:"per_chunk"`
}

// Generate an evaluation question set from a raw document.
// (POST /v1/datasets/synthetic)
func (h *Handler) GenerateSyntheticDataset(ctx echo.Context) error {
	var req syntheticRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Text == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "missing text"})
	}
	if req.PerChunk <= 0 {
		req.PerChunk = 2
	}

	chunks, err := h.chunker.Chunk(req.Text)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	questions, err := h.synth.GenerateFromChunks(ctx.Request().Context(), req.DocumentID, chunks, req.PerChunk)
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"questions": questions,
		"count":     len(questions),
	})
}

// (GET /healthz)
func (h *Handler) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// (GET /readyz)
func (h *Handler) Readyz(ctx echo.Context) error {
	if h.pinger != nil {
		if err := h.pinger.Ping(ctx.Request().Context()); err != nil {
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "storage unreachable"})
		}
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
