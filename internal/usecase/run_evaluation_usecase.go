package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eval-orchestrator/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultTopK = 5

// Retriever is the slice of the retrieval index the orchestrator needs.
type Retriever interface {
	Retrieve(ctx context.Context, text string, topK int) (*domain.RetrievalResult, error)
}

// RetrieverFactory yields the retriever bound to a workspace's
// collection. Each run's worker gets its own retriever handle.
type RetrieverFactory interface {
	ForWorkspace(workspaceID string) Retriever
}

// ProviderFactory resolves a (provider, model) pair to a bound
// generation provider. Adding a backend never touches orchestrator
// logic.
type ProviderFactory interface {
	Provider(provider, model string) (domain.GenerationProvider, error)
}

// RunEvaluationUsecase drives one evaluation run through its lifecycle:
// pending, running, then completed or failed, with an optional judging
// pass over a completed run.
type RunEvaluationUsecase struct {
	runRepo    domain.RunRepository
	resultRepo domain.ResultRepository
	retrievers RetrieverFactory
	providers  ProviderFactory
	logger     *slog.Logger
}

func NewRunEvaluationUsecase(
	runRepo domain.RunRepository,
	resultRepo domain.ResultRepository,
	retrievers RetrieverFactory,
	providers ProviderFactory,
	logger *slog.Logger,
) *RunEvaluationUsecase {
	return &RunEvaluationUsecase{
		runRepo:    runRepo,
		resultRepo: resultRepo,
		retrievers: retrievers,
		providers:  providers,
		logger:     logger,
	}
}

// CreateRun validates and persists a new run in pending state. The
// caller starts execution separately; creation returns immediately.
func (u *RunEvaluationUsecase) CreateRun(ctx context.Context, run *domain.EvaluationRun) error {
	if len(run.Questions) == 0 {
		return fmt.Errorf("run needs at least one question")
	}
	if len(run.ModelConfigs) == 0 {
		return fmt.Errorf("run needs at least one model configuration")
	}
	seen := map[string]bool{}
	for _, mc := range run.ModelConfigs {
		if seen[mc.Key()] {
			return fmt.Errorf("duplicate model configuration %s", mc.Key())
		}
		seen[mc.Key()] = true
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	for i := range run.Questions {
		if run.Questions[i].ID == uuid.Nil {
			run.Questions[i].ID = uuid.New()
		}
	}
	if run.TopK <= 0 {
		run.TopK = defaultTopK
	}
	run.Status = domain.RunStatusPending
	run.TotalQuestions = len(run.Questions)
	run.CreatedAt = time.Now()

	if err := u.runRepo.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	u.logger.Info("run_created",
		slog.String("run_id", run.ID.String()),
		slog.Int("questions", run.TotalQuestions),
		slog.Int("models", len(run.ModelConfigs)))
	return nil
}

// Execute processes the whole question set for one run. Per-item
// failures are recorded on their results; anything escaping that
// isolation fails the run while keeping the results already stored.
func (u *RunEvaluationUsecase) Execute(ctx context.Context, runID uuid.UUID) (err error) {
	run, loadErr := u.runRepo.GetRun(ctx, runID)
	if loadErr != nil {
		return fmt.Errorf("failed to load run: %w", loadErr)
	}
	// Completed and failed are terminal; rejecting here keeps a
	// duplicate dispatch from overwriting a finished run's status
	// through the failure path below.
	if run.Status != domain.RunStatusPending {
		return fmt.Errorf("run is %s, expected %s", run.Status, domain.RunStatusPending)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
		if err != nil {
			u.logger.Error("run_failed",
				slog.String("run_id", runID.String()),
				slog.String("error", err.Error()))
			if updErr := u.runRepo.UpdateStatus(context.WithoutCancel(ctx), runID, domain.RunStatusFailed, err.Error()); updErr != nil {
				u.logger.Error("run_status_update_failed",
					slog.String("run_id", runID.String()),
					slog.String("error", updErr.Error()))
			}
		}
	}()

	if err = u.runRepo.MarkStarted(ctx, runID); err != nil {
		return fmt.Errorf("failed to mark run started: %w", err)
	}
	started := time.Now()

	providers := make(map[string]domain.GenerationProvider, len(run.ModelConfigs))
	for _, mc := range run.ModelConfigs {
		p, perr := u.providers.Provider(mc.Provider, mc.Model)
		if perr != nil {
			return fmt.Errorf("failed to resolve model %s: %w", mc.Key(), perr)
		}
		providers[mc.Key()] = p
	}
	judge, err := u.buildJudge(run.JudgeConfig)
	if err != nil {
		return err
	}

	retriever := u.retrievers.ForWorkspace(run.WorkspaceID)

	var allResults []*domain.GenerationResult
	var allVerdicts []*domain.JudgeVerdict
	for i, question := range run.Questions {
		results, verdicts, qErr := u.processQuestion(ctx, run, question, providers, judge, retriever)
		if qErr != nil {
			return fmt.Errorf("question %d/%d: %w", i+1, run.TotalQuestions, qErr)
		}
		allResults = append(allResults, results...)
		allVerdicts = append(allVerdicts, verdicts...)

		completed := i + 1
		if err = u.runRepo.UpdateProgress(ctx, runID, completed, Progress(completed, run.TotalQuestions)); err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
	}

	summary := u.buildSummary(run, allResults, allVerdicts, time.Since(started))
	if err = u.runRepo.MarkCompleted(ctx, runID, summary); err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}
	u.logger.Info("run_completed",
		slog.String("run_id", runID.String()),
		slog.Int("questions", run.TotalQuestions),
		slog.Int64("duration_ms", summary.DurationMS))
	return nil
}

// Progress is floor(100*completed/total). A zero-question run is
// already fully done.
func Progress(completed, total int) int {
	if total <= 0 {
		return 100
	}
	return 100 * completed / total
}

// processQuestion retrieves context once, fans out to all models, then
// judges answers pairwise. Only retrieval and persistence errors
// propagate; model and judge failures stay per-item.
func (u *RunEvaluationUsecase) processQuestion(
	ctx context.Context,
	run *domain.EvaluationRun,
	question domain.Question,
	providers map[string]domain.GenerationProvider,
	judge *Judge,
	retriever Retriever,
) ([]*domain.GenerationResult, []*domain.JudgeVerdict, error) {
	retrieval, err := retriever.Retrieve(ctx, question.Text, run.TopK)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieval failed: %w", err)
	}

	results := make([]*domain.GenerationResult, len(run.ModelConfigs))
	g, gctx := errgroup.WithContext(ctx)
	for i, mc := range run.ModelConfigs {
		g.Go(func() error {
			results[i] = u.generateAnswer(gctx, run, question, mc, providers[mc.Key()], retrieval.Context, judge)
			return nil
		})
	}
	// Goroutines never return errors; per-model failures live on the
	// results themselves.
	_ = g.Wait()

	for _, r := range results {
		if err := u.resultRepo.SaveResult(ctx, r); err != nil {
			return nil, nil, fmt.Errorf("failed to save result for %s: %w", r.ModelKey, err)
		}
	}

	verdicts := u.judgeQuestion(ctx, run, question, retrieval.Context, results, judge)
	for _, v := range verdicts {
		if err := u.resultRepo.SaveVerdict(ctx, v); err != nil {
			return nil, nil, fmt.Errorf("failed to save verdict: %w", err)
		}
	}
	return results, verdicts, nil
}

func (u *RunEvaluationUsecase) generateAnswer(
	ctx context.Context,
	run *domain.EvaluationRun,
	question domain.Question,
	mc domain.ModelConfig,
	provider domain.GenerationProvider,
	contextText string,
	judge *Judge,
) *domain.GenerationResult {
	result := &domain.GenerationResult{
		ID:               uuid.New(),
		RunID:            run.ID,
		QuestionID:       question.ID,
		ModelKey:         mc.Key(),
		RetrievedContext: contextText,
		CreatedAt:        time.Now(),
	}

	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: answerSystemPrompt},
		{Role: domain.RoleUser, Content: buildAnswerPrompt(question.Text, contextText)},
	}
	start := time.Now()
	resp, err := provider.Generate(ctx, messages, domain.GenerationOptions{
		Temperature: mc.Temperature,
		MaxTokens:   mc.MaxTokens,
	})
	result.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		result.ErrorMessage = err.Error()
		u.logger.Warn("answer_failed",
			slog.String("run_id", run.ID.String()),
			slog.String("question_id", question.ID.String()),
			slog.String("model", mc.Key()),
			slog.String("error", err.Error()))
		return result
	}

	result.Answer = resp.Content
	result.TokensIn = resp.TokensIn
	result.TokensOut = resp.TokensOut
	result.CostUSD = resp.CostUSD

	if judge != nil {
		quality, qErr := judge.ScoreAnswer(ctx, RubricInput{
			Question:        question.Text,
			Answer:          resp.Content,
			Context:         contextText,
			ReferenceAnswer: question.ReferenceAnswer,
		})
		if qErr != nil {
			u.logger.Warn("rubric_scoring_failed",
				slog.String("run_id", run.ID.String()),
				slog.String("question_id", question.ID.String()),
				slog.String("model", mc.Key()),
				slog.String("error", qErr.Error()))
		} else {
			result.Quality = quality
		}
	}
	return result
}

// judgeQuestion runs round-robin pairwise judging over every unordered
// pair of successful answers. With two models this is the single
// classic A/B call. Judge failures are logged and skipped.
func (u *RunEvaluationUsecase) judgeQuestion(
	ctx context.Context,
	run *domain.EvaluationRun,
	question domain.Question,
	contextText string,
	results []*domain.GenerationResult,
	judge *Judge,
) []*domain.JudgeVerdict {
	if judge == nil {
		return nil
	}
	var ok []*domain.GenerationResult
	for _, r := range results {
		if !r.Failed() {
			ok = append(ok, r)
		}
	}

	var verdicts []*domain.JudgeVerdict
	for i := 0; i < len(ok); i++ {
		for j := i + 1; j < len(ok); j++ {
			verdict, err := judge.JudgePair(ctx, PairInput{
				Question:        question.Text,
				AnswerA:         ok[i].Answer,
				AnswerB:         ok[j].Answer,
				Context:         contextText,
				ReferenceAnswer: question.ReferenceAnswer,
			})
			if err != nil {
				u.logger.Warn("pairwise_judgment_failed",
					slog.String("run_id", run.ID.String()),
					slog.String("question_id", question.ID.String()),
					slog.String("model_a", ok[i].ModelKey),
					slog.String("model_b", ok[j].ModelKey),
					slog.String("error", err.Error()))
				continue
			}
			verdict.ID = uuid.New()
			verdict.RunID = run.ID
			verdict.QuestionID = question.ID
			verdict.ModelAKey = ok[i].ModelKey
			verdict.ModelBKey = ok[j].ModelKey
			verdict.CreatedAt = time.Now()
			verdicts = append(verdicts, verdict)
		}
	}
	return verdicts
}

// RunJudgmentPass re-scores a completed run's existing answers. It
// fills in missing rubric scores and missing pairwise verdicts;
// per-item failures are logged and skipped, mirroring generation-time
// fault isolation.
func (u *RunEvaluationUsecase) RunJudgmentPass(ctx context.Context, runID uuid.UUID) (err error) {
	run, loadErr := u.runRepo.GetRun(ctx, runID)
	if loadErr != nil {
		return fmt.Errorf("failed to load run: %w", loadErr)
	}
	if run.Status != domain.RunStatusCompleted {
		return fmt.Errorf("run is %s, judgment pass needs %s", run.Status, domain.RunStatusCompleted)
	}
	judge, err := u.buildJudge(run.JudgeConfig)
	if err != nil {
		return err
	}
	if judge == nil {
		return fmt.Errorf("run has no judge configuration")
	}

	if err = u.runRepo.UpdateStatus(ctx, runID, domain.RunStatusJudging, ""); err != nil {
		return fmt.Errorf("failed to enter judging state: %w", err)
	}
	defer func() {
		if err != nil {
			if updErr := u.runRepo.UpdateStatus(context.WithoutCancel(ctx), runID, domain.RunStatusCompleted, ""); updErr != nil {
				u.logger.Error("run_status_update_failed",
					slog.String("run_id", runID.String()),
					slog.String("error", updErr.Error()))
			}
		}
	}()

	results, err := u.resultRepo.ListResults(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	verdicts, err := u.resultRepo.ListVerdicts(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list verdicts: %w", err)
	}

	questionByID := make(map[uuid.UUID]domain.Question, len(run.Questions))
	for _, q := range run.Questions {
		questionByID[q.ID] = q
	}

	scored := 0
	for _, r := range results {
		if r.Failed() || r.Quality != nil {
			continue
		}
		question, found := questionByID[r.QuestionID]
		if !found {
			continue
		}
		quality, qErr := judge.ScoreAnswer(ctx, RubricInput{
			Question:        question.Text,
			Answer:          r.Answer,
			Context:         r.RetrievedContext,
			ReferenceAnswer: question.ReferenceAnswer,
		})
		if qErr != nil {
			u.logger.Warn("rubric_scoring_failed",
				slog.String("run_id", runID.String()),
				slog.String("question_id", r.QuestionID.String()),
				slog.String("model", r.ModelKey),
				slog.String("error", qErr.Error()))
			continue
		}
		if aErr := u.resultRepo.AttachQuality(ctx, r.ID, quality); aErr != nil {
			return fmt.Errorf("failed to attach quality scores: %w", aErr)
		}
		r.Quality = quality
		scored++
	}

	judgedPairs := make(map[string]bool, len(verdicts))
	for _, v := range verdicts {
		judgedPairs[pairKey(v.QuestionID, v.ModelAKey, v.ModelBKey)] = true
	}
	byQuestion := make(map[uuid.UUID][]*domain.GenerationResult)
	for _, r := range results {
		if !r.Failed() {
			byQuestion[r.QuestionID] = append(byQuestion[r.QuestionID], r)
		}
	}
	for qid, qResults := range byQuestion {
		question, found := questionByID[qid]
		if !found {
			continue
		}
		for i := 0; i < len(qResults); i++ {
			for j := i + 1; j < len(qResults); j++ {
				if judgedPairs[pairKey(qid, qResults[i].ModelKey, qResults[j].ModelKey)] {
					continue
				}
				// Both results carry the same stored context.
				added := u.judgeQuestion(ctx, run, question, qResults[i].RetrievedContext,
					[]*domain.GenerationResult{qResults[i], qResults[j]}, judge)
				for _, v := range added {
					if sErr := u.resultRepo.SaveVerdict(ctx, v); sErr != nil {
						return fmt.Errorf("failed to save verdict: %w", sErr)
					}
					verdicts = append(verdicts, v)
				}
			}
		}
	}

	summary := u.buildSummary(run, results, verdicts, 0)
	if run.Summary != nil {
		summary.DurationMS = run.Summary.DurationMS
	}
	if err = u.runRepo.MarkCompleted(ctx, runID, summary); err != nil {
		return fmt.Errorf("failed to finish judging pass: %w", err)
	}
	u.logger.Info("judgment_pass_completed",
		slog.String("run_id", runID.String()),
		slog.Int("rescored", scored))
	return nil
}

// RunMetrics is the pollable metrics view of one run. Comparison is
// present only for two-model runs.
type RunMetrics struct {
	RunID      uuid.UUID          `json:"run_id"`
	Status     domain.RunStatus   `json:"status"`
	Models     []ModelMetrics     `json:"models"`
	Comparison *ModelComparison   `json:"comparison,omitempty"`
	Summary    *domain.RunSummary `json:"summary,omitempty"`
}

// Metrics recomputes per-model metrics from the raw results. It
// degrades gracefully before any results exist: empty aggregates, not
// an error.
func (u *RunEvaluationUsecase) Metrics(ctx context.Context, runID uuid.UUID) (*RunMetrics, error) {
	run, err := u.runRepo.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	results, err := u.resultRepo.ListResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	verdicts, err := u.resultRepo.ListVerdicts(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}

	metrics := &RunMetrics{
		RunID:   run.ID,
		Status:  run.Status,
		Models:  make([]ModelMetrics, 0, len(run.ModelConfigs)),
		Summary: run.Summary,
	}
	for _, mc := range run.ModelConfigs {
		metrics.Models = append(metrics.Models, CalculateModelMetrics(mc.Key(), results, verdicts))
	}
	if len(metrics.Models) == 2 {
		cmp := CompareModels(metrics.Models[0], metrics.Models[1], DefaultIndifferenceThreshold)
		metrics.Comparison = &cmp
	}
	return metrics, nil
}

func pairKey(qid uuid.UUID, a, b string) string {
	if a > b {
		a, b = b, a
	}
	return qid.String() + "|" + a + "|" + b
}

func (u *RunEvaluationUsecase) buildJudge(cfg domain.JudgeConfig) (*Judge, error) {
	if cfg.Model == "" {
		return nil, nil
	}
	provider, err := u.providers.Provider(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve judge model %s:%s: %w", cfg.Provider, cfg.Model, err)
	}
	return NewJudge(provider, u.logger), nil
}

func (u *RunEvaluationUsecase) buildSummary(
	run *domain.EvaluationRun,
	results []*domain.GenerationResult,
	verdicts []*domain.JudgeVerdict,
	elapsed time.Duration,
) *domain.RunSummary {
	summary := &domain.RunSummary{
		OverallScores: make(map[string]float64, len(run.ModelConfigs)),
		DurationMS:    elapsed.Milliseconds(),
	}
	best := ""
	bestScore := -1.0
	for _, mc := range run.ModelConfigs {
		m := CalculateModelMetrics(mc.Key(), results, verdicts)
		score := m.OverallScore
		if score == 0 && m.Judged > 0 {
			// Pairwise score is on a 0-10 scale.
			score = m.MeanPairwiseScore / 10
		}
		summary.OverallScores[mc.Key()] = score
		summary.TotalCostUSD += m.TotalCostUSD
		if score > bestScore {
			best, bestScore = mc.Key(), score
		}
	}
	if bestScore > 0 {
		summary.BestModelKey = best
	}
	return summary
}

const answerSystemPrompt = `Answer the question using the provided context. ` +
	`If the context does not contain the answer, say so instead of guessing.`

func buildAnswerPrompt(question, contextText string) string {
	if contextText == "" {
		return question
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)
}
