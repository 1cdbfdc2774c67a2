package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an evaluation run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusJudging   RunStatus = "judging"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ModelConfig names one candidate model under test.
type ModelConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Key identifies a model configuration inside a run. Results and
// verdicts reference models by this key.
func (m ModelConfig) Key() string {
	return fmt.Sprintf("%s:%s", m.Provider, m.Model)
}

// JudgeConfig selects the model used for pairwise and rubric judging.
type JudgeConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
}

// Question is one item of a run's question set. ReferenceAnswer may be
// empty; rubric accuracy is only scored when it is present.
type Question struct {
	ID              uuid.UUID         `json:"id"`
	Text            string            `json:"text"`
	ReferenceAnswer string            `json:"reference_answer,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// EvaluationRun is the aggregate root of one evaluation. Progress
// counters are written only by the run's own worker.
type EvaluationRun struct {
	ID                 uuid.UUID
	Name               string
	WorkspaceID        string
	Questions          []Question
	ModelConfigs       []ModelConfig
	JudgeConfig        JudgeConfig
	TopK               int
	Status             RunStatus
	Progress           int
	CompletedQuestions int
	TotalQuestions     int
	ErrorMessage       string
	Summary            *RunSummary
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// GenerationResult is one model's answer to one question. A non-empty
// ErrorMessage marks a per-item failure; such results are excluded from
// latency/cost/token denominators but counted toward the error rate.
type GenerationResult struct {
	ID         uuid.UUID
	RunID      uuid.UUID
	QuestionID uuid.UUID
	ModelKey   string
	Answer     string
	// RetrievedContext is the context the answer was conditioned on,
	// kept so later judging passes can reuse it.
	RetrievedContext string
	TokensIn         int
	TokensOut        int
	LatencyMS        int64
	CostUSD          float64
	ErrorMessage     string
	Quality          *QualityScores
	CreatedAt        time.Time
}

// Failed reports whether this result records a per-item failure.
func (r GenerationResult) Failed() bool {
	return r.ErrorMessage != ""
}

// Winner is the outcome of a pairwise judgment.
type Winner string

const (
	WinnerA   Winner = "a"
	WinnerB   Winner = "b"
	WinnerTie Winner = "tie"
)

// CriterionScores holds the per-criterion sub-scores of a pairwise
// verdict, each in [0,10].
type CriterionScores struct {
	ScoreA float64 `json:"score_a"`
	ScoreB float64 `json:"score_b"`
}

// Pairwise criteria, correctness weighted most heavily by the judge.
const (
	CriterionCorrectness  = "correctness"
	CriterionRelevance    = "relevance"
	CriterionCompleteness = "completeness"
	CriterionClarity      = "clarity"
	CriterionConciseness  = "conciseness"
)

// JudgeVerdict is one pairwise comparison between two model answers to
// the same question. Scores are clamped to [0,10], confidence to [0,1].
type JudgeVerdict struct {
	ID         uuid.UUID
	RunID      uuid.UUID
	QuestionID uuid.UUID
	ModelAKey  string
	ModelBKey  string
	Winner     Winner
	ScoreA     float64
	ScoreB     float64
	Confidence float64
	Reasoning  string
	Criteria   map[string]CriterionScores
	CreatedAt  time.Time
}

// WinnerKey returns the model key the verdict favors, or "" for a tie.
func (v JudgeVerdict) WinnerKey() string {
	switch v.Winner {
	case WinnerA:
		return v.ModelAKey
	case WinnerB:
		return v.ModelBKey
	default:
		return ""
	}
}

// QualityScores are the four independent rubric axes, each in [0,1].
// Accuracy is nil when no reference answer exists; it is never
// fabricated.
type QualityScores struct {
	Accuracy           *float64          `json:"accuracy,omitempty"`
	Faithfulness       float64           `json:"faithfulness"`
	Reasoning          float64           `json:"reasoning"`
	ContextUtilization float64           `json:"context_utilization"`
	Justifications     map[string]string `json:"justifications,omitempty"`
}

// Rubric axis names.
const (
	AxisAccuracy           = "accuracy"
	AxisFaithfulness       = "faithfulness"
	AxisReasoning          = "reasoning"
	AxisContextUtilization = "context_utilization"
)

// RunSummary is computed once when a run completes and stored with the
// run, never recomputed per poll.
type RunSummary struct {
	OverallScores map[string]float64 `json:"overall_scores"`
	BestModelKey  string             `json:"best_model_key,omitempty"`
	TotalCostUSD  float64            `json:"total_cost_usd"`
	DurationMS    int64              `json:"duration_ms"`
}

// SyntheticQuestion is one generated question/answer pair with
// provenance back to its source chunk.
type SyntheticQuestion struct {
	ID           uuid.UUID `json:"id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer,omitempty"`
	QuestionType string    `json:"question_type"`
	Difficulty   string    `json:"difficulty"`
	ChunkIndex   int       `json:"chunk_index"`
	DocumentID   string    `json:"document_id,omitempty"`
}
