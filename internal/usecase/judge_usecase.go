package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"eval-orchestrator/internal/domain"

	"golang.org/x/sync/errgroup"
)

// judgeTemperature keeps verdicts near-deterministic.
const judgeTemperature = 0.1

const judgeMaxTokens = 1500

// Judge scores answers with an LLM, in two modes: pairwise comparison
// and single-answer rubric scoring.
type Judge struct {
	provider domain.GenerationProvider
	logger   *slog.Logger
}

func NewJudge(provider domain.GenerationProvider, logger *slog.Logger) *Judge {
	return &Judge{provider: provider, logger: logger}
}

// PairInput is one pairwise comparison request.
type PairInput struct {
	Question        string
	AnswerA         string
	AnswerB         string
	Context         string
	ReferenceAnswer string
}

// RubricInput is one single-answer scoring request.
type RubricInput struct {
	Question        string
	Answer          string
	Context         string
	ReferenceAnswer string
}

type pairwiseResponse struct {
	Winner     string  `json:"winner"`
	ScoreA     float64 `json:"score_a"`
	ScoreB     float64 `json:"score_b"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Criteria   map[string]struct {
		ScoreA float64 `json:"score_a"`
		ScoreB float64 `json:"score_b"`
	} `json:"criteria"`
}

type axisResponse struct {
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// JudgePair compares two candidate answers and returns one verdict.
// Correctness dominates; a tie is only for genuinely equivalent
// answers. Scores are clamped to their documented ranges.
func (j *Judge) JudgePair(ctx context.Context, in PairInput) (*domain.JudgeVerdict, error) {
	prompt := buildPairwisePrompt(in)
	raw, err := j.callWithParseRetry(ctx, pairwiseSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var resp pairwiseResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode verdict: %w", domain.ErrUnparseableJudgment)
	}

	winner := domain.Winner(strings.ToLower(strings.TrimSpace(resp.Winner)))
	switch winner {
	case domain.WinnerA, domain.WinnerB, domain.WinnerTie:
	default:
		return nil, fmt.Errorf("unrecognized winner %q: %w", resp.Winner, domain.ErrUnparseableJudgment)
	}

	verdict := &domain.JudgeVerdict{
		Winner:     winner,
		ScoreA:     clamp(resp.ScoreA, 0, 10),
		ScoreB:     clamp(resp.ScoreB, 0, 10),
		Confidence: clamp(resp.Confidence, 0, 1),
		Reasoning:  resp.Reasoning,
	}
	if len(resp.Criteria) > 0 {
		verdict.Criteria = make(map[string]domain.CriterionScores, len(resp.Criteria))
		for name, cs := range resp.Criteria {
			verdict.Criteria[name] = domain.CriterionScores{
				ScoreA: clamp(cs.ScoreA, 0, 10),
				ScoreB: clamp(cs.ScoreB, 0, 10),
			}
		}
	}
	return verdict, nil
}

// ScoreAnswer scores one answer on the four rubric axes. The axes run
// concurrently; accuracy is skipped entirely when no reference answer
// exists, never fabricated.
func (j *Judge) ScoreAnswer(ctx context.Context, in RubricInput) (*domain.QualityScores, error) {
	axes := []string{domain.AxisFaithfulness, domain.AxisReasoning, domain.AxisContextUtilization}
	if in.ReferenceAnswer != "" {
		axes = append(axes, domain.AxisAccuracy)
	}

	type axisScore struct {
		axis          string
		score         float64
		justification string
	}
	results := make([]axisScore, len(axes))

	g, gctx := errgroup.WithContext(ctx)
	for i, axis := range axes {
		g.Go(func() error {
			raw, err := j.callWithParseRetry(gctx, rubricSystemPrompt, buildRubricPrompt(axis, in))
			if err != nil {
				return fmt.Errorf("axis %s: %w", axis, err)
			}
			var resp axisResponse
			if err := json.Unmarshal([]byte(raw), &resp); err != nil {
				return fmt.Errorf("axis %s: %w", axis, domain.ErrUnparseableJudgment)
			}
			results[i] = axisScore{
				axis:          axis,
				score:         clamp(resp.Score, 0, 1),
				justification: resp.Justification,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scores := &domain.QualityScores{Justifications: make(map[string]string, len(results))}
	for _, r := range results {
		scores.Justifications[r.axis] = r.justification
		switch r.axis {
		case domain.AxisAccuracy:
			v := r.score
			scores.Accuracy = &v
		case domain.AxisFaithfulness:
			scores.Faithfulness = r.score
		case domain.AxisReasoning:
			scores.Reasoning = r.score
		case domain.AxisContextUtilization:
			scores.ContextUtilization = r.score
		}
	}
	return scores, nil
}

// callWithParseRetry calls the judge once and, if no JSON object can be
// extracted from the response, retries exactly once. It never
// substitutes a default score.
func (j *Judge) callWithParseRetry(ctx context.Context, system, user string) (string, error) {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}
	opts := domain.GenerationOptions{Temperature: judgeTemperature, MaxTokens: judgeMaxTokens}

	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := j.provider.Generate(ctx, messages, opts)
		if err != nil {
			return "", fmt.Errorf("judge call failed: %w", err)
		}
		raw, err := domain.ExtractJSONObject(resp.Content)
		if err == nil {
			return raw, nil
		}
		j.logger.Warn("judge_response_unparseable",
			slog.Int("attempt", attempt),
			slog.Int("response_len", len(resp.Content)))
	}
	return "", fmt.Errorf("no JSON object in judge response after retry: %w", domain.ErrUnparseableJudgment)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

const pairwiseSystemPrompt = `You are an impartial judge comparing two answers to the same question. ` +
	`Correctness matters most, weighted well above style. Declare a tie only when the answers are ` +
	`genuinely equivalent in quality, never because the comparison is difficult. Respond with a single JSON object.`

const rubricSystemPrompt = `You are a strict evaluator scoring one answer on a single criterion. ` +
	`Respond with a single JSON object containing "score" (a number between 0 and 1) and "justification" (one or two sentences).`

func buildPairwisePrompt(in PairInput) string {
	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(in.Question)
	if in.Context != "" {
		b.WriteString("\n\nRetrieved context both answers were given:\n")
		b.WriteString(in.Context)
	}
	if in.ReferenceAnswer != "" {
		b.WriteString("\n\nReference answer:\n")
		b.WriteString(in.ReferenceAnswer)
	}
	b.WriteString("\n\nAnswer A:\n")
	b.WriteString(in.AnswerA)
	b.WriteString("\n\nAnswer B:\n")
	b.WriteString(in.AnswerB)
	b.WriteString(`

Compare the answers on correctness (weighted most heavily), relevance, completeness, clarity, and conciseness.
Return JSON with this shape:
{
  "winner": "a" | "b" | "tie",
  "score_a": <0-10>,
  "score_b": <0-10>,
  "confidence": <0-1>,
  "reasoning": "<short explanation>",
  "criteria": {
    "correctness":  {"score_a": <0-10>, "score_b": <0-10>},
    "relevance":    {"score_a": <0-10>, "score_b": <0-10>},
    "completeness": {"score_a": <0-10>, "score_b": <0-10>},
    "clarity":      {"score_a": <0-10>, "score_b": <0-10>},
    "conciseness":  {"score_a": <0-10>, "score_b": <0-10>}
  }
}`)
	return b.String()
}

var rubricAxisInstructions = map[string]string{
	domain.AxisAccuracy:           "Score how factually accurate the answer is compared to the reference answer.",
	domain.AxisFaithfulness:       "Score how faithful the answer is to the retrieved context. Claims not supported by the context lower the score.",
	domain.AxisReasoning:          "Score the quality of the answer's reasoning: logical structure, valid inferences, no contradictions.",
	domain.AxisContextUtilization: "Score how well the answer makes use of the relevant parts of the retrieved context.",
}

func buildRubricPrompt(axis string, in RubricInput) string {
	var b strings.Builder
	b.WriteString(rubricAxisInstructions[axis])
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(in.Question)
	if in.Context != "" {
		b.WriteString("\n\nRetrieved context:\n")
		b.WriteString(in.Context)
	}
	if axis == domain.AxisAccuracy && in.ReferenceAnswer != "" {
		b.WriteString("\n\nReference answer:\n")
		b.WriteString(in.ReferenceAnswer)
	}
	b.WriteString("\n\nAnswer to score:\n")
	b.WriteString(in.Answer)
	return b.String()
}
