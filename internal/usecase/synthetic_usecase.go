package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"eval-orchestrator/internal/domain"

	"github.com/google/uuid"
)

const syntheticMaxTokens = 2000

var (
	questionTypes = map[string]bool{"factual": true, "conceptual": true, "analytical": true}
	difficulties  = map[string]bool{"easy": true, "medium": true, "hard": true}
)

// SyntheticGenerator produces question/answer pairs from indexed
// chunks, one generation call per chunk.
type SyntheticGenerator struct {
	provider domain.GenerationProvider
	logger   *slog.Logger
}

func NewSyntheticGenerator(provider domain.GenerationProvider, logger *slog.Logger) *SyntheticGenerator {
	return &SyntheticGenerator{provider: provider, logger: logger}
}

type syntheticItem struct {
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	QuestionType string `json:"question_type"`
	Difficulty   string `json:"difficulty"`
}

// GenerateFromChunks issues one call per chunk asking for perChunk
// question/answer pairs. A failing chunk is logged and skipped; the
// returned slice holds only successes, each tagged with provenance.
func (g *SyntheticGenerator) GenerateFromChunks(ctx context.Context, documentID string, chunks []domain.Chunk, perChunk int) ([]domain.SyntheticQuestion, error) {
	if perChunk <= 0 {
		perChunk = 2
	}

	var questions []domain.SyntheticQuestion
	failed := 0
	for _, chunk := range chunks {
		items, err := g.generateForChunk(ctx, chunk, perChunk)
		if err != nil {
			failed++
			g.logger.Warn("synthetic_chunk_skipped",
				slog.String("document_id", documentID),
				slog.Int("chunk_index", chunk.Index),
				slog.String("error", err.Error()))
			continue
		}
		for _, item := range items {
			questions = append(questions, domain.SyntheticQuestion{
				ID:           uuid.New(),
				Question:     item.Question,
				Answer:       item.Answer,
				QuestionType: normalizeTag(item.QuestionType, questionTypes, "factual"),
				Difficulty:   normalizeTag(item.Difficulty, difficulties, "medium"),
				ChunkIndex:   chunk.Index,
				DocumentID:   documentID,
			})
		}
	}

	g.logger.Info("synthetic_generation_done",
		slog.String("document_id", documentID),
		slog.Int("chunks", len(chunks)),
		slog.Int("failed_chunks", failed),
		slog.Int("questions", len(questions)))
	return questions, nil
}

func (g *SyntheticGenerator) generateForChunk(ctx context.Context, chunk domain.Chunk, perChunk int) ([]syntheticItem, error) {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: syntheticSystemPrompt},
		{Role: domain.RoleUser, Content: buildSyntheticPrompt(chunk.Content, perChunk)},
	}
	resp, err := g.provider.Generate(ctx, messages, domain.GenerationOptions{
		Temperature: 0.7,
		MaxTokens:   syntheticMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	raw, err := domain.ExtractJSONArray(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("no question array in response: %w", err)
	}
	var items []syntheticItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}

	valid := items[:0]
	for _, item := range items {
		if strings.TrimSpace(item.Question) != "" {
			valid = append(valid, item)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("response contained no usable questions")
	}
	return valid, nil
}

func normalizeTag(tag string, allowed map[string]bool, fallback string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if allowed[tag] {
		return tag
	}
	return fallback
}

const syntheticSystemPrompt = `You write evaluation questions for a retrieval system. ` +
	`Given a passage, produce questions answerable from that passage alone. Respond with a single JSON array.`

func buildSyntheticPrompt(content string, n int) string {
	return fmt.Sprintf(`Passage:
%s

Write %d distinct questions answerable from the passage, with their answers.
Vary question_type across "factual", "conceptual", "analytical" and difficulty across "easy", "medium", "hard".
Return a JSON array:
[{"question": "...", "answer": "...", "question_type": "factual", "difficulty": "easy"}]`, content, n)
}
