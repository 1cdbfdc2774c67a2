package usecase_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"eval-orchestrator/internal/domain"
	"eval-orchestrator/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyProvider fails for chunk contents listed in failFor, otherwise
// returns a fixed question array.
type flakyProvider struct {
	mu      sync.Mutex
	failFor map[string]bool
	calls   int
}

func (f *flakyProvider) Generate(_ context.Context, messages []domain.ChatMessage, _ domain.GenerationOptions) (*domain.GenerationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	prompt := messages[len(messages)-1].Content
	for content := range f.failFor {
		if strings.Contains(prompt, content) {
			return nil, context.DeadlineExceeded
		}
	}
	return &domain.GenerationResponse{Content: `Here you go: [
		{"question": "What does the passage describe?", "answer": "A system.", "question_type": "factual", "difficulty": "easy"},
		{"question": "Why does it matter?", "answer": "Because.", "question_type": "ANALYTICAL", "difficulty": "unknown"}
	]`}, nil
}

func (f *flakyProvider) Name() string { return "flaky" }

func TestSyntheticGenerator_GenerateFromChunks(t *testing.T) {
	gen := usecase.NewSyntheticGenerator(&flakyProvider{}, testLogger())

	chunks := []domain.Chunk{
		{Index: 0, Content: "first passage"},
		{Index: 1, Content: "second passage"},
	}
	questions, err := gen.GenerateFromChunks(context.Background(), "doc-1", chunks, 2)
	require.NoError(t, err)
	require.Len(t, questions, 4)

	for _, q := range questions {
		assert.NotEmpty(t, q.Question)
		assert.Equal(t, "doc-1", q.DocumentID)
		assert.Contains(t, []string{"factual", "conceptual", "analytical"}, q.QuestionType)
		assert.Contains(t, []string{"easy", "medium", "hard"}, q.Difficulty)
	}
	// Unknown tags normalize to defaults rather than leaking through.
	assert.Equal(t, "analytical", questions[1].QuestionType)
	assert.Equal(t, "medium", questions[1].Difficulty)
	assert.Equal(t, 0, questions[0].ChunkIndex)
	assert.Equal(t, 1, questions[2].ChunkIndex)
}

func TestSyntheticGenerator_FailingChunkIsSkipped(t *testing.T) {
	provider := &flakyProvider{failFor: map[string]bool{"bad passage": true}}
	gen := usecase.NewSyntheticGenerator(provider, testLogger())

	chunks := []domain.Chunk{
		{Index: 0, Content: "good passage"},
		{Index: 1, Content: "bad passage"},
		{Index: 2, Content: "another good passage"},
	}
	questions, err := gen.GenerateFromChunks(context.Background(), "doc-2", chunks, 2)
	require.NoError(t, err, "a failing chunk must not abort the batch")
	assert.Len(t, questions, 4, "count reflects only successes")
	for _, q := range questions {
		assert.NotEqual(t, 1, q.ChunkIndex)
	}
}

func TestSyntheticGenerator_EmptyChunks(t *testing.T) {
	gen := usecase.NewSyntheticGenerator(&flakyProvider{}, testLogger())
	questions, err := gen.GenerateFromChunks(context.Background(), "doc", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, questions)
}
