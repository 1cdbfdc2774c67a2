package embedding

import (
	"context"
	"fmt"

	"eval-orchestrator/internal/adapter/provider"
	"eval-orchestrator/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder embeds texts through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

var _ domain.EmbeddingProvider = (*OpenAIEmbedder)(nil)

var openaiEmbeddingDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	dim, ok := openaiEmbeddingDims[model]
	if !ok {
		dim = 1536
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(apiKey),
		model:     model,
		dimension: dim,
	}
}

func (e *OpenAIEmbedder) Name() string   { return fmt.Sprintf("openai:%s", e.model) }
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) (*domain.EmbeddingResult, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	tokens := resp.Usage.PromptTokens
	return &domain.EmbeddingResult{
		Vectors: vectors,
		Tokens:  tokens,
		CostUSD: provider.EmbeddingCost("openai", e.model, tokens),
	}, nil
}
