package domain

import "context"

// EmbeddingResult is the output of one embedding call. Vectors is
// parallel to the input texts.
type EmbeddingResult struct {
	Vectors [][]float32
	Tokens  int
	CostUSD float64
}

// EmbeddingProvider turns texts into fixed-dimension vectors.
// Implementations are safe for concurrent use.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) (*EmbeddingResult, error)
	Dimension() int
	Name() string
}
