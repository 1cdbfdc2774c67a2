package domain

import "context"

// VectorMatch is one nearest-neighbor hit. Distance is cosine distance,
// smaller is closer.
type VectorMatch struct {
	ChunkID  string
	Content  string
	Distance float64
	Metadata map[string]string
}

// VectorRecord is one chunk prepared for upsert into a collection.
type VectorRecord struct {
	ChunkID  string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// VectorStore persists chunk vectors grouped by collection and answers
// nearest-neighbor queries. Upsert replaces records with the same
// chunk ID, keeping re-indexing idempotent.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, records []VectorRecord) error
	Query(ctx context.Context, collection string, vector []float32, topK int) ([]VectorMatch, error)
	Count(ctx context.Context, collection string) (int, error)
}

// RetrievalResult is the context assembled for one question.
type RetrievalResult struct {
	Matches []VectorMatch
	Context string
}
