package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eval-orchestrator/internal/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	embedMaxAttempts = 3
	embedBaseBackoff = 2 * time.Second
	embedMaxBackoff  = 10 * time.Second
	embedCallTimeout = 60 * time.Second

	defaultQueryCacheSize = 512
)

// RetrievalIndex wraps an embedding provider and a vector store for one
// workspace collection. New providers plug in through the capability
// interfaces; the index logic never changes per provider.
type RetrievalIndex struct {
	embedder   domain.EmbeddingProvider
	store      domain.VectorStore
	collection string
	logger     *slog.Logger

	queryCache *lru.Cache[string, []float32]

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	callTimeout time.Duration
}

// RetrievalIndexOption overrides retry and cache defaults.
type RetrievalIndexOption func(*RetrievalIndex)

// WithEmbedRetry overrides the embedding retry budget.
func WithEmbedRetry(attempts int, base, max time.Duration) RetrievalIndexOption {
	return func(ri *RetrievalIndex) {
		ri.maxAttempts = attempts
		ri.baseBackoff = base
		ri.maxBackoff = max
	}
}

// WithEmbedTimeout overrides the per-call embedding timeout.
func WithEmbedTimeout(d time.Duration) RetrievalIndexOption {
	return func(ri *RetrievalIndex) {
		ri.callTimeout = d
	}
}

// WithQueryCacheSize overrides the query-embedding LRU capacity.
func WithQueryCacheSize(n int) RetrievalIndexOption {
	return func(ri *RetrievalIndex) {
		cache, err := lru.New[string, []float32](n)
		if err == nil {
			ri.queryCache = cache
		}
	}
}

// NewRetrievalIndex binds the index to the workspace's collection.
func NewRetrievalIndex(
	embedder domain.EmbeddingProvider,
	store domain.VectorStore,
	workspaceID string,
	logger *slog.Logger,
	opts ...RetrievalIndexOption,
) *RetrievalIndex {
	cache, _ := lru.New[string, []float32](defaultQueryCacheSize)
	ri := &RetrievalIndex{
		embedder:    embedder,
		store:       store,
		collection:  CollectionName(workspaceID),
		logger:      logger,
		queryCache:  cache,
		maxAttempts: embedMaxAttempts,
		baseBackoff: embedBaseBackoff,
		maxBackoff:  embedMaxBackoff,
		callTimeout: embedCallTimeout,
	}
	for _, opt := range opts {
		opt(ri)
	}
	return ri
}

// CollectionName derives a deterministic collection name from a
// workspace ID. Repeated indexing for the same workspace always lands
// in the same collection.
func CollectionName(workspaceID string) string {
	var b strings.Builder
	b.WriteString("ws_")
	for _, r := range strings.ToLower(workspaceID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Collection returns the collection name this index writes to.
func (ri *RetrievalIndex) Collection() string {
	return ri.collection
}

// Add embeds the chunks and upserts them into the collection.
// Chunk IDs are deterministic per (document, chunk index) so
// re-indexing a document replaces its records instead of duplicating
// them. Returns the IDs in chunk order.
func (ri *RetrievalIndex) Add(ctx context.Context, documentID string, chunks []domain.Chunk, metadata map[string]string) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	result, err := ri.embedWithRetry(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(result.Vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d vectors for %d chunks", len(result.Vectors), len(chunks))
	}

	ids := make([]string, len(chunks))
	records := make([]domain.VectorRecord, len(chunks))
	for i, c := range chunks {
		ids[i] = fmt.Sprintf("%s:%d", documentID, c.Index)
		meta := map[string]string{
			"document_id": documentID,
			"chunk_index": fmt.Sprintf("%d", c.Index),
		}
		for k, v := range metadata {
			meta[k] = v
		}
		records[i] = domain.VectorRecord{
			ChunkID:  ids[i],
			Content:  c.Content,
			Vector:   result.Vectors[i],
			Metadata: meta,
		}
	}

	if err := ri.store.Upsert(ctx, ri.collection, records); err != nil {
		return nil, fmt.Errorf("failed to upsert %d records: %w", len(records), err)
	}

	ri.logger.Info("chunks_indexed",
		slog.String("collection", ri.collection),
		slog.String("document_id", documentID),
		slog.Int("chunks", len(chunks)),
		slog.Int("embed_tokens", result.Tokens))
	return ids, nil
}

// Query embeds the query text and returns the nearest neighbors ordered
// by ascending distance.
func (ri *RetrievalIndex) Query(ctx context.Context, text string, topK int) ([]domain.VectorMatch, error) {
	vector, err := ri.queryVector(ctx, text)
	if err != nil {
		return nil, err
	}
	matches, err := ri.store.Query(ctx, ri.collection, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", ri.collection, err)
	}
	return matches, nil
}

// Retrieve runs Query and assembles the matches into a single context
// string for prompting.
func (ri *RetrievalIndex) Retrieve(ctx context.Context, text string, topK int) (*domain.RetrievalResult, error) {
	matches, err := ri.Query(ctx, text, topK)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Content
	}
	return &domain.RetrievalResult{
		Matches: matches,
		Context: strings.Join(parts, "\n\n"),
	}, nil
}

func (ri *RetrievalIndex) queryVector(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := ri.queryCache.Get(text); ok {
		return vector, nil
	}
	result, err := ri.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(result.Vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query vector, got %d", len(result.Vectors))
	}
	ri.queryCache.Add(text, result.Vectors[0])
	return result.Vectors[0], nil
}

// embedWithRetry bounds each embedding call with a timeout and retries
// transient failures with exponential backoff. Exhaustion surfaces as
// ErrEmbeddingUnavailable so callers can tell it apart from bad input.
func (ri *RetrievalIndex) embedWithRetry(ctx context.Context, texts []string) (*domain.EmbeddingResult, error) {
	backoff := ri.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= ri.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, ri.callTimeout)
		result, err := ri.embedder.Embed(callCtx, texts)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < ri.maxAttempts {
			ri.logger.Warn("embedding_retry",
				slog.String("provider", ri.embedder.Name()),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("embedding aborted: %w", errors.Join(domain.ErrEmbeddingUnavailable, ctx.Err()))
			}
			backoff *= 2
			if backoff > ri.maxBackoff {
				backoff = ri.maxBackoff
			}
		}
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w (last error: %v)", ri.maxAttempts, domain.ErrEmbeddingUnavailable, lastErr)
}
