package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"eval-orchestrator/internal/domain"

	"github.com/google/uuid"
)

// IndexManager hands out one RetrievalIndex per workspace, all backed
// by the same embedder and vector store. Indexes are cached so the
// query cache survives across requests.
type IndexManager struct {
	embedder domain.EmbeddingProvider
	store    domain.VectorStore
	logger   *slog.Logger
	opts     []RetrievalIndexOption

	mu      sync.Mutex
	indexes map[string]*RetrievalIndex
}

func NewIndexManager(
	embedder domain.EmbeddingProvider,
	store domain.VectorStore,
	logger *slog.Logger,
	opts ...RetrievalIndexOption,
) *IndexManager {
	return &IndexManager{
		embedder: embedder,
		store:    store,
		logger:   logger,
		opts:     opts,
		indexes:  make(map[string]*RetrievalIndex),
	}
}

var _ RetrieverFactory = (*IndexManager)(nil)

func (m *IndexManager) Index(workspaceID string) *RetrievalIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx, ok := m.indexes[workspaceID]; ok {
		return idx
	}
	idx := NewRetrievalIndex(m.embedder, m.store, workspaceID, m.logger, m.opts...)
	m.indexes[workspaceID] = idx
	return idx
}

func (m *IndexManager) ForWorkspace(workspaceID string) Retriever {
	return m.Index(workspaceID)
}

type IndexDocumentInput struct {
	WorkspaceID string
	DocumentID  string
	Text        string
	Metadata    map[string]string
}

type IndexDocumentOutput struct {
	DocumentID string
	Collection string
	ChunkCount int
	ChunkIDs   []string
}

// IndexDocumentUsecase chunks a raw document and upserts the chunks
// into the workspace's retrieval index.
type IndexDocumentUsecase struct {
	chunker domain.Chunker
	indexes *IndexManager
	logger  *slog.Logger
}

func NewIndexDocumentUsecase(chunker domain.Chunker, indexes *IndexManager, logger *slog.Logger) *IndexDocumentUsecase {
	return &IndexDocumentUsecase{chunker: chunker, indexes: indexes, logger: logger}
}

func (u *IndexDocumentUsecase) Execute(ctx context.Context, in IndexDocumentInput) (*IndexDocumentOutput, error) {
	if in.Text == "" {
		return nil, fmt.Errorf("document text is empty")
	}
	if in.DocumentID == "" {
		in.DocumentID = uuid.New().String()
	}

	chunks, err := u.chunker.Chunk(in.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}

	idx := u.indexes.Index(in.WorkspaceID)
	chunkIDs, err := idx.Add(ctx, in.DocumentID, chunks, in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to index document: %w", err)
	}

	u.logger.Info("document_indexed",
		slog.String("workspace_id", in.WorkspaceID),
		slog.String("document_id", in.DocumentID),
		slog.Int("chunk_count", len(chunks)))

	return &IndexDocumentOutput{
		DocumentID: in.DocumentID,
		Collection: idx.Collection(),
		ChunkCount: len(chunks),
		ChunkIDs:   chunkIDs,
	}, nil
}
