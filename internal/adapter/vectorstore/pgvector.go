package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"eval-orchestrator/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgvectorStore persists chunk vectors in Postgres with the pgvector
// extension. Rows are keyed by (collection, chunk_id), so upserting the
// same chunk replaces it.
type PgvectorStore struct {
	pool *pgxpool.Pool
}

var _ domain.VectorStore = (*PgvectorStore)(nil)

func NewPgvectorStore(pool *pgxpool.Pool) *PgvectorStore {
	return &PgvectorStore{pool: pool}
}

func (s *PgvectorStore) Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		metadata, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", rec.ChunkID, err)
		}
		batch.Queue(`
			INSERT INTO eval_vectors (collection, chunk_id, content, embedding, metadata, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (collection, chunk_id)
			DO UPDATE SET content = EXCLUDED.content,
			              embedding = EXCLUDED.embedding,
			              metadata = EXCLUDED.metadata,
			              updated_at = now()
		`, collection, rec.ChunkID, rec.Content, pgvector.NewVector(rec.Vector), metadata)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert vectors: %w", err)
		}
	}
	return nil
}

func (s *PgvectorStore) Query(ctx context.Context, collection string, vector []float32, topK int) ([]domain.VectorMatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, content, embedding <=> $2 AS distance, metadata
		FROM eval_vectors
		WHERE collection = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`, collection, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var matches []domain.VectorMatch
	for rows.Next() {
		var m domain.VectorMatch
		var metadata []byte
		if err := rows.Scan(&m.ChunkID, &m.Content, &m.Distance, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan vector match: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", m.ChunkID, err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vector matches: %w", err)
	}
	return matches, nil
}

func (s *PgvectorStore) Count(ctx context.Context, collection string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM eval_vectors WHERE collection = $1`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return count, nil
}
