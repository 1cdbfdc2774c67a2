package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"eval-orchestrator/internal/domain"
)

// MemoryStore is a brute-force in-memory vector store. It backs the
// "memory" storage mode and the test suite; cosine distance matches
// the pgvector operator used in production.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]domain.VectorRecord
}

var _ domain.VectorStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]domain.VectorRecord)}
}

func (s *MemoryStore) Upsert(_ context.Context, collection string, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]domain.VectorRecord)
		s.collections[collection] = coll
	}
	for _, r := range records {
		coll[r.ChunkID] = r
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, vector []float32, topK int) ([]domain.VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.collections[collection]
	matches := make([]domain.VectorMatch, 0, len(coll))
	for _, r := range coll {
		matches = append(matches, domain.VectorMatch{
			ChunkID:  r.ChunkID,
			Content:  r.Content,
			Distance: cosineDistance(vector, r.Vector),
			Metadata: r.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection]), nil
}

func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
