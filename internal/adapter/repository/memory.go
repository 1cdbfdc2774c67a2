package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"eval-orchestrator/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore keeps runs and results in process memory. It backs local
// development and tests where a database is not available; the server
// selects it with STORAGE=memory.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     map[uuid.UUID]*domain.EvaluationRun
	results  map[uuid.UUID][]*domain.GenerationResult
	verdicts map[uuid.UUID][]*domain.JudgeVerdict
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:     make(map[uuid.UUID]*domain.EvaluationRun),
		results:  make(map[uuid.UUID][]*domain.GenerationResult),
		verdicts: make(map[uuid.UUID][]*domain.JudgeVerdict),
	}
}

var (
	_ domain.RunRepository    = (*MemoryStore)(nil)
	_ domain.ResultRepository = (*MemoryStore)(nil)
)

func (s *MemoryStore) CreateRun(_ context.Context, run *domain.EvaluationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*domain.EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]*domain.EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*domain.EvaluationRun, 0, len(s.runs))
	for _, run := range s.runs {
		copied := *run
		runs = append(runs, &copied)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.RunStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.ErrRunNotFound
	}
	run.Status = status
	run.ErrorMessage = errorMessage
	return nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id uuid.UUID, completed, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.ErrRunNotFound
	}
	run.CompletedQuestions = completed
	run.Progress = progress
	return nil
}

func (s *MemoryStore) MarkStarted(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.ErrRunNotFound
	}
	now := time.Now()
	run.Status = domain.RunStatusRunning
	run.StartedAt = &now
	return nil
}

func (s *MemoryStore) MarkCompleted(_ context.Context, id uuid.UUID, summary *domain.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.ErrRunNotFound
	}
	now := time.Now()
	run.Status = domain.RunStatusCompleted
	run.Progress = 100
	run.CompletedQuestions = run.TotalQuestions
	run.Summary = summary
	run.CompletedAt = &now
	run.ErrorMessage = ""
	return nil
}

func (s *MemoryStore) SaveResult(_ context.Context, result *domain.GenerationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *result
	s.results[result.RunID] = append(s.results[result.RunID], &copied)
	return nil
}

func (s *MemoryStore) SaveVerdict(_ context.Context, verdict *domain.JudgeVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *verdict
	s.verdicts[verdict.RunID] = append(s.verdicts[verdict.RunID], &copied)
	return nil
}

func (s *MemoryStore) AttachQuality(_ context.Context, resultID uuid.UUID, quality *domain.QualityScores) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, results := range s.results {
		for _, r := range results {
			if r.ID == resultID {
				r.Quality = quality
				return nil
			}
		}
	}
	return domain.ErrRunNotFound
}

func (s *MemoryStore) ListResults(_ context.Context, runID uuid.UUID) ([]*domain.GenerationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := s.results[runID]
	out := make([]*domain.GenerationResult, len(results))
	for i, r := range results {
		copied := *r
		out[i] = &copied
	}
	return out, nil
}

func (s *MemoryStore) ListVerdicts(_ context.Context, runID uuid.UUID) ([]*domain.JudgeVerdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	verdicts := s.verdicts[runID]
	out := make([]*domain.JudgeVerdict, len(verdicts))
	for i, v := range verdicts {
		copied := *v
		out[i] = &copied
	}
	return out, nil
}
