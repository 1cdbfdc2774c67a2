package domain

import (
	"context"

	"github.com/google/uuid"
)

// RunRepository persists evaluation runs and their progress counters.
// UpdateProgress writes a single row; its atomicity is all the locking
// the run worker needs.
type RunRepository interface {
	CreateRun(ctx context.Context, run *EvaluationRun) error

	// GetRun retrieves a run by ID. Returns ErrRunNotFound for unknown IDs.
	GetRun(ctx context.Context, id uuid.UUID) (*EvaluationRun, error)

	ListRuns(ctx context.Context, limit int) ([]*EvaluationRun, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status RunStatus, errorMessage string) error

	// UpdateProgress persists completed_questions and progress after each
	// question so polling stays consistent mid-run.
	UpdateProgress(ctx context.Context, id uuid.UUID, completed, progress int) error

	// MarkStarted moves a run to running and records its start timestamp.
	MarkStarted(ctx context.Context, id uuid.UUID) error

	// MarkCompleted moves a run to completed with progress forced to 100
	// and stores the summary.
	MarkCompleted(ctx context.Context, id uuid.UUID, summary *RunSummary) error
}

// ResultRepository persists raw per-question outputs: generation
// results and judge verdicts. Records are immutable once saved, except
// that quality scores may be attached to an existing result by a later
// judgment pass.
type ResultRepository interface {
	SaveResult(ctx context.Context, result *GenerationResult) error
	SaveVerdict(ctx context.Context, verdict *JudgeVerdict) error
	AttachQuality(ctx context.Context, resultID uuid.UUID, quality *QualityScores) error
	ListResults(ctx context.Context, runID uuid.UUID) ([]*GenerationResult, error)
	ListVerdicts(ctx context.Context, runID uuid.UUID) ([]*JudgeVerdict, error)
}

// DocumentTextProvider extracts UTF-8 text from a stored document.
// Format-specific extraction lives outside the core.
type DocumentTextProvider interface {
	Extract(ctx context.Context, path string) (string, error)
}
