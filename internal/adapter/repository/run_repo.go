package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"eval-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRunRepository stores evaluation runs in Postgres. Question
// sets and model configurations are document-shaped and immutable per
// run, so they live in jsonb columns.
type PostgresRunRepository struct {
	pool *pgxpool.Pool
}

var _ domain.RunRepository = (*PostgresRunRepository)(nil)

func NewPostgresRunRepository(pool *pgxpool.Pool) *PostgresRunRepository {
	return &PostgresRunRepository{pool: pool}
}

func (r *PostgresRunRepository) CreateRun(ctx context.Context, run *domain.EvaluationRun) error {
	questions, err := json.Marshal(run.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}
	modelConfigs, err := json.Marshal(run.ModelConfigs)
	if err != nil {
		return fmt.Errorf("failed to marshal model configs: %w", err)
	}
	judgeConfig, err := json.Marshal(run.JudgeConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal judge config: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO eval_runs (
			id, name, workspace_id, questions, model_configs, judge_config,
			top_k, status, progress, completed_questions, total_questions, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0, $9, $10)
	`, run.ID, run.Name, run.WorkspaceID, questions, modelConfigs, judgeConfig,
		run.TopK, run.Status, run.TotalQuestions, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

const runColumns = `
	id, name, workspace_id, questions, model_configs, judge_config,
	top_k, status, progress, completed_questions, total_questions,
	error_message, summary, created_at, started_at, completed_at
`

func (r *PostgresRunRepository) GetRun(ctx context.Context, id uuid.UUID) (*domain.EvaluationRun, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM eval_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (r *PostgresRunRepository) ListRuns(ctx context.Context, limit int) ([]*domain.EvaluationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+runColumns+` FROM eval_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.EvaluationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func (r *PostgresRunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus, errorMessage string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE eval_runs SET status = $2, error_message = $3 WHERE id = $1`,
		id, status, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (r *PostgresRunRepository) UpdateProgress(ctx context.Context, id uuid.UUID, completed, progress int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE eval_runs
		SET completed_questions = GREATEST(completed_questions, $2), progress = GREATEST(progress, $3)
		WHERE id = $1
	`, id, completed, progress)
	if err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (r *PostgresRunRepository) MarkStarted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE eval_runs SET status = $2, started_at = now() WHERE id = $1
	`, id, domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark run started: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (r *PostgresRunRepository) MarkCompleted(ctx context.Context, id uuid.UUID, summary *domain.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE eval_runs
		SET status = $2, progress = 100, completed_questions = total_questions,
		    summary = $3, error_message = '', completed_at = now()
		WHERE id = $1
	`, id, domain.RunStatusCompleted, summaryJSON)
	if err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (*domain.EvaluationRun, error) {
	var run domain.EvaluationRun
	var questions, modelConfigs, judgeConfig []byte
	var summary []byte
	err := row.Scan(
		&run.ID, &run.Name, &run.WorkspaceID, &questions, &modelConfigs, &judgeConfig,
		&run.TopK, &run.Status, &run.Progress, &run.CompletedQuestions, &run.TotalQuestions,
		&run.ErrorMessage, &summary, &run.CreatedAt, &run.StartedAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &run.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	if err := json.Unmarshal(modelConfigs, &run.ModelConfigs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model configs: %w", err)
	}
	if err := json.Unmarshal(judgeConfig, &run.JudgeConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal judge config: %w", err)
	}
	if len(summary) > 0 {
		run.Summary = &domain.RunSummary{}
		if err := json.Unmarshal(summary, run.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
	}
	return &run, nil
}
