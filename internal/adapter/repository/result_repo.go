package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"eval-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresResultRepository stores raw generation results and judge
// verdicts.
type PostgresResultRepository struct {
	pool *pgxpool.Pool
}

var _ domain.ResultRepository = (*PostgresResultRepository)(nil)

func NewPostgresResultRepository(pool *pgxpool.Pool) *PostgresResultRepository {
	return &PostgresResultRepository{pool: pool}
}

func (r *PostgresResultRepository) SaveResult(ctx context.Context, result *domain.GenerationResult) error {
	var quality []byte
	if result.Quality != nil {
		var err error
		quality, err = json.Marshal(result.Quality)
		if err != nil {
			return fmt.Errorf("failed to marshal quality scores: %w", err)
		}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO eval_results (
			id, run_id, question_id, model_key, answer, retrieved_context,
			tokens_in, tokens_out, latency_ms, cost_usd, error_message, quality, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, result.ID, result.RunID, result.QuestionID, result.ModelKey, result.Answer,
		result.RetrievedContext,
		result.TokensIn, result.TokensOut, result.LatencyMS, result.CostUSD,
		result.ErrorMessage, quality, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

func (r *PostgresResultRepository) SaveVerdict(ctx context.Context, verdict *domain.JudgeVerdict) error {
	criteria, err := json.Marshal(verdict.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO eval_verdicts (
			id, run_id, question_id, model_a_key, model_b_key,
			winner, score_a, score_b, confidence, reasoning, criteria, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, verdict.ID, verdict.RunID, verdict.QuestionID, verdict.ModelAKey, verdict.ModelBKey,
		verdict.Winner, verdict.ScoreA, verdict.ScoreB, verdict.Confidence,
		verdict.Reasoning, criteria, verdict.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}
	return nil
}

func (r *PostgresResultRepository) AttachQuality(ctx context.Context, resultID uuid.UUID, quality *domain.QualityScores) error {
	qualityJSON, err := json.Marshal(quality)
	if err != nil {
		return fmt.Errorf("failed to marshal quality scores: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE eval_results SET quality = $2 WHERE id = $1`, resultID, qualityJSON)
	if err != nil {
		return fmt.Errorf("failed to attach quality scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (r *PostgresResultRepository) ListResults(ctx context.Context, runID uuid.UUID) ([]*domain.GenerationResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, run_id, question_id, model_key, answer, retrieved_context,
		       tokens_in, tokens_out, latency_ms, cost_usd, error_message, quality, created_at
		FROM eval_results
		WHERE run_id = $1
		ORDER BY created_at, model_key
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []*domain.GenerationResult
	for rows.Next() {
		var res domain.GenerationResult
		var quality []byte
		if err := rows.Scan(
			&res.ID, &res.RunID, &res.QuestionID, &res.ModelKey, &res.Answer,
			&res.RetrievedContext,
			&res.TokensIn, &res.TokensOut, &res.LatencyMS, &res.CostUSD,
			&res.ErrorMessage, &quality, &res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if len(quality) > 0 {
			res.Quality = &domain.QualityScores{}
			if err := json.Unmarshal(quality, res.Quality); err != nil {
				return nil, fmt.Errorf("failed to unmarshal quality scores: %w", err)
			}
		}
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	return results, nil
}

func (r *PostgresResultRepository) ListVerdicts(ctx context.Context, runID uuid.UUID) ([]*domain.JudgeVerdict, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, run_id, question_id, model_a_key, model_b_key,
		       winner, score_a, score_b, confidence, reasoning, criteria, created_at
		FROM eval_verdicts
		WHERE run_id = $1
		ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []*domain.JudgeVerdict
	for rows.Next() {
		var v domain.JudgeVerdict
		var criteria []byte
		if err := rows.Scan(
			&v.ID, &v.RunID, &v.QuestionID, &v.ModelAKey, &v.ModelBKey,
			&v.Winner, &v.ScoreA, &v.ScoreB, &v.Confidence, &v.Reasoning,
			&criteria, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		if len(criteria) > 0 {
			if err := json.Unmarshal(criteria, &v.Criteria); err != nil {
				return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
			}
		}
		verdicts = append(verdicts, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate verdicts: %w", err)
	}
	return verdicts, nil
}
