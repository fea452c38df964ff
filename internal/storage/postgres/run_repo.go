package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// RunRepository persists domain.Run as JSONB, with a handful of
// columns pulled out for indexed lookup (status, pipeline_id+run_number).
type RunRepository struct {
	store *Store
}

// NewRunRepository builds a RunRepository.
func NewRunRepository(s *Store) *RunRepository { return &RunRepository{store: s} }

func (r *RunRepository) Create(ctx context.Context, run *domain.Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("postgres: marshal run: %w", err)
	}
	_, err = r.store.pool.Exec(ctx, `
		INSERT INTO runs (id, pipeline_id, pipeline_name, run_number, status, run, queued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID.String(), run.PipelineID.String(), run.PipelineName, run.RunNumber,
		string(run.Status), body, run.QueuedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id domain.ID) (*domain.Run, error) {
	var body []byte
	err := r.store.pool.QueryRow(ctx, `SELECT run FROM runs WHERE id = $1`, id.String()).Scan(&body)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("postgres: run %s: %w", id, pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("postgres: get run: %w", err)
	}
	return decodeRun(body)
}

func (r *RunRepository) GetByPipeline(ctx context.Context, pipelineID domain.ID, limit, offset int) ([]*domain.Run, error) {
	rows, err := r.store.pool.Query(ctx, `
		SELECT run FROM runs
		WHERE pipeline_id = $1
		ORDER BY run_number DESC
		LIMIT $2 OFFSET $3`, pipelineID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		run, err := decodeRun(body)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// NextRunNumber allocates the next 1-based run_number for a pipeline,
// serialized by locking the pipeline's row.
func (r *RunRepository) NextRunNumber(ctx context.Context, pipelineID domain.ID) (int64, error) {
	tx, err := r.store.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin run-number tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT id FROM pipeline_definitions WHERE id = $1 FOR UPDATE`, pipelineID.String(),
	); err != nil {
		return 0, fmt.Errorf("postgres: lock pipeline row: %w", err)
	}

	var max int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(run_number), 0) FROM runs WHERE pipeline_id = $1`, pipelineID.String(),
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("postgres: query max run_number: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit run-number tx: %w", err)
	}
	return max + 1, nil
}

func (r *RunRepository) Update(ctx context.Context, run *domain.Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("postgres: marshal run: %w", err)
	}
	tag, err := r.store.pool.Exec(ctx, `
		UPDATE runs
		SET status = $2, run = $3, started_at = $4, completed_at = $5
		WHERE id = $1`,
		run.ID.String(), string(run.Status), body, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: run %s: %w", run.ID, pgx.ErrNoRows)
	}
	return nil
}

func (r *RunRepository) GetQueued(ctx context.Context, limit int) ([]*domain.Run, error) {
	rows, err := r.store.pool.Query(ctx, `
		SELECT run FROM runs WHERE status = $1 ORDER BY queued_at LIMIT $2`,
		string(domain.RunQueued), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: get queued runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		run, err := decodeRun(body)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func decodeRun(body []byte) (*domain.Run, error) {
	var run domain.Run
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal run: %w", err)
	}
	return &run, nil
}
