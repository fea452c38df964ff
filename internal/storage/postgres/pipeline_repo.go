package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// PipelineRepository persists domain.PipelineDefinition as JSONB,
// indexed on the fields runs need to query by (name, version).
type PipelineRepository struct {
	store *Store
}

// NewPipelineRepository builds a PipelineRepository.
func NewPipelineRepository(s *Store) *PipelineRepository { return &PipelineRepository{store: s} }

func (r *PipelineRepository) Create(ctx context.Context, p *domain.PipelineDefinition) (domain.ID, error) {
	if p.ID.IsZero() {
		p.ID = domain.NewID(domain.KindPipeline)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return domain.ID{}, fmt.Errorf("postgres: marshal pipeline: %w", err)
	}
	_, err = r.store.pool.Exec(ctx, `
		INSERT INTO pipeline_definitions (id, name, version, definition)
		VALUES ($1, $2, $3, $4)`,
		p.ID.String(), p.Name, p.Version, body)
	if err != nil {
		return domain.ID{}, fmt.Errorf("postgres: insert pipeline: %w", err)
	}
	return p.ID, nil
}

func (r *PipelineRepository) Get(ctx context.Context, id domain.ID) (*domain.PipelineDefinition, error) {
	var body []byte
	err := r.store.pool.QueryRow(ctx,
		`SELECT definition FROM pipeline_definitions WHERE id = $1`, id.String(),
	).Scan(&body)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("postgres: pipeline %s: %w", id, pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("postgres: get pipeline: %w", err)
	}
	return decodePipeline(body)
}

func (r *PipelineRepository) GetByName(ctx context.Context, name string) (*domain.PipelineDefinition, error) {
	var body []byte
	err := r.store.pool.QueryRow(ctx,
		`SELECT definition FROM pipeline_definitions WHERE name = $1`, name,
	).Scan(&body)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("postgres: pipeline %q: %w", name, pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("postgres: get pipeline by name: %w", err)
	}
	return decodePipeline(body)
}

func (r *PipelineRepository) List(ctx context.Context, limit, offset int) ([]*domain.PipelineDefinition, error) {
	rows, err := r.store.pool.Query(ctx,
		`SELECT definition FROM pipeline_definitions ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pipelines: %w", err)
	}
	defer rows.Close()

	var out []*domain.PipelineDefinition
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("postgres: scan pipeline: %w", err)
		}
		p, err := decodePipeline(body)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PipelineRepository) Update(ctx context.Context, id domain.ID, p *domain.PipelineDefinition) error {
	p.ID = id
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: marshal pipeline: %w", err)
	}
	tag, err := r.store.pool.Exec(ctx, `
		UPDATE pipeline_definitions
		SET name = $2, version = $3, definition = $4, updated_at = now()
		WHERE id = $1`,
		id.String(), p.Name, p.Version, body)
	if err != nil {
		return fmt.Errorf("postgres: update pipeline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: pipeline %s: %w", id, pgx.ErrNoRows)
	}
	return nil
}

func (r *PipelineRepository) Delete(ctx context.Context, id domain.ID) error {
	_, err := r.store.pool.Exec(ctx, `DELETE FROM pipeline_definitions WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("postgres: delete pipeline: %w", err)
	}
	return nil
}

func decodePipeline(body []byte) (*domain.PipelineDefinition, error) {
	var p domain.PipelineDefinition
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal pipeline: %w", err)
	}
	return &p, nil
}
