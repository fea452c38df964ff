package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// ApprovalRepository persists domain.ApprovalGate as JSONB.
type ApprovalRepository struct {
	store *Store
}

// NewApprovalRepository builds an ApprovalRepository.
func NewApprovalRepository(s *Store) *ApprovalRepository { return &ApprovalRepository{store: s} }

func (r *ApprovalRepository) Create(ctx context.Context, gate *domain.ApprovalGate) error {
	body, err := json.Marshal(gate)
	if err != nil {
		return fmt.Errorf("postgres: marshal approval gate: %w", err)
	}
	_, err = r.store.pool.Exec(ctx, `
		INSERT INTO approval_gates (id, run_id, stage_name, status, gate, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		gate.ID.String(), gate.RunID.String(), gate.StageName, string(gate.Status), body, gate.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: insert approval gate: %w", err)
	}
	return nil
}

func (r *ApprovalRepository) Get(ctx context.Context, id domain.ID) (*domain.ApprovalGate, error) {
	var body []byte
	err := r.store.pool.QueryRow(ctx,
		`SELECT gate FROM approval_gates WHERE id = $1`, id.String(),
	).Scan(&body)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("postgres: approval gate %s: %w", id, pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("postgres: get approval gate: %w", err)
	}
	return decodeApprovalGate(body)
}

func (r *ApprovalRepository) Update(ctx context.Context, gate *domain.ApprovalGate) error {
	body, err := json.Marshal(gate)
	if err != nil {
		return fmt.Errorf("postgres: marshal approval gate: %w", err)
	}
	tag, err := r.store.pool.Exec(ctx, `
		UPDATE approval_gates SET status = $2, gate = $3 WHERE id = $1`,
		gate.ID.String(), string(gate.Status), body)
	if err != nil {
		return fmt.Errorf("postgres: update approval gate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: approval gate %s: %w", gate.ID, pgx.ErrNoRows)
	}
	return nil
}

func (r *ApprovalRepository) List(ctx context.Context, runID *domain.ID) ([]domain.ApprovalGate, error) {
	var rows pgx.Rows
	var err error
	if runID != nil {
		rows, err = r.store.pool.Query(ctx,
			`SELECT gate FROM approval_gates WHERE run_id = $1`, runID.String())
	} else {
		rows, err = r.store.pool.Query(ctx,
			`SELECT gate FROM approval_gates WHERE status = $1`, string(domain.ApprovalPending))
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list approval gates: %w", err)
	}
	defer rows.Close()

	var out []domain.ApprovalGate
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("postgres: scan approval gate: %w", err)
		}
		g, err := decodeApprovalGate(body)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func decodeApprovalGate(body []byte) (*domain.ApprovalGate, error) {
	var g domain.ApprovalGate
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal approval gate: %w", err)
	}
	return &g, nil
}
