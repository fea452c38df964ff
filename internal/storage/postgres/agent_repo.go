package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// AgentRepository persists domain.Agent, with labels/capabilities
// pulled into array columns so ListAvailable can filter in SQL.
type AgentRepository struct {
	store *Store
}

// NewAgentRepository builds an AgentRepository.
func NewAgentRepository(s *Store) *AgentRepository { return &AgentRepository{store: s} }

func (r *AgentRepository) Register(ctx context.Context, a *domain.Agent) error {
	if a.ID.IsZero() {
		a.ID = domain.NewID(domain.KindAgent)
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("postgres: marshal agent: %w", err)
	}
	_, err = r.store.pool.Exec(ctx, `
		INSERT INTO agents (id, name, status, labels, capabilities, agent, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			status = EXCLUDED.status,
			labels = EXCLUDED.labels,
			capabilities = EXCLUDED.capabilities,
			agent = EXCLUDED.agent,
			registered_at = EXCLUDED.registered_at`,
		a.ID.String(), a.Name, string(a.Status), a.Labels, capabilityStrings(a.Capabilities), body, a.RegisteredAt)
	if err != nil {
		return fmt.Errorf("postgres: register agent: %w", err)
	}
	return nil
}

func (r *AgentRepository) Get(ctx context.Context, id domain.ID) (*domain.Agent, error) {
	var body []byte
	err := r.store.pool.QueryRow(ctx, `SELECT agent FROM agents WHERE id = $1`, id.String()).Scan(&body)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("postgres: agent %s: %w", id, pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("postgres: get agent: %w", err)
	}
	return decodeAgent(body)
}

func (r *AgentRepository) List(ctx context.Context) ([]domain.Agent, error) {
	rows, err := r.store.pool.Query(ctx, `SELECT agent FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list agents: %w", err)
	}
	defer rows.Close()
	return scanAgents(rows)
}

func (r *AgentRepository) ListAvailable(ctx context.Context, labels []string) ([]domain.Agent, error) {
	rows, err := r.store.pool.Query(ctx, `
		SELECT agent FROM agents
		WHERE status = $1 AND ($2::text[] IS NULL OR labels @> $2)
		ORDER BY name`,
		string(domain.AgentIdle), nullableTextArray(labels))
	if err != nil {
		return nil, fmt.Errorf("postgres: list available agents: %w", err)
	}
	defer rows.Close()
	return scanAgents(rows)
}

func (r *AgentRepository) Update(ctx context.Context, a *domain.Agent) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("postgres: marshal agent: %w", err)
	}
	tag, err := r.store.pool.Exec(ctx, `
		UPDATE agents
		SET status = $2, labels = $3, capabilities = $4, agent = $5, last_heartbeat_at = $6
		WHERE id = $1`,
		a.ID.String(), string(a.Status), a.Labels, capabilityStrings(a.Capabilities), body, a.LastHeartbeatAt)
	if err != nil {
		return fmt.Errorf("postgres: update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: agent %s: %w", a.ID, pgx.ErrNoRows)
	}
	return nil
}

func (r *AgentRepository) Heartbeat(ctx context.Context, id domain.ID, metrics map[string]float64) error {
	a, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	a.LastHeartbeatAt = &now
	a.SystemMetrics = metrics
	return r.Update(ctx, a)
}

func (r *AgentRepository) Deregister(ctx context.Context, id domain.ID) error {
	_, err := r.store.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("postgres: deregister agent: %w", err)
	}
	return nil
}

func (r *AgentRepository) GetStale(ctx context.Context, thresholdSeconds int) ([]domain.Agent, error) {
	rows, err := r.store.pool.Query(ctx, `
		SELECT agent FROM agents
		WHERE status != $1
		  AND (last_heartbeat_at IS NULL OR last_heartbeat_at < now() - ($2 || ' seconds')::interval)`,
		string(domain.AgentOffline), thresholdSeconds)
	if err != nil {
		return nil, fmt.Errorf("postgres: get stale agents: %w", err)
	}
	defer rows.Close()
	return scanAgents(rows)
}

func scanAgents(rows pgx.Rows) ([]domain.Agent, error) {
	var out []domain.Agent
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("postgres: scan agent: %w", err)
		}
		a, err := decodeAgent(body)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func decodeAgent(body []byte) (*domain.Agent, error) {
	var a domain.Agent
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal agent: %w", err)
	}
	return &a, nil
}

func capabilityStrings(caps []domain.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

func nullableTextArray(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	return labels
}
