// Package scheduler is the orchestrator tying the DAG builder, queue,
// agent matcher, event bus, condition evaluator, and trigger matcher
// together into one run lifecycle.
package scheduler

import (
	"context"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// PipelineRepository is the persistence port for pipeline definitions.
type PipelineRepository interface {
	Create(ctx context.Context, p *domain.PipelineDefinition) (domain.ID, error)
	Get(ctx context.Context, id domain.ID) (*domain.PipelineDefinition, error)
	GetByName(ctx context.Context, name string) (*domain.PipelineDefinition, error)
	List(ctx context.Context, limit, offset int) ([]*domain.PipelineDefinition, error)
	Update(ctx context.Context, id domain.ID, p *domain.PipelineDefinition) error
	Delete(ctx context.Context, id domain.ID) error
}

// RunRepository is the persistence port for runs. NextRunNumber must be allocated atomically under a
// transaction that prevents duplicates.
type RunRepository interface {
	Create(ctx context.Context, run *domain.Run) error
	Get(ctx context.Context, id domain.ID) (*domain.Run, error)
	GetByPipeline(ctx context.Context, pipelineID domain.ID, limit, offset int) ([]*domain.Run, error)
	NextRunNumber(ctx context.Context, pipelineID domain.ID) (int64, error)
	Update(ctx context.Context, run *domain.Run) error
	GetQueued(ctx context.Context, limit int) ([]*domain.Run, error)
}

// AgentRepository is the persistence port for the agent registry.
type AgentRepository interface {
	Register(ctx context.Context, a *domain.Agent) error
	Get(ctx context.Context, id domain.ID) (*domain.Agent, error)
	List(ctx context.Context) ([]domain.Agent, error)
	ListAvailable(ctx context.Context, labels []string) ([]domain.Agent, error)
	Update(ctx context.Context, a *domain.Agent) error
	Heartbeat(ctx context.Context, id domain.ID, metrics map[string]float64) error
	Deregister(ctx context.Context, id domain.ID) error
	GetStale(ctx context.Context, thresholdSeconds int) ([]domain.Agent, error)
}

// ApprovalRepository is the persistence port for approval gates.
type ApprovalRepository interface {
	Create(ctx context.Context, gate *domain.ApprovalGate) error
	Get(ctx context.Context, id domain.ID) (*domain.ApprovalGate, error)
	Update(ctx context.Context, gate *domain.ApprovalGate) error
	List(ctx context.Context, runID *domain.ID) ([]domain.ApprovalGate, error)
}
