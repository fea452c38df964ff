package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// requestApprovalLocked suspends a stage behind a human approval gate.
// Callers must hold rs.mu.
func (s *Scheduler) requestApprovalLocked(run *domain.Run, rs *RunState, stage *domain.StageDefinition, name string) {
	cfg := stage.Approval
	timeout := cfg.TimeoutMinutes
	if timeout <= 0 {
		timeout = domain.DefaultApprovalTimeoutMinutes
	}
	gate := &domain.ApprovalGate{
		ID:                  domain.NewID(domain.KindApproval),
		RunID:               run.ID,
		StageName:           name,
		RequiredApprovers:   cfg.RequiredApprovers,
		AllowedApprovers:    cfg.AllowedApprovers,
		PreventSelfApproval: cfg.PreventSelfApproval,
		TimeoutMinutes:      timeout,
		ExpiresAt:           time.Now().Add(time.Duration(timeout) * time.Minute),
		Status:              domain.ApprovalPending,
		TriggeredBy:         run.Trigger.Author,
	}
	rs.pendingApprovals[name] = gate.ID

	// Persistence and publish cross the process boundary; do them
	// without rs.mu held by deferring to a goroutine once the gate id
	// is already recorded, so a concurrent completion fold never races
	// on the same stage.
	go func() {
		ctx := context.Background()
		if err := s.approvals.Create(ctx, gate); err != nil {
			s.log.Error("failed to persist approval gate", "run_id", run.ID, "stage", name, "error", err)
			return
		}
		if err := s.eventBus.Publish(ctx, domain.ApprovalRequestedEvent{RunID: run.ID, StageName: name, GateID: gate.ID}); err != nil {
			s.log.Error("failed to publish approval request", "run_id", run.ID, "stage", name, "error", err)
		}
	}()
}

// ResolveApproval records one user's approve/reject vote against a gate
// and, once the gate reaches a terminal status, resumes or fails the
// stage it was guarding.
func (s *Scheduler) ResolveApproval(ctx context.Context, gateID domain.ID, user string, approve bool) error {
	gate, err := s.approvals.Get(ctx, gateID)
	if err != nil {
		return fmt.Errorf("scheduler: load approval gate: %w", err)
	}
	if gate.Status.IsTerminal() {
		return nil // already resolved; the stage was resumed or failed then
	}

	if approve {
		gate.Approve(user)
	} else {
		gate.Reject(user)
	}
	if err := s.approvals.Update(ctx, gate); err != nil {
		return fmt.Errorf("scheduler: persist approval gate: %w", err)
	}
	if !gate.Status.IsTerminal() {
		return nil
	}
	return s.onApprovalResolvedTerminal(ctx, gate)
}

// sweepExpiredApprovals expires any pending gate past its deadline.
// It shares the heartbeat sweeper's cadence.
func (s *Scheduler) sweepExpiredApprovals(ctx context.Context) {
	gates, err := s.approvals.List(ctx, nil)
	if err != nil {
		s.log.Error("approval sweep: failed to list gates", "error", err)
		return
	}
	now := time.Now()
	for i := range gates {
		gate := &gates[i]
		if !gate.Expire(now) {
			continue
		}
		if err := s.approvals.Update(ctx, gate); err != nil {
			s.log.Error("failed to persist expired approval gate", "gate_id", gate.ID, "error", err)
			continue
		}
		if err := s.onApprovalResolvedTerminal(ctx, gate); err != nil {
			s.log.Error("failed to resolve expired approval gate", "gate_id", gate.ID, "error", err)
		}
	}
}

// onApprovalResolvedTerminal resumes the guarded stage (Approved,
// Bypassed) or fails it outright (Rejected, Expired), then re-checks
// whether the run as a whole is now finished.
func (s *Scheduler) onApprovalResolvedTerminal(ctx context.Context, gate *domain.ApprovalGate) error {
	rs, ok := s.getRunState(gate.RunID)
	if !ok {
		return nil
	}

	rs.mu.Lock()
	delete(rs.pendingApprovals, gate.StageName)
	group := s.concurrencyGroup(rs.PipelineDef)
	var done bool
	switch gate.Status {
	case domain.ApprovalApproved, domain.ApprovalBypassed:
		nodes := rs.Graph.NodesForStage(gate.StageName)
		s.dispatchStageJobsLocked(rs.Run, rs, nodes, group)
	default: // Rejected, Expired
		rs.failedStages[gate.StageName] = true
		done = runFinishedLocked(rs)
	}
	rs.mu.Unlock()

	if err := s.eventBus.Publish(ctx, domain.ApprovalResolvedEvent{RunID: gate.RunID, StageName: gate.StageName, GateID: gate.ID, Status: gate.Status}); err != nil {
		s.log.Error("failed to publish approval resolution", "gate_id", gate.ID, "error", err)
	}

	if done {
		return s.finalizeRun(ctx, rs)
	}
	return nil
}
