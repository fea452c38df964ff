package scheduler

import (
	"github.com/codeready-toolchain/orcaci/internal/condition"
	"github.com/codeready-toolchain/orcaci/internal/dag"
	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// startStageLocked starts one logical stage: it evaluates the stage's
// condition, and either marks it Skipped and cascades to its
// successors directly (a false condition counts as Success for
// successor readiness), or enqueues one QueuedJob per matrix variant.
// Callers must hold rs.mu.
func (s *Scheduler) startStageLocked(run *domain.Run, rs *RunState, name, concurrencyGroup string) {
	if rs.startedStages[name] {
		return
	}
	rs.startedStages[name] = true

	nodes := rs.Graph.NodesForStage(name)
	if len(nodes) == 0 {
		return
	}
	stage := nodes[0].Stage

	scope := condition.Scope{Variables: mergeVariables(rs.PipelineDef.Variables, run.Variables)}
	if !condition.EvaluateCondition(stage.Condition, scope) {
		rs.completedStages[name] = true
		s.advanceSuccessorsLocked(run, rs, name, concurrencyGroup)
		return
	}

	if stage.Approval != nil {
		s.requestApprovalLocked(run, rs, stage, name)
		return
	}

	s.dispatchStageJobsLocked(run, rs, nodes, concurrencyGroup)
}

// dispatchStageJobsLocked enqueues one QueuedJob per matrix variant of
// an already-cleared stage (no condition/approval left to evaluate).
// Callers must hold rs.mu.
func (s *Scheduler) dispatchStageJobsLocked(run *domain.Run, rs *RunState, nodes []*dag.Node, concurrencyGroup string) {
	for _, node := range nodes {
		key := jobKey(node.StageName, node.JobIndex)
		attempt := rs.jobAttempts[key] + 1
		rs.jobAttempts[key] = attempt
		s.enqueueNode(run, node, concurrencyGroup, attempt)
	}
}

// advanceSuccessorsLocked starts every successor of name whose
// dependencies are now all satisfied. A run already cancelled or
// timed out never starts new stages — a completion that raced the
// cancellation must not resurrect fan-out for it. Callers must hold
// rs.mu.
func (s *Scheduler) advanceSuccessorsLocked(run *domain.Run, rs *RunState, name, concurrencyGroup string) {
	if rs.cancelled || rs.timedOut {
		return
	}
	for _, succ := range rs.Graph.Successors(name) {
		if rs.Graph.IsReady(succ.StageName, rs.completedStages) {
			s.startStageLocked(run, rs, succ.StageName, concurrencyGroup)
		}
	}
}

// runFinishedLocked reports whether every logical stage in the run's
// graph has reached a terminal outcome (completed or failed). Callers
// must hold rs.mu.
func runFinishedLocked(rs *RunState) bool {
	for _, name := range rs.Graph.StageNames() {
		if !rs.completedStages[name] && !rs.failedStages[name] {
			return false
		}
	}
	return true
}

func mergeVariables(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func (s *Scheduler) concurrencyGroup(p *domain.PipelineDefinition) string {
	if p.Concurrency != nil {
		return p.Concurrency.Group
	}
	return ""
}
