package scheduler

import (
	"context"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// CancelRun marks the run cancelled, drops its queued-but-not-dispatched
// jobs, and finalizes it immediately rather than waiting on whatever
// jobs are still in flight — like a timeout, a cancellation is
// terminal regardless of in-flight completions. Any job already
// running finishes on the agent side, but its completion event finds
// the run already evicted from active_runs and is a harmless no-op
// (see advanceSuccessorsLocked's cancelled/timedOut guard for the
// narrower race where a completion is already past that check).
func (s *Scheduler) CancelRun(ctx context.Context, runID domain.ID) error {
	rs, ok := s.getRunState(runID)
	if !ok {
		return nil
	}

	rs.mu.Lock()
	rs.cancelled = true
	rs.mu.Unlock()

	dropped := s.queue.RemoveByRun(runID)
	s.log.Info("run cancelled", "run_id", runID, "jobs_dropped", dropped)

	if err := s.eventBus.Publish(ctx, domain.RunCancelledEvent{RunID: runID}); err != nil {
		return err
	}

	return s.finalizeRun(ctx, rs)
}

// runHeartbeatSweeper periodically declares agents stale and recovers
// any job they were running, and expires overdue approval gates.
func (s *Scheduler) runHeartbeatSweeper(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	threshold := domain.StaleThreshold(s.cfg.HeartbeatInterval)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStaleAgents(ctx, threshold)
			s.sweepExpiredApprovals(ctx)
			s.sweepTimedOutRuns(ctx)
		}
	}
}

func (s *Scheduler) sweepStaleAgents(ctx context.Context, threshold time.Duration) {
	stale, err := s.agents.GetStale(ctx, int(threshold.Seconds()))
	if err != nil {
		s.log.Error("heartbeat sweep: failed to list stale agents", "error", err)
		return
	}
	for _, agent := range stale {
		s.recoverStaleAgent(ctx, agent)
	}
}

// recoverStaleAgent marks a stale agent Offline and, if it was running
// a job, re-queues that job as a fresh attempt.
func (s *Scheduler) recoverStaleAgent(ctx context.Context, agent domain.Agent) {
	runID := agent.CurrentRunID
	agent.Status = domain.AgentOffline
	agent.CurrentRunID = nil
	if err := s.agents.Update(ctx, &agent); err != nil {
		s.log.Error("failed to mark stale agent offline", "agent_id", agent.ID, "error", err)
		return
	}
	if err := s.eventBus.Publish(ctx, domain.AgentDisconnectedEvent{AgentID: agent.ID}); err != nil {
		s.log.Error("failed to publish agent disconnection", "agent_id", agent.ID, "error", err)
	}

	if runID == nil {
		return
	}
	rs, ok := s.getRunState(*runID)
	if !ok {
		return
	}
	s.requeueAgentJobs(ctx, rs, agent.ID)
}

// requeueAgentJobs re-dispatches every job this run believes is
// running on the disconnected agent. Since job-level agent assignment
// isn't tracked on RunState beyond the dispatch event, this
// conservatively re-queues every job of the run's running stages that
// have not yet completed. Each re-queue increments the job's attempt
// counter; the stage's retry policy is not consulted, so the number of
// re-queues is not bounded by it.
func (s *Scheduler) requeueAgentJobs(ctx context.Context, rs *RunState, agentID domain.ID) {
	rs.mu.Lock()
	group := s.concurrencyGroup(rs.PipelineDef)
	requeued := 0
	for _, name := range rs.Graph.StageNames() {
		if rs.completedStages[name] || rs.failedStages[name] || !rs.startedStages[name] {
			continue
		}
		for _, n := range rs.Graph.NodesForStage(name) {
			key := jobKey(n.StageName, n.JobIndex)
			if _, done := rs.jobStatus[key]; done {
				continue
			}
			rs.jobAttempts[key]++
			s.enqueueNode(rs.Run, n, group, rs.jobAttempts[key])
			requeued++
		}
	}
	rs.mu.Unlock()
	if requeued > 0 {
		s.log.Warn("re-queued jobs after agent disconnection", "agent_id", agentID, "jobs", requeued)
	}
}
