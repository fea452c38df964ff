package scheduler

import (
	"context"
	"time"
)

// sweepTimedOutRuns force-finalizes any active run whose pipeline
// timeout has elapsed since it started. Outstanding jobs are dropped
// from the queue the same way CancelRun drops them; in-flight jobs may
// still report completion afterward, but the run is already gone from
// active_runs by then, so their completion is a harmless no-op.
func (s *Scheduler) sweepTimedOutRuns(ctx context.Context) {
	s.runsMu.RLock()
	candidates := make([]*RunState, 0, len(s.activeRuns))
	for _, rs := range s.activeRuns {
		candidates = append(candidates, rs)
	}
	s.runsMu.RUnlock()

	now := time.Now()
	for _, rs := range candidates {
		s.expireRunIfTimedOut(ctx, rs, now)
	}
}

func (s *Scheduler) expireRunIfTimedOut(ctx context.Context, rs *RunState, now time.Time) {
	rs.mu.Lock()
	run := rs.Run
	if run.StartedAt == nil || rs.cancelled || rs.timedOut {
		rs.mu.Unlock()
		return
	}
	deadline := run.StartedAt.Add(rs.PipelineDef.EffectiveTimeout())
	if now.Before(deadline) {
		rs.mu.Unlock()
		return
	}
	rs.timedOut = true
	rs.mu.Unlock()

	dropped := s.queue.RemoveByRun(run.ID)
	s.log.Warn("run timed out", "run_id", run.ID, "pipeline", run.PipelineName, "jobs_dropped", dropped)

	// A timeout is terminal regardless of in-flight jobs: finalize now
	// rather than waiting on completions that may never arrive.
	if err := s.finalizeRun(ctx, rs); err != nil {
		s.log.Error("failed to finalize timed-out run", "run_id", run.ID, "error", err)
	}
}
