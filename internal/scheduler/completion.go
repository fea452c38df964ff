package scheduler

import (
	"context"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/bus"
	"github.com/codeready-toolchain/orcaci/internal/dag"
	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// consumeCompletions drains the shared "run.*.stage.*.completed"
// subscription and folds each delivery into the owning run's state.
// Exactly one scheduler replica in the CompletionGroup processes a
// given event, since the subscription joins a consumer group.
func (s *Scheduler) consumeCompletions(ctx context.Context, sub bus.Subscription) {
	defer s.wg.Done()
	defer sub.Close()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case d, ok := <-sub.Deliveries():
			if !ok {
				return
			}
			event, ok := d.Event.(domain.StageCompletedEvent)
			if !ok {
				s.log.Warn("completion consumer: unexpected event type on stage-completed subject", "subject", d.Subject)
				_ = d.Ack()
				continue
			}
			if err := s.handleStageCompleted(ctx, event); err != nil {
				s.log.Error("failed to process stage completion", "run_id", event.RunID, "stage", event.StageName, "error", err)
				_ = d.Nak()
				continue
			}
			_ = d.Ack()
		}
	}
}

// handleStageCompleted folds one job's completion into its run: retry
// on failure, per-variant aggregation into the logical stage's
// terminal outcome, successor fan-out, and run finalization.
func (s *Scheduler) handleStageCompleted(ctx context.Context, event domain.StageCompletedEvent) error {
	rs, ok := s.getRunState(event.RunID)
	if !ok {
		// The run already finalized (e.g. cancelled); a late completion
		// from an in-flight job is expected and harmless.
		return nil
	}

	rs.mu.Lock()
	finished, runDone := s.foldCompletionLocked(rs, event)
	group := s.concurrencyGroup(rs.PipelineDef)
	var retryNode *dag.Node
	var retryAttempt int
	if !finished {
		retryNode, retryAttempt = s.scheduleRetryLocked(rs, event)
	}
	rs.mu.Unlock()

	if retryNode != nil {
		delay := retryNode.Stage.Retry.Delay(retryAttempt)
		go s.retryAfter(ctx, rs.Run, retryNode, group, retryAttempt, delay)
		return nil
	}

	if runDone {
		return s.finalizeRun(ctx, rs)
	}
	return nil
}

// foldCompletionLocked records one job's outcome and, once every
// variant of its logical stage has reported, marks the stage
// completed/failed and fans out to successors. It returns whether the
// job's stage already reached a terminal per-job outcome (false means
// a retry may still be scheduled) and whether the whole run is now
// finished. Callers must hold rs.mu.
func (s *Scheduler) foldCompletionLocked(rs *RunState, event domain.StageCompletedEvent) (finished, runDone bool) {
	key := jobKey(event.StageName, event.JobIndex)

	if event.Status == domain.StageFailure {
		nodes := rs.Graph.NodesForStage(event.StageName)
		var retry *domain.RetryPolicy
		if len(nodes) > 0 {
			retry = nodes[0].Stage.Retry
		}
		attempt := rs.jobAttempts[key]
		if retry != nil && attempt < retry.MaxAttempts {
			return false, false
		}
	}

	rs.jobStatus[key] = event.Status

	nodes := rs.Graph.NodesForStage(event.StageName)
	for _, n := range nodes {
		if _, done := rs.jobStatus[jobKey(n.StageName, n.JobIndex)]; !done {
			return true, false
		}
	}

	stageFailed := false
	for _, n := range nodes {
		if rs.jobStatus[jobKey(n.StageName, n.JobIndex)] == domain.StageFailure {
			stageFailed = true
			break
		}
	}
	if stageFailed {
		rs.failedStages[event.StageName] = true
	} else {
		rs.completedStages[event.StageName] = true
		s.advanceSuccessorsLocked(rs.Run, rs, event.StageName, s.concurrencyGroup(rs.PipelineDef))
	}

	return true, runFinishedLocked(rs)
}

// scheduleRetryLocked returns the node and next attempt number for a
// failed job still under retry budget, or (nil, 0) otherwise. Callers
// must hold rs.mu.
func (s *Scheduler) scheduleRetryLocked(rs *RunState, event domain.StageCompletedEvent) (*dag.Node, int) {
	for _, n := range rs.Graph.NodesForStage(event.StageName) {
		if jobKey(n.StageName, n.JobIndex) == jobKey(event.StageName, event.JobIndex) {
			attempt := rs.jobAttempts[jobKey(n.StageName, n.JobIndex)] + 1
			rs.jobAttempts[jobKey(n.StageName, n.JobIndex)] = attempt
			return n, attempt
		}
	}
	return nil, 0
}

// retryAfter re-enqueues a failed job after its retry delay. It is always run in its own goroutine so the
// completion consumer is never blocked waiting on a backoff.
func (s *Scheduler) retryAfter(ctx context.Context, run *domain.Run, node *dag.Node, concurrencyGroup string, attempt int, delay time.Duration) {
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
	s.enqueueNode(run, node, concurrencyGroup, attempt)
}

// finalizeRun computes the run's terminal status from its stage
// outcomes, persists it, publishes RunCompleted, and evicts it from
// active_runs.
func (s *Scheduler) finalizeRun(ctx context.Context, rs *RunState) error {
	rs.mu.Lock()
	run := rs.Run
	status := domain.RunSuccess
	var reason *domain.FailureReason
	if rs.timedOut {
		status = domain.RunTimeout
	} else if rs.cancelled {
		status = domain.RunCancelled
	} else if len(rs.failedStages) > 0 {
		status = domain.RunFailure
		reason = s.firstFailureReasonLocked(rs)
	}
	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	run.FailureReason = reason
	if run.StartedAt != nil {
		d := now.Sub(*run.StartedAt).Milliseconds()
		run.DurationMS = &d
	}
	rs.mu.Unlock()

	if err := s.runs.Update(ctx, run); err != nil {
		return err
	}

	s.runsMu.Lock()
	delete(s.activeRuns, run.ID)
	s.runsMu.Unlock()

	var durationMS int64
	if run.DurationMS != nil {
		durationMS = *run.DurationMS
	}
	return s.eventBus.Publish(ctx, domain.RunCompletedEvent{
		RunID:         run.ID,
		PipelineName:  run.PipelineName,
		Status:        status,
		FailureReason: reason,
		DurationMS:    durationMS,
	})
}

// firstFailureReasonLocked picks the lowest-ordinal failed stage (by
// topological position) for the run's user-visible FailureReason.
// Callers must hold rs.mu.
func (s *Scheduler) firstFailureReasonLocked(rs *RunState) *domain.FailureReason {
	for _, n := range rs.Graph.TopologicalOrder() {
		if rs.failedStages[n.StageName] {
			return &domain.FailureReason{FirstFailingStage: n.StageName}
		}
	}
	return nil
}
