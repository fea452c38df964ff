package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/dag"
	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/codeready-toolchain/orcaci/internal/matcher"
)

// errNoAvailableAgent signals dispatchWorker to re-queue the job and
// back off; no agent being available is a recoverable, wait-and-retry
// condition rather than a failure.
var errNoAvailableAgent = errors.New("scheduler: no available agent for job")

// dispatchWorker is one member of the dispatcher pool that drives the
// dispatch loop.
func (s *Scheduler) dispatchWorker(ctx context.Context, id int) {
	defer s.wg.Done()
	log := s.log.With("dispatch_worker", id)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, ok := s.queue.Dequeue()
		if !ok {
			s.sleep(s.cfg.DispatchPollInterval)
			continue
		}

		if err := s.dispatchOne(ctx, job); err != nil {
			log.Warn("dispatch attempt failed, re-queueing", "run_id", job.RunID, "stage", job.StageName, "error", err)
			s.queue.Complete(job) // release the slot dequeue already claimed
			s.queue.Enqueue(job)
			s.sleep(s.cfg.DispatchPollInterval)
		}
	}
}

// dispatchOne finds the best agent for job, marks it Busy, publishes
// StageStarted, and hands the job to the agent over the bus.
func (s *Scheduler) dispatchOne(ctx context.Context, job domain.QueuedJob) error {
	rs, ok := s.getRunState(job.RunID)
	if !ok {
		// The run finished or was cancelled between enqueue and
		// dispatch; drop the job rather than dispatching into the void.
		s.queue.Complete(job)
		return nil
	}

	node := findNode(rs.Graph, job)
	if node == nil {
		s.queue.Complete(job)
		return nil
	}

	req := matcher.Request{Labels: job.Labels, Capabilities: job.Capabilities}
	if node.Stage.Agent != nil {
		req.AgentName = node.Stage.Agent.Name
	}

	agents, err := s.matcherSnapshot(ctx, job.Labels)
	if err != nil {
		return err
	}
	agent, ok := matcher.FindBest(agents, req)
	if !ok {
		// No agent available: wait. Returning an error here routes back
		// through dispatchWorker's re-queue path.
		return errNoAvailableAgent
	}

	runID := agent.ID
	agent.Status = domain.AgentBusy
	agent.CurrentRunID = &job.RunID
	if err := s.agents.Update(ctx, agent); err != nil {
		return err
	}

	rs.mu.Lock()
	firstStage := rs.Run.StartedAt == nil
	if firstStage {
		now := time.Now()
		rs.Run.StartedAt = &now
		rs.Run.Status = domain.RunRunning
	}
	rs.mu.Unlock()
	if firstStage {
		if err := s.eventBus.Publish(ctx, domain.RunStartedEvent{RunID: job.RunID, PipelineName: rs.PipelineDef.Name}); err != nil {
			return err
		}
	}

	if err := s.eventBus.Publish(ctx, domain.StageStartedEvent{
		RunID:     job.RunID,
		StageName: job.StageName,
		JobIndex:  job.JobIndex,
		AgentID:   runID,
	}); err != nil {
		return err
	}

	return s.eventBus.Publish(ctx, domain.JobAssignedEvent{
		AgentID:      runID,
		RunID:        job.RunID,
		PipelineID:   job.PipelineID,
		PipelineName: rs.PipelineDef.Name,
		Stage:        *node.Stage,
		StageIndex:   stageIndex(node),
		Variables:    node.Variables,
	})
}

func findNode(g *dag.Graph, job domain.QueuedJob) *dag.Node {
	for _, n := range g.NodesForStage(job.StageName) {
		if sameVariant(n.JobIndex, job.JobIndex) {
			return n
		}
	}
	return nil
}

func sameVariant(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stageIndex(node *dag.Node) int {
	if node.JobIndex != nil {
		return *node.JobIndex
	}
	return 0
}
