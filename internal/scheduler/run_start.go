package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/dag"
	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// startRun builds the DAG, allocates a run number, persists a new Run
// record, inserts it into active_runs, queues every ready root stage
// (one job per matrix variant), and publishes RunQueued.
func (s *Scheduler) startRun(ctx context.Context, p *domain.PipelineDefinition, trig domain.TriggerEvent) error {
	graph, err := dag.Build(p)
	if err != nil {
		// A cycle or unknown dependency refuses the run at start; the
		// caller (trigger handling) logs this and no Run is created.
		return fmt.Errorf("scheduler: dag build for %q: %w", p.Name, err)
	}

	runNumber, err := s.runs.NextRunNumber(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("scheduler: allocate run number: %w", err)
	}

	run := &domain.Run{
		ID:           domain.NewID(domain.KindRun),
		PipelineID:   p.ID,
		PipelineName: p.Name,
		RunNumber:    runNumber,
		Status:       domain.RunQueued,
		Trigger:      trig,
		GitRef:       trig.GitRef,
		GitSHA:       trig.GitSHA,
		Variables:    p.Variables,
		QueuedAt:     time.Now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("scheduler: persist run: %w", err)
	}

	rs := &RunState{
		Run:              run,
		PipelineDef:      p,
		Graph:            graph,
		completedStages:  make(map[string]bool),
		failedStages:     make(map[string]bool),
		startedStages:    make(map[string]bool),
		jobStatus:        make(map[string]domain.StageStatus),
		jobAttempts:      make(map[string]int),
		pendingApprovals: make(map[string]domain.ID),
	}
	s.runsMu.Lock()
	s.activeRuns[run.ID] = rs
	s.runsMu.Unlock()

	group := s.concurrencyGroup(p)
	rs.mu.Lock()
	for _, name := range graph.StageNames() {
		if graph.IsReady(name, rs.completedStages) {
			s.startStageLocked(run, rs, name, group)
		}
	}
	rs.mu.Unlock()

	return s.eventBus.Publish(ctx, domain.RunQueuedEvent{
		RunID:        run.ID,
		PipelineID:   p.ID,
		PipelineName: p.Name,
	})
}

// enqueueNode pushes one DAG node onto the queue as a QueuedJob at the
// given attempt number. concurrencyGroup is the pipeline's declared
// concurrency.group, shared by every job of every run of that
// pipeline.
func (s *Scheduler) enqueueNode(run *domain.Run, node *dag.Node, concurrencyGroup string, attempt int) {
	s.queue.Enqueue(domain.QueuedJob{
		RunID:            run.ID,
		PipelineID:       run.PipelineID,
		StageName:        node.StageName,
		JobIndex:         node.JobIndex,
		Priority:         domain.PriorityNormal,
		QueuedAt:         time.Now(),
		Labels:           stageLabels(node),
		Capabilities:     node.Stage.Environment.RequiredCapabilities(),
		ConcurrencyGroup: concurrencyGroup,
		Attempt:          attempt,
	})
}

// jobKey identifies a (stage, variant) pair the way domain.QueuedJob.Key
// does, for RunState's per-job bookkeeping.
func jobKey(stageName string, jobIndex *int) string {
	return domain.QueuedJob{StageName: stageName, JobIndex: jobIndex}.Key()
}

func stageLabels(node *dag.Node) []string {
	if node.Stage.Agent == nil {
		return nil
	}
	return node.Stage.Agent.Labels
}
