package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/orcaci/internal/bus"
	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/codeready-toolchain/orcaci/internal/queue"
	"github.com/codeready-toolchain/orcaci/internal/scheduler"
)

// fakePipelines is a minimal in-memory PipelineRepository backing one
// fixed catalog, enough to drive HandleTrigger's List-paging loop.
type fakePipelines struct {
	defs []*domain.PipelineDefinition
}

func (f *fakePipelines) Create(context.Context, *domain.PipelineDefinition) (domain.ID, error) {
	return domain.ID{}, nil
}
func (f *fakePipelines) Get(context.Context, domain.ID) (*domain.PipelineDefinition, error) {
	return nil, nil
}
func (f *fakePipelines) GetByName(context.Context, string) (*domain.PipelineDefinition, error) {
	return nil, nil
}
func (f *fakePipelines) List(ctx context.Context, limit, offset int) ([]*domain.PipelineDefinition, error) {
	if offset >= len(f.defs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.defs) {
		end = len(f.defs)
	}
	return f.defs[offset:end], nil
}
func (f *fakePipelines) Update(context.Context, domain.ID, *domain.PipelineDefinition) error {
	return nil
}
func (f *fakePipelines) Delete(context.Context, domain.ID) error { return nil }

// fakeRuns is a minimal in-memory RunRepository.
type fakeRuns struct {
	mu   sync.Mutex
	byID map[domain.ID]*domain.Run
	seq  map[domain.ID]int64
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{byID: make(map[domain.ID]*domain.Run), seq: make(map[domain.ID]int64)}
}
func (f *fakeRuns) Create(ctx context.Context, run *domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[run.ID] = run
	return nil
}
func (f *fakeRuns) Get(ctx context.Context, id domain.ID) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}
func (f *fakeRuns) GetByPipeline(context.Context, domain.ID, int, int) ([]*domain.Run, error) {
	return nil, nil
}
func (f *fakeRuns) NextRunNumber(ctx context.Context, pipelineID domain.ID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq[pipelineID]++
	return f.seq[pipelineID], nil
}
func (f *fakeRuns) Update(ctx context.Context, run *domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[run.ID] = run
	return nil
}
func (f *fakeRuns) GetQueued(context.Context, int) ([]*domain.Run, error) { return nil, nil }

// fakeAgents is a minimal in-memory AgentRepository.
type fakeAgents struct {
	mu   sync.Mutex
	byID map[domain.ID]*domain.Agent
}

func newFakeAgents() *fakeAgents { return &fakeAgents{byID: make(map[domain.ID]*domain.Agent)} }
func (f *fakeAgents) Register(ctx context.Context, a *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[a.ID] = a
	return nil
}
func (f *fakeAgents) Get(ctx context.Context, id domain.ID) (*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}
func (f *fakeAgents) List(context.Context) ([]domain.Agent, error) { return nil, nil }
func (f *fakeAgents) ListAvailable(ctx context.Context, labels []string) ([]domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Agent, 0, len(f.byID))
	for _, a := range f.byID {
		out = append(out, *a)
	}
	return out, nil
}
func (f *fakeAgents) Update(ctx context.Context, a *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[a.ID] = a
	return nil
}
func (f *fakeAgents) Heartbeat(context.Context, domain.ID, map[string]float64) error { return nil }
func (f *fakeAgents) Deregister(context.Context, domain.ID) error                    { return nil }
func (f *fakeAgents) GetStale(context.Context, int) ([]domain.Agent, error)          { return nil, nil }

// fakeApprovals is a minimal in-memory ApprovalRepository, unused by
// these pipelines (none has an approval gate) but required to satisfy
// the constructor.
type fakeApprovals struct{}

func (fakeApprovals) Create(context.Context, *domain.ApprovalGate) error { return nil }
func (fakeApprovals) Get(context.Context, domain.ID) (*domain.ApprovalGate, error) {
	return nil, nil
}
func (fakeApprovals) Update(context.Context, *domain.ApprovalGate) error { return nil }
func (fakeApprovals) List(context.Context, *domain.ID) ([]domain.ApprovalGate, error) {
	return nil, nil
}

// TestScheduler_SingleStageRunSucceeds drives one push trigger through
// the full loop: trigger matching, run start, dispatch to the lone
// idle agent, and completion fold into RunCompleted.
func TestScheduler_SingleStageRunSucceeds(t *testing.T) {
	pipeline := &domain.PipelineDefinition{
		ID:   domain.NewID(domain.KindPipeline),
		Name: "build",
		Stages: []domain.StageDefinition{
			{Name: "build", Steps: []domain.StepDefinition{{Name: "compile", Run: "make"}}},
		},
	}

	b := bus.NewMemBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs, err := b.Subscribe(ctx, "agent.*.job", bus.SubscribeOptions{})
	require.NoError(t, err)
	defer jobs.Close()

	completed, err := b.Subscribe(ctx, "run.completed.*.*", bus.SubscribeOptions{})
	require.NoError(t, err)
	defer completed.Close()

	agents := newFakeAgents()
	agentID := domain.NewID(domain.KindAgent)
	require.NoError(t, agents.Register(ctx, &domain.Agent{
		ID:           agentID,
		Name:         "runner-1",
		Capabilities: []domain.Capability{domain.CapabilityDocker},
		Status:       domain.AgentIdle,
		RegisteredAt: time.Now(),
	}))

	sched := scheduler.New(
		&fakePipelines{defs: []*domain.PipelineDefinition{pipeline}},
		newFakeRuns(),
		agents,
		fakeApprovals{},
		b,
		queue.Limits{},
		scheduler.Config{
			DispatchWorkers:      1,
			HeartbeatInterval:    time.Hour,
			DispatchPollInterval: 10 * time.Millisecond,
			CompletionGroup:      "scheduler",
		},
	)
	require.NoError(t, sched.Start(ctx))
	defer sched.Stop()

	require.NoError(t, sched.HandleTrigger(ctx, domain.TriggerEvent{Type: domain.TriggerPush, Branch: "main"}))

	var assigned domain.JobAssignedEvent
	select {
	case d := <-jobs.Deliveries():
		var ok bool
		assigned, ok = d.Event.(domain.JobAssignedEvent)
		require.True(t, ok)
		require.NoError(t, d.Ack())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job assignment")
	}
	assert.Equal(t, "build", assigned.Stage.Name)
	assert.Equal(t, agentID, assigned.AgentID)

	require.NoError(t, b.Publish(ctx, domain.StageCompletedEvent{
		RunID:     assigned.RunID,
		StageName: assigned.Stage.Name,
		Status:    domain.StageSuccess,
		AgentID:   agentID,
	}))

	select {
	case d := <-completed.Deliveries():
		evt, ok := d.Event.(domain.RunCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, domain.RunSuccess, evt.Status)
		require.NoError(t, d.Ack())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run completion")
	}
}

// TestScheduler_CancelRunStopsFanOut drives a two-stage pipeline
// ("build" -> "deploy"), cancels the run while "build" is in flight,
// and then delivers "build"'s success. "deploy" must never dispatch,
// and the run must finalize Cancelled rather than Success.
func TestScheduler_CancelRunStopsFanOut(t *testing.T) {
	pipeline := &domain.PipelineDefinition{
		ID:   domain.NewID(domain.KindPipeline),
		Name: "build-deploy",
		Stages: []domain.StageDefinition{
			{Name: "build", Steps: []domain.StepDefinition{{Name: "compile", Run: "make"}}},
			{Name: "deploy", DependsOn: []string{"build"}, Steps: []domain.StepDefinition{{Name: "ship", Run: "deploy.sh"}}},
		},
	}

	b := bus.NewMemBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs, err := b.Subscribe(ctx, "agent.*.job", bus.SubscribeOptions{})
	require.NoError(t, err)
	defer jobs.Close()

	completed, err := b.Subscribe(ctx, "run.completed.*.*", bus.SubscribeOptions{})
	require.NoError(t, err)
	defer completed.Close()

	agents := newFakeAgents()
	agentID := domain.NewID(domain.KindAgent)
	require.NoError(t, agents.Register(ctx, &domain.Agent{
		ID:           agentID,
		Name:         "runner-1",
		Capabilities: []domain.Capability{domain.CapabilityDocker},
		Status:       domain.AgentIdle,
		RegisteredAt: time.Now(),
	}))

	sched := scheduler.New(
		&fakePipelines{defs: []*domain.PipelineDefinition{pipeline}},
		newFakeRuns(),
		agents,
		fakeApprovals{},
		b,
		queue.Limits{},
		scheduler.Config{
			DispatchWorkers:      1,
			HeartbeatInterval:    time.Hour,
			DispatchPollInterval: 10 * time.Millisecond,
			CompletionGroup:      "scheduler",
		},
	)
	require.NoError(t, sched.Start(ctx))
	defer sched.Stop()

	require.NoError(t, sched.HandleTrigger(ctx, domain.TriggerEvent{Type: domain.TriggerPush, Branch: "main"}))

	var assigned domain.JobAssignedEvent
	select {
	case d := <-jobs.Deliveries():
		var ok bool
		assigned, ok = d.Event.(domain.JobAssignedEvent)
		require.True(t, ok)
		require.Equal(t, "build", assigned.Stage.Name)
		require.NoError(t, d.Ack())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job assignment")
	}

	require.NoError(t, sched.CancelRun(ctx, assigned.RunID))

	select {
	case d := <-completed.Deliveries():
		evt, ok := d.Event.(domain.RunCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, domain.RunCancelled, evt.Status)
		require.NoError(t, d.Ack())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run cancellation")
	}

	// "build" finally reports success after the cancellation; this must
	// not resurrect the run or dispatch "deploy".
	require.NoError(t, b.Publish(ctx, domain.StageCompletedEvent{
		RunID:     assigned.RunID,
		StageName: assigned.Stage.Name,
		Status:    domain.StageSuccess,
		AgentID:   agentID,
	}))

	select {
	case d := <-jobs.Deliveries():
		evt, ok := d.Event.(domain.JobAssignedEvent)
		require.True(t, ok)
		t.Fatalf("stage %q should never dispatch for a cancelled run", evt.Stage.Name)
	case <-time.After(200 * time.Millisecond):
	}
}
