package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/bus"
	"github.com/codeready-toolchain/orcaci/internal/dag"
	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/codeready-toolchain/orcaci/internal/queue"
	"github.com/codeready-toolchain/orcaci/internal/trigger"
)

// RunState is the scheduler's in-memory view of one active run,
// tracking its DAG progress between dispatch and completion events.
type RunState struct {
	Run         *domain.Run
	PipelineDef *domain.PipelineDefinition
	Graph       *dag.Graph

	mu               sync.Mutex
	completedStages  map[string]bool
	failedStages     map[string]bool
	startedStages    map[string]bool               // logical stages already enqueued or skipped, to dedupe fan-in
	jobStatus        map[string]domain.StageStatus // job key -> terminal status, once reported
	jobAttempts      map[string]int                // job key -> attempts made so far
	pendingApprovals map[string]domain.ID          // stage name -> open ApprovalGate id
	cancelled        bool
	timedOut         bool
}

// Config tunes the scheduler's concurrency model.
type Config struct {
	// DispatchWorkers is the size of the dispatcher pool.
	DispatchWorkers int
	// HeartbeatInterval is how often the sweeper checks for stale agents.
	HeartbeatInterval time.Duration
	// DispatchPollInterval is how long an idle dispatch worker waits
	// before retrying an empty or fully-blocked queue.
	DispatchPollInterval time.Duration
	// CompletionGroup names the consumer group the completion
	// subscriber joins, so exactly one scheduler replica handles each
	// StageCompleted event.
	CompletionGroup string
}

// DefaultConfig returns the scheduler's baseline tuning.
func DefaultConfig() Config {
	return Config{
		DispatchWorkers:      4,
		HeartbeatInterval:    domain.DefaultHeartbeatIntervalSeconds * time.Second,
		DispatchPollInterval: 200 * time.Millisecond,
		CompletionGroup:      "scheduler",
	}
}

// Scheduler is the orchestrator: it owns active_runs, drives the
// dispatch loop, consumes completion events, sweeps stale agents, and
// fires scheduled triggers.
type Scheduler struct {
	pipelines PipelineRepository
	runs      RunRepository
	agents    AgentRepository
	approvals ApprovalRepository
	eventBus  bus.Bus
	queue     *queue.Queue
	cfg       Config
	cronWatch *trigger.CronWatcher

	runsMu     sync.RWMutex
	activeRuns map[domain.ID]*RunState

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	log *slog.Logger
}

// New constructs a Scheduler. limits configures the queue's
// concurrency-group and per-pipeline ceilings.
func New(pipelines PipelineRepository, runs RunRepository, agents AgentRepository, approvals ApprovalRepository, eventBus bus.Bus, limits queue.Limits, cfg Config) *Scheduler {
	s := &Scheduler{
		pipelines:  pipelines,
		runs:       runs,
		agents:     agents,
		approvals:  approvals,
		eventBus:   eventBus,
		queue:      queue.New(limits),
		cfg:        cfg,
		activeRuns: make(map[domain.ID]*RunState),
		stopCh:     make(chan struct{}),
		log:        slog.With("component", "scheduler"),
	}
	s.cronWatch = trigger.NewCronWatcher(func(expr string) {
		s.onCronFire(expr)
	})
	return s
}

// Start spawns the dispatch worker pool, the completion-event
// subscriber, and the heartbeat sweeper.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started {
		s.log.Warn("scheduler already started, ignoring duplicate Start")
		return nil
	}
	s.started = true

	for i := 0; i < s.cfg.DispatchWorkers; i++ {
		s.wg.Add(1)
		go s.dispatchWorker(ctx, i)
	}

	completions, err := s.eventBus.Subscribe(ctx, "run.*.stage.*.completed", bus.SubscribeOptions{Group: s.cfg.CompletionGroup})
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go s.consumeCompletions(ctx, completions)

	s.wg.Add(1)
	go s.runHeartbeatSweeper(ctx)

	s.cronWatch.Start()
	s.log.Info("scheduler started", "dispatch_workers", s.cfg.DispatchWorkers)
	return nil
}

// Stop signals every background goroutine to exit and waits for them.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.cronWatch.Stop()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) sleep(d time.Duration) {
	select {
	case <-s.stopCh:
	case <-time.After(d):
	}
}

// SyncCronTriggers reconciles the cron watcher against every
// currently-defined schedule trigger across all pipelines. Callers
// invoke this after pipeline create/update/delete.
func (s *Scheduler) SyncCronTriggers(ctx context.Context) error {
	var exprs []string
	for offset := 0; ; offset += listPageSize {
		pipelines, err := s.pipelines.List(ctx, listPageSize, offset)
		if err != nil {
			return err
		}
		for _, p := range pipelines {
			for _, t := range p.Triggers {
				if t.Type == domain.TriggerSchedule && t.Cron != "" {
					exprs = append(exprs, t.Cron)
				}
			}
		}
		if len(pipelines) < listPageSize {
			break
		}
	}
	s.cronWatch.Sync(exprs)
	return nil
}

func (s *Scheduler) onCronFire(expr string) {
	ctx := context.Background()
	if err := s.HandleTrigger(ctx, domain.TriggerEvent{Type: domain.TriggerSchedule, Schedule: expr}); err != nil {
		s.log.Error("scheduled trigger handling failed", "cron", expr, "error", err)
	}
}

func (s *Scheduler) getRunState(id domain.ID) (*RunState, bool) {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	rs, ok := s.activeRuns[id]
	return rs, ok
}

// matcherSnapshot fetches a fresh agent listing for one dispatch
// attempt.
func (s *Scheduler) matcherSnapshot(ctx context.Context, labels []string) ([]domain.Agent, error) {
	return s.agents.ListAvailable(ctx, labels)
}
