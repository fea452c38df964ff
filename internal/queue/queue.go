// Package queue implements the bounded in-memory priority queue that
// holds QueuedJobs between DAG readiness and dispatch, plus the concurrency-group and per-pipeline
// rate-limit accounting dequeue honors.
package queue

import (
	"sync"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// Limits configures the concurrency ceilings the queue enforces at
// dequeue time.
type Limits struct {
	// Group caps in-flight jobs per concurrency_group; a group absent
	// from this map is unbounded.
	Group map[string]int
	// Pipeline caps in-flight jobs per pipeline_id; a pipeline absent
	// from this map is unbounded.
	Pipeline map[domain.ID]int
}

// Queue is a single-mutex-guarded priority queue ordered by
// (-priority, queued_at ASC), admitting every enqueue and releasing
// jobs only when can_execute holds.
type Queue struct {
	mu               sync.Mutex
	items            []domain.QueuedJob
	limits           Limits
	inFlightGroup    map[string]int
	inFlightPipeline map[domain.ID]int
}

// New builds an empty Queue honoring limits. A zero Limits means every
// job may always execute once popped.
func New(limits Limits) *Queue {
	return &Queue{
		limits:           limits,
		inFlightGroup:    make(map[string]int),
		inFlightPipeline: make(map[domain.ID]int),
	}
}

// Enqueue always accepts job, inserting it in priority order.
func (q *Queue) Enqueue(job domain.QueuedJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insertLocked(job)
}

func (q *Queue) insertLocked(job domain.QueuedJob) {
	i := 0
	for ; i < len(q.items); i++ {
		if less(job, q.items[i]) {
			break
		}
	}
	q.items = append(q.items, domain.QueuedJob{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = job
}

// less orders a before b: higher priority first, then earlier queued_at.
func less(a, b domain.QueuedJob) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.QueuedAt.Before(b.QueuedAt)
}

// Dequeue pops the highest-ordered job for which CanExecute holds,
// incrementing its concurrency accounting. Jobs skipped over because
// of a saturated limit stay at their original position. Returns ok=false if no job is currently dequeueable.
func (q *Queue) Dequeue() (domain.QueuedJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, job := range q.items {
		if q.canExecuteLocked(job) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.admitLocked(job)
			return job, true
		}
	}
	return domain.QueuedJob{}, false
}

// CanExecute reports whether job's concurrency constraints currently
// permit dispatch, without mutating any accounting.
func (q *Queue) CanExecute(job domain.QueuedJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.canExecuteLocked(job)
}

func (q *Queue) canExecuteLocked(job domain.QueuedJob) bool {
	if job.ConcurrencyGroup != "" {
		if limit, ok := q.limits.Group[job.ConcurrencyGroup]; ok && q.inFlightGroup[job.ConcurrencyGroup] >= limit {
			return false
		}
	}
	if limit, ok := q.limits.Pipeline[job.PipelineID]; ok && q.inFlightPipeline[job.PipelineID] >= limit {
		return false
	}
	return true
}

func (q *Queue) admitLocked(job domain.QueuedJob) {
	if job.ConcurrencyGroup != "" {
		q.inFlightGroup[job.ConcurrencyGroup]++
	}
	q.inFlightPipeline[job.PipelineID]++
}

// Complete decrements job's concurrency accounting, saturating at zero.
func (q *Queue) Complete(job domain.QueuedJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.ConcurrencyGroup != "" {
		q.decrement(q.inFlightGroup, job.ConcurrencyGroup)
	}
	q.decrementPipeline(job.PipelineID)
}

func (q *Queue) decrement(m map[string]int, key string) {
	if m[key] > 0 {
		m[key]--
	}
}

func (q *Queue) decrementPipeline(id domain.ID) {
	if q.inFlightPipeline[id] > 0 {
		q.inFlightPipeline[id]--
	}
}

// Len reports the number of jobs currently waiting; dequeued jobs are
// no longer counted.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// RemoveByRun drops every queued job belonging to runID, used when a
// run is cancelled.
func (q *Queue) RemoveByRun(runID domain.ID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, job := range q.items {
		if job.RunID == runID {
			removed++
			continue
		}
		kept = append(kept, job)
	}
	q.items = kept
	return removed
}

// Snapshot returns a defensive copy of the currently queued jobs, in
// priority order, for diagnostics and tests.
func (q *Queue) Snapshot() []domain.QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.QueuedJob, len(q.items))
	copy(out, q.items)
	return out
}

// InFlightGroup reports the current in-flight count for a concurrency
// group, for diagnostics.
func (q *Queue) InFlightGroup(group string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlightGroup[group]
}
