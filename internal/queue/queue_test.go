package queue

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(priority domain.Priority, offset time.Duration, stage string) domain.QueuedJob {
	return domain.QueuedJob{
		StageName: stage,
		Priority:  priority,
		QueuedAt:  time.Unix(0, 0).Add(offset),
	}
}

func TestQueue_OrdersByPriorityThenQueuedAt(t *testing.T) {
	q := New(Limits{})
	q.Enqueue(job(domain.PriorityNormal, 2*time.Second, "b"))
	q.Enqueue(job(domain.PriorityCritical, 3*time.Second, "c"))
	q.Enqueue(job(domain.PriorityNormal, 1*time.Second, "a"))

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "c", first.StageName)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", second.StageName)

	third, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", third.StageName)
}

func TestQueue_ConcurrencyGroupLimit(t *testing.T) {
	q := New(Limits{Group: map[string]int{"deploy": 1}})
	j1 := job(domain.PriorityNormal, 1*time.Second, "a")
	j1.ConcurrencyGroup = "deploy"
	j2 := job(domain.PriorityNormal, 2*time.Second, "b")
	j2.ConcurrencyGroup = "deploy"
	q.Enqueue(j1)
	q.Enqueue(j2)

	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", got.StageName)

	_, ok = q.Dequeue()
	assert.False(t, ok, "second job in the same saturated group must not be dequeued")

	q.Complete(got)
	got2, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", got2.StageName)
}

func TestQueue_SkippedJobsStayAtPosition(t *testing.T) {
	q := New(Limits{Group: map[string]int{"deploy": 1}})
	blocked := job(domain.PriorityCritical, 1*time.Second, "blocked")
	blocked.ConcurrencyGroup = "deploy"
	other := job(domain.PriorityNormal, 2*time.Second, "other")

	q.Enqueue(blocked)
	q.Enqueue(other)

	occupier := job(domain.PriorityLow, 0, "occupier")
	occupier.ConcurrencyGroup = "deploy"
	q.admitLocked(occupier) // simulate an already in-flight occupant of the group

	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "other", got.StageName, "higher-priority blocked job must be skipped in place, not dropped")

	assert.Equal(t, 1, q.Len())
}

func TestQueue_RemoveByRun(t *testing.T) {
	q := New(Limits{})
	runA := domain.NewID(domain.KindRun)
	runB := domain.NewID(domain.KindRun)
	j1 := job(domain.PriorityNormal, 1*time.Second, "a")
	j1.RunID = runA
	j2 := job(domain.PriorityNormal, 2*time.Second, "b")
	j2.RunID = runB
	q.Enqueue(j1)
	q.Enqueue(j2)

	removed := q.RemoveByRun(runA)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, q.Len())
}
