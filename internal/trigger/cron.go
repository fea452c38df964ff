package trigger

import (
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// CronWatcher fires fn whenever one of the registered cron expressions
// is due, synthesizing the domain.TriggerEvent{Type: TriggerSchedule,
// Schedule: expr} the scheduler's trigger handling then matches against
// every pipeline's configured schedule triggers.
//
// Pipelines are free to reuse the same cron string; CronWatcher
// de-duplicates so each distinct expression runs one underlying
// robfig/cron entry regardless of how many pipelines reference it.
type CronWatcher struct {
	mu      sync.Mutex
	c       *cron.Cron
	entries map[string]cron.EntryID
	fn      func(expr string)
}

// NewCronWatcher constructs a watcher that invokes fn(expr) each time
// a registered expression fires.
func NewCronWatcher(fn func(expr string)) *CronWatcher {
	return &CronWatcher{
		c:       cron.New(),
		entries: make(map[string]cron.EntryID),
		fn:      fn,
	}
}

// Start begins the underlying cron scheduler's goroutine.
func (w *CronWatcher) Start() { w.c.Start() }

// Stop halts the scheduler and waits for any running job to complete.
func (w *CronWatcher) Stop() { <-w.c.Stop().Done() }

// Ensure registers expr if it is not already watched.
func (w *CronWatcher) Ensure(expr string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entries[expr]; ok {
		return nil
	}
	id, err := w.c.AddFunc(expr, func() { w.fn(expr) })
	if err != nil {
		return err
	}
	w.entries[expr] = id
	return nil
}

// Sync reconciles the watched set to exactly exprs, adding newly
// introduced expressions and removing ones no longer referenced by any
// pipeline.
func (w *CronWatcher) Sync(exprs []string) {
	want := make(map[string]bool, len(exprs))
	for _, e := range exprs {
		want[e] = true
		if err := w.Ensure(e); err != nil {
			slog.Warn("invalid cron expression in pipeline trigger", "expr", e, "error", err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for expr, id := range w.entries {
		if !want[expr] {
			w.c.Remove(id)
			delete(w.entries, expr)
		}
	}
}
