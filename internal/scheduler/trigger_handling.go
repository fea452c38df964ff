package scheduler

import (
	"context"

	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/codeready-toolchain/orcaci/internal/trigger"
)

// listPageSize bounds each page fetched while evaluating triggers
// against the pipeline catalog.
const listPageSize = 100

// HandleTrigger loads every pipeline, matches event against each one's
// triggers, and starts a run for every match.
func (s *Scheduler) HandleTrigger(ctx context.Context, event domain.TriggerEvent) error {
	log := s.log.With("trigger_type", event.Type, "branch", event.Branch, "tag", event.Tag)
	offset := 0
	started := 0
	for {
		page, err := s.pipelines.List(ctx, listPageSize, offset)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, p := range page {
			if !trigger.Matches(p, event) {
				continue
			}
			if err := s.startRun(ctx, p, event); err != nil {
				log.Error("failed to start run", "pipeline", p.Name, "error", err)
				continue
			}
			started++
		}
		if len(page) < listPageSize {
			break
		}
		offset += listPageSize
	}
	log.Info("trigger handled", "runs_started", started)
	return nil
}
