// Package trigger matches an incoming domain.TriggerEvent against a
// pipeline's declared TriggerConfig entries.
package trigger

import (
	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/codeready-toolchain/orcaci/internal/glob"
)

// Matches reports whether event satisfies any of pipeline's triggers.
// A pipeline with no triggers at all defaults to push-on-any-branch.
func Matches(pipeline *domain.PipelineDefinition, event domain.TriggerEvent) bool {
	if len(pipeline.Triggers) == 0 {
		return event.Type == domain.TriggerPush
	}
	for _, t := range pipeline.Triggers {
		if matchesOne(t, event) {
			return true
		}
	}
	return false
}

func matchesOne(t domain.TriggerConfig, event domain.TriggerEvent) bool {
	if t.Type != event.Type {
		return false
	}
	switch t.Type {
	case domain.TriggerPush, domain.TriggerPullRequest:
		// A tag push carries Tag instead of Branch: the trigger must
		// explicitly list tag patterns, empty means no match.
		if event.Tag != "" {
			if len(t.Tags) == 0 || !glob.MatchAny(t.Tags, event.Tag) {
				return false
			}
		} else if !glob.MatchAny(t.Branches, event.Branch) {
			return false
		}
		if !pathsMatch(t, event.ChangedPaths) {
			return false
		}
	case domain.TriggerSchedule:
		return t.Cron != "" && t.Cron == event.Schedule
	}
	return true
}

// pathsMatch applies the paths/paths_ignore filters:
// empty paths = any; a changed path set is accepted if at least one
// changed path matches paths and none matches paths_ignore. With no
// changed paths reported, the filter is vacuously satisfied.
func pathsMatch(t domain.TriggerConfig, changed []string) bool {
	if len(changed) == 0 {
		return true
	}
	anyIncluded := len(t.Paths) == 0
	for _, p := range changed {
		if len(t.PathsIgnore) > 0 && glob.MatchAny(t.PathsIgnore, p) {
			return false
		}
		if len(t.Paths) > 0 && glob.MatchAny(t.Paths, p) {
			anyIncluded = true
		}
	}
	return anyIncluded
}
