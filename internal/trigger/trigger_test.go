package trigger

import (
	"testing"

	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestMatches_NoTriggersDefaultsToPushAnyBranch(t *testing.T) {
	p := &domain.PipelineDefinition{}
	assert.True(t, Matches(p, domain.TriggerEvent{Type: domain.TriggerPush, Branch: "feature/x"}))
	assert.False(t, Matches(p, domain.TriggerEvent{Type: domain.TriggerPullRequest, Branch: "feature/x"}))
}

func TestMatches_BranchGlob(t *testing.T) {
	p := &domain.PipelineDefinition{Triggers: []domain.TriggerConfig{
		{Type: domain.TriggerPush, Branches: []string{"release/*"}},
	}}
	assert.True(t, Matches(p, domain.TriggerEvent{Type: domain.TriggerPush, Branch: "release/1.0"}))
	assert.False(t, Matches(p, domain.TriggerEvent{Type: domain.TriggerPush, Branch: "main"}))
}

func TestMatches_TagRequiresExplicitPatterns(t *testing.T) {
	p := &domain.PipelineDefinition{Triggers: []domain.TriggerConfig{
		{Type: domain.TriggerPush, Branches: []string{"*"}},
	}}
	// no Tags configured: a tag push must never match even though Branches is wide open.
	assert.False(t, Matches(p, domain.TriggerEvent{Type: domain.TriggerPush, Tag: "v1.0.0"}))

	p.Triggers[0].Tags = []string{"v*"}
	assert.True(t, Matches(p, domain.TriggerEvent{Type: domain.TriggerPush, Tag: "v1.0.0"}))
}

func TestMatches_PathsIgnoreExcludes(t *testing.T) {
	p := &domain.PipelineDefinition{Triggers: []domain.TriggerConfig{
		{Type: domain.TriggerPush, Branches: []string{"*"}, PathsIgnore: []string{"docs/**"}},
	}}
	assert.False(t, Matches(p, domain.TriggerEvent{Type: domain.TriggerPush, Branch: "main", ChangedPaths: []string{"docs/readme.md"}}))
	assert.True(t, Matches(p, domain.TriggerEvent{Type: domain.TriggerPush, Branch: "main", ChangedPaths: []string{"src/main.go"}}))
}

func TestMatches_CronExactMatch(t *testing.T) {
	p := &domain.PipelineDefinition{Triggers: []domain.TriggerConfig{
		{Type: domain.TriggerSchedule, Cron: "0 0 * * *"},
	}}
	assert.True(t, Matches(p, domain.TriggerEvent{Type: domain.TriggerSchedule, Schedule: "0 0 * * *"}))
	assert.False(t, Matches(p, domain.TriggerEvent{Type: domain.TriggerSchedule, Schedule: "0 1 * * *"}))
}
