package matcher

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agent(name string, status domain.AgentStatus, registeredAt time.Time, labels ...string) domain.Agent {
	return domain.Agent{
		ID:           domain.NewID(domain.KindAgent),
		Name:         name,
		Status:       status,
		Labels:       labels,
		RegisteredAt: registeredAt,
	}
}

func TestFindBest_RequiresEveryLabel(t *testing.T) {
	t0 := time.Unix(0, 0)
	agents := []domain.Agent{
		agent("missing-gpu", domain.AgentIdle, t0, "linux"),
		agent("has-both", domain.AgentIdle, t0.Add(time.Second), "linux", "gpu"),
	}
	best, ok := FindBest(agents, Request{Labels: []string{"linux", "gpu"}})
	require.True(t, ok)
	assert.Equal(t, "has-both", best.Name)
}

// TestFindBest_PrefersLabelSpecificity exercises the tie-break itself:
// both candidates qualify (each carries every required label), so the
// winner must be decided by specificity, not by required-label
// coverage. The narrowly-labeled agent should win over the
// broadly-labeled one that happens to also qualify, leaving the more
// versatile agent free for a job that actually needs its extra labels.
func TestFindBest_PrefersLabelSpecificity(t *testing.T) {
	t0 := time.Unix(0, 0)
	agents := []domain.Agent{
		agent("generalist", domain.AgentIdle, t0, "linux", "gpu", "arm64"),
		agent("specialist", domain.AgentIdle, t0.Add(time.Second), "linux"),
	}
	best, ok := FindBest(agents, Request{Labels: []string{"linux"}})
	require.True(t, ok)
	assert.Equal(t, "specialist", best.Name)
}

func TestFindBest_TieBreaksOnEarliestRegistration(t *testing.T) {
	t0 := time.Unix(0, 0)
	agents := []domain.Agent{
		agent("later", domain.AgentIdle, t0.Add(time.Minute), "linux"),
		agent("earlier", domain.AgentIdle, t0, "linux"),
	}
	best, ok := FindBest(agents, Request{Labels: []string{"linux"}})
	require.True(t, ok)
	assert.Equal(t, "earlier", best.Name)
}

func TestFindBest_ExcludesBusyAgents(t *testing.T) {
	t0 := time.Unix(0, 0)
	agents := []domain.Agent{
		agent("busy", domain.AgentBusy, t0, "linux"),
	}
	_, ok := FindBest(agents, Request{Labels: []string{"linux"}})
	assert.False(t, ok)
}

func TestFindBest_ExplicitNameRestrictsCandidates(t *testing.T) {
	t0 := time.Unix(0, 0)
	agents := []domain.Agent{
		agent("a", domain.AgentIdle, t0, "linux"),
		agent("b", domain.AgentIdle, t0, "linux"),
	}
	best, ok := FindBest(agents, Request{Labels: []string{"linux"}, AgentName: "b"})
	require.True(t, ok)
	assert.Equal(t, "b", best.Name)
}

func TestFindBest_MissingCapabilityExcludes(t *testing.T) {
	a := agent("a", domain.AgentIdle, time.Unix(0, 0))
	a.Capabilities = []domain.Capability{domain.CapabilityDocker}
	_, ok := FindBest([]domain.Agent{a}, Request{Capabilities: []domain.Capability{domain.CapabilityFirecracker}})
	assert.False(t, ok)
}

func TestStaleAgents(t *testing.T) {
	now := time.Unix(1000, 0)
	fresh := agent("fresh", domain.AgentIdle, now.Add(-5*time.Second))
	last := now.Add(-4 * time.Second)
	fresh.LastHeartbeatAt = &last

	staleOne := agent("stale", domain.AgentIdle, now.Add(-60*time.Second))
	staleLast := now.Add(-40 * time.Second)
	staleOne.LastHeartbeatAt = &staleLast

	stale := StaleAgents([]domain.Agent{fresh, staleOne}, now, 30*time.Second)
	require.Len(t, stale, 1)
	assert.Equal(t, "stale", stale[0].Name)
}

func TestRequiredCapabilities(t *testing.T) {
	assert.Equal(t, []domain.Capability{domain.CapabilityDocker}, RequiredCapabilities(domain.EnvironmentContainer))
	assert.Empty(t, RequiredCapabilities(domain.EnvironmentHost))
}
