// Package matcher implements the agent matcher: given a job's required
// labels and capabilities, it picks the best available Agent from a
// registry snapshot.
package matcher

import (
	"time"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// Request describes what a job needs from a candidate agent.
type Request struct {
	Labels       []string
	Capabilities []domain.Capability
	// AgentName, if set, restricts candidates to the single named agent
	// (still subject to label/capability checks).
	AgentName string
}

// RequiredCapabilities derives the capability set a stage's environment
// implies. It simply delegates to domain.EnvironmentType, keeping one
// source of truth.
func RequiredCapabilities(env domain.EnvironmentType) []domain.Capability {
	return env.RequiredCapabilities()
}

// FindBest returns the best candidate from agents for req, or ok=false
// if none qualifies. agents is a caller-supplied snapshot — the
// matcher itself does no locking or I/O.
//
// Matching rules:
//  1. status == Idle
//  2. every required label present
//  3. every required capability present
//  4. an explicit agent name restricts candidates to that one agent
//
// Preference among candidates: explicit-name match (trivially unique)
// > label-specificity (fewest labels beyond the required set, i.e.
// the most narrowly-scoped agent that still qualifies) > earliest
// registered_at (stable tie-break).
func FindBest(agents []domain.Agent, req Request) (*domain.Agent, bool) {
	var best *domain.Agent
	for i := range agents {
		a := &agents[i]
		if !qualifies(a, req) {
			continue
		}
		if best == nil || better(a, best, req) {
			best = a
		}
	}
	return best, best != nil
}

func qualifies(a *domain.Agent, req Request) bool {
	if a.Status != domain.AgentIdle {
		return false
	}
	if req.AgentName != "" && a.Name != req.AgentName {
		return false
	}
	if !a.SatisfiesLabels(req.Labels) {
		return false
	}
	return a.SatisfiesCapabilities(req.Capabilities)
}

// better reports whether candidate should replace incumbent as the
// running best pick, under the label-specificity then
// earliest-registered-at ordering.
func better(candidate, incumbent *domain.Agent, req Request) bool {
	cExtra := extraLabelCount(candidate, req.Labels)
	iExtra := extraLabelCount(incumbent, req.Labels)
	if cExtra != iExtra {
		return cExtra < iExtra
	}
	return candidate.RegisteredAt.Before(incumbent.RegisteredAt)
}

// extraLabelCount counts the labels a qualifying agent carries beyond
// the ones required, so a narrowly-labeled agent scores as more
// specific than a broadly-labeled one that happens to also qualify.
func extraLabelCount(a *domain.Agent, required []string) int {
	return len(a.Labels) - len(required)
}

// StaleAgents returns the subset of agents whose last heartbeat is
// older than threshold, for the background sweeper to transition
// Offline. An agent that has never sent a heartbeat uses its
// registered_at as the reference instant.
func StaleAgents(agents []domain.Agent, now time.Time, threshold time.Duration) []domain.Agent {
	var stale []domain.Agent
	for _, a := range agents {
		if a.Status == domain.AgentOffline {
			continue
		}
		last := a.RegisteredAt
		if a.LastHeartbeatAt != nil {
			last = *a.LastHeartbeatAt
		}
		if now.Sub(last) >= threshold {
			stale = append(stale, a)
		}
	}
	return stale
}
