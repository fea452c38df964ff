package domain

import "time"

// ApprovalGate is a runtime checkpoint requiring human approval before a
// stage proceeds.
type ApprovalGate struct {
	ID                  ID
	RunID               ID
	StageName           string
	RequiredApprovers   int
	CurrentApprovals    int
	Approvers           []string
	AllowedApprovers    []string
	PreventSelfApproval bool
	TimeoutMinutes      int
	ExpiresAt           time.Time
	Status              ApprovalStatus
	TriggeredBy         string
}

// FullyApproved reports whether enough approvals have been recorded.
func (g *ApprovalGate) FullyApproved() bool {
	return g.CurrentApprovals >= g.RequiredApprovers
}

// CanApprove reports whether user may approve this gate.
func (g *ApprovalGate) CanApprove(user string) bool {
	if len(g.AllowedApprovers) > 0 && !contains(g.AllowedApprovers, user) {
		return false
	}
	if g.PreventSelfApproval && user == g.TriggeredBy {
		return false
	}
	if contains(g.Approvers, user) {
		return false
	}
	return true
}

// Approve records an approval from user, transitioning the gate to
// Approved once the required count is reached. Once the gate is
// terminal, further calls are no-ops.
func (g *ApprovalGate) Approve(user string) bool {
	if g.Status.IsTerminal() {
		return false
	}
	if !g.CanApprove(user) {
		return false
	}
	g.Approvers = append(g.Approvers, user)
	g.CurrentApprovals++
	if g.FullyApproved() {
		g.Status = ApprovalApproved
	}
	return true
}

// Reject rejects the gate. Once terminal, further calls are no-ops.
func (g *ApprovalGate) Reject(user string) bool {
	if g.Status.IsTerminal() {
		return false
	}
	g.Status = ApprovalRejected
	return true
}

// Expire transitions a pending gate to Expired if its deadline has passed.
func (g *ApprovalGate) Expire(now time.Time) bool {
	if g.Status.IsTerminal() {
		return false
	}
	if now.Before(g.ExpiresAt) {
		return false
	}
	g.Status = ApprovalExpired
	return true
}

// Bypass force-resolves a pending gate, used by operator override paths.
func (g *ApprovalGate) Bypass() bool {
	if g.Status.IsTerminal() {
		return false
	}
	g.Status = ApprovalBypassed
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
