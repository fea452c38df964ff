package domain

// RunStatus is the lifecycle status of a Run.
type RunStatus string

// Run statuses. Queued/Running are transient; the rest are terminal
// and, once set, never change.
const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSuccess   RunStatus = "success"
	RunFailure   RunStatus = "failure"
	RunCancelled RunStatus = "cancelled"
	RunTimeout   RunStatus = "timeout"
	RunSkipped   RunStatus = "skipped"
)

// IsTerminal reports whether the status is a final Run state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunSuccess, RunFailure, RunCancelled, RunTimeout, RunSkipped:
		return true
	default:
		return false
	}
}

// StageStatus is the lifecycle status of a materialized Stage.
type StageStatus string

// Stage statuses.
const (
	StagePending   StageStatus = "pending"
	StageWaiting   StageStatus = "waiting"
	StageRunning   StageStatus = "running"
	StageSuccess   StageStatus = "success"
	StageFailure   StageStatus = "failure"
	StageCancelled StageStatus = "cancelled"
	StageSkipped   StageStatus = "skipped"
)

// IsTerminal reports whether the status is a final Stage state.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageSuccess, StageFailure, StageCancelled, StageSkipped:
		return true
	default:
		return false
	}
}

// CountsAsSuccess reports whether the status should satisfy downstream
// readiness the way Success does. A stage skipped by a false condition
// still counts as success for its successors' readiness.
func (s StageStatus) CountsAsSuccess() bool {
	return s == StageSuccess || s == StageSkipped
}

// StepStatus is the lifecycle status of a Step.
type StepStatus string

// Step statuses.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSuccess   StepStatus = "success"
	StepFailure   StepStatus = "failure"
	StepCancelled StepStatus = "cancelled"
	StepSkipped   StepStatus = "skipped"
)

// AgentStatus is the lifecycle status of a registered Agent.
type AgentStatus string

// Agent statuses.
const (
	AgentIdle     AgentStatus = "idle"
	AgentBusy     AgentStatus = "busy"
	AgentDraining AgentStatus = "draining"
	AgentOffline  AgentStatus = "offline"
)

// ApprovalStatus is the lifecycle status of an ApprovalGate.
type ApprovalStatus string

// Approval statuses.
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
	ApprovalBypassed ApprovalStatus = "bypassed"
)

// IsTerminal reports whether further approve/reject calls are no-ops.
func (s ApprovalStatus) IsTerminal() bool {
	return s != ApprovalPending
}

// Capability is a named execution capability an agent exposes.
type Capability string

// Capabilities an agent can advertise.
const (
	CapabilityDocker      Capability = "docker"
	CapabilityPodman      Capability = "podman"
	CapabilityFirecracker Capability = "firecracker"
	CapabilityNix         Capability = "nix"
)

// EnvironmentType names a stage's execution environment.
type EnvironmentType string

// Environment types and the capability each one requires.
const (
	EnvironmentContainer   EnvironmentType = "container"
	EnvironmentFirecracker EnvironmentType = "firecracker"
	EnvironmentNix         EnvironmentType = "nix"
	EnvironmentHost        EnvironmentType = "host"
)

// RequiredCapabilities returns the capability set a stage's environment
// implies. An empty/unset environment defaults to Container.
func (e EnvironmentType) RequiredCapabilities() []Capability {
	switch e {
	case EnvironmentFirecracker:
		return []Capability{CapabilityFirecracker}
	case EnvironmentNix:
		return []Capability{CapabilityNix}
	case EnvironmentHost:
		return nil
	case EnvironmentContainer, "":
		return []Capability{CapabilityDocker}
	default:
		return []Capability{CapabilityDocker}
	}
}

// Priority is a job's scheduling priority.
type Priority int

// Priority levels, higher dequeues first.
const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

// TriggerType names the kind of event that can start a Run.
type TriggerType string

// Trigger types.
const (
	TriggerPush        TriggerType = "push"
	TriggerPullRequest TriggerType = "pull_request"
	TriggerSchedule    TriggerType = "schedule"
	TriggerManual      TriggerType = "manual"
	TriggerAPI         TriggerType = "api"
	TriggerWebhook     TriggerType = "webhook"
)
