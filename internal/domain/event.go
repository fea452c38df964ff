package domain

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates the payload variants of the Event tagged
// union. Values are snake_case to
// match the self-describing "type" field used on the wire.
type EventType string

// Event types. Subjects are computed per-instance by Subject(),
// following the subject hierarchy each stream is organized under.
const (
	EventRunQueued         EventType = "run_queued"
	EventRunStarted        EventType = "run_started"
	EventRunCompleted      EventType = "run_completed"
	EventRunCancelled      EventType = "run_cancelled"
	EventStageStarted      EventType = "stage_started"
	EventStageCompleted    EventType = "stage_completed"
	EventStepStarted       EventType = "step_started"
	EventStepOutput        EventType = "step_output"
	EventStepCompleted     EventType = "step_completed"
	EventAgentRegistered   EventType = "agent_registered"
	EventAgentHeartbeat    EventType = "agent_heartbeat"
	EventAgentDisconnected EventType = "agent_disconnected"
	EventJobAssigned       EventType = "job_assigned"
	EventApprovalRequested EventType = "approval_requested"
	EventApprovalResolved  EventType = "approval_resolved"
)

// Event is the common interface every payload variant satisfies.
// Subject is a pure function of the event's fields.
type Event interface {
	Type() EventType
	Subject() string
}

// RunQueuedEvent is published when a Run is created.
type RunQueuedEvent struct {
	RunID        ID
	PipelineID   ID
	PipelineName string
}

func (e RunQueuedEvent) Type() EventType { return EventRunQueued }
func (e RunQueuedEvent) Subject() string { return fmt.Sprintf("run.queued.%s", e.PipelineName) }

// RunStartedEvent is published when a Run's first stage begins.
type RunStartedEvent struct {
	RunID        ID
	PipelineName string
}

func (e RunStartedEvent) Type() EventType { return EventRunStarted }
func (e RunStartedEvent) Subject() string {
	return fmt.Sprintf("run.started.%s.%s", e.PipelineName, e.RunID)
}

// RunCompletedEvent is published when a Run reaches a terminal status
// (Success, Failure, Cancelled, or Timeout).
type RunCompletedEvent struct {
	RunID         ID
	PipelineName  string
	Status        RunStatus
	FailureReason *FailureReason
	DurationMS    int64
}

func (e RunCompletedEvent) Type() EventType { return EventRunCompleted }
func (e RunCompletedEvent) Subject() string {
	return fmt.Sprintf("run.completed.%s.%s", e.PipelineName, e.RunID)
}

// RunCancelledEvent is published when cancel_run is invoked.
type RunCancelledEvent struct {
	RunID ID
}

func (e RunCancelledEvent) Type() EventType { return EventRunCancelled }
func (e RunCancelledEvent) Subject() string { return fmt.Sprintf("run.%s.cancel", e.RunID) }

// StageStartedEvent is published when a stage is dispatched to an
// agent.
type StageStartedEvent struct {
	RunID     ID
	StageName string
	JobIndex  *int // matrix variant, nil for non-matrix stages
	AgentID   ID
}

func (e StageStartedEvent) Type() EventType { return EventStageStarted }
func (e StageStartedEvent) Subject() string {
	return fmt.Sprintf("run.%s.stage.%s.started", e.RunID, e.StageName)
}

// StageCompletedEvent is published by the agent when one job (a stage,
// or one matrix variant of it) finishes. A matrix-expanded stage is complete, for readiness
// purposes, only once every variant has reported.
type StageCompletedEvent struct {
	RunID     ID
	StageName string
	JobIndex  *int
	Status    StageStatus
	AgentID   ID
	Error     string
}

func (e StageCompletedEvent) Type() EventType { return EventStageCompleted }
func (e StageCompletedEvent) Subject() string {
	return fmt.Sprintf("run.%s.stage.%s.completed", e.RunID, e.StageName)
}

// StepStartedEvent is published by the agent when a step begins.
type StepStartedEvent struct {
	RunID     ID
	StageName string
	StepName  string
}

func (e StepStartedEvent) Type() EventType { return EventStepStarted }
func (e StepStartedEvent) Subject() string {
	return fmt.Sprintf("run.%s.stage.%s.step.%s.started", e.RunID, e.StageName, e.StepName)
}

// StepOutputEvent streams one line of step output.
type StepOutputEvent struct {
	RunID     ID
	StageName string
	StepName  string
	Line      string
	Stream    string // "stdout" | "stderr"
}

func (e StepOutputEvent) Type() EventType { return EventStepOutput }
func (e StepOutputEvent) Subject() string {
	return fmt.Sprintf("run.%s.stage.%s.step.%s.output", e.RunID, e.StageName, e.StepName)
}

// StepCompletedEvent is published by the agent when a step finishes.
type StepCompletedEvent struct {
	RunID     ID
	StageName string
	StepName  string
	Status    StepStatus
	ExitCode  *int
	Outputs   map[string]string
}

func (e StepCompletedEvent) Type() EventType { return EventStepCompleted }
func (e StepCompletedEvent) Subject() string {
	return fmt.Sprintf("run.%s.stage.%s.step.%s.completed", e.RunID, e.StageName, e.StepName)
}

// AgentRegisteredEvent is published when an agent registers.
type AgentRegisteredEvent struct {
	AgentID ID
	Name    string
}

func (e AgentRegisteredEvent) Type() EventType { return EventAgentRegistered }
func (e AgentRegisteredEvent) Subject() string { return fmt.Sprintf("agent.%s.registered", e.AgentID) }

// AgentHeartbeatEvent is published periodically by a live agent.
type AgentHeartbeatEvent struct {
	AgentID ID
	Metrics map[string]float64
}

func (e AgentHeartbeatEvent) Type() EventType { return EventAgentHeartbeat }
func (e AgentHeartbeatEvent) Subject() string { return fmt.Sprintf("agent.%s.heartbeat", e.AgentID) }

// AgentDisconnectedEvent is published by the heartbeat sweeper when an
// agent is declared stale.
type AgentDisconnectedEvent struct {
	AgentID ID
}

func (e AgentDisconnectedEvent) Type() EventType { return EventAgentDisconnected }
func (e AgentDisconnectedEvent) Subject() string {
	return fmt.Sprintf("agent.%s.disconnected", e.AgentID)
}

// JobAssignedEvent is published by the scheduler to hand a job to its
// assigned agent.
type JobAssignedEvent struct {
	AgentID      ID
	RunID        ID
	PipelineID   ID
	PipelineName string
	Stage        StageDefinition
	StageIndex   int
	Variables    map[string]string
}

func (e JobAssignedEvent) Type() EventType { return EventJobAssigned }
func (e JobAssignedEvent) Subject() string { return fmt.Sprintf("agent.%s.job", e.AgentID) }

// ApprovalRequestedEvent is published when a stage enters an approval gate.
type ApprovalRequestedEvent struct {
	RunID     ID
	StageName string
	GateID    ID
}

func (e ApprovalRequestedEvent) Type() EventType { return EventApprovalRequested }
func (e ApprovalRequestedEvent) Subject() string {
	return fmt.Sprintf("approval.%s.requested", e.GateID)
}

// ApprovalResolvedEvent is published when a gate reaches a terminal status.
type ApprovalResolvedEvent struct {
	RunID     ID
	StageName string
	GateID    ID
	Status    ApprovalStatus
}

func (e ApprovalResolvedEvent) Type() EventType { return EventApprovalResolved }
func (e ApprovalResolvedEvent) Subject() string {
	return fmt.Sprintf("approval.%s.resolved", e.GateID)
}

// envelope is the self-describing wire format: the type discriminator
// alongside the raw payload fields.
type envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal encodes an Event to its self-describing wire format.
func Marshal(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("domain: marshal event payload: %w", err)
	}
	return json.Marshal(envelope{Type: e.Type(), Payload: payload})
}

// Unmarshal decodes the self-describing wire format back into the
// concrete Event variant named by its "type" field.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("domain: unmarshal event envelope: %w", err)
	}
	var target Event
	switch env.Type {
	case EventRunQueued:
		var v RunQueuedEvent
		target = &v
	case EventRunStarted:
		var v RunStartedEvent
		target = &v
	case EventRunCompleted:
		var v RunCompletedEvent
		target = &v
	case EventRunCancelled:
		var v RunCancelledEvent
		target = &v
	case EventStageStarted:
		var v StageStartedEvent
		target = &v
	case EventStageCompleted:
		var v StageCompletedEvent
		target = &v
	case EventStepStarted:
		var v StepStartedEvent
		target = &v
	case EventStepOutput:
		var v StepOutputEvent
		target = &v
	case EventStepCompleted:
		var v StepCompletedEvent
		target = &v
	case EventAgentRegistered:
		var v AgentRegisteredEvent
		target = &v
	case EventAgentHeartbeat:
		var v AgentHeartbeatEvent
		target = &v
	case EventAgentDisconnected:
		var v AgentDisconnectedEvent
		target = &v
	case EventJobAssigned:
		var v JobAssignedEvent
		target = &v
	case EventApprovalRequested:
		var v ApprovalRequestedEvent
		target = &v
	case EventApprovalResolved:
		var v ApprovalResolvedEvent
		target = &v
	default:
		return nil, fmt.Errorf("domain: unknown event type %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, fmt.Errorf("domain: unmarshal %s payload: %w", env.Type, err)
	}
	return dereference(target), nil
}

// dereference unwraps the pointer-to-value events produced by Unmarshal
// back to the value types Marshal accepts, so callers get the same
// concrete type back regardless of direction.
func dereference(e Event) Event {
	switch v := e.(type) {
	case *RunQueuedEvent:
		return *v
	case *RunStartedEvent:
		return *v
	case *RunCompletedEvent:
		return *v
	case *RunCancelledEvent:
		return *v
	case *StageStartedEvent:
		return *v
	case *StageCompletedEvent:
		return *v
	case *StepStartedEvent:
		return *v
	case *StepOutputEvent:
		return *v
	case *StepCompletedEvent:
		return *v
	case *AgentRegisteredEvent:
		return *v
	case *AgentHeartbeatEvent:
		return *v
	case *AgentDisconnectedEvent:
		return *v
	case *JobAssignedEvent:
		return *v
	case *ApprovalRequestedEvent:
		return *v
	case *ApprovalResolvedEvent:
		return *v
	default:
		return e
	}
}
