package domain

import "time"

// TriggerEvent is the inbound event that asks the scheduler to evaluate
// pipelines and potentially start runs.
type TriggerEvent struct {
	Type         TriggerType
	Branch       string
	Tag          string
	ChangedPaths []string
	GitRef       string
	GitSHA       string
	Schedule     string // cron string, for TriggerSchedule
	Author       string
	Metadata     map[string]string
}

// Run is one execution of a pipeline.
type Run struct {
	ID              ID
	PipelineID      ID
	PipelineName    string
	RunNumber       int64
	Status          RunStatus
	Trigger         TriggerEvent
	GitRef          string
	GitSHA          string
	Variables       map[string]string
	Stages          []Stage
	QueuedAt        time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationMS      *int64
	BillableMinutes *float64
	FailureReason   *FailureReason
}

// FailureReason carries enough diagnostic metadata for a human to
// locate the problem behind a non-Success RunCompleted.
type FailureReason struct {
	FirstFailingStage string
	FirstFailingStep  string
	ExitCode          *int
	AgentID           string
	Message           string
}

// Stage is a StageDefinition materialized into a Run.
type Stage struct {
	ID          string // logical stage name, or "name[variant-index]" for matrix jobs
	Name        string // logical stage name (shared across matrix variants)
	JobIndex    *int   // matrix variant index, nil for non-matrix stages
	Variables   map[string]string
	DisplayName string
	Status      StageStatus
	Steps       []Step
	DependsOn   []string // resolved predecessor logical names
	AgentID     string
	Attempt     int
	QueuedAt    *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Step is a StepDefinition materialized into a Stage run.
type Step struct {
	Name        string
	Status      StepStatus
	Outputs     map[string]string
	ExitCode    *int
	Error       string
	Attempt     int
	StartedAt   *time.Time
	CompletedAt *time.Time
}
