package domain

import "time"

// PipelineDefinition is the user-authored pipeline configuration: its
// stages, triggers, and concurrency policy.
type PipelineDefinition struct {
	ID             ID
	Name           string
	Version        string
	Description    string
	Triggers       []TriggerConfig
	Variables      map[string]string
	Stages         []StageDefinition
	Cache          *CacheConfig
	Artifacts      *ArtifactsConfig
	Concurrency    *ConcurrencyConfig
	TimeoutMinutes int
}

// DefaultPipelineTimeoutMinutes is applied when a pipeline omits
// timeout_minutes.
const DefaultPipelineTimeoutMinutes = 60

// EffectiveTimeout returns the pipeline's configured timeout, or the
// default when unset.
func (p *PipelineDefinition) EffectiveTimeout() time.Duration {
	m := p.TimeoutMinutes
	if m <= 0 {
		m = DefaultPipelineTimeoutMinutes
	}
	return time.Duration(m) * time.Minute
}

// TriggerConfig is one entry in PipelineDefinition.Triggers.
type TriggerConfig struct {
	Type        TriggerType
	Branches    []string // glob patterns, empty = any
	Tags        []string // glob patterns; empty = trigger never matches a tag event
	Paths       []string // glob patterns, empty = any
	PathsIgnore []string // glob patterns
	Cron        string   // for TriggerSchedule
}

// CacheConfig describes the pipeline's declared cache usage. The cache
// backend itself is an external plug-in; this only carries
// the declaration the scheduler hands to the executor.
type CacheConfig struct {
	Key   string
	Paths []string
}

// ArtifactsConfig describes declared build artifacts, handed to the
// external artifact storage plug-in.
type ArtifactsConfig struct {
	Paths []string
}

// ConcurrencyConfig is the pipeline-level concurrency group policy.
type ConcurrencyConfig struct {
	Group            string
	CancelInProgress bool
}

// StageDefinition is one stage in a pipeline.
type StageDefinition struct {
	Name           string
	DisplayName    string
	DependsOn      []string
	Condition      *Condition
	Environment    EnvironmentType
	Variables      map[string]string
	Steps          []StepDefinition
	Agent          *AgentSelector
	Matrix         *Matrix
	TimeoutMinutes int
	Retry          *RetryPolicy
	Approval       *ApprovalConfig
}

// ApprovalConfig declares that a stage must clear a human approval
// gate before it dispatches.
type ApprovalConfig struct {
	RequiredApprovers   int
	AllowedApprovers    []string
	PreventSelfApproval bool
	TimeoutMinutes      int
}

// DefaultApprovalTimeoutMinutes applies when an ApprovalConfig omits
// timeout_minutes.
const DefaultApprovalTimeoutMinutes = 1440

// DefaultStageTimeoutMinutes mirrors the pipeline default when a stage
// does not set its own timeout.
const DefaultStageTimeoutMinutes = 60

// AgentSelector names constraints a dispatched job must satisfy, on
// top of the capabilities its environment requires.
type AgentSelector struct {
	Labels []string
	Name   string // if set, only this agent is a candidate
}

// RetryPolicy controls stage/step retry behavior.
type RetryPolicy struct {
	MaxAttempts        int
	DelaySeconds       int
	ExponentialBackoff bool
}

// Delay returns the retry delay for the given 1-based attempt number.
func (r *RetryPolicy) Delay(attempt int) time.Duration {
	if r == nil || attempt < 1 {
		return 0
	}
	base := time.Duration(r.DelaySeconds) * time.Second
	if !r.ExponentialBackoff {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// StepDefinition is one step within a stage.
type StepDefinition struct {
	Name             string
	Plugin           string
	Run              string
	Shell            string
	WorkingDirectory string
	Environment      map[string]string
	Variables        map[string]string
	Secrets          []string
	Condition        *Condition
	TimeoutMinutes   int
	Retry            *RetryPolicy
	ContinueOnError  *ContinueOnError
	Outputs          []string
}

// DefaultStepTimeoutMinutes is the default step timeout.
const DefaultStepTimeoutMinutes = 30

// DefaultShell is the default shell name; the scheduler leaves this to
// the executor to interpret, the core only records it.
const DefaultShell = "sh"

// ContinueOnError is either a plain boolean or an expression to
// evaluate.
type ContinueOnError struct {
	Bool       *bool
	Expression string
}

// Condition is either a plain expression string or an {if, unless}
// pair.
type Condition struct {
	Expression string
	If         string
	Unless     string
}

// HasIfUnless reports whether this condition uses the {if, unless} form.
func (c *Condition) HasIfUnless() bool {
	return c != nil && (c.If != "" || c.Unless != "")
}
