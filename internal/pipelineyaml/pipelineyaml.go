// Package pipelineyaml parses pipeline definition YAML files into
// domain.PipelineDefinition, the way pkg/config's loader.go parses
// tarsy.yaml into its registries: read, expand env vars, unmarshal,
// validate.
package pipelineyaml

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/orcaci/internal/config"
	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// file is the on-disk shape of one pipeline YAML document. Field names
// mirror domain.PipelineDefinition/StageDefinition exactly, so authors
// write pipelines in the same vocabulary the scheduler uses internally.
type file struct {
	Name           string            `yaml:"name" validate:"required"`
	Version        string            `yaml:"version"`
	Description    string            `yaml:"description"`
	Triggers       []triggerYAML     `yaml:"triggers"`
	Variables      map[string]string `yaml:"variables"`
	Stages         []stageYAML       `yaml:"stages" validate:"required,min=1,dive"`
	Cache          *cacheYAML        `yaml:"cache"`
	Artifacts      *artifactsYAML    `yaml:"artifacts"`
	Concurrency    *concurrencyYAML  `yaml:"concurrency"`
	TimeoutMinutes int               `yaml:"timeout_minutes"`
}

type triggerYAML struct {
	Type        string   `yaml:"type" validate:"required"`
	Branches    []string `yaml:"branches"`
	Tags        []string `yaml:"tags"`
	Paths       []string `yaml:"paths"`
	PathsIgnore []string `yaml:"paths_ignore"`
	Cron        string   `yaml:"cron"`
}

type cacheYAML struct {
	Key   string   `yaml:"key"`
	Paths []string `yaml:"paths"`
}

type artifactsYAML struct {
	Paths []string `yaml:"paths"`
}

type concurrencyYAML struct {
	Group            string `yaml:"group"`
	CancelInProgress bool   `yaml:"cancel_in_progress"`
}

type stageYAML struct {
	Name           string            `yaml:"name" validate:"required"`
	DisplayName    string            `yaml:"display_name"`
	DependsOn      []string          `yaml:"depends_on"`
	If             string            `yaml:"if"`
	Unless         string            `yaml:"unless"`
	Condition      string            `yaml:"condition"`
	Environment    string            `yaml:"environment"`
	Variables      map[string]string `yaml:"variables"`
	Steps          []stepYAML        `yaml:"steps" validate:"required,min=1,dive"`
	Agent          *agentYAML        `yaml:"agent"`
	Matrix         *matrixYAML       `yaml:"matrix"`
	TimeoutMinutes int               `yaml:"timeout_minutes"`
	Retry          *retryYAML        `yaml:"retry"`
	Approval       *approvalYAML     `yaml:"approval"`
}

type agentYAML struct {
	Labels []string `yaml:"labels"`
	Name   string   `yaml:"name"`
}

type matrixYAML struct {
	Dimensions  map[string][]string `yaml:"dimensions"`
	Include     []map[string]string `yaml:"include"`
	Exclude     []map[string]string `yaml:"exclude"`
	FailFast    bool                `yaml:"fail_fast"`
	MaxParallel int                 `yaml:"max_parallel"`
}

type retryYAML struct {
	MaxAttempts        int  `yaml:"max_attempts"`
	DelaySeconds       int  `yaml:"delay_seconds"`
	ExponentialBackoff bool `yaml:"exponential_backoff"`
}

type approvalYAML struct {
	RequiredApprovers   int      `yaml:"required_approvers"`
	AllowedApprovers    []string `yaml:"allowed_approvers"`
	PreventSelfApproval bool     `yaml:"prevent_self_approval"`
	TimeoutMinutes      int      `yaml:"timeout_minutes"`
}

type stepYAML struct {
	Name             string            `yaml:"name" validate:"required"`
	Plugin           string            `yaml:"plugin"`
	Run              string            `yaml:"run"`
	Shell            string            `yaml:"shell"`
	WorkingDirectory string            `yaml:"working_directory"`
	Environment      map[string]string `yaml:"environment"`
	Variables        map[string]string `yaml:"variables"`
	Secrets          []string          `yaml:"secrets"`
	If               string            `yaml:"if"`
	Unless           string            `yaml:"unless"`
	Condition        string            `yaml:"condition"`
	TimeoutMinutes   int               `yaml:"timeout_minutes"`
	Retry            *retryYAML        `yaml:"retry"`
	ContinueOnError  *continueYAML     `yaml:"continue_on_error"`
	Outputs          []string          `yaml:"outputs"`
}

// continueYAML accepts either `continue_on_error: true` or
// `continue_on_error: ${{ expr }}`.
type continueYAML struct {
	asBool *bool
	expr   string
}

func (c *continueYAML) UnmarshalYAML(node *yaml.Node) error {
	var b bool
	if err := node.Decode(&b); err == nil {
		c.asBool = &b
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("continue_on_error: expected bool or expression string")
	}
	c.expr = s
	return nil
}

// Load reads and parses every *.yaml/*.yml file directly under dir into
// a PipelineDefinition.
func Load(dir string) ([]*domain.PipelineDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pipelineyaml: read dir %s: %w", dir, err)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	var defs []*domain.PipelineDefinition
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		def, err := loadOne(path, v)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func loadOne(path string, v *validator.Validate) (*domain.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipelineyaml: read %s: %w", path, err)
	}
	data = config.ExpandEnv(data)

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("pipelineyaml: parse %s: %w", path, err)
	}
	if err := v.Struct(&f); err != nil {
		return nil, fmt.Errorf("pipelineyaml: validate %s: %w", path, err)
	}

	return toDomain(&f), nil
}

func toDomain(f *file) *domain.PipelineDefinition {
	p := &domain.PipelineDefinition{
		ID:             domain.NewID(domain.KindPipeline),
		Name:           f.Name,
		Version:        f.Version,
		Description:    f.Description,
		Variables:      f.Variables,
		TimeoutMinutes: f.TimeoutMinutes,
	}
	for _, t := range f.Triggers {
		p.Triggers = append(p.Triggers, domain.TriggerConfig{
			Type:        domain.TriggerType(t.Type),
			Branches:    t.Branches,
			Tags:        t.Tags,
			Paths:       t.Paths,
			PathsIgnore: t.PathsIgnore,
			Cron:        t.Cron,
		})
	}
	if f.Cache != nil {
		p.Cache = &domain.CacheConfig{Key: f.Cache.Key, Paths: f.Cache.Paths}
	}
	if f.Artifacts != nil {
		p.Artifacts = &domain.ArtifactsConfig{Paths: f.Artifacts.Paths}
	}
	if f.Concurrency != nil {
		p.Concurrency = &domain.ConcurrencyConfig{
			Group:            f.Concurrency.Group,
			CancelInProgress: f.Concurrency.CancelInProgress,
		}
	}
	for _, st := range f.Stages {
		p.Stages = append(p.Stages, toStage(st))
	}
	return p
}

func toStage(s stageYAML) domain.StageDefinition {
	stage := domain.StageDefinition{
		Name:           s.Name,
		DisplayName:    s.DisplayName,
		DependsOn:      s.DependsOn,
		Condition:      toCondition(s.If, s.Unless, s.Condition),
		Environment:    domain.EnvironmentType(s.Environment),
		Variables:      s.Variables,
		TimeoutMinutes: s.TimeoutMinutes,
		Retry:          toRetry(s.Retry),
	}
	if s.Agent != nil {
		stage.Agent = &domain.AgentSelector{Labels: s.Agent.Labels, Name: s.Agent.Name}
	}
	if s.Matrix != nil {
		stage.Matrix = &domain.Matrix{
			Dimensions:  s.Matrix.Dimensions,
			Include:     s.Matrix.Include,
			Exclude:     s.Matrix.Exclude,
			FailFast:    s.Matrix.FailFast,
			MaxParallel: s.Matrix.MaxParallel,
		}
	}
	if s.Approval != nil {
		stage.Approval = &domain.ApprovalConfig{
			RequiredApprovers:   s.Approval.RequiredApprovers,
			AllowedApprovers:    s.Approval.AllowedApprovers,
			PreventSelfApproval: s.Approval.PreventSelfApproval,
			TimeoutMinutes:      s.Approval.TimeoutMinutes,
		}
	}
	for _, st := range s.Steps {
		stage.Steps = append(stage.Steps, toStep(st))
	}
	return stage
}

func toStep(s stepYAML) domain.StepDefinition {
	step := domain.StepDefinition{
		Name:             s.Name,
		Plugin:           s.Plugin,
		Run:              s.Run,
		Shell:            s.Shell,
		WorkingDirectory: s.WorkingDirectory,
		Environment:      s.Environment,
		Variables:        s.Variables,
		Secrets:          s.Secrets,
		Condition:        toCondition(s.If, s.Unless, s.Condition),
		TimeoutMinutes:   s.TimeoutMinutes,
		Retry:            toRetry(s.Retry),
		Outputs:          s.Outputs,
	}
	if s.ContinueOnError != nil {
		step.ContinueOnError = &domain.ContinueOnError{
			Bool:       s.ContinueOnError.asBool,
			Expression: s.ContinueOnError.expr,
		}
	}
	return step
}

func toCondition(ifExpr, unless, expr string) *domain.Condition {
	if ifExpr == "" && unless == "" && expr == "" {
		return nil
	}
	return &domain.Condition{Expression: expr, If: ifExpr, Unless: unless}
}

func toRetry(r *retryYAML) *domain.RetryPolicy {
	if r == nil {
		return nil
	}
	return &domain.RetryPolicy{
		MaxAttempts:        r.MaxAttempts,
		DelaySeconds:       r.DelaySeconds,
		ExponentialBackoff: r.ExponentialBackoff,
	}
}
