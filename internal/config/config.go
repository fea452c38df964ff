// Package config loads orcaci's process configuration from YAML plus
// environment variable overrides: read, expand env vars, merge onto
// defaults, validate.
package config

import (
	"fmt"
	"time"
)

// Config is the umbrella configuration for the schedulerd process.
type Config struct {
	configPath string

	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Bus       BusConfig       `yaml:"bus"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Slack     *SlackConfig    `yaml:"slack"`
	Pipelines PipelinesConfig `yaml:"pipelines"`
}

// ConfigPath returns the file this Config was loaded from.
func (c *Config) ConfigPath() string { return c.configPath }

// HTTPConfig configures the ops/control HTTP server.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// DatabaseConfig configures the Postgres connection pool backing the
// repository ports.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN renders a postgres:// connection URL, understood by both
// pgxpool.ParseConfig and golang-migrate's pgx5 source scheme.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// BusConfig configures the event bus connection.
type BusConfig struct {
	URLs       []string `yaml:"urls" validate:"required"`
	StreamName string   `yaml:"stream_name"`
	MaxDeliver int      `yaml:"max_deliver"`
}

// SchedulerConfig configures the orchestrator's concurrency model and
// dispatcher tuning.
type SchedulerConfig struct {
	DispatchWorkers      int            `yaml:"dispatch_workers"`
	HeartbeatIntervalSec int            `yaml:"heartbeat_interval_seconds"`
	ConcurrencyLimits    map[string]int `yaml:"concurrency_limits"`
	PipelineLimits       map[string]int `yaml:"pipeline_limits"`
}

// SlackConfig enables approval-gate/run-completion notifications
// posted to a Slack channel via a bot token.
type SlackConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TokenEnv     string `yaml:"token_env"`
	Channel      string `yaml:"channel"`
	DashboardURL string `yaml:"dashboard_url"`
}

// PipelinesConfig names where pipeline definition YAML files live, to
// be loaded and upserted into the PipelineRepository at startup.
type PipelinesConfig struct {
	Dir string `yaml:"dir"`
}
