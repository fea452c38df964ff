package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates a loaded Config comprehensively, failing fast at
// the first error across a fixed field-validation chain.
type Validator struct {
	cfg *Config
	v   *validator.Validate
}

// NewValidator builds a validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg, v: validator.New(validator.WithRequiredStructEnabled())}
}

// ValidateAll runs struct-tag validation first, then the cross-field
// checks a tag alone can't express.
func (va *Validator) ValidateAll() error {
	if err := va.v.Struct(va.cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if err := va.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}
	if err := va.validateBus(); err != nil {
		return fmt.Errorf("bus validation failed: %w", err)
	}
	if err := va.validateScheduler(); err != nil {
		return fmt.Errorf("scheduler validation failed: %w", err)
	}
	if err := va.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}
	return nil
}

func (va *Validator) validateDatabase() error {
	d := va.cfg.Database
	if d.Host == "" {
		return NewValidationError("database", "host", ErrMissingRequiredField)
	}
	if d.Database == "" {
		return NewValidationError("database", "database", ErrMissingRequiredField)
	}
	if d.MaxConns < d.MinConns {
		return NewValidationError("database", "max_conns",
			fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", d.MaxConns, d.MinConns))
	}
	return nil
}

func (va *Validator) validateBus() error {
	b := va.cfg.Bus
	if len(b.URLs) == 0 {
		return NewValidationError("bus", "urls", ErrMissingRequiredField)
	}
	if b.MaxDeliver < 1 {
		return NewValidationError("bus", "max_deliver",
			fmt.Errorf("must be at least 1, got %d", b.MaxDeliver))
	}
	return nil
}

func (va *Validator) validateScheduler() error {
	s := va.cfg.Scheduler
	if s.DispatchWorkers < 1 {
		return NewValidationError("scheduler", "dispatch_workers",
			fmt.Errorf("must be at least 1, got %d", s.DispatchWorkers))
	}
	if s.HeartbeatIntervalSec < 1 {
		return NewValidationError("scheduler", "heartbeat_interval_seconds",
			fmt.Errorf("must be at least 1, got %d", s.HeartbeatIntervalSec))
	}
	for group, limit := range s.ConcurrencyLimits {
		if limit < 1 {
			return NewValidationError("scheduler", "concurrency_limits",
				fmt.Errorf("group %q: limit must be at least 1, got %d", group, limit))
		}
	}
	return nil
}

func (va *Validator) validateSlack() error {
	sl := va.cfg.Slack
	if sl == nil || !sl.Enabled {
		return nil
	}
	if sl.TokenEnv == "" {
		return NewValidationError("slack", "token_env", ErrMissingRequiredField)
	}
	if sl.Channel == "" {
		return NewValidationError("slack", "channel", ErrMissingRequiredField)
	}
	return nil
}
