package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is schedulerd's primary config entry point.
//
// Steps performed:
//  1. Read configPath
//  2. Expand environment variables
//  3. Parse YAML into Config
//  4. Apply default values
//  5. Validate
func Initialize(ctx context.Context, configPath string) (*Config, error) {
	log := slog.With("config_path", configPath)
	log.InfoContext(ctx, "loading configuration")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(configPath, ErrConfigNotFound)
		}
		return nil, NewLoadError(configPath, err)
	}

	data = ExpandEnv(data)

	cfg := &Config{configPath: configPath}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewLoadError(configPath, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	applyDefaults(cfg)

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.InfoContext(ctx, "configuration loaded",
		"http_addr", cfg.HTTP.Addr,
		"bus_urls", cfg.Bus.URLs,
		"dispatch_workers", cfg.Scheduler.DispatchWorkers,
	)
	return cfg, nil
}
