// Package config loads and validates Ralph Swarm's runtime configuration:
// a YAML file merged with environment overrides and CLI flags, in that
// order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable Ralph Swarm needs at startup. Fields mirror
// the "Environment inputs" named in the external-interfaces contract:
// state root, projects root, LLM provider/model, per-task timeout, stale
// threshold, heartbeat period, worker caps.
type Config struct {
	StateRoot    string `yaml:"state_root"`
	ProjectsRoot string `yaml:"projects_root"`

	LLMProvider string `yaml:"llm_provider"`
	LLMModel    string `yaml:"llm_model"`
	AgentPath   string `yaml:"agent_path"`

	Workers           int `yaml:"workers"`
	MaxWorkersPerRun  int `yaml:"max_workers_per_run"`
	MaxWorkersGlobal  int `yaml:"max_workers_global"`

	TaskTimeout     time.Duration `yaml:"task_timeout"`
	StaleThreshold  time.Duration `yaml:"stale_threshold"`
	HeartbeatPeriod time.Duration `yaml:"heartbeat_period"`
	PollInterval    time.Duration `yaml:"poll_interval"`

	MaxAttempts int `yaml:"max_attempts"`

	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`

	IntegrationBranch string `yaml:"integration_branch"`
}

// DefaultConfig returns sane defaults, following conductor's convention of
// a single construction point for baseline values.
func DefaultConfig() *Config {
	return &Config{
		StateRoot:         ".swarm/state",
		ProjectsRoot:      ".swarm/projects",
		LLMProvider:       "anthropic",
		LLMModel:          "",
		AgentPath:         "claude",
		Workers:           4,
		MaxWorkersPerRun:  8,
		MaxWorkersGlobal:  16,
		TaskTimeout:       30 * time.Minute,
		StaleThreshold:    3 * time.Minute,
		HeartbeatPeriod:   20 * time.Second,
		PollInterval:      2 * time.Second,
		MaxAttempts:       3,
		LogLevel:          "info",
		LogDir:            ".swarm/logs",
		IntegrationBranch: "main",
	}
}

// LoadConfig reads path as YAML over DefaultConfig(); a missing file is
// not an error (conductor's LoadConfig falls back to defaults the same
// way). Explicit env overrides are applied after the file is merged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else {
			// Re-parse into a raw map first so we only overwrite fields the
			// YAML actually sets, distinguishing "absent" from "explicit
			// zero value" the way conductor's LoadConfig does.
			var raw map[string]interface{}
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides reads RALPH_* environment variables, mirroring
// conductor's CONDUCTOR_* convention in applyConsoleEnvOverrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RALPH_STATE_ROOT"); v != "" {
		cfg.StateRoot = v
	}
	if v := os.Getenv("RALPH_PROJECTS_ROOT"); v != "" {
		cfg.ProjectsRoot = v
	}
	if v := os.Getenv("RALPH_LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	if v := os.Getenv("RALPH_LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("RALPH_AGENT_PATH"); v != "" {
		cfg.AgentPath = v
	}
	if v := os.Getenv("RALPH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("RALPH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RALPH_TASK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TaskTimeout = d
		}
	}
}

// FlagOverrides carries CLI flag values where nil means "not set",
// following conductor's MergeWithFlags idiom of pointer-typed overrides
// so explicit false/0 can be distinguished from absence.
type FlagOverrides struct {
	Workers        *int
	TaskTimeout    *time.Duration
	StaleThreshold *time.Duration
	LogLevel       *string
	LogDir         *string
}

// MergeWithFlags applies CLI flags over the loaded config.
func (c *Config) MergeWithFlags(f FlagOverrides) {
	if f.Workers != nil {
		c.Workers = *f.Workers
	}
	if f.TaskTimeout != nil {
		c.TaskTimeout = *f.TaskTimeout
	}
	if f.StaleThreshold != nil {
		c.StaleThreshold = *f.StaleThreshold
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks invariants a malformed config would otherwise violate
// silently at runtime.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.MaxWorkersPerRun > 0 && c.Workers > c.MaxWorkersPerRun {
		return fmt.Errorf("workers (%d) exceeds max_workers_per_run (%d)", c.Workers, c.MaxWorkersPerRun)
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("task_timeout must be non-negative")
	}
	if c.StaleThreshold <= c.HeartbeatPeriod {
		return fmt.Errorf("stale_threshold (%s) must exceed heartbeat_period (%s)", c.StaleThreshold, c.HeartbeatPeriod)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if c.StateRoot == "" {
		return fmt.Errorf("state_root must not be empty")
	}
	if c.ProjectsRoot == "" {
		return fmt.Errorf("projects_root must not be empty")
	}
	return nil
}
