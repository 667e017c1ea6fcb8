package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SwarmConfig controls the worker pool
type SwarmConfig struct {
	MaxWorkers            int   `yaml:"maxWorkers"`
	TaskTimeoutMs         int64 `yaml:"taskTimeoutMs"`
	HealthCheckIntervalMs int64 `yaml:"healthCheckIntervalMs"`
}

// WorkspaceConfig controls the on-disk workspace store
type WorkspaceConfig struct {
	RootPath        string `yaml:"rootPath"`
	TempPath        string `yaml:"tempPath"`
	TTLMs           int64  `yaml:"ttlMs"`
	SweepIntervalMs int64  `yaml:"sweepIntervalMs"`
	MaxFileBytes    int64  `yaml:"maxFileBytes"`
	DeleteOnCancel  *bool  `yaml:"deleteOnCancel"`
}

// ContainerConfig controls the containerised slot strategy
type ContainerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Image      string `yaml:"image"`
	SocketPath string `yaml:"socketPath"`
	Network    string `yaml:"network"`
}

// OrchestratorConfig controls mission admission and scheduling
type OrchestratorConfig struct {
	TickIntervalMs    int64 `yaml:"tickIntervalMs"`
	MaxActiveMissions int   `yaml:"maxActiveMissions"`
}

// APIConfig controls the HTTP control plane
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig controls log emission
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the full orchestrator configuration
type Config struct {
	Swarm        SwarmConfig        `yaml:"swarm"`
	Workspace    WorkspaceConfig    `yaml:"workspace"`
	Container    ContainerConfig    `yaml:"container"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	API          APIConfig          `yaml:"api"`
	Log          LogConfig          `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Swarm: SwarmConfig{
			MaxWorkers:            16,
			TaskTimeoutMs:         10 * 60 * 1000,
			HealthCheckIntervalMs: 5000,
		},
		Workspace: WorkspaceConfig{
			RootPath:        "/var/lib/aegis/workspaces",
			TempPath:        "/var/lib/aegis/tmp",
			TTLMs:           24 * 60 * 60 * 1000,
			SweepIntervalMs: 60 * 60 * 1000,
			MaxFileBytes:    10 * 1024 * 1024,
		},
		Container: ContainerConfig{
			Enabled:    false,
			Image:      "docker.io/library/alpine:3.20",
			SocketPath: "/run/containerd/containerd.sock",
			Network:    "none",
		},
		Orchestrator: OrchestratorConfig{
			TickIntervalMs:    1000,
			MaxActiveMissions: 64,
		},
		API: APIConfig{
			Listen: ":8420",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.Swarm.MaxWorkers <= 0 {
		return fmt.Errorf("swarm.maxWorkers must be positive, got %d", c.Swarm.MaxWorkers)
	}
	if c.Workspace.RootPath == "" {
		return fmt.Errorf("workspace.rootPath must not be empty")
	}
	if c.Workspace.MaxFileBytes <= 0 {
		return fmt.Errorf("workspace.maxFileBytes must be positive, got %d", c.Workspace.MaxFileBytes)
	}
	if c.Container.Enabled && c.Container.Image == "" {
		return fmt.Errorf("container.image must be set when container.enabled is true")
	}
	return nil
}

// TaskTimeout returns the slot health ceiling as a duration.
func (c *SwarmConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutMs) * time.Millisecond
}

// HealthCheckInterval returns the health sweep period as a duration.
func (c *SwarmConfig) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalMs) * time.Millisecond
}

// TTL returns the workspace eviction age as a duration.
func (c *WorkspaceConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

// SweepInterval returns the eviction sweep period as a duration.
func (c *WorkspaceConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMs) * time.Millisecond
}

// TickInterval returns the scheduling loop period as a duration.
func (c *OrchestratorConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// ShouldDeleteOnCancel reports whether cancelMission removes the workspace
// immediately (default) or defers to the TTL sweep.
func (c *WorkspaceConfig) ShouldDeleteOnCancel() bool {
	if c.DeleteOnCancel == nil {
		return true
	}
	return *c.DeleteOnCancel
}
