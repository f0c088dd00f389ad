// Package config provides configuration loading, validation, and management
// for the engine. It handles YAML config files, environment variable
// substitution, and per-tool enable flags.
package config

import (
	"fmt"
	"time"
)

// Reasoner provider constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Default engine limits.
const (
	DefaultMaxIterations  = 50
	DefaultMemoryWindow   = 25
	DefaultToolTimeoutSec = 120
	DefaultRetentionHours = 720
	DefaultSweepMinutes   = 60
	DefaultMaxTokens      = 4096
	DefaultPort           = 8080
)

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// GracefulShutdownTimeoutSec bounds in-flight request draining on stop.
	GracefulShutdownTimeoutSec int `yaml:"graceful_shutdown_timeout_sec"`
}

// EngineConfig contains reasoning loop and gateway limits.
type EngineConfig struct {
	MaxIterations  int `yaml:"max_iterations"`
	MemoryWindow   int `yaml:"memory_window"`
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// RetentionHours is the memory record retention window.
	RetentionHours int `yaml:"retention_hours"`
	// SweepIntervalMin is how often the expiry sweep runs.
	SweepIntervalMin int `yaml:"sweep_interval_min"`
}

// ToolTimeout returns the per-call timeout as a duration.
func (e *EngineConfig) ToolTimeout() time.Duration {
	return time.Duration(e.ToolTimeoutSec) * time.Second
}

// Retention returns the memory retention window as a duration.
func (e *EngineConfig) Retention() time.Duration {
	return time.Duration(e.RetentionHours) * time.Hour
}

// SweepInterval returns the expiry sweep interval as a duration.
func (e *EngineConfig) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalMin) * time.Minute
}

// ReasonerConfig selects and configures the language-model collaborator.
type ReasonerConfig struct {
	Provider    string  `yaml:"provider"` // anthropic | openai | google | ollama
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"` // supports ${ENV_VAR} substitution
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	OllamaHost  string  `yaml:"ollama_host,omitempty"`
}

// WarehouseConfig points the query executor at the warehouse connection.
type WarehouseConfig struct {
	DSN             string `yaml:"dsn"`
	DefaultDatabase string `yaml:"default_database"`
	DefaultSchema   string `yaml:"default_schema"`
}

// RepoConfig identifies the version-controlled repository the agent edits.
type RepoConfig struct {
	Remote     string `yaml:"remote"` // owner/repo
	BaseBranch string `yaml:"base_branch"`
	// WorkflowFile is the CI workflow the agent triggers and polls.
	WorkflowFile string `yaml:"workflow_file"`
}

// DocsConfig configures the documentation search collection.
type DocsConfig struct {
	Collection string `yaml:"collection"`
	TopK       int    `yaml:"top_k"`
}

// StorageConfig holds on-disk paths for persistence, progress, and vectors.
type StorageConfig struct {
	DBPath     string `yaml:"db_path"`
	LogsDir    string `yaml:"logs_dir"`
	VectorPath string `yaml:"vector_path"`
}

// EmbeddingConfig selects the embedding backend for semantic memory and docs
// search.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai | ollama
	APIKey     string `yaml:"api_key,omitempty"`
	Model      string `yaml:"model,omitempty"`
	OllamaHost string `yaml:"ollama_host,omitempty"`
}

// ToolCategory holds enable flags for a family of tools. Operations absent
// from the map inherit the category's Enabled flag.
type ToolCategory struct {
	Enabled    bool            `yaml:"enabled"`
	Operations map[string]bool `yaml:"operations,omitempty"`
}

// Config represents the main configuration for the engine.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Engine    EngineConfig            `yaml:"engine"`
	Reasoner  ReasonerConfig          `yaml:"reasoner"`
	Warehouse WarehouseConfig         `yaml:"warehouse"`
	Repo      RepoConfig              `yaml:"repo"`
	Docs      DocsConfig              `yaml:"docs"`
	Storage   StorageConfig           `yaml:"storage"`
	Embedding EmbeddingConfig         `yaml:"embedding"`
	Tools     map[string]ToolCategory `yaml:"tools"`
}

// ToolEnabled reports whether an operation within a category is enabled.
// Unknown categories default to disabled; unknown operations inherit the
// category flag.
func (c *Config) ToolEnabled(category, operation string) bool {
	cat, ok := c.Tools[category]
	if !ok {
		return false
	}
	if !cat.Enabled {
		return false
	}
	if enabled, ok := cat.Operations[operation]; ok {
		return enabled
	}
	return true
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.GracefulShutdownTimeoutSec == 0 {
		c.Server.GracefulShutdownTimeoutSec = 30
	}
	if c.Engine.MaxIterations == 0 {
		c.Engine.MaxIterations = DefaultMaxIterations
	}
	if c.Engine.MemoryWindow == 0 {
		c.Engine.MemoryWindow = DefaultMemoryWindow
	}
	if c.Engine.ToolTimeoutSec == 0 {
		c.Engine.ToolTimeoutSec = DefaultToolTimeoutSec
	}
	if c.Engine.RetentionHours == 0 {
		c.Engine.RetentionHours = DefaultRetentionHours
	}
	if c.Engine.SweepIntervalMin == 0 {
		c.Engine.SweepIntervalMin = DefaultSweepMinutes
	}
	if c.Reasoner.MaxTokens == 0 {
		c.Reasoner.MaxTokens = DefaultMaxTokens
	}
	if c.Repo.BaseBranch == "" {
		c.Repo.BaseBranch = "main"
	}
	if c.Docs.Collection == "" {
		c.Docs.Collection = "warehouse-docs"
	}
	if c.Docs.TopK == 0 {
		c.Docs.TopK = 5
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "dwagent.db"
	}
	if c.Storage.LogsDir == "" {
		c.Storage.LogsDir = "logs"
	}
	if c.Storage.VectorPath == "" {
		c.Storage.VectorPath = "vectors"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOpenAI
	}
	if c.Tools == nil {
		c.Tools = DefaultToolCatalog()
	}
}

// DefaultToolCatalog enables every tool category and operation.
func DefaultToolCatalog() map[string]ToolCategory {
	return map[string]ToolCategory{
		"warehouse":  {Enabled: true},
		"repository": {Enabled: true},
		"ci":         {Enabled: true},
		"docs":       {Enabled: true},
		"escalation": {Enabled: true},
		"progress":   {Enabled: true},
	}
}

func validateConfig(c *Config) error {
	switch c.Reasoner.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
		if c.Reasoner.APIKey == "" {
			return fmt.Errorf("reasoner provider %s requires an api_key", c.Reasoner.Provider)
		}
	case ProviderOllama:
		// Local provider, no key.
	case "":
		return fmt.Errorf("reasoner provider is required")
	default:
		return fmt.Errorf("unknown reasoner provider: %s", c.Reasoner.Provider)
	}
	if c.Reasoner.Model == "" {
		return fmt.Errorf("reasoner model is required")
	}
	if c.Reasoner.Temperature < 0.0 || c.Reasoner.Temperature > 2.0 {
		return fmt.Errorf("reasoner temperature must be between 0.0 and 2.0")
	}
	if c.Engine.MaxIterations < 1 {
		return fmt.Errorf("engine max_iterations must be positive")
	}
	if c.Engine.MemoryWindow < 1 {
		return fmt.Errorf("engine memory_window must be positive")
	}
	return nil
}
