package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`
	CORSOrigins string `envconfig:"CORS_ORIGINS"`

	// Project state storage
	StorageDir string `envconfig:"STORAGE_DIR" default:"project_states"`

	// Agent team
	AgentConfigPath string `envconfig:"AGENT_CONFIG_PATH" default:"config/agents.yaml"`

	// Anthropic (optional: chat surfaces run in workflow-only mode without a key)
	AnthropicAPIKey string  `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel  string  `envconfig:"ANTHROPIC_MODEL"`
	MaxTokens       int     `envconfig:"MAX_TOKENS" default:"4096"`
	Temperature     float64 `envconfig:"TEMPERATURE" default:"0.7"`
}

// ChatEnabled returns true if an LLM API key is configured.
func (c *Config) ChatEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// EnsureStorageDir creates the storage directory if it does not exist and
// returns its absolute path.
func (c *Config) EnsureStorageDir() (string, error) {
	dir, err := filepath.Abs(c.StorageDir)
	if err != nil {
		return "", fmt.Errorf("resolving storage dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating storage dir %s: %w", dir, err)
	}
	return dir, nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
