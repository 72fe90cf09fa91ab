// Package team implements the procurement agent team: a coordinator plus one
// specialist per workflow stage, configured from a YAML file.
package team

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/procbot-io/procbot/internal/project"
)

// CoordinatorName is the key of the coordinator agent in the config file.
const CoordinatorName = "coordinator"

// specialistByStage maps each workflow stage to its specialist agent key.
var specialistByStage = map[project.Stage]string{
	project.StageBusinessCase:   "business_requirements",
	project.StageMarketResearch: "market_research",
	project.StageRFIRFP:         "rfi_rfp",
	project.StageEvaluation:     "evaluation",
	project.StageSummary:        "summary",
}

// AgentConfig describes a single agent loaded from YAML.
type AgentConfig struct {
	Name         string   `yaml:"name"`
	Role         string   `yaml:"role"`
	Description  string   `yaml:"description"`
	Instructions []string `yaml:"instructions"`
	// Model overrides the provider default for this agent.
	Model string `yaml:"model"`
}

// Config is the full agent team configuration, keyed by agent name.
type Config map[string]AgentConfig

// LoadConfig reads and parses a YAML agent config file, expanding env vars.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("team config: read %s: %w", path, err)
	}
	cfg, err := LoadConfigBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("team config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigBytes parses a YAML agent config from bytes (useful for testing).
func LoadConfigBytes(data []byte) (Config, error) {
	expanded := expandEnvVars(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks that the coordinator and every stage specialist are present.
func (c Config) validate() error {
	var missing []string
	if _, ok := c[CoordinatorName]; !ok {
		missing = append(missing, CoordinatorName)
	}
	for _, stage := range project.Stages {
		key := specialistByStage[stage]
		if _, ok := c[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing agent configs: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SystemPrompt renders the agent's role, description and instructions as a
// single system prompt string.
func (a AgentConfig) SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(a.Name)
	if a.Role != "" {
		b.WriteString(", ")
		b.WriteString(a.Role)
	}
	b.WriteString(".\n")
	if a.Description != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(a.Description))
		b.WriteString("\n")
	}
	if len(a.Instructions) > 0 {
		b.WriteString("\nInstructions:\n")
		for _, inst := range a.Instructions {
			b.WriteString("- ")
			b.WriteString(inst)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the corresponding environment
// variable value. Missing vars are replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
