// Package config handles configuration loading for openwork. It
// supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for openwork.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Subagents SubagentsConfig `mapstructure:"subagents" yaml:"subagents"`
	Tools     ToolsConfig     `mapstructure:"tools" yaml:"tools"`
	Workers   WorkersConfig   `mapstructure:"workers" yaml:"workers"`
}

// AnthropicConfig holds model backend settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key; ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	// Model is the model identifier passed to the backend.
	Model string `mapstructure:"model" yaml:"model"`
	// UseAWSBedrock switches to the Bedrock transport.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock" yaml:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region" yaml:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile"`
	// MaxRetries bounds transport retries per decision.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// AgentConfig holds per-task loop settings.
type AgentConfig struct {
	// MaxIterations caps planner round-trips per task.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// VerifyMaxRetries caps corrective verification rounds.
	VerifyMaxRetries int `mapstructure:"verify_max_retries" yaml:"verify_max_retries"`
	// Verify toggles the verification pass on final output.
	Verify bool `mapstructure:"verify" yaml:"verify"`
	// ContextBudget is the context store size budget in bytes.
	ContextBudget int `mapstructure:"context_budget" yaml:"context_budget"`
}

// SubagentsConfig holds decomposition settings.
type SubagentsConfig struct {
	// FanOut bounds concurrently running sub-agents.
	FanOut int `mapstructure:"fan_out" yaml:"fan_out"`
	// MaxDepth bounds nested decomposition.
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`
	// MaxIterations caps each sub-agent's planner round-trips.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
}

// ToolsConfig holds built-in tool settings.
type ToolsConfig struct {
	// BashTimeout bounds one shell command.
	BashTimeout time.Duration `mapstructure:"bash_timeout" yaml:"bash_timeout"`
	// OutputCap bounds captured bytes per command stream.
	OutputCap int `mapstructure:"output_cap" yaml:"output_cap"`
	// FetchEnabled toggles the HTTP fetch tool.
	FetchEnabled bool `mapstructure:"fetch_enabled" yaml:"fetch_enabled"`
}

// WorkersConfig holds orchestrator pool settings.
type WorkersConfig struct {
	// Count bounds concurrently running tasks.
	Count int `mapstructure:"count" yaml:"count"`
	// QueueSize bounds queued submissions.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// Load loads configuration with the following precedence (highest to
// lowest): environment variables, project config (.openwork.yaml in the
// current directory or a parent), user config
// (~/.config/openwork/config.yaml), built-in defaults.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "OPENWORK_MODEL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the project config file if one exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("anthropic.max_retries", 3)

	v.SetDefault("agent.max_iterations", 20)
	v.SetDefault("agent.verify_max_retries", 2)
	v.SetDefault("agent.verify", true)
	v.SetDefault("agent.context_budget", 65536)

	v.SetDefault("subagents.fan_out", 5)
	v.SetDefault("subagents.max_depth", 2)
	v.SetDefault("subagents.max_iterations", 10)

	v.SetDefault("tools.bash_timeout", "60s")
	v.SetDefault("tools.output_cap", 65536)
	v.SetDefault("tools.fetch_enabled", true)

	v.SetDefault("workers.count", 3)
	v.SetDefault("workers.queue_size", 100)
}

// getUserConfigDir returns the XDG config directory for openwork.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "openwork")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "openwork")
	}
	return filepath.Join(home, ".config", "openwork")
}

// findProjectConfig searches for .openwork.yaml in the current
// directory and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".openwork.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			MaxRetries: 3,
		},
		Agent: AgentConfig{
			MaxIterations:    20,
			VerifyMaxRetries: 2,
			Verify:           true,
			ContextBudget:    65536,
		},
		Subagents: SubagentsConfig{
			FanOut:        5,
			MaxDepth:      2,
			MaxIterations: 10,
		},
		Tools: ToolsConfig{
			BashTimeout:  60 * time.Second,
			OutputCap:    65536,
			FetchEnabled: true,
		},
		Workers: WorkersConfig{
			Count:     3,
			QueueSize: 100,
		},
	}
}
