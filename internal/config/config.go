// Package config handles configuration loading and management for wayfinder.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for wayfinder.
type Config struct {
	Oracle  OracleConfig  `mapstructure:"oracle"`
	Synth   SynthConfig   `mapstructure:"synth"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Ranker  RankerConfig  `mapstructure:"ranker"`
	Agent   AgentConfig   `mapstructure:"agent"`
	State   StateConfig   `mapstructure:"state"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// OracleConfig selects and configures the language model backend.
type OracleConfig struct {
	Provider string `mapstructure:"provider" validate:"oneof=openai anthropic"`
	Model    string `mapstructure:"model" validate:"required"`
	// BaseURL points the OpenAI backend at a compatible server.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey  string `mapstructure:"api_key"`
	// UseBedrock routes Anthropic requests through AWS Bedrock.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region" validate:"required_if=UseBedrock true"`
	AWSProfile string `mapstructure:"aws_profile"`
	// RatePerSecond limits oracle calls. Zero disables the limit.
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"gte=0"`
	Burst         int     `mapstructure:"burst" validate:"gte=0"`
}

// SynthConfig holds plan synthesis settings.
type SynthConfig struct {
	MaxGenerationAttempts int `mapstructure:"max_generation_attempts" validate:"gte=1,lte=10"`
	MaxRepairAttempts     int `mapstructure:"max_repair_attempts" validate:"gte=0,lte=10"`
	// ArchiveDir receives a copy of every accepted plan program when set.
	ArchiveDir string `mapstructure:"archive_dir"`
}

// SandboxConfig bounds plan program execution.
type SandboxConfig struct {
	MaxSteps uint64        `mapstructure:"max_steps" validate:"gte=1000"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gte=100ms"`
}

// RankerConfig holds option ranking settings.
type RankerConfig struct {
	TopLogprobs     int     `mapstructure:"top_logprobs" validate:"gte=1,lte=20"`
	LinkThreshold   float64 `mapstructure:"link_threshold" validate:"gt=0,lt=1"`
	ActionThreshold float64 `mapstructure:"action_threshold" validate:"gt=0,lt=1"`
	MaxPromptTokens int     `mapstructure:"max_prompt_tokens" validate:"gte=0"`
}

// AgentConfig holds agent loop limits.
type AgentConfig struct {
	MaxEmptyRankings int     `mapstructure:"max_empty_rankings" validate:"gte=1"`
	ActionMinScore   float64 `mapstructure:"action_min_score" validate:"gte=0,lt=1"`
	// MaxIterations caps a session's iterations. Zero disables the cap.
	MaxIterations   int  `mapstructure:"max_iterations" validate:"gte=0"`
	SubtractivePass bool `mapstructure:"subtractive_pass"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	// File receives a JSON debug log when set.
	File string `mapstructure:"file"`
}

// ServerConfig holds control API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (WAYFINDER_ORACLE_MODEL, ...)
// 2. Project config (.wayfinder.yaml in current directory or parent)
// 3. User config (~/.config/wayfinder/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific file on top of the
// defaults. Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("wayfinder")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Oracle.APIKey = expandEnv(cfg.Oracle.APIKey)
	cfg.Oracle.BaseURL = expandEnv(cfg.Oracle.BaseURL)
	cfg.State.DBPath = expandEnv(cfg.State.DBPath)
	cfg.Logging.File = expandEnv(cfg.Logging.File)
	cfg.Synth.ArchiveDir = expandEnv(cfg.Synth.ArchiveDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("oracle.provider", d.Oracle.Provider)
	v.SetDefault("oracle.model", d.Oracle.Model)
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.use_bedrock", false)
	v.SetDefault("oracle.aws_region", "")
	v.SetDefault("oracle.aws_profile", "")
	v.SetDefault("oracle.rate_per_second", d.Oracle.RatePerSecond)
	v.SetDefault("oracle.burst", d.Oracle.Burst)

	v.SetDefault("synth.max_generation_attempts", d.Synth.MaxGenerationAttempts)
	v.SetDefault("synth.max_repair_attempts", d.Synth.MaxRepairAttempts)
	v.SetDefault("synth.archive_dir", "")

	v.SetDefault("sandbox.max_steps", d.Sandbox.MaxSteps)
	v.SetDefault("sandbox.timeout", d.Sandbox.Timeout.String())

	v.SetDefault("ranker.top_logprobs", d.Ranker.TopLogprobs)
	v.SetDefault("ranker.link_threshold", d.Ranker.LinkThreshold)
	v.SetDefault("ranker.action_threshold", d.Ranker.ActionThreshold)
	v.SetDefault("ranker.max_prompt_tokens", d.Ranker.MaxPromptTokens)

	v.SetDefault("agent.max_empty_rankings", d.Agent.MaxEmptyRankings)
	v.SetDefault("agent.action_min_score", d.Agent.ActionMinScore)
	v.SetDefault("agent.max_iterations", d.Agent.MaxIterations)
	v.SetDefault("agent.subtractive_pass", d.Agent.SubtractivePass)

	v.SetDefault("state.db_path", "")
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("server.addr", d.Server.Addr)
}

// getUserConfigDir returns the XDG config directory for wayfinder.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "wayfinder")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "wayfinder")
	}
	return filepath.Join(home, ".config", "wayfinder")
}

// findProjectConfig searches for .wayfinder.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".wayfinder.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return ""
		}
		cwd = parent
	}
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Oracle: OracleConfig{
			Provider: "openai",
			Model:    "gpt-4o",
			Burst:    1,
		},
		Synth: SynthConfig{
			MaxGenerationAttempts: 3,
			MaxRepairAttempts:     2,
		},
		Sandbox: SandboxConfig{
			MaxSteps: 1_000_000,
			Timeout:  5 * time.Second,
		},
		Ranker: RankerConfig{
			TopLogprobs:     10,
			LinkThreshold:   0.2,
			ActionThreshold: 0.6,
			MaxPromptTokens: 12000,
		},
		Agent: AgentConfig{
			MaxEmptyRankings: 3,
			ActionMinScore:   0.5,
			MaxIterations:    50,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(".wayfinder", "logs", "debug.log"),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}
