package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no oracle API key configured")

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv     KeySource = "environment"
	KeySourceConfig  KeySource = "config_file"
	KeySourceBedrock KeySource = "aws_credentials"
	KeySourceNone    KeySource = "none"
)

// envKeyFor returns the provider's conventional API key variable.
func envKeyFor(provider string) string {
	if provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// GetAPIKey returns the oracle API key and where it came from. The provider's
// environment variable wins over the config file. Bedrock needs no key.
func GetAPIKey(cfg *Config) (string, KeySource, error) {
	if cfg != nil && cfg.Oracle.Provider == "anthropic" && cfg.Oracle.UseBedrock {
		return "", KeySourceBedrock, nil
	}

	provider := ""
	if cfg != nil {
		provider = cfg.Oracle.Provider
	}
	if key := os.Getenv(envKeyFor(provider)); key != "" {
		return key, KeySourceEnv, nil
	}

	if cfg != nil && cfg.Oracle.APIKey != "" {
		key := os.ExpandEnv(cfg.Oracle.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, KeySourceConfig, nil
		}
	}

	// OpenAI-compatible local servers often run without a key.
	if cfg != nil && provider == "openai" && cfg.Oracle.BaseURL != "" {
		return "", KeySourceNone, nil
	}
	return "", KeySourceNone, ErrNoAPIKey
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and the last 4.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
