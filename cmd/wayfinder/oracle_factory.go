package main

import (
	"fmt"
	"log/slog"

	"github.com/ShayCichocki/wayfinder/internal/config"
	"github.com/ShayCichocki/wayfinder/internal/oracle"
)

// newOracle creates the configured backend, rate limited and traced. It is
// shared by every session; sessions meter it separately.
func newOracle(cfg *config.Config, logger *slog.Logger) (oracle.Oracle, error) {
	key, source, err := config.GetAPIKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("create oracle: %w (set %s or oracle.api_key)", err, providerEnv(cfg.Oracle.Provider))
	}
	logger.Debug("oracle credentials", "provider", cfg.Oracle.Provider, "source", source, "key", config.MaskAPIKey(key))

	var backend oracle.Oracle
	switch cfg.Oracle.Provider {
	case "anthropic":
		backend, err = oracle.NewAnthropic(oracle.AnthropicConfig{
			Model:         cfg.Oracle.Model,
			APIKey:        key,
			UseAWSBedrock: cfg.Oracle.UseBedrock,
			AWSRegion:     cfg.Oracle.AWSRegion,
			AWSProfile:    cfg.Oracle.AWSProfile,
		}, logger)
		if err == nil {
			logger.Warn("the anthropic backend has no logprobs; option ranking will always come back empty")
		}
	default:
		backend, err = oracle.NewOpenAI(oracle.OpenAIConfig{
			APIKey:  key,
			Model:   cfg.Oracle.Model,
			BaseURL: cfg.Oracle.BaseURL,
		}, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("create oracle: %w", err)
	}

	if cfg.Oracle.RatePerSecond > 0 {
		backend = oracle.NewRateLimited(backend, cfg.Oracle.RatePerSecond, cfg.Oracle.Burst)
	}
	return oracle.NewTraced(backend, cfg.Oracle.Provider), nil
}

func providerEnv(provider string) string {
	if provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}
