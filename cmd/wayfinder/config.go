package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/wayfinder/internal/config"
)

var configInitPath string

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show configuration",
	Long: `Show the effective wayfinder configuration.

Without arguments, displays every setting. With a key, prints its value.

Configuration is read from ~/.config/wayfinder/config.yaml, overridden by
.wayfinder.yaml in the project and WAYFINDER_* environment variables.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			displayAllConfig(out, cfg)
			return nil
		}
		value, err := getConfigValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, value)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configInitPath
		if path == "" {
			path = config.GetUserConfigPath()
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "Destination (default: user config path)")
	configCmd.AddCommand(configInitCmd)
}

// configKeys is the display order of displayAllConfig.
var configKeys = []string{
	"oracle.provider", "oracle.model", "oracle.base_url", "oracle.api_key",
	"oracle.use_bedrock", "oracle.rate_per_second", "oracle.burst",
	"synth.max_generation_attempts", "synth.max_repair_attempts", "synth.archive_dir",
	"sandbox.max_steps", "sandbox.timeout",
	"ranker.top_logprobs", "ranker.link_threshold", "ranker.action_threshold", "ranker.max_prompt_tokens",
	"agent.max_empty_rankings", "agent.action_min_score", "agent.max_iterations", "agent.subtractive_pass",
	"state.db_path", "logging.level", "logging.file", "server.addr",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(w, "%s: %s\n", key, value)
	}
}

// getConfigValue retrieves a configuration value by dotted key. The API key
// is always masked and annotated with its source.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "oracle.provider":
		return cfg.Oracle.Provider, nil
	case "oracle.model":
		return cfg.Oracle.Model, nil
	case "oracle.base_url":
		return cfg.Oracle.BaseURL, nil
	case "oracle.api_key":
		k, source, err := config.GetAPIKey(cfg)
		if err != nil {
			return "(not set)", nil
		}
		if source == config.KeySourceBedrock {
			return "(aws credentials)", nil
		}
		return fmt.Sprintf("%s [%s]", config.MaskAPIKey(k), source), nil
	case "oracle.use_bedrock":
		return strconv.FormatBool(cfg.Oracle.UseBedrock), nil
	case "oracle.rate_per_second":
		return strconv.FormatFloat(cfg.Oracle.RatePerSecond, 'g', -1, 64), nil
	case "oracle.burst":
		return strconv.Itoa(cfg.Oracle.Burst), nil
	case "synth.max_generation_attempts":
		return strconv.Itoa(cfg.Synth.MaxGenerationAttempts), nil
	case "synth.max_repair_attempts":
		return strconv.Itoa(cfg.Synth.MaxRepairAttempts), nil
	case "synth.archive_dir":
		return cfg.Synth.ArchiveDir, nil
	case "sandbox.max_steps":
		return strconv.FormatUint(cfg.Sandbox.MaxSteps, 10), nil
	case "sandbox.timeout":
		return cfg.Sandbox.Timeout.String(), nil
	case "ranker.top_logprobs":
		return strconv.Itoa(cfg.Ranker.TopLogprobs), nil
	case "ranker.link_threshold":
		return strconv.FormatFloat(cfg.Ranker.LinkThreshold, 'g', -1, 64), nil
	case "ranker.action_threshold":
		return strconv.FormatFloat(cfg.Ranker.ActionThreshold, 'g', -1, 64), nil
	case "ranker.max_prompt_tokens":
		return strconv.Itoa(cfg.Ranker.MaxPromptTokens), nil
	case "agent.max_empty_rankings":
		return strconv.Itoa(cfg.Agent.MaxEmptyRankings), nil
	case "agent.action_min_score":
		return strconv.FormatFloat(cfg.Agent.ActionMinScore, 'g', -1, 64), nil
	case "agent.max_iterations":
		return strconv.Itoa(cfg.Agent.MaxIterations), nil
	case "agent.subtractive_pass":
		return strconv.FormatBool(cfg.Agent.SubtractivePass), nil
	case "state.db_path":
		return cfg.State.DBPath, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.file":
		return cfg.Logging.File, nil
	case "server.addr":
		return cfg.Server.Addr, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}
