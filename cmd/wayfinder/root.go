package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/wayfinder/internal/config"
	"github.com/ShayCichocki/wayfinder/internal/logging"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "wayfinder",
	Short: "Plan-driven agent for a desktop of apps",
	Long: `Wayfinder works toward a goal by looping over four steps:

  1. Update a task plan, written as a small Starlark program by the model
  2. Index every link and action reachable on the open windows
  3. Ask the model which options to take, scored by token probability
  4. Execute the best options and record what happened

The loop ends when every task is completed, when the model stops choosing
options, or when the session is paused.

Worlds are YAML site maps of apps and views. See worlds/office.yaml.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.config/wayfinder/config.yaml and .wayfinder.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Terminal log level: debug, info, warn or error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the config named by --config, or the layered default.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFromPath(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg. Close it before exiting.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}
