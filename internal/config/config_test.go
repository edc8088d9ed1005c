package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Oracle.Provider != "openai" {
		t.Errorf("expected default provider 'openai', got %q", cfg.Oracle.Provider)
	}
	if cfg.Synth.MaxGenerationAttempts != 3 || cfg.Synth.MaxRepairAttempts != 2 {
		t.Errorf("synth attempts = %d/%d, want 3/2", cfg.Synth.MaxGenerationAttempts, cfg.Synth.MaxRepairAttempts)
	}
	if cfg.Ranker.TopLogprobs != 10 || cfg.Ranker.LinkThreshold != 0.2 || cfg.Ranker.ActionThreshold != 0.6 {
		t.Errorf("ranker = %+v", cfg.Ranker)
	}
	if cfg.Agent.MaxEmptyRankings != 3 || cfg.Agent.ActionMinScore != 0.5 || cfg.Agent.MaxIterations != 50 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Agent.SubtractivePass {
		t.Error("expected subtractive pass to be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
oracle:
  provider: anthropic
  model: claude-sonnet-4-5
sandbox:
  timeout: 2s
ranker:
  link_threshold: 0.3
agent:
  max_iterations: 10
  subtractive_pass: true
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Oracle.Provider != "anthropic" || cfg.Oracle.Model != "claude-sonnet-4-5" {
		t.Errorf("oracle = %+v", cfg.Oracle)
	}
	if cfg.Sandbox.Timeout != 2*time.Second {
		t.Errorf("sandbox timeout = %v, want 2s", cfg.Sandbox.Timeout)
	}
	if cfg.Ranker.LinkThreshold != 0.3 {
		t.Errorf("link threshold = %v, want 0.3", cfg.Ranker.LinkThreshold)
	}
	if cfg.Ranker.ActionThreshold != 0.6 {
		t.Errorf("unset action threshold = %v, want default 0.6", cfg.Ranker.ActionThreshold)
	}
	if cfg.Agent.MaxIterations != 10 || !cfg.Agent.SubtractivePass {
		t.Errorf("agent = %+v", cfg.Agent)
	}
}

func TestLoadFromPath_EnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("oracle:\n  model: gpt-4o-mini\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WAYFINDER_ORACLE_MODEL", "gpt-4.1")
	t.Setenv("WAYFINDER_AGENT_MAX_EMPTY_RANKINGS", "5")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Oracle.Model != "gpt-4.1" {
		t.Errorf("model = %q, want env override", cfg.Oracle.Model)
	}
	if cfg.Agent.MaxEmptyRankings != 5 {
		t.Errorf("max empty rankings = %d, want 5", cfg.Agent.MaxEmptyRankings)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"unknown provider", "oracle:\n  provider: cohere\n", "Provider"},
		{"threshold out of range", "ranker:\n  action_threshold: 1.5\n", "ActionThreshold"},
		{"bedrock without region", "oracle:\n  provider: anthropic\n  use_bedrock: true\n", "AWSRegion"},
		{"bad log level", "logging:\n  level: loud\n", "Level"},
		{"bad server address", "server:\n  addr: nowhere\n", "Addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFromPath(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_ProjectOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, ".wayfinder.yaml"), []byte("agent:\n  max_iterations: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(project)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.MaxIterations != 7 {
		t.Errorf("max iterations = %d, want 7 from project config", cfg.Agent.MaxIterations)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayfinder", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Ranker.TopLogprobs != 10 {
		t.Errorf("top logprobs = %d", cfg.Ranker.TopLogprobs)
	}
	if err := WriteDefault(path); err == nil {
		t.Error("expected WriteDefault to refuse overwriting")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "test_value")
	if got := expandEnv("${TEST_VAR}"); got != "test_value" {
		t.Errorf("expected 'test_value', got %q", got)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := getUserConfigDir(); got != "/custom/config/wayfinder" {
		t.Errorf("expected '/custom/config/wayfinder', got %q", got)
	}
}
