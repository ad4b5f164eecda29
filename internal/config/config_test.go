package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// configEnvKeys are all env vars Load reads. Tests blank them so the
// caller's shell cannot leak into the result.
var configEnvKeys = []string{
	"LLM_PROVIDER", "LLM_MODEL", "LLM_MAX_TOKENS", "LLM_PROMPTS_PATH",
	"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "GEMINI_API_KEY",
	"MERGE_CONFIDENCE_THRESHOLD", "DB_PATH", "DATA_DIR", "TAXONOMY_PATH", "PHONE_REGION",
	"EXTERNAL_HTTP_TIMEOUT_SECONDS", "INBOX_DIR", "INBOX_PATTERN", "INBOX_ENTITY_TYPE",
	"BATCH_SCHEDULE", "SLACK_BOT_TOKEN", "SLACK_CHANNEL_ID", "TIMEZONE", "LOG_LEVEL", "LOG_FORMAT",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	clearConfigEnv(t)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TIMEZONE", "UTC")
}

func TestLoadConfigFromEnvWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	setMinimalValidConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.LLMProvider != ProviderOpenAI {
		t.Fatalf("unexpected provider: %q", cfg.LLMProvider)
	}
	if cfg.APIKey() != "sk-test" {
		t.Fatalf("unexpected api key: %q", cfg.APIKey())
	}
	if cfg.MergeConfidenceThreshold != 0.70 {
		t.Fatalf("unexpected threshold default: %v", cfg.MergeConfidenceThreshold)
	}
	if cfg.DBPath != "./venuefinds.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.DataDir != "./data" {
		t.Fatalf("unexpected data dir default: %q", cfg.DataDir)
	}
	if cfg.PhoneRegion != "GB" {
		t.Fatalf("unexpected phone region default: %q", cfg.PhoneRegion)
	}
	if cfg.ExternalHTTPTimeoutSeconds != defaultExternalHTTPTimeoutSeconds {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.InboxPattern != "**/*.txt" || cfg.InboxEntityType != "venue" {
		t.Fatalf("unexpected inbox defaults: %q %q", cfg.InboxPattern, cfg.InboxEntityType)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if cfg.SlackConfigured() {
		t.Fatal("slack should not be configured by default")
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm_provider: "anthropic"
anthropic_api_key: "yaml-anthropic"
merge_confidence_threshold: 0.8
db_path: "/tmp/yaml.db"
data_dir: "/tmp/yaml-data"
timezone: "Europe/London"
batch_schedule: "0 6 * * *"
slack_bot_token: "xoxb-yaml"
slack_channel_id: "C123"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearConfigEnv(t)
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("MERGE_CONFIDENCE_THRESHOLD", "0.65")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.LLMProvider != ProviderAnthropic || cfg.APIKey() != "yaml-anthropic" {
		t.Fatalf("unexpected provider/key: %q %q", cfg.LLMProvider, cfg.APIKey())
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected env DB_PATH override, got %q", cfg.DBPath)
	}
	if cfg.DataDir != "/tmp/yaml-data" {
		t.Fatalf("expected yaml data_dir, got %q", cfg.DataDir)
	}
	if cfg.MergeConfidenceThreshold != 0.65 {
		t.Fatalf("expected env threshold override, got %v", cfg.MergeConfidenceThreshold)
	}
	if cfg.Location.String() != "Europe/London" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if !cfg.SlackConfigured() {
		t.Fatal("expected slack to be configured")
	}
}

func TestLoadConfigKeepsExplicitZeroThreshold(t *testing.T) {
	t.Run("env", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
		setMinimalValidConfigEnv(t)
		t.Setenv("MERGE_CONFIDENCE_THRESHOLD", "0")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.MergeConfidenceThreshold != 0 {
			t.Fatalf("expected threshold 0, got %v", cfg.MergeConfidenceThreshold)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		cfgPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(cfgPath, []byte("merge_confidence_threshold: 0\n"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		setMinimalValidConfigEnv(t)
		t.Setenv("CONFIG_PATH", cfgPath)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.MergeConfidenceThreshold != 0 {
			t.Fatalf("expected threshold 0, got %v", cfg.MergeConfidenceThreshold)
		}
	})
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing provider key",
			env:     map[string]string{"LLM_PROVIDER": "gemini"},
			wantErr: "gemini_api_key is required",
		},
		{
			name:    "unknown provider",
			env:     map[string]string{"LLM_PROVIDER": "perplexity"},
			wantErr: "llm_provider must be",
		},
		{
			name:    "threshold out of range",
			env:     map[string]string{"MERGE_CONFIDENCE_THRESHOLD": "1.5"},
			wantErr: "invalid merge_confidence_threshold",
		},
		{
			name:    "threshold NaN",
			env:     map[string]string{"MERGE_CONFIDENCE_THRESHOLD": "NaN"},
			wantErr: "invalid merge_confidence_threshold",
		},
		{
			name:    "threshold not a number",
			env:     map[string]string{"MERGE_CONFIDENCE_THRESHOLD": "high"},
			wantErr: "invalid MERGE_CONFIDENCE_THRESHOLD",
		},
		{
			name:    "bad cron schedule",
			env:     map[string]string{"BATCH_SCHEDULE": "every day"},
			wantErr: "invalid batch_schedule",
		},
		{
			name:    "slack token without channel",
			env:     map[string]string{"SLACK_BOT_TOKEN": "xoxb-test"},
			wantErr: "slack_channel_id",
		},
		{
			name:    "bad timezone",
			env:     map[string]string{"TIMEZONE": "Mars/Olympus"},
			wantErr: "invalid timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
			setMinimalValidConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("llm_provider: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Fatal("expected yaml parse error")
	}
}
