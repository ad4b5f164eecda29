package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)
const defaultMergeConfidenceThreshold = 0.70

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

type Config struct {
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	LLMMaxTokens    int    `yaml:"llm_max_tokens"`
	LLMPromptsPath  string `yaml:"llm_prompts_path"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`

	MergeConfidenceThreshold float64 `yaml:"merge_confidence_threshold"`

	DBPath                     string `yaml:"db_path"`
	DataDir                    string `yaml:"data_dir"`
	TaxonomyPath               string `yaml:"taxonomy_path"`
	PhoneRegion                string `yaml:"phone_region"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	InboxDir        string `yaml:"inbox_dir"`
	InboxPattern    string `yaml:"inbox_pattern"`
	InboxEntityType string `yaml:"inbox_entity_type"`
	BatchSchedule   string `yaml:"batch_schedule"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	Timezone  string `yaml:"timezone"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig reads config.yaml (or CONFIG_PATH), applies env overrides and
// defaults, and validates the result.
func LoadConfig() (Config, error) {
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	return Load(configPath)
}

// Load is LoadConfig with an explicit file path. A missing file is not an
// error; env vars and defaults still apply.
func Load(configPath string) (Config, error) {
	// Set before decoding so an explicit 0 in yaml or env survives.
	cfg := Config{MergeConfidenceThreshold: defaultMergeConfidenceThreshold}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	if err := envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"); err != nil {
		return cfg, err
	}
	envOverride(&cfg.LLMPromptsPath, "LLM_PROMPTS_PATH")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	if err := envOverrideFloat(&cfg.MergeConfidenceThreshold, "MERGE_CONFIDENCE_THRESHOLD"); err != nil {
		return cfg, err
	}
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.DataDir, "DATA_DIR")
	envOverride(&cfg.TaxonomyPath, "TAXONOMY_PATH")
	envOverride(&cfg.PhoneRegion, "PHONE_REGION")
	if err := envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"); err != nil {
		return cfg, err
	}
	envOverride(&cfg.InboxDir, "INBOX_DIR")
	envOverride(&cfg.InboxPattern, "INBOX_PATTERN")
	envOverride(&cfg.InboxEntityType, "INBOX_ENTITY_TYPE")
	envOverrideAllowEmpty(&cfg.BatchSchedule, "BATCH_SCHEDULE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderAnthropic
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 8192
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./venuefinds.db"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.PhoneRegion == "" {
		cfg.PhoneRegion = "GB"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.InboxPattern == "" {
		cfg.InboxPattern = "**/*.txt"
	}
	if cfg.InboxEntityType == "" {
		cfg.InboxEntityType = "venue"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}

	switch cfg.LLMProvider {
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return cfg, fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return cfg, fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return cfg, fmt.Errorf("gemini_api_key is required when llm_provider=gemini")
		}
	default:
		return cfg, fmt.Errorf("llm_provider must be 'anthropic', 'openai' or 'gemini', got '%s'", cfg.LLMProvider)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if math.IsNaN(cfg.MergeConfidenceThreshold) || cfg.MergeConfidenceThreshold < 0 || cfg.MergeConfidenceThreshold > 1 {
		return cfg, fmt.Errorf("invalid merge_confidence_threshold '%f': must be between 0 and 1", cfg.MergeConfidenceThreshold)
	}
	if cfg.LLMMaxTokens < 256 {
		return cfg, fmt.Errorf("invalid llm_max_tokens '%d': must be >= 256", cfg.LLMMaxTokens)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		return cfg, fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if strings.TrimSpace(cfg.BatchSchedule) != "" {
		if _, err := cron.ParseStandard(cfg.BatchSchedule); err != nil {
			return cfg, fmt.Errorf("invalid batch_schedule '%s': %w", cfg.BatchSchedule, err)
		}
	}
	if cfg.SlackBotToken != "" && cfg.SlackChannelID == "" {
		return cfg, fmt.Errorf("slack_bot_token is set but slack_channel_id is not")
	}

	return cfg, nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

// SlackConfigured reports whether upsert notifications should be posted.
func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

// APIKey returns the key of the selected provider.
func (c Config) APIKey() string {
	switch c.LLMProvider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	default:
		return c.AnthropicAPIKey
	}
}
