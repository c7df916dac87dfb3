package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"kbengine/internal/assessment"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	DBPath string `yaml:"db_path"`

	ContextExampleCount int `yaml:"context_example_count"`
	ContextMaxChars     int `yaml:"context_max_chars"`
	PatternWindowDays   int `yaml:"pattern_window_days"`
	// Pointer so an explicit 0 in YAML survives defaulting.
	PatternThreshold    *int                   `yaml:"pattern_threshold"`
	AnalyticsWindowDays int                    `yaml:"analytics_window_days"`
	AssessmentQuotas    []assessment.TierQuota `yaml:"assessment_quotas"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	// Overrides the provider endpoint; used for proxies and tests.
	LLMBaseURL string `yaml:"llm_base_url"`

	SlackBotToken     string `yaml:"slack_bot_token"`
	InsightsChannelID string `yaml:"insights_channel_id"`

	MetricsAddr                string `yaml:"metrics_addr"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
}

func LoadConfig() (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config .env skipped err=%v", err)
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.LLMBaseURL, "LLM_BASE_URL")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.InsightsChannelID, "INSIGHTS_CHANNEL_ID")
	envOverride(&cfg.MetricsAddr, "METRICS_ADDR")

	intOverrides := []struct {
		field *int
		key   string
	}{
		{&cfg.ContextExampleCount, "CONTEXT_EXAMPLE_COUNT"},
		{&cfg.ContextMaxChars, "CONTEXT_MAX_CHARS"},
		{&cfg.PatternWindowDays, "PATTERN_WINDOW_DAYS"},
		{&cfg.AnalyticsWindowDays, "ANALYTICS_WINDOW_DAYS"},
		{&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"},
	}
	for _, o := range intOverrides {
		if err := envOverrideInt(o.field, o.key); err != nil {
			return Config{}, err
		}
	}
	if val := os.Getenv("PATTERN_THRESHOLD"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PATTERN_THRESHOLD '%s': %w", val, err)
		}
		cfg.PatternThreshold = &parsed
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "./kbengine.db"
	}
	if c.ContextExampleCount == 0 {
		c.ContextExampleCount = 5
	}
	if c.ContextMaxChars == 0 {
		c.ContextMaxChars = 2000
	}
	if c.PatternWindowDays == 0 {
		c.PatternWindowDays = 30
	}
	if c.PatternThreshold == nil {
		threshold := 2
		c.PatternThreshold = &threshold
	}
	if c.AnalyticsWindowDays == 0 {
		c.AnalyticsWindowDays = 7
	}
	if len(c.AssessmentQuotas) == 0 {
		c.AssessmentQuotas = append([]assessment.TierQuota(nil), assessment.DefaultQuotas...)
	}
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	if c.LLMProvider == "" {
		c.LLMProvider = "anthropic"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9464"
	}
	if c.ExternalHTTPTimeoutSeconds == 0 {
		c.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
}

// Validate checks ranges and paired settings. Provider keys are checked
// separately by RequireLLM because most commands never generate.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.ContextExampleCount < 1 {
		return fmt.Errorf("invalid context_example_count '%d': must be >= 1", c.ContextExampleCount)
	}
	if c.ContextMaxChars < 100 {
		return fmt.Errorf("invalid context_max_chars '%d': must be >= 100", c.ContextMaxChars)
	}
	if c.PatternWindowDays < 1 {
		return fmt.Errorf("invalid pattern_window_days '%d': must be >= 1", c.PatternWindowDays)
	}
	if c.PatternThreshold != nil && *c.PatternThreshold < 0 {
		return fmt.Errorf("invalid pattern_threshold '%d': must be >= 0", *c.PatternThreshold)
	}
	if c.AnalyticsWindowDays < 1 {
		return fmt.Errorf("invalid analytics_window_days '%d': must be >= 1", c.AnalyticsWindowDays)
	}
	if err := assessment.ValidateQuotas(c.AssessmentQuotas); err != nil {
		return fmt.Errorf("invalid assessment_quotas: %w", err)
	}
	switch c.LLMProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", c.LLMProvider)
	}
	if (c.SlackBotToken == "") != (c.InsightsChannelID == "") {
		return fmt.Errorf("slack_bot_token and insights_channel_id must be set together")
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	return nil
}

// RequireLLM reports a missing API key for the configured provider.
func (c Config) RequireLLM() error {
	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	default:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	}
	return nil
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.InsightsChannelID != ""
}

func (c Config) Threshold() int {
	if c.PatternThreshold == nil {
		return 2
	}
	return *c.PatternThreshold
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
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
