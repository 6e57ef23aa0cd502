package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort int    `yaml:"http_port"`
	SMTPPort int    `yaml:"smtp_port"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	// LLM is "provider/model". Empty disables AI extraction.
	LLM            string `yaml:"llm"`
	LLMEndpoint    string `yaml:"llm_endpoint"`
	LLMAPIKey      string `yaml:"llm_api_key"`
	LLMTimeoutSecs int    `yaml:"llm_timeout_secs"`
	LLMMaxTokens   int    `yaml:"llm_max_tokens"`

	// UnsubscribeDelay is how long a subscription stays pending.
	UnsubscribeDelay time.Duration `yaml:"unsubscribe_delay"`
}

func Default() Config {
	return Config{
		HTTPPort:         3025,
		SMTPPort:         2025,
		LogLevel:         "info",
		LLMTimeoutSecs:   60,
		LLMMaxTokens:     4000,
		UnsubscribeDelay: 2 * time.Second,
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.SMTPPort = getEnvInt("SMTP_PORT", cfg.SMTPPort)
	cfg.DBPath = getEnvString("DB_PATH", cfg.DBPath)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.LLM = getEnvString("INBOXSWEEP_LLM", cfg.LLM)
	cfg.LLMEndpoint = getEnvString("INBOXSWEEP_LLM_ENDPOINT", cfg.LLMEndpoint)
	cfg.LLMAPIKey = getEnvString("INBOXSWEEP_LLM_API_KEY", cfg.LLMAPIKey)
	cfg.LLMTimeoutSecs = getEnvInt("LLM_TIMEOUT_SECS", cfg.LLMTimeoutSecs)
	cfg.LLMMaxTokens = getEnvInt("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	cfg.UnsubscribeDelay = getEnvDuration("UNSUBSCRIBE_DELAY", cfg.UnsubscribeDelay)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("invalid smtp port %d", c.SMTPPort)
	}
	if c.UnsubscribeDelay < 0 {
		return fmt.Errorf("invalid unsubscribe delay %s", c.UnsubscribeDelay)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}
