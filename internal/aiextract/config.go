package aiextract

import (
	"fmt"
	"os"
	"strings"
)

const (
	DefaultMaxTokens   = 4000
	DefaultTimeoutSecs = 60
)

// Config describes the LLM endpoint used for extraction.
type Config struct {
	Provider    string // "anthropic", "openai", "openrouter", "ollama", "custom"
	Model       string
	Endpoint    string // full API URL
	APIKey      string
	MaxTokens   int
	TimeoutSecs int // per-request timeout
}

// ParseLLMFlag parses "provider/model". Model names may contain further
// slashes and colons, e.g. "openrouter/google/gemini-2.0-flash-exp:free".
func ParseLLMFlag(flag string) (*Config, error) {
	flag = strings.TrimSpace(flag)
	if flag == "" {
		return nil, fmt.Errorf("empty LLM flag")
	}
	slashIdx := strings.Index(flag, "/")
	if slashIdx == -1 {
		return nil, fmt.Errorf("invalid LLM format: expected 'provider/model', got %q", flag)
	}
	provider := strings.ToLower(flag[:slashIdx])
	model := flag[slashIdx+1:]
	if provider == "" {
		return nil, fmt.Errorf("empty provider in LLM flag: %q", flag)
	}
	if model == "" {
		return nil, fmt.Errorf("empty model in LLM flag: %q", flag)
	}

	config := &Config{
		Provider:    provider,
		Model:       model,
		MaxTokens:   DefaultMaxTokens,
		TimeoutSecs: DefaultTimeoutSecs,
	}

	switch provider {
	case "anthropic":
		config.Endpoint = "https://api.anthropic.com/v1/messages"
		config.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		config.Endpoint = "https://api.openai.com/v1/chat/completions"
		config.APIKey = os.Getenv("OPENAI_API_KEY")
	case "openrouter":
		config.Endpoint = "https://openrouter.ai/api/v1/chat/completions"
		config.APIKey = os.Getenv("OPENROUTER_API_KEY")
	case "ollama":
		config.Endpoint = "http://localhost:11434/v1/chat/completions"
	case "custom":
		// endpoint and key must come from INBOXSWEEP_LLM_ENDPOINT / INBOXSWEEP_LLM_API_KEY
	default:
		return nil, fmt.Errorf("unknown provider %q. Supported: anthropic, openai, openrouter, ollama, custom", provider)
	}
	return config, nil
}

// Validate checks that the configuration can be used to send requests.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.APIKey == "" && c.Provider != "ollama" && c.Provider != "custom" {
		return fmt.Errorf("API key is required for provider %s", c.Provider)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

func (c *Config) anthropic() bool {
	return c.Provider == "anthropic"
}
