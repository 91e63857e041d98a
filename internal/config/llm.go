package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// LLMConfig describes one chat-completion backend.
type LLMConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// providerKeyEnv lists the conventional API key variables per provider.
var providerKeyEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_API_KEY"},
	"mistral":   {"MISTRAL_API_KEY"},
	"groq":      {"GROQ_API_KEY"},
}

// localProviders run without credentials.
var localProviders = map[string]bool{
	"ollama":    true,
	"llamacpp":  true,
	"llamafile": true,
}

func loadLLMConfig(prefix, defaultProvider, defaultModel string) LLMConfig {
	provider := strings.ToLower(getEnv(prefix+"_PROVIDER", defaultProvider))
	cfg := LLMConfig{
		Provider:  provider,
		Model:     getEnv(prefix+"_MODEL", defaultModel),
		APIKey:    getEnv(prefix+"_API_KEY", ""),
		BaseURL:   getEnv(prefix+"_BASE_URL", ""),
		MaxTokens: getEnvAsInt(prefix+"_MAX_TOKENS", 4000),
		Timeout:   getEnvAsDuration(prefix+"_TIMEOUT", 90*time.Second),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = resolveAPIKey(provider)
	}
	return cfg
}

func resolveAPIKey(provider string) string {
	for _, key := range providerKeyEnv[provider] {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

// ValidateConfig checks that the backend can be constructed.
func (c *LLMConfig) ValidateConfig() error {
	if c.Provider == "" {
		return fmt.Errorf("LLM provider is required")
	}

	if c.Model == "" {
		return fmt.Errorf("model for provider %s is required", c.Provider)
	}

	if c.APIKey == "" && !localProviders[c.Provider] {
		return fmt.Errorf("API key for provider %s is required", c.Provider)
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}

	return nil
}

// GetModelInfo returns loggable details about the backend.
func (c *LLMConfig) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"provider":   c.Provider,
		"model":      c.Model,
		"max_tokens": c.MaxTokens,
		"timeout":    c.Timeout.String(),
	}
}
