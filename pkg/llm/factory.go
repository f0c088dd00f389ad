package llm

import (
	"fmt"

	"dwagent/pkg/config"
)

// Default models per provider, used when the config leaves the model unset.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = "gpt-5"
	DefaultGoogleModel    = "gemini-2.5-pro"
	DefaultOllamaModel    = "qwen3:8b"
)

// NewClient builds the raw provider client for the configured reasoner.
// Callers compose middleware around it with Chain.
func NewClient(cfg config.ReasonerConfig) (LLMClient, error) {
	model := cfg.Model
	switch cfg.Provider {
	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic reasoner requires an API key")
		}
		if model == "" {
			model = DefaultAnthropicModel
		}
		return NewAnthropicClient(cfg.APIKey, model), nil
	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai reasoner requires an API key")
		}
		if model == "" {
			model = DefaultOpenAIModel
		}
		return NewOpenAIClient(cfg.APIKey, model), nil
	case config.ProviderGoogle:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("google reasoner requires an API key")
		}
		if model == "" {
			model = DefaultGoogleModel
		}
		return NewGoogleClient(cfg.APIKey, model), nil
	case config.ProviderOllama:
		if model == "" {
			model = DefaultOllamaModel
		}
		return NewOllamaClient(cfg.OllamaHost, model), nil
	default:
		return nil, fmt.Errorf("unknown reasoner provider %q", cfg.Provider)
	}
}
