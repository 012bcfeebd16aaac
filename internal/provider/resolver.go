package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/KafClaw/taskclaw/internal/config"
)

// providerAliases maps common aliases to canonical provider IDs.
var providerAliases = map[string]string{
	"google": "gemini",
	"gpt":    "openai",
	"local":  "ollama",
}

// NormalizeProviderID resolves aliases and normalizes the provider ID.
func NormalizeProviderID(id string) string {
	lower := strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := providerAliases[lower]; ok {
		return canonical
	}
	return lower
}

// ParseModelString splits a "provider/model" string into provider ID and model name.
// For OpenRouter, the format is "openrouter/vendor/model" (three segments).
func ParseModelString(s string) (providerID, modelName string) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) < 2 {
		return "", s
	}
	providerID = strings.ToLower(parts[0])
	modelName = parts[1]
	return
}

// Resolve builds the Generator for cfg.Model.Name. A bare model name without a
// provider prefix is sent to the OpenAI endpoint.
func Resolve(ctx context.Context, cfg *config.Config) (Generator, error) {
	provID, model := ParseModelString(cfg.Model.Name)
	if model == "" {
		return nil, &ProviderError{Provider: provID, Hint: "set model.name, e.g. gemini/gemini-2.0-flash"}
	}
	if provID == "" {
		provID = "openai"
	}
	return buildGenerator(ctx, cfg, NormalizeProviderID(provID), model)
}

func buildGenerator(ctx context.Context, cfg *config.Config, providerID, model string) (Generator, error) {
	opts := Options{MaxTokens: cfg.Model.MaxTokens, Temperature: cfg.Model.Temperature}
	switch providerID {
	case "openai":
		key := cfg.Providers.OpenAI.APIKey
		if key == "" {
			return nil, &ProviderError{Provider: "openai", Hint: "set providers.openai.apiKey in config or OPENAI_API_KEY"}
		}
		return NewOpenAIGenerator("openai", key, cfg.Providers.OpenAI.APIBase, model, opts), nil

	case "gemini":
		key := cfg.Providers.Gemini.APIKey
		if key == "" {
			return nil, &ProviderError{Provider: "gemini", Hint: "set providers.gemini.apiKey in config or GEMINI_API_KEY"}
		}
		return NewGeminiGenerator(ctx, key, model, opts)

	case "openrouter":
		key := cfg.Providers.OpenRouter.APIKey
		base := cfg.Providers.OpenRouter.APIBase
		if key == "" {
			return nil, &ProviderError{Provider: "openrouter", Hint: "set providers.openrouter.apiKey in config or OPENROUTER_API_KEY"}
		}
		if base == "" {
			base = "https://openrouter.ai/api/v1"
		}
		return NewOpenAIGenerator("openrouter", key, base, model, opts), nil

	case "groq":
		key := cfg.Providers.Groq.APIKey
		base := cfg.Providers.Groq.APIBase
		if key == "" {
			return nil, &ProviderError{Provider: "groq", Hint: "set providers.groq.apiKey in config"}
		}
		if base == "" {
			base = "https://api.groq.com/openai/v1"
		}
		return NewOpenAIGenerator("groq", key, base, model, opts), nil

	case "ollama":
		base := cfg.Providers.Ollama.APIBase
		if base == "" {
			base = "http://localhost:11434/v1"
		}
		return NewOpenAIGenerator("ollama", cfg.Providers.Ollama.APIKey, base, model, opts), nil

	default:
		return nil, &ProviderError{Provider: providerID, Hint: fmt.Sprintf("unknown provider ID %q; supported: openai, gemini, openrouter, groq, ollama", providerID)}
	}
}

// ProviderError is returned when a provider cannot be constructed.
type ProviderError struct {
	Provider string
	Hint     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Hint)
}
