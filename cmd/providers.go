package cmd

import (
	"os"

	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/providers"
)

// registerProviders builds a Provider for every configured provider (API key
// present) and adds it to reg. Mirrors the provider-construction switch in
// onboard_verify.go's newProviderForVerify so connectivity checks and real
// traffic go through identical auth headers and base URLs.
func registerProviders(reg *providers.Registry, cfg *config.Config) {
	for _, name := range providerPriority {
		apiKey := resolveProviderAPIKey(cfg, name)
		if apiKey == "" {
			continue
		}
		reg.Register(newProviderForVerify(cfg, name))
	}
}

// providerAPIBase holds the default (non-overridable-by-config-base-url-only)
// API base for providers whose config struct doesn't carry an APIBase field.
var providerAPIBase = map[string]string{
	"openrouter": "https://openrouter.ai/api/v1",
	"anthropic":  "https://api.anthropic.com",
	"openai":     "https://api.openai.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"gemini":     "https://generativelanguage.googleapis.com/v1beta/openai",
	"mistral":    "https://api.mistral.ai/v1",
	"xai":        "https://api.x.ai/v1",
	"minimax":    "https://api.minimax.io/v1",
	"cohere":     "https://api.cohere.ai/compatibility/v1",
	"perplexity": "https://api.perplexity.ai",
}

// resolveProviderAPIKey returns the configured API key for name, falling back
// to the provider's env var (providerMap) when the config field is empty —
// Config.ApplyEnvOverrides normally already does this, but callers such as
// onboarding run before a config file exists at all.
func resolveProviderAPIKey(cfg *config.Config, name string) string {
	if key := providerConfigAPIKey(cfg, name); key != "" {
		return key
	}
	if pi, ok := providerMap[name]; ok && pi.envKey != "" {
		return os.Getenv(pi.envKey)
	}
	return ""
}

// providerConfigAPIKey reads the API key already set on cfg.Providers, with no
// environment fallback.
func providerConfigAPIKey(cfg *config.Config, name string) string {
	switch name {
	case "openrouter":
		return cfg.Providers.OpenRouter.APIKey
	case "anthropic":
		return cfg.Providers.Anthropic.APIKey
	case "openai":
		return cfg.Providers.OpenAI.APIKey
	case "groq":
		return cfg.Providers.Groq.APIKey
	case "deepseek":
		return cfg.Providers.DeepSeek.APIKey
	case "gemini":
		return cfg.Providers.Gemini.APIKey
	case "mistral":
		return cfg.Providers.Mistral.APIKey
	case "xai":
		return cfg.Providers.XAI.APIKey
	case "minimax":
		return cfg.Providers.MiniMax.APIKey
	case "cohere":
		return cfg.Providers.Cohere.APIKey
	case "perplexity":
		return cfg.Providers.Perplexity.APIKey
	default:
		return ""
	}
}

// resolveProviderAPIBase returns the default API base URL for a known
// provider name, or "" for unrecognized/custom providers.
func resolveProviderAPIBase(name string) string {
	return providerAPIBase[name]
}
