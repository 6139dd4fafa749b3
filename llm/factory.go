// Provider factory - builder-first API for creating completion providers.
//
// Quick Start:
//
//	// Simplest: use defaults, read API key from environment
//	provider, err := llm.ProviderOpenAI.FromEnv()
//
//	// Full configuration
//	provider, err := llm.ProviderAnthropic.
//	    Model("claude-sonnet-4-20250514").
//	    MaxTokens(8192).
//	    Temperature(0.3).
//	    FromEnv()

package llm

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType represents supported completion providers.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderFireworks is the Fireworks provider (OpenAI-compatible).
	ProviderFireworks
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderFireworks:
		return "fireworks"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderFireworks:
		return "FIREWORKS_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderFireworks:
		return "accounts/fireworks/models/llama-v3p1-70b-instruct"
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderGemini:
		return "gemini-2.5-flash"
	default:
		return ""
	}
}

// ParseProviderType resolves a provider name (or alias) to its type.
func ParseProviderType(name string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "fireworks":
		return ProviderFireworks, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("unknown provider %q (supported: openai, fireworks, anthropic, gemini)", name)
	}
}

// builderDefaults holds shared default values for the builder.
const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7
)

// ProviderBuilder configures and creates a provider.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	maxTokens    uint32
	temperature  float32
}

// Model sets the model, returning a builder.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return (&ProviderBuilder{providerType: p}).Model(model)
}

// FromEnv creates the provider with defaults, reading the API key from
// the provider's environment variable.
func (p ProviderType) FromEnv() (Provider, error) {
	return (&ProviderBuilder{providerType: p}).FromEnv()
}

// APIKey creates the provider with defaults and an explicit API key.
func (p ProviderType) APIKey(key string) (Provider, error) {
	return (&ProviderBuilder{providerType: p}).APIKey(key)
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// MaxTokens sets the maximum completion tokens.
func (b *ProviderBuilder) MaxTokens(maxTokens uint32) *ProviderBuilder {
	b.maxTokens = maxTokens
	return b
}

// Temperature sets the sampling temperature.
func (b *ProviderBuilder) Temperature(temperature float32) *ProviderBuilder {
	b.temperature = temperature
	return b
}

// FromEnv creates the provider, reading the API key from the provider's
// environment variable.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	envVar := b.providerType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s not set in environment", envVar)
	}
	return b.APIKey(apiKey)
}

// APIKey creates the provider with the given API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is empty")
	}

	model := b.model
	if model == "" {
		model = b.providerType.DefaultModel()
	}
	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := b.temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	switch b.providerType {
	case ProviderOpenAI:
		return NewOpenAIProvider(key, model, maxTokens, temperature), nil
	case ProviderFireworks:
		return NewFireworksProvider(key, model, maxTokens, temperature), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(key, model, maxTokens, temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(key, model, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %d", b.providerType)
	}
}
