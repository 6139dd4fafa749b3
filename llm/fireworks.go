// Fireworks Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses the OpenAI-compatible inference API with a different base URL
// - Model naming (accounts/fireworks/models/...) handled by callers

package llm

const fireworksBaseURL = "https://api.fireworks.ai/inference/v1"

// NewFireworksProvider creates a new Fireworks provider. Fireworks
// exposes an OpenAI-compatible chat completions API, so the provider
// reuses the OpenAI implementation with a different endpoint.
func NewFireworksProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return newOpenAICompatibleProvider("fireworks", fireworksBaseURL, apiKey, model, maxTokens, temperature)
}
