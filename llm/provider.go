// Completion provider interface - the abstract interface the step
// orchestration core calls to get the next assistant turn.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import "context"

// Provider defines the abstract interface for completion providers.
// Implementations hide provider-specific details while exposing a
// consistent interface for chat completions with tool calling.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a plain chat completion request without tools.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithTools sends a chat completion request with tool
	// definitions and tool_choice=auto. The model may respond with
	// tool calls in LLMResponse.ToolCalls.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)
}
