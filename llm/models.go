// Package llm provides shared data models for completion providers.
package llm

import "encoding/json"

// ChatMessage represents one message exchanged with a completion provider.
// Content carries plain text; Parts carries additional multimodal content
// (currently images) for user messages. Tool-role messages set ToolCallID
// and Name to associate the result with the originating call.
type ChatMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// ContentPart is a single piece of multimodal message content.
type ContentPart struct {
	Type     string `json:"type"` // "text" or "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"` // https URL or data: URL
}

// ToolCall represents a tool invocation requested by the model.
// Arguments is the raw JSON argument object as the provider sent it.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool the model may call. Parameters is a
// JSON-Schema object describing the argument shape.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// LLMResponse represents a single assistant turn from a provider.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// TokenUsage contains token usage statistics for one or more calls.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage from another call into u.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// AssistantToolCallMessage creates an assistant message carrying tool calls.
func AssistantToolCallMessage(content string, calls []ToolCall) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content, ToolCalls: calls}
}

// ToolResultMessage creates a tool-role message carrying a tool result.
func ToolResultMessage(callID, toolName, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID, Name: toolName}
}

// UserImageMessage creates a user message with one image attachment.
// url may be an https URL or a base64 data URL.
func UserImageMessage(text, url string) ChatMessage {
	parts := []ContentPart{}
	if text != "" {
		parts = append(parts, ContentPart{Type: "text", Text: text})
	}
	parts = append(parts, ContentPart{Type: "image_url", ImageURL: url})
	return ChatMessage{Role: "user", Content: text, Parts: parts}
}
