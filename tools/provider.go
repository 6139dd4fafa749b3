// Package tools provides tool registration, dispatch, and batch execution.
//
// Information Hiding:
// - Provider storage and name resolution hidden
// - Failure-to-data conversion hidden behind Dispatch
// - Optional provider capabilities discovered via type assertion

package tools

import (
	"context"

	"github.com/forshape/stepflow/llm"
)

// Func is a single callable tool. Arguments arrive as the decoded JSON
// object from the model's tool call. The returned string is handed back
// to the model verbatim as the tool result.
type Func func(ctx context.Context, args map[string]interface{}) (string, error)

// Provider contributes a set of tools to a Registry. Definitions and
// Functions must agree on names: every definition needs a matching
// function and vice versa.
type Provider interface {
	Definitions() []llm.ToolDefinition
	Functions() map[string]Func
}

// ConversationStarter is an optional Provider capability. Providers that
// implement it are notified when a new conversation begins, before the
// first model call.
type ConversationStarter interface {
	StartConversation(ctx context.Context, conversationID, userRequest string)
}

// ResultExpander is an optional Provider capability. Providers that
// implement it control how a raw tool result becomes chat messages, for
// example to attach an image alongside the tool-role result. Providers
// without it get the default single tool-role message.
type ResultExpander interface {
	ResultToMessages(callID, name, result string) []llm.ChatMessage
}
