// Tool Registry - name resolution and dispatch.
//
// Information Hiding:
// - Provider-to-tool binding hidden
// - Panic containment and error-to-JSON conversion hidden
// - Capability fan-out (conversation start hooks) hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/forshape/stepflow/llm"
)

// binding ties a registered function back to the provider that owns it,
// so result expansion can be routed to the right provider.
type binding struct {
	fn       Func
	provider Provider
}

// Registry holds every tool available to a conversation. Registration
// is by provider; name collisions resolve to the most recent
// registration.
type Registry struct {
	mu        sync.RWMutex
	bindings  map[string]binding
	providers []Provider
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		bindings: make(map[string]binding),
		logger:   logger,
	}
}

// Register adds all of a provider's tools. A name already registered is
// overwritten: last registration wins.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, provider)
	for name, fn := range provider.Functions() {
		if _, exists := r.bindings[name]; exists {
			r.logger.Warn("tool name collision, replacing earlier registration", "tool", name)
		}
		r.bindings[name] = binding{fn: fn, provider: provider}
	}
}

// Has reports whether a tool is registered under the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.bindings[name]
	return exists
}

// Definitions returns the aggregated schemas of every registered
// provider, in registration order. Definitions shadowed by a later
// registration of the same name are skipped.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []llm.ToolDefinition
	for _, provider := range r.providers {
		for _, def := range provider.Definitions() {
			if b, ok := r.bindings[def.Name]; ok && b.provider == provider {
				defs = append(defs, def)
			}
		}
	}
	return defs
}

// StartConversation notifies every provider that implements the
// ConversationStarter capability. Called once per conversation, before
// the first model call.
func (r *Registry) StartConversation(ctx context.Context, conversationID, userRequest string) {
	r.mu.RLock()
	providers := make([]Provider, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	for _, provider := range providers {
		if starter, ok := provider.(ConversationStarter); ok {
			starter.StartConversation(ctx, conversationID, userRequest)
		}
	}
}

// Dispatch runs a tool and always returns a result string. Unknown
// tools, tool errors, and panics inside the tool all become a JSON
// {"error": ...} payload the model can read and react to.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]interface{}) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			result = errorResult(fmt.Sprintf("tool '%s' panicked: %v", name, rec))
		}
	}()

	r.mu.RLock()
	b, exists := r.bindings[name]
	r.mu.RUnlock()

	if !exists {
		return errorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	out, err := b.fn(ctx, args)
	if err != nil {
		r.logger.Warn("tool returned error", "tool", name, "error", err)
		return errorResult(err.Error())
	}
	return out
}

// ResultToMessages converts a raw tool result into chat messages. A
// provider implementing ResultExpander controls the conversion for its
// own tools; everything else gets a single tool-role message.
func (r *Registry) ResultToMessages(callID, name, result string) []llm.ChatMessage {
	r.mu.RLock()
	b, exists := r.bindings[name]
	r.mu.RUnlock()

	if exists {
		if expander, ok := b.provider.(ResultExpander); ok {
			return expander.ResultToMessages(callID, name, result)
		}
	}
	return []llm.ChatMessage{llm.ToolResultMessage(callID, name, result)}
}

// errorResult encodes a failure as a JSON object so the model receives
// structured data rather than a raised error.
func errorResult(message string) string {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return `{"error": "internal error encoding failure"}`
	}
	return string(payload)
}
