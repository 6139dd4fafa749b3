package tools

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/forshape/stepflow/llm"
)

// Invocation is a single normalized tool call ready for execution.
type Invocation struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// NewCallID generates a call identifier for tool calls that arrive
// without one (some providers omit IDs on synthesized calls).
func NewCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Normalize converts raw provider tool calls into invocations,
// generating call IDs where the provider omitted them. Order is
// preserved.
func Normalize(calls []llm.ToolCall) []Invocation {
	invocations := make([]Invocation, 0, len(calls))
	for _, call := range calls {
		id := call.ID
		if id == "" {
			id = NewCallID()
		}
		invocations = append(invocations, Invocation{
			ID:        id,
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}
	return invocations
}
