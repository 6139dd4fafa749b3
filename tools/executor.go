// Tool Executor - ordered batch execution with cooperative cancellation.
//
// Information Hiding:
// - Argument decoding and failure logging hidden
// - Cancellation polling discipline hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/forshape/stepflow/internal/textutil"
	"github.com/forshape/stepflow/llm"
)

// Executor runs batches of tool invocations against a registry.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
}

// NewExecutor creates an executor. A nil logger disables logging.
func NewExecutor(registry *Registry, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{registry: registry, logger: logger}
}

// ExecuteBatch runs invocations strictly in order and returns the
// resulting chat messages. Cancellation is polled before each
// invocation; a cancelled batch returns the messages produced so far
// with wasCancelled=true, which is a valid partial outcome.
//
// Tool failures never abort the batch: they flow back to the model as
// result data. The one exception is arguments that are not valid JSON,
// which is a protocol fault on our side of the wire and is returned as
// an error after logging a bounded dump of the offending payload.
func (e *Executor) ExecuteBatch(ctx context.Context, invocations []Invocation, cancelled func() bool) (messages []llm.ChatMessage, wasCancelled bool, err error) {
	for _, inv := range invocations {
		if cancelled != nil && cancelled() {
			e.logger.Info("tool batch cancelled", "completed", len(messages), "total", len(invocations))
			return messages, true, nil
		}

		args, decodeErr := decodeArguments(inv.Arguments)
		if decodeErr != nil {
			e.logger.Error("undecodable tool arguments",
				"tool", inv.Name,
				"call_id", inv.ID,
				"dump", textutil.BoundedDump(string(inv.Arguments), 500, 200))
			return messages, false, fmt.Errorf("decoding arguments for tool '%s': %w", inv.Name, decodeErr)
		}

		result := e.registry.Dispatch(ctx, inv.Name, args)
		messages = append(messages, e.registry.ResultToMessages(inv.ID, inv.Name, result)...)
	}
	return messages, false, nil
}

// decodeArguments unmarshals raw call arguments. Empty or null
// arguments decode to an empty object, which tools without parameters
// expect.
func decodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}
