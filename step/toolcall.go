package step

import (
	"context"
	"fmt"

	"github.com/forshape/stepflow/history"
	"github.com/forshape/stepflow/llm"
	"github.com/forshape/stepflow/tools"
)

// ToolCallStep executes a pre-built assistant tool-call message without
// any model involvement. It lets deterministic phases inject tool
// results into the conversation before the model-driven steps run, for
// example printing the current workspace state. It never routes and
// never iterates: possible statuses are Completed, Cancelled, Error.
type ToolCallStep struct {
	name    string
	env     Env
	message llm.ChatMessage
	next    Jump
}

var _ Runner = (*ToolCallStep)(nil)

// NewToolCallStep creates a tool-only step around an assistant message
// carrying the tool calls to execute.
func NewToolCallStep(name string, env Env, message llm.ChatMessage) *ToolCallStep {
	return &ToolCallStep{name: name, env: env, message: message, next: DynamicJump{}}
}

// WithJump sets the successor applied after completion.
func (s *ToolCallStep) WithJump(jump Jump) *ToolCallStep {
	s.next = jump
	return s
}

// Name returns the step name.
func (s *ToolCallStep) Name() string {
	return s.name
}

// Run executes the batch and records each tool result in history as a
// user-role entry, so later steps see the output in their materialized
// context without a dangling tool-role message.
func (s *ToolCallStep) Run(ctx context.Context, cancelled func() bool) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			s.env.logger().Error("tool step panicked", "step", s.name, "panic", rec)
			result = Result{
				Status: StatusError,
				HistoryEntries: []history.Entry{s.record(
					fmt.Sprintf("Step '%s' hit an internal error: %v", s.name, rec))},
			}
		}
	}()

	s.env.Controller.SetActiveStep(s.name)

	if isCancelled(ctx, cancelled) {
		return Result{Status: StatusCancelled, Jump: s.next}
	}

	invocations := tools.Normalize(s.message.ToolCalls)
	toolMessages, wasCancelled, err := s.env.Executor.ExecuteBatch(ctx, invocations, cancelled)

	messages := append([]llm.ChatMessage{s.message}, toolMessages...)
	var entries []history.Entry
	for _, msg := range toolMessages {
		entry := history.Entry{
			Role:     "user",
			Content:  msg.Content,
			Parts:    msg.Parts,
			StepName: s.name,
		}
		s.env.History.Append(entry)
		entries = append(entries, entry)
	}

	if err != nil {
		entries = append(entries, s.record(fmt.Sprintf("Step '%s' failed: %v", s.name, err)))
		return Result{HistoryEntries: entries, APIMessages: messages, Status: StatusError, Jump: s.next}
	}
	if wasCancelled {
		return Result{HistoryEntries: entries, APIMessages: messages, Status: StatusCancelled, Jump: s.next}
	}
	return Result{HistoryEntries: entries, APIMessages: messages, Status: StatusCompleted, Jump: s.next}
}

func (s *ToolCallStep) record(content string) history.Entry {
	entry := history.Entry{Role: "assistant", Content: content, StepName: s.name}
	s.env.History.Append(entry)
	return entry
}
