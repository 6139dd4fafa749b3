// Step execution loop - the tool-calling state machine.
//
// Information Hiding:
// - Resume/build/iterate state transitions hidden behind Run
// - Fault barrier and terminal-state construction hidden
// - Message transcript assembly hidden

package step

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/forshape/stepflow/history"
	"github.com/forshape/stepflow/llm"
	"github.com/forshape/stepflow/tools"
)

// DefaultMaxIterations bounds the tool-calling loop of a single run.
const DefaultMaxIterations = 50

// Runner is one executable phase of the agent. All step kinds implement
// it; the orchestrator only sees this interface.
type Runner interface {
	Name() string
	// Run executes the step to a terminal status. The cancelled func is
	// polled cooperatively; nil means the run cannot be cancelled.
	// Run never panics and never returns out-of-band errors: every
	// failure is folded into the Result.
	Run(ctx context.Context, cancelled func() bool) Result
}

// Env bundles the collaborators shared by every step kind in one run.
type Env struct {
	History    *history.Store
	Registry   *tools.Registry
	Executor   *tools.Executor
	Controller *Controller
	Configs    *ConfigRegistry
	Logger     *slog.Logger
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// Step runs the tool-calling loop against a completion provider for one
// phase of work.
type Step struct {
	name          string
	provider      llm.Provider
	env           Env
	systemPrompt  string
	maxIterations int
	next          Jump
	onUsage       func(llm.TokenUsage)
}

var _ Runner = (*Step)(nil)

// NewStep creates a step with the default iteration bound and no
// successor (the run stops after it completes).
func NewStep(name string, provider llm.Provider, env Env) *Step {
	return &Step{
		name:          name,
		provider:      provider,
		env:           env,
		maxIterations: DefaultMaxIterations,
		next:          DynamicJump{},
	}
}

// WithSystemPrompt sets the system message prepended on a fresh turn.
func (s *Step) WithSystemPrompt(prompt string) *Step {
	s.systemPrompt = prompt
	return s
}

// WithMaxIterations overrides the loop bound.
func (s *Step) WithMaxIterations(n int) *Step {
	if n > 0 {
		s.maxIterations = n
	}
	return s
}

// WithJump sets the routing decision applied after a terminal status.
func (s *Step) WithJump(jump Jump) *Step {
	s.next = jump
	return s
}

// WithUsageCallback registers a callback invoked after every model
// call with that call's token usage.
func (s *Step) WithUsageCallback(fn func(llm.TokenUsage)) *Step {
	s.onUsage = fn
	return s
}

// Name returns the step name.
func (s *Step) Name() string {
	return s.name
}

// Run drives the step to a terminal status: restore saved context or
// build fresh messages, then iterate the tool-calling loop. The step
// boundary is a hard fault barrier; panics become an Error result.
func (s *Step) Run(ctx context.Context, cancelled func() bool) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			s.env.logger().Error("step panicked",
				"step", s.name, "panic", rec, "stack", string(debug.Stack()))
			result = s.failure(nil, llm.TokenUsage{},
				fmt.Sprintf("Step '%s' hit an internal error: %v", s.name, rec))
		}
	}()

	s.env.Controller.SetActiveStep(s.name)
	cfg := s.env.Configs.Get(s.name)
	var usage llm.TokenUsage

	var messages []llm.ChatMessage
	if s.env.Controller.HasSavedMessagesFor(s.name) {
		messages = s.resume()
	} else {
		messages = s.buildMessages(cfg)
	}

	for iteration := 0; iteration < s.maxIterations; iteration++ {
		if isCancelled(ctx, cancelled) {
			return s.terminal(StatusCancelled, messages, usage,
				fmt.Sprintf("Step '%s' was cancelled before completing.", s.name))
		}

		if pending, ok := cfg.popPendingMessage(); ok {
			s.env.logger().Info("incorporating mid-run user message", "step", s.name)
			messages = append(messages, llm.UserMessage(pending))
		}

		response, err := s.provider.ChatWithTools(ctx, messages, s.env.Registry.Definitions())
		if err != nil {
			s.env.logger().Error("completion call failed", "step", s.name, "error", err)
			return s.failure(messages, usage,
				fmt.Sprintf("Step '%s' failed: %v", s.name, err))
		}
		usage.Add(response.Usage)
		if s.onUsage != nil && response.Usage != nil {
			s.onUsage(*response.Usage)
		}

		if len(response.ToolCalls) == 0 {
			messages = append(messages, llm.AssistantMessage(response.Content))
			return s.completed(messages, usage, response.Content)
		}

		// Normalize first so the assistant message and the tool results
		// agree on call IDs even when the provider omitted them.
		invocations := tools.Normalize(response.ToolCalls)
		calls := make([]llm.ToolCall, len(invocations))
		for i, inv := range invocations {
			calls[i] = llm.ToolCall{ID: inv.ID, Name: inv.Name, Arguments: inv.Arguments}
		}
		messages = append(messages, llm.AssistantToolCallMessage(response.Content, calls))

		toolMessages, wasCancelled, err := s.env.Executor.ExecuteBatch(ctx, invocations, cancelled)
		messages = append(messages, toolMessages...)
		if err != nil {
			return s.failure(messages, usage,
				fmt.Sprintf("Step '%s' failed: %v", s.name, err))
		}
		if wasCancelled {
			return s.terminal(StatusCancelled, messages, usage,
				fmt.Sprintf("Step '%s' was cancelled during tool execution.", s.name))
		}

		if s.env.Controller.CallIssuedBy(s.name) {
			s.env.logger().Info("step yielding for call",
				"step", s.name, "iteration", iteration)
			s.env.Controller.SaveCallContext(s.name, messages)
			return Result{APIMessages: messages, Usage: usage, Status: StatusCallPending}
		}
	}

	return s.terminal(StatusMaxIterationsReached, messages, usage,
		fmt.Sprintf("Step '%s' stopped after %d iterations without reaching a final answer.",
			s.name, s.maxIterations))
}

// resume restores the saved caller context and splices in one user
// message summarizing the callee's conclusion, so the model has closure
// on what happened during the call before continuing its own task.
func (s *Step) resume() []llm.ChatMessage {
	messages := s.env.Controller.GetAndClearSavedMessages()
	s.env.logger().Info("resuming step from saved call context",
		"step", s.name, "messages", len(messages))

	summary, ok := s.env.History.LastAssistantContent()
	if !ok {
		summary = "(the called step produced no response)"
	}
	messages = append(messages, llm.UserMessage(fmt.Sprintf(
		"The step you called has finished. Its conclusion was:\n\n%s\n\nContinue with your own task.",
		summary)))
	return messages
}

// buildMessages composes the initial transcript for a fresh turn:
// system prompt, step priming messages, conversation history, then the
// step's initial user message.
func (s *Step) buildMessages(cfg *Config) []llm.ChatMessage {
	var messages []llm.ChatMessage
	if s.systemPrompt != "" {
		messages = append(messages, llm.SystemMessage(s.systemPrompt))
	}
	messages = append(messages, cfg.ExtraMessages...)
	messages = append(messages, s.env.History.Materialize(0)...)
	if cfg.InitialMessage != "" {
		messages = append(messages, llm.UserMessage(cfg.InitialMessage))
	}
	return messages
}

// completed emits the step's response history entry. The entry is keyed
// per step with the Latest policy, so re-running a step replaces its
// earlier response instead of stacking duplicates.
func (s *Step) completed(messages []llm.ChatMessage, usage llm.TokenUsage, content string) Result {
	entry := history.Entry{
		Role:     "assistant",
		Content:  content,
		Key:      s.name + "_response",
		Policy:   history.PolicyLatest,
		StepName: s.name,
	}
	s.env.History.Append(entry)
	return Result{
		HistoryEntries: []history.Entry{entry},
		APIMessages:    messages,
		Usage:          usage,
		Status:         StatusCompleted,
		Jump:           s.next,
	}
}

// terminal emits one explanatory assistant entry for non-completed
// terminal states. The message is human-readable; diagnostic detail
// stays in the logs.
func (s *Step) terminal(status Status, messages []llm.ChatMessage, usage llm.TokenUsage, explanation string) Result {
	entry := history.Entry{
		Role:     "assistant",
		Content:  explanation,
		StepName: s.name,
	}
	s.env.History.Append(entry)
	return Result{
		HistoryEntries: []history.Entry{entry},
		APIMessages:    messages,
		Usage:          usage,
		Status:         status,
		Jump:           s.next,
	}
}

func (s *Step) failure(messages []llm.ChatMessage, usage llm.TokenUsage, explanation string) Result {
	result := s.terminal(StatusError, messages, usage, explanation)
	return result
}

// isCancelled polls both the context and the cooperative flag.
func isCancelled(ctx context.Context, cancelled func() bool) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return cancelled != nil && cancelled()
}
