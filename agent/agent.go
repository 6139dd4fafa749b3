// Step orchestration loop.
//
// This is THE canonical driver of a run: it walks named steps from a
// start step, following jump/call/return routing until no jump
// resolves.
//
// Information Hiding:
// - Step routing and call/return sequencing hidden
// - Conversation lifecycle (id, archive, reset) hidden

package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/forshape/stepflow/history"
	"github.com/forshape/stepflow/llm"
	"github.com/forshape/stepflow/step"
	"github.com/forshape/stepflow/storage"
	"github.com/forshape/stepflow/tools"
)

// Outcome is the result of one full run across steps.
type Outcome struct {
	// Response is the last visible assistant response of the run.
	Response string
	// Status is the terminal status of the last step that ran.
	Status step.Status
	// Usage is the token usage summed across all steps.
	Usage llm.TokenUsage
	// StepsRun lists step names in execution order, repeats included.
	StepsRun []string
}

// Agent owns one conversation and drives its steps sequentially. It is
// not safe for concurrent runs; Worker serializes requests onto it.
type Agent struct {
	steps      map[string]step.Runner
	start      string
	history    *history.Store
	controller *step.Controller
	registry   *tools.Registry
	archive    storage.Archive
	logger     *slog.Logger
	onStepDone func(name string, result step.Result)
}

// New creates an agent over the shared step environment. The start
// step is where every request begins.
func New(start string, env step.Env) *Agent {
	logger := env.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{
		steps:      make(map[string]step.Runner),
		start:      start,
		history:    env.History,
		controller: env.Controller,
		registry:   env.Registry,
		logger:     logger,
	}
}

// Register adds a step. Registering a name twice replaces the earlier
// step.
func (a *Agent) Register(runner step.Runner) *Agent {
	a.steps[runner.Name()] = runner
	return a
}

// WithArchive persists the transcript to the archive at the end of
// every run.
func (a *Agent) WithArchive(archive storage.Archive) *Agent {
	a.archive = archive
	return a
}

// WithStepCallback registers a callback invoked after each step
// finishes, with its result. Used by UIs to render progress.
func (a *Agent) WithStepCallback(fn func(name string, result step.Result)) *Agent {
	a.onStepDone = fn
	return a
}

// History returns the conversation history store.
func (a *Agent) History() *history.Store {
	return a.history
}

// StartNewConversation wipes history and routing state and assigns a
// fresh conversation id.
func (a *Agent) StartNewConversation() string {
	a.history.Clear()
	a.controller.Clear()
	id := uuid.NewString()
	a.history.SetConversation(id)
	return id
}

// RunRequest processes one user request: appends it to history,
// announces the conversation to tool providers, then drives steps from
// the start step until routing stops. The cancelled func is polled
// cooperatively by every step.
func (a *Agent) RunRequest(ctx context.Context, userRequest string, cancelled func() bool) (Outcome, error) {
	conversationID := a.history.ConversationID()
	if conversationID == "" {
		conversationID = a.StartNewConversation()
	}

	a.registry.StartConversation(ctx, conversationID, userRequest)
	a.history.Append(history.Entry{Role: "user", Content: userRequest})

	outcome, err := a.walk(ctx, cancelled)

	a.controller.Clear()
	if a.archive != nil {
		if saveErr := a.archive.Save(ctx, conversationID, a.history.Snapshot()); saveErr != nil {
			a.logger.Error("failed to archive transcript",
				"conversation", conversationID, "error", saveErr)
		}
	}
	return outcome, err
}

// walk runs steps until no jump resolves or a halting status occurs.
func (a *Agent) walk(ctx context.Context, cancelled func() bool) (Outcome, error) {
	var outcome Outcome
	current := a.start

	for current != "" {
		runner, ok := a.steps[current]
		if !ok {
			return outcome, fmt.Errorf("no step registered under name '%s'", current)
		}

		a.logger.Info("running step", "step", current)
		result := runner.Run(ctx, cancelled)
		outcome.StepsRun = append(outcome.StepsRun, current)
		outcome.Usage.Add(&result.Usage)
		outcome.Status = result.Status
		if response := result.Response(); response != "" {
			outcome.Response = response
		}
		if a.onStepDone != nil {
			a.onStepDone(current, result)
		}

		switch result.Status {
		case step.StatusCallPending:
			// The step yielded for a call: run the pending target next.
			// The return frame stays open; once the callee finishes, its
			// jump resolution brings control back to the caller.
			target := a.controller.GetAndClearTarget()
			if target == "" {
				return outcome, fmt.Errorf("step '%s' yielded for a call but no target is pending", current)
			}
			current = target

		case step.StatusCompleted:
			next := ""
			if result.Jump != nil {
				if resolved, ok := result.Jump.Resolve(a.controller); ok {
					next = resolved
				}
			}
			current = next

		case step.StatusCancelled:
			a.logger.Info("run cancelled", "step", current)
			return outcome, nil

		case step.StatusMaxIterationsReached:
			a.logger.Warn("run stopped at iteration limit", "step", current)
			return outcome, nil

		case step.StatusError:
			// Halt and surface; never retry automatically.
			a.logger.Error("run halted on step error", "step", current)
			return outcome, nil

		default:
			return outcome, fmt.Errorf("step '%s' returned unknown status %d", current, int(result.Status))
		}
	}

	return outcome, nil
}
