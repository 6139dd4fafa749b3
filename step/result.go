// Package step implements the agent's execution units: the tool-calling
// loop, routing between named steps, and per-step configuration.
//
// Information Hiding:
// - Loop state machine internals hidden behind Run
// - Routing priority rules hidden behind Jump resolution

package step

import (
	"github.com/forshape/stepflow/history"
	"github.com/forshape/stepflow/llm"
)

// Status is the terminal state of a single step run. Orchestrators must
// treat values outside this enumeration as configuration errors.
type Status int

const (
	StatusCompleted Status = iota
	StatusCancelled
	StatusMaxIterationsReached
	StatusError
	// StatusCallPending means the step yielded mid-run because it called
	// another step. The orchestrator must run the pending target next and
	// re-invoke this step afterward; no history has been emitted yet.
	StatusCallPending
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusMaxIterationsReached:
		return "max_iterations_reached"
	case StatusError:
		return "error"
	case StatusCallPending:
		return "call_pending"
	}
	return "unknown"
}

// Result is the outcome of one step run.
type Result struct {
	// HistoryEntries are the entries this run appended to the history
	// store, returned for display. Empty for CallPending.
	HistoryEntries []history.Entry
	// APIMessages is the full in-flight message transcript of the run.
	APIMessages []llm.ChatMessage
	// Usage is the token usage summed across every model call this run.
	Usage llm.TokenUsage
	Status Status
	// Jump decides the next step after a terminal status. Nil means stop.
	Jump Jump
}

// Response returns the visible assistant response of the run, which is
// the content of the last emitted history entry.
func (r Result) Response() string {
	if len(r.HistoryEntries) == 0 {
		return ""
	}
	return r.HistoryEntries[len(r.HistoryEntries)-1].Content
}

// Jump picks the next step name once a step finishes. ok=false stops
// the run.
type Jump interface {
	Resolve(controller *Controller) (next string, ok bool)
}

// NextJump is a fixed successor: the step always hands off to Target.
type NextJump struct {
	Target string
}

// Resolve returns the fixed target.
func (j NextJump) Resolve(*Controller) (string, bool) {
	return j.Target, j.Target != ""
}

// DynamicJump consults the controller: a pending return address wins
// over a pending jump target, which wins over the static fallback. An
// empty fallback with no pending routing stops the run.
type DynamicJump struct {
	Fallback string
}

// Resolve applies the routing priority. The return address of an
// in-flight call always wins: once a callee finishes, control goes back
// to the caller no matter what the callee requested.
func (j DynamicJump) Resolve(controller *Controller) (string, bool) {
	if controller != nil {
		if controller.HasPendingReturn() {
			return controller.GetAndClearReturn(), true
		}
		if target := controller.GetAndClearTarget(); target != "" {
			return target, true
		}
	}
	return j.Fallback, j.Fallback != ""
}
