// Jump Controller - step transition graph and single-frame call stack.
//
// Information Hiding:
// - Pending target/return bookkeeping hidden
// - Saved call context storage hidden

package step

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forshape/stepflow/llm"
)

// Controller tracks which step transitions are allowed and holds the
// routing state the model manipulates through the jump tools. It models
// a single-frame call stack: one pending target, one pending return
// address. It is owned by exactly one orchestrator run; steps execute
// sequentially, so no locking is needed.
type Controller struct {
	graph         map[string][]string
	activeStep    string
	pendingTarget string
	pendingReturn string
	saved         []llm.ChatMessage
	savedOwner    string
}

// NewController creates a controller over a static adjacency map of
// stepName -> allowed destination steps.
func NewController(graph map[string][]string) *Controller {
	if graph == nil {
		graph = map[string][]string{}
	}
	return &Controller{graph: graph}
}

// SetActiveStep records the step currently running. The jump tools use
// it to scope validation and destination enums to the running step.
func (c *Controller) SetActiveStep(name string) {
	c.activeStep = name
}

// ActiveStep returns the step currently running.
func (c *Controller) ActiveStep() string {
	return c.activeStep
}

// ValidDestinations returns the allowed destinations of a step, sorted.
func (c *Controller) ValidDestinations(from string) []string {
	dests := make([]string, len(c.graph[from]))
	copy(dests, c.graph[from])
	sort.Strings(dests)
	return dests
}

// Steps returns every step named in the transition graph, sorted.
func (c *Controller) Steps() []string {
	names := make([]string, 0, len(c.graph))
	for name := range c.graph {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Controller) allowed(from, to string) bool {
	for _, dest := range c.graph[from] {
		if dest == to {
			return true
		}
	}
	return false
}

func (c *Controller) rejection(from, to string) string {
	dests := c.ValidDestinations(from)
	if len(dests) == 0 {
		return fmt.Sprintf("step '%s' has no allowed destinations", from)
	}
	return fmt.Sprintf("step '%s' cannot transfer to '%s'; allowed destinations: %s",
		from, to, strings.Join(dests, ", "))
}

// RequestJump records a one-way transfer to another step. Validation
// failure leaves all state untouched. A successful jump abandons the
// requesting step's own in-flight call, but a return address pushed by
// a different caller survives: the caller's return is a structural
// guarantee the callee cannot jump out from under.
func (c *Controller) RequestJump(from, to string) (bool, string) {
	if !c.allowed(from, to) {
		return false, c.rejection(from, to)
	}
	c.pendingTarget = to
	if c.pendingReturn == from {
		c.pendingReturn = ""
	}
	return true, fmt.Sprintf("will jump to step '%s'", to)
}

// RequestCall records a transfer with a return: the target runs next
// and control comes back to the requesting step once it finishes. The
// call stack is one frame deep; calling while another caller's return
// is still pending is rejected.
func (c *Controller) RequestCall(from, to string) (bool, string) {
	if !c.allowed(from, to) {
		return false, c.rejection(from, to)
	}
	if c.pendingReturn != "" && c.pendingReturn != from {
		return false, fmt.Sprintf("a call from step '%s' is already in progress", c.pendingReturn)
	}
	c.pendingTarget = to
	c.pendingReturn = from
	return true, fmt.Sprintf("will call step '%s' and return to '%s'", to, from)
}

// HasPendingReturn reports whether a call frame is open.
func (c *Controller) HasPendingReturn() bool {
	return c.pendingReturn != ""
}

// GetAndClearReturn pops the pending return address.
func (c *Controller) GetAndClearReturn() string {
	ret := c.pendingReturn
	c.pendingReturn = ""
	return ret
}

// GetAndClearTarget pops the pending jump/call target.
func (c *Controller) GetAndClearTarget() string {
	target := c.pendingTarget
	c.pendingTarget = ""
	return target
}

// CallIssuedBy reports whether the named step has an undispatched call
// of its own: it holds the return frame and the callee has not been
// routed to yet. A callee running inside someone else's frame sees
// false, because the target was consumed when it was dispatched.
func (c *Controller) CallIssuedBy(name string) bool {
	return name != "" && c.pendingReturn == name && c.pendingTarget != ""
}

// SaveCallContext stores the caller's in-flight messages across the
// yield point of a call, so the caller resumes with its conversation
// intact rather than rebuilding from history. The context belongs to
// the named owner; only that step restores it.
func (c *Controller) SaveCallContext(owner string, messages []llm.ChatMessage) {
	saved := make([]llm.ChatMessage, len(messages))
	copy(saved, messages)
	c.saved = saved
	c.savedOwner = owner
}

// HasSavedMessages reports whether a caller's context is waiting to be
// restored.
func (c *Controller) HasSavedMessages() bool {
	return len(c.saved) > 0
}

// HasSavedMessagesFor reports whether the named step has saved context
// waiting. A callee started under another step's open frame must not
// consume the caller's transcript.
func (c *Controller) HasSavedMessagesFor(name string) bool {
	return c.savedOwner == name && len(c.saved) > 0
}

// GetAndClearSavedMessages pops the saved caller context.
func (c *Controller) GetAndClearSavedMessages() []llm.ChatMessage {
	saved := c.saved
	c.saved = nil
	c.savedOwner = ""
	return saved
}

// Clear resets all routing state. Called on terminal completion of a
// run; the transition graph is kept.
func (c *Controller) Clear() {
	c.activeStep = ""
	c.pendingTarget = ""
	c.pendingReturn = ""
	c.saved = nil
	c.savedOwner = ""
}
