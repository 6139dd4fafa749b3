package step

import (
	"context"
)

// HistoryEditStep prunes scratch history between phases. It makes no
// model calls and no tool calls: it drops every history entry tagged
// with the configured step names and produces empty output.
type HistoryEditStep struct {
	name    string
	env     Env
	targets []string
	next    Jump
}

var _ Runner = (*HistoryEditStep)(nil)

// NewHistoryEditStep creates a pruning step for the given step names.
func NewHistoryEditStep(name string, env Env, targets []string) *HistoryEditStep {
	return &HistoryEditStep{name: name, env: env, targets: targets, next: DynamicJump{}}
}

// WithJump sets the successor applied after completion.
func (s *HistoryEditStep) WithJump(jump Jump) *HistoryEditStep {
	s.next = jump
	return s
}

// Name returns the step name.
func (s *HistoryEditStep) Name() string {
	return s.name
}

// Run drops the targeted entries.
func (s *HistoryEditStep) Run(ctx context.Context, cancelled func() bool) Result {
	s.env.Controller.SetActiveStep(s.name)

	if isCancelled(ctx, cancelled) {
		return Result{Status: StatusCancelled, Jump: s.next}
	}

	total := 0
	for _, target := range s.targets {
		total += s.env.History.DropByStep(target)
	}
	s.env.logger().Info("pruned step history", "step", s.name, "targets", s.targets, "dropped", total)

	return Result{Status: StatusCompleted, Jump: s.next}
}
