package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/forshape/stepflow/history"
	"github.com/forshape/stepflow/llm"
	"github.com/forshape/stepflow/step"
	"github.com/forshape/stepflow/storage"
	"github.com/forshape/stepflow/tools"
)

// scriptedProvider replays canned responses in order.
type scriptedProvider struct {
	responses []llm.LLMResponse
	calls     int
	seen      [][]llm.ChatMessage
	gate      chan struct{}
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

func (p *scriptedProvider) ChatWithTools(_ context.Context, messages []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
	if p.gate != nil {
		<-p.gate
	}
	idx := p.calls
	p.calls++
	copied := make([]llm.ChatMessage, len(messages))
	copy(copied, messages)
	p.seen = append(p.seen, copied)
	if idx >= len(p.responses) {
		return llm.LLMResponse{Content: "out of script"}, nil
	}
	return p.responses[idx], nil
}

func callStepResponse(target string) llm.LLMResponse {
	return llm.LLMResponse{
		ToolCalls: []llm.ToolCall{{
			ID:        "call_route",
			Name:      "call_step",
			Arguments: json.RawMessage(`{"step_name":"` + target + `"}`),
		}},
		Usage: &llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func newTestEnv(graph map[string][]string) step.Env {
	ctrl := step.NewController(graph)
	registry := tools.NewRegistry(nil)
	registry.Register(step.NewJumpTools(ctrl))
	return step.Env{
		History:    history.NewStore(),
		Registry:   registry,
		Executor:   tools.NewExecutor(registry, nil),
		Controller: ctrl,
		Configs:    step.NewConfigRegistry(),
	}
}

func TestCallAndReturnScenario(t *testing.T) {
	env := newTestEnv(map[string][]string{"main": {"sub"}, "sub": {}})

	mainProvider := &scriptedProvider{responses: []llm.LLMResponse{
		callStepResponse("sub"),
		{Content: "final"},
	}}
	subProvider := &scriptedProvider{responses: []llm.LLMResponse{
		{Content: "sub done"},
	}}

	a := New("main", env).
		Register(step.NewStep("main", mainProvider, env)).
		Register(step.NewStep("sub", subProvider, env))

	outcome, err := a.RunRequest(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("RunRequest: %v", err)
	}

	if outcome.Status != step.StatusCompleted {
		t.Errorf("expected Completed, got %v", outcome.Status)
	}
	if outcome.Response != "final" {
		t.Errorf("expected visible response 'final', got %q", outcome.Response)
	}
	wantOrder := []string{"main", "sub", "main"}
	if len(outcome.StepsRun) != len(wantOrder) {
		t.Fatalf("expected step order %v, got %v", wantOrder, outcome.StepsRun)
	}
	for i, want := range wantOrder {
		if outcome.StepsRun[i] != want {
			t.Fatalf("expected step order %v, got %v", wantOrder, outcome.StepsRun)
		}
	}

	// Exactly two assistant entries: one for sub, one for main.
	var assistants []history.Entry
	for _, entry := range env.History.Snapshot() {
		if entry.Role == "assistant" {
			assistants = append(assistants, entry)
		}
	}
	if len(assistants) != 2 {
		t.Fatalf("expected 2 assistant history entries, got %d", len(assistants))
	}
	if assistants[0].Content != "sub done" || assistants[1].Content != "final" {
		t.Errorf("unexpected assistant entries: %+v", assistants)
	}

	// The resumed caller saw a synthesized message referencing the
	// callee's conclusion.
	resumed := mainProvider.seen[1]
	last := resumed[len(resumed)-1]
	if last.Role != "user" || !strings.Contains(last.Content, "sub done") {
		t.Errorf("expected closure message referencing 'sub done', got %+v", last)
	}

	if outcome.Usage.TotalTokens != 15 {
		t.Errorf("expected summed usage from scripted calls, got %d", outcome.Usage.TotalTokens)
	}
}

// pingProvider is a minimal tool provider for call-scenario tests.
type pingProvider struct{}

func (pingProvider) Definitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{{Name: "ping", Description: "responds with pong"}}
}

func (pingProvider) Functions() map[string]tools.Func {
	return map[string]tools.Func{
		"ping": func(context.Context, map[string]interface{}) (string, error) {
			return "pong", nil
		},
	}
}

func TestCalleeToolUseInsideOpenCall(t *testing.T) {
	env := newTestEnv(map[string][]string{"main": {"sub"}, "sub": {}})
	env.Registry.Register(pingProvider{})

	mainProvider := &scriptedProvider{responses: []llm.LLMResponse{
		callStepResponse("sub"),
		{Content: "final"},
	}}
	// The callee works with an ordinary tool before answering; the
	// caller's open frame must not make that look like a new call.
	subProvider := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_ping", Name: "ping", Arguments: json.RawMessage(`{}`)}}},
		{Content: "sub done"},
	}}

	a := New("main", env).
		Register(step.NewStep("main", mainProvider, env)).
		Register(step.NewStep("sub", subProvider, env))

	outcome, err := a.RunRequest(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("RunRequest: %v", err)
	}
	if outcome.Status != step.StatusCompleted {
		t.Fatalf("expected Completed, got %v", outcome.Status)
	}
	if outcome.Response != "final" {
		t.Errorf("expected visible response 'final', got %q", outcome.Response)
	}
	wantOrder := []string{"main", "sub", "main"}
	if len(outcome.StepsRun) != len(wantOrder) {
		t.Fatalf("expected step order %v, got %v", wantOrder, outcome.StepsRun)
	}
	for i, want := range wantOrder {
		if outcome.StepsRun[i] != want {
			t.Fatalf("expected step order %v, got %v", wantOrder, outcome.StepsRun)
		}
	}

	// The callee builds its own transcript from history; the caller's
	// saved context is not its to restore.
	for _, transcript := range subProvider.seen {
		for _, msg := range transcript {
			if strings.Contains(msg.Content, "The step you called has finished") {
				t.Fatalf("callee transcript must not contain the caller's closure message: %+v", msg)
			}
		}
	}
	if got := subProvider.seen[1]; !strings.Contains(got[len(got)-1].Content, "pong") {
		t.Errorf("expected tool result in callee transcript, got %+v", got[len(got)-1])
	}
}

func TestUnknownStepIsAnError(t *testing.T) {
	env := newTestEnv(nil)
	a := New("missing", env)

	_, err := a.RunRequest(context.Background(), "hello", nil)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected unknown step error, got %v", err)
	}
}

func TestErrorStatusHaltsRun(t *testing.T) {
	env := newTestEnv(nil)

	failing := &erroringProvider{}
	a := New("main", env).
		Register(step.NewStep("main", failing, env).WithJump(step.NextJump{Target: "main"}))

	outcome, err := a.RunRequest(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("RunRequest: %v", err)
	}
	if outcome.Status != step.StatusError {
		t.Errorf("expected Error status, got %v", outcome.Status)
	}
	if len(outcome.StepsRun) != 1 {
		t.Errorf("error must halt the run without retry, ran %v", outcome.StepsRun)
	}
}

type erroringProvider struct{}

func (erroringProvider) Name() string  { return "erroring" }
func (erroringProvider) Model() string { return "erroring-1" }
func (erroringProvider) Chat(context.Context, []llm.ChatMessage) (llm.LLMResponse, error) {
	return llm.LLMResponse{}, context.DeadlineExceeded
}
func (erroringProvider) ChatWithTools(context.Context, []llm.ChatMessage, []llm.ToolDefinition) (llm.LLMResponse, error) {
	return llm.LLMResponse{}, context.DeadlineExceeded
}

func TestRunArchivesTranscript(t *testing.T) {
	env := newTestEnv(nil)
	archive, err := storage.NewSqliteInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer archive.Close()
	env.Registry.Register(storage.NewArchiveProvider(archive, nil))

	provider := &scriptedProvider{responses: []llm.LLMResponse{{Content: "done"}}}
	a := New("main", env).
		Register(step.NewStep("main", provider, env)).
		WithArchive(archive)

	if _, err := a.RunRequest(context.Background(), "archive me", nil); err != nil {
		t.Fatalf("RunRequest: %v", err)
	}

	conversationID := env.History.ConversationID()
	if conversationID == "" {
		t.Fatal("expected a conversation id to be assigned")
	}
	entries, err := archive.Load(context.Background(), conversationID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected archived user+assistant entries, got %d", len(entries))
	}
	if entries[0].Content != "archive me" || entries[1].Content != "done" {
		t.Errorf("unexpected archived transcript: %+v", entries)
	}
}

func TestStartNewConversationResetsState(t *testing.T) {
	env := newTestEnv(map[string][]string{"main": {"sub"}})
	provider := &scriptedProvider{responses: []llm.LLMResponse{{Content: "done"}}}
	a := New("main", env).Register(step.NewStep("main", provider, env))

	if _, err := a.RunRequest(context.Background(), "first", nil); err != nil {
		t.Fatal(err)
	}
	firstID := env.History.ConversationID()

	newID := a.StartNewConversation()
	if newID == firstID {
		t.Error("expected a fresh conversation id")
	}
	if env.History.Len() != 0 {
		t.Error("expected history cleared")
	}
}

func TestWorkerRunsAndReportsOutcome(t *testing.T) {
	env := newTestEnv(nil)
	provider := &scriptedProvider{responses: []llm.LLMResponse{{Content: "worker done"}}}
	a := New("main", env).Register(step.NewStep("main", provider, env))

	outcomes := make(chan Outcome, 1)
	w := NewWorker(a, nil, func(outcome Outcome, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		outcomes <- outcome
	})
	defer w.Stop()

	if err := w.Submit("hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case outcome := <-outcomes:
		if outcome.Response != "worker done" {
			t.Errorf("unexpected response %q", outcome.Response)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker outcome")
	}

	if w.Busy() {
		t.Error("worker must be idle after the outcome is delivered")
	}
}

func TestWorkerRejectsConcurrentSubmit(t *testing.T) {
	env := newTestEnv(nil)
	gate := make(chan struct{})
	provider := &scriptedProvider{
		responses: []llm.LLMResponse{{Content: "slow"}},
		gate:      gate,
	}
	a := New("main", env).Register(step.NewStep("main", provider, env))

	outcomes := make(chan Outcome, 1)
	w := NewWorker(a, nil, func(outcome Outcome, _ error) { outcomes <- outcome })
	defer w.Stop()

	if err := w.Submit("first"); err != nil {
		t.Fatal(err)
	}
	if err := w.Submit("second"); err != ErrBusy {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	close(gate)
	select {
	case <-outcomes:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker outcome")
	}
}

func TestWorkerCancelStopsRun(t *testing.T) {
	env := newTestEnv(nil)
	// Gate the first provider call; cancel before releasing it so the
	// next loop iteration observes the flag.
	gate := make(chan struct{})
	provider := &scriptedProvider{
		responses: []llm.LLMResponse{{
			ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "nonexistent", Arguments: json.RawMessage(`{}`)}},
		}},
		gate: gate,
	}
	a := New("main", env).Register(step.NewStep("main", provider, env))

	outcomes := make(chan Outcome, 1)
	w := NewWorker(a, nil, func(outcome Outcome, _ error) { outcomes <- outcome })
	defer w.Stop()

	if err := w.Submit("hello"); err != nil {
		t.Fatal(err)
	}
	w.Cancel()
	close(gate)

	select {
	case outcome := <-outcomes:
		if outcome.Status != step.StatusCancelled {
			t.Errorf("expected Cancelled, got %v", outcome.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}

func TestWorkerRejectsSubmitAfterStop(t *testing.T) {
	env := newTestEnv(nil)
	provider := &scriptedProvider{responses: []llm.LLMResponse{{Content: "done"}}}
	a := New("main", env).Register(step.NewStep("main", provider, env))

	w := NewWorker(a, nil, nil)
	w.Stop()

	if err := w.Submit("too late"); err != ErrStopped {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
