package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forshape/stepflow/config"
	"github.com/forshape/stepflow/llm"
)

type scriptedProvider struct {
	responses []llm.LLMResponse
	calls     int
	seen      [][]llm.ChatMessage
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

func (p *scriptedProvider) ChatWithTools(_ context.Context, messages []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
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

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hello workspace\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return config.Settings{
		Agent: config.AgentConfig{MaxIterations: 5, Workspace: dir},
	}
}

func TestPipelineRunsBookendsAroundMain(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.LLMResponse{
		{Content: "the answer"},
	}}
	pipeline, err := newPipelineWithProvider(testSettings(t), provider, nil)
	if err != nil {
		t.Fatalf("newPipelineWithProvider: %v", err)
	}
	defer pipeline.Close()

	outcome, err := pipeline.Agent.RunRequest(context.Background(), "do the thing", nil)
	if err != nil {
		t.Fatalf("RunRequest: %v", err)
	}

	want := []string{"context", "main", "cleanup"}
	if len(outcome.StepsRun) != len(want) {
		t.Fatalf("expected steps %v, got %v", want, outcome.StepsRun)
	}
	for i, name := range want {
		if outcome.StepsRun[i] != name {
			t.Fatalf("expected steps %v, got %v", want, outcome.StepsRun)
		}
	}
	if outcome.Response != "the answer" {
		t.Errorf("unexpected response %q", outcome.Response)
	}

	// The context step's workspace listing reached the model...
	first := provider.seen[0]
	var sawListing bool
	for _, msg := range first {
		if strings.Contains(msg.Content, "readme.txt") {
			sawListing = true
		}
	}
	if !sawListing {
		t.Error("expected the workspace listing in the main step's context")
	}

	// ...and was pruned from history by the cleanup step.
	for _, entry := range pipeline.Env.History.Snapshot() {
		if entry.StepName == "context" {
			t.Errorf("expected context scratch pruned, found %+v", entry)
		}
	}
}

func TestPipelineArchivesWhenConfigured(t *testing.T) {
	settings := testSettings(t)
	settings.Storage.ArchivePath = filepath.Join(t.TempDir(), "archive.db")

	provider := &scriptedProvider{responses: []llm.LLMResponse{{Content: "done"}}}
	pipeline, err := newPipelineWithProvider(settings, provider, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pipeline.Close()

	if _, err := pipeline.Agent.RunRequest(context.Background(), "archive it", nil); err != nil {
		t.Fatal(err)
	}

	id := pipeline.Env.History.ConversationID()
	entries, err := pipeline.archive.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected archived entries after the run")
	}
}

func TestPipelineStepGraph(t *testing.T) {
	pipeline, err := newPipelineWithProvider(testSettings(t), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pipeline.Close()

	graph := pipeline.StepGraph()
	if len(graph["main"]) != 1 || graph["main"][0] != "review" {
		t.Errorf("expected main -> review, got %v", graph["main"])
	}
	if len(graph["review"]) != 1 || graph["review"][0] != "main" {
		t.Errorf("expected review -> main, got %v", graph["review"])
	}
	if len(graph["context"]) != 0 || len(graph["cleanup"]) != 0 {
		t.Error("bookend steps must have no routing")
	}
}
