package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/forshape/stepflow/llm"
)

// fakeProvider is a scripted provider for registry tests.
type fakeProvider struct {
	defs    []llm.ToolDefinition
	funcs   map[string]Func
	started []string
}

func (p *fakeProvider) Definitions() []llm.ToolDefinition { return p.defs }
func (p *fakeProvider) Functions() map[string]Func        { return p.funcs }

func (p *fakeProvider) StartConversation(_ context.Context, conversationID, userRequest string) {
	p.started = append(p.started, conversationID+":"+userRequest)
}

// expandingProvider wraps its results in an extra user message.
type expandingProvider struct {
	fakeProvider
}

func (p *expandingProvider) ResultToMessages(callID, name, result string) []llm.ChatMessage {
	return []llm.ChatMessage{
		llm.ToolResultMessage(callID, name, result),
		llm.UserMessage("expanded: " + result),
	}
}

func staticTool(output string) Func {
	return func(context.Context, map[string]interface{}) (string, error) {
		return output, nil
	}
}

func newFakeProvider(name, output string) *fakeProvider {
	return &fakeProvider{
		defs:  []llm.ToolDefinition{{Name: name, Description: "test tool"}},
		funcs: map[string]Func{name: staticTool(output)},
	}
}

func TestRegisterLastWins(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(newFakeProvider("greet", "first"))
	registry.Register(newFakeProvider("greet", "second"))

	result := registry.Dispatch(context.Background(), "greet", nil)
	if result != "second" {
		t.Errorf("expected later registration to win, got %q", result)
	}

	defs := registry.Definitions()
	if len(defs) != 1 {
		t.Fatalf("expected shadowed definition to be skipped, got %d definitions", len(defs))
	}
	if defs[0].Name != "greet" {
		t.Errorf("unexpected definition name %q", defs[0].Name)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	registry := NewRegistry(nil)

	result := registry.Dispatch(context.Background(), "nope", nil)

	var payload map[string]string
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		t.Fatalf("expected JSON error payload, got %q: %v", result, err)
	}
	if !strings.Contains(payload["error"], "unknown tool") {
		t.Errorf("expected unknown tool error, got %q", payload["error"])
	}
}

func TestDispatchToolErrorBecomesData(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(&fakeProvider{
		defs: []llm.ToolDefinition{{Name: "fail"}},
		funcs: map[string]Func{
			"fail": func(context.Context, map[string]interface{}) (string, error) {
				return "", fmt.Errorf("disk on fire")
			},
		},
	})

	result := registry.Dispatch(context.Background(), "fail", nil)

	var payload map[string]string
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		t.Fatalf("expected JSON error payload, got %q: %v", result, err)
	}
	if payload["error"] != "disk on fire" {
		t.Errorf("expected tool error as data, got %q", payload["error"])
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(&fakeProvider{
		defs: []llm.ToolDefinition{{Name: "boom"}},
		funcs: map[string]Func{
			"boom": func(context.Context, map[string]interface{}) (string, error) {
				panic("kaboom")
			},
		},
	})

	result := registry.Dispatch(context.Background(), "boom", nil)

	var payload map[string]string
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		t.Fatalf("expected JSON error payload, got %q: %v", result, err)
	}
	if !strings.Contains(payload["error"], "kaboom") {
		t.Errorf("expected panic message in payload, got %q", payload["error"])
	}
}

func TestStartConversationFanOut(t *testing.T) {
	registry := NewRegistry(nil)
	starter := newFakeProvider("a", "x")
	registry.Register(starter)
	registry.Register(newFakeProvider("b", "y"))

	registry.StartConversation(context.Background(), "conv-1", "do the thing")

	if len(starter.started) != 1 || starter.started[0] != "conv-1:do the thing" {
		t.Errorf("expected starter to be notified once, got %v", starter.started)
	}
}

func TestResultToMessagesDefault(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(newFakeProvider("greet", "hello"))

	messages := registry.ResultToMessages("call_1", "greet", "hello")

	if len(messages) != 1 {
		t.Fatalf("expected a single tool message, got %d", len(messages))
	}
	msg := messages[0]
	if msg.Role != "tool" || msg.ToolCallID != "call_1" || msg.Content != "hello" {
		t.Errorf("unexpected tool message: %+v", msg)
	}
}

func TestResultToMessagesExpander(t *testing.T) {
	registry := NewRegistry(nil)
	provider := &expandingProvider{}
	provider.defs = []llm.ToolDefinition{{Name: "see"}}
	provider.funcs = map[string]Func{"see": staticTool("picture")}
	registry.Register(provider)

	messages := registry.ResultToMessages("call_2", "see", "picture")

	if len(messages) != 2 {
		t.Fatalf("expected expander to produce 2 messages, got %d", len(messages))
	}
	if messages[1].Content != "expanded: picture" {
		t.Errorf("unexpected expanded message: %+v", messages[1])
	}
}
