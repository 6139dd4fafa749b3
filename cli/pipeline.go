// Pipeline assembly - wires providers, tools, steps, and the agent.
//
// Information Hiding:
// - Step graph and prompt wiring hidden
// - Tool provider composition hidden

package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/forshape/stepflow/agent"
	"github.com/forshape/stepflow/config"
	"github.com/forshape/stepflow/history"
	"github.com/forshape/stepflow/llm"
	"github.com/forshape/stepflow/step"
	"github.com/forshape/stepflow/storage"
	"github.com/forshape/stepflow/tools"
)

const mainPrompt = `You are a workspace assistant. You complete the user's request by
reading, searching, and editing files in the workspace and by doing
arithmetic with the calculator. When your work would benefit from a
second opinion, call the review step. Give a concise final answer once
the request is done.`

const reviewPrompt = `You review the work just performed in this conversation. Check the
transcript for mistakes or omissions and reply with a short review:
either "looks good" or a list of concrete problems.`

// Pipeline is an assembled agent with its collaborators.
type Pipeline struct {
	Agent      *agent.Agent
	Env        step.Env
	Controller *step.Controller

	archive *storage.SqliteArchive
}

// Close releases the pipeline's resources.
func (p *Pipeline) Close() error {
	if p.archive != nil {
		return p.archive.Close()
	}
	return nil
}

// StepGraph returns the allowed transitions of the assembled pipeline,
// including steps with no destinations.
func (p *Pipeline) StepGraph() map[string][]string {
	graph := make(map[string][]string)
	for _, name := range []string{"context", "main", "review", "cleanup"} {
		graph[name] = p.Controller.ValidDestinations(name)
	}
	return graph
}

// transitionGraph declares which steps the model may route between.
// context and cleanup are deterministic bookends with no routing.
func transitionGraph() map[string][]string {
	return map[string][]string{
		"main":   {"review"},
		"review": {"main"},
	}
}

// NewPipeline assembles the standard pipeline: a deterministic context
// step listing the workspace, the main work step, a review step the
// model can call or jump to, and a cleanup step that prunes the context
// step's scratch output.
func NewPipeline(settings config.Settings, logger *slog.Logger) (*Pipeline, error) {
	provider, err := settings.BuildProvider()
	if err != nil {
		return nil, fmt.Errorf("building completion provider: %w", err)
	}
	return newPipelineWithProvider(settings, provider, logger)
}

func newPipelineWithProvider(settings config.Settings, provider llm.Provider, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	controller := step.NewController(transitionGraph())
	registry := tools.NewRegistry(logger)
	registry.Register(tools.NewCalculator())

	fileAccess, err := tools.NewFileAccess(settings.Agent.Workspace)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}
	registry.Register(fileAccess)
	registry.Register(step.NewJumpTools(controller))

	env := step.Env{
		History:    history.NewStore(),
		Registry:   registry,
		Executor:   tools.NewExecutor(registry, logger),
		Controller: controller,
		Configs:    step.NewConfigRegistry(),
		Logger:     logger,
	}

	pipeline := &Pipeline{Env: env, Controller: controller}

	a := agent.New("context", env)
	if path := settings.Storage.ArchivePath; path != "" {
		archive, err := storage.OpenSqlite(path)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		pipeline.archive = archive
		registry.Register(storage.NewArchiveProvider(archive, logger))
		a.WithArchive(archive)
	}

	contextCall := llm.AssistantToolCallMessage("", []llm.ToolCall{{
		ID:        tools.NewCallID(),
		Name:      "list_files",
		Arguments: json.RawMessage(`{}`),
	}})

	a.Register(step.NewToolCallStep("context", env, contextCall).
		WithJump(step.NextJump{Target: "main"}))
	a.Register(step.NewStep("main", provider, env).
		WithSystemPrompt(mainPrompt).
		WithMaxIterations(settings.Agent.MaxIterations).
		WithJump(step.DynamicJump{Fallback: "cleanup"}))
	a.Register(step.NewStep("review", provider, env).
		WithSystemPrompt(reviewPrompt).
		WithMaxIterations(settings.Agent.MaxIterations).
		WithJump(step.DynamicJump{Fallback: "cleanup"}))
	a.Register(step.NewHistoryEditStep("cleanup", env, []string{"context"}).
		WithJump(step.NextJump{}))

	pipeline.Agent = a
	return pipeline, nil
}
