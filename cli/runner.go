// Command execution for CLI commands.
//
// Information Hiding:
// - Pipeline lifecycle hidden
// - Interactive loop and mid-run input routing hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/forshape/stepflow/agent"
	"github.com/forshape/stepflow/config"
	"github.com/forshape/stepflow/step"
)

// Options holds CLI execution options.
type Options struct {
	Provider  string
	MaxIter   int
	Workspace string
	Archive   string
	Verbose   bool
}

// newLogger builds the CLI logger: verbose gets debug-level structured
// logs on stderr, otherwise warnings and up.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o Options) settings() (config.Settings, error) {
	settings, err := config.New(o.Provider)
	if err != nil {
		return config.Settings{}, err
	}
	if o.MaxIter > 0 {
		settings.Agent.MaxIterations = o.MaxIter
	}
	if o.Workspace != "" {
		settings.Agent.Workspace = o.Workspace
	}
	if o.Archive != "" {
		settings.Storage.ArchivePath = o.Archive
	}
	return settings, nil
}

// RunTask executes a single request through the pipeline and prints the
// final response.
func RunTask(ctx context.Context, request string, opts Options) error {
	settings, err := opts.settings()
	if err != nil {
		return err
	}
	pipeline, err := NewPipeline(settings, newLogger(opts.Verbose))
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if opts.Verbose {
		pipeline.Agent.WithStepCallback(func(name string, result step.Result) {
			fmt.Fprintf(os.Stderr, "[%s] %s (%d tokens)\n", name, result.Status, result.Usage.TotalTokens)
		})
	}

	outcome, err := pipeline.Agent.RunRequest(ctx, request, nil)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", outcome.Response)
	if opts.Verbose {
		fmt.Fprintf(os.Stderr, "\nsteps: %s | status: %s | tokens: %d\n",
			strings.Join(outcome.StepsRun, " -> "), outcome.Status, outcome.Usage.TotalTokens)
	}
	if outcome.Status == step.StatusError {
		return fmt.Errorf("run halted with an error")
	}
	return nil
}

// Chat starts an interactive session. Input typed while a request is
// running is queued into the active step's pending messages, so the
// model picks it up on its next loop iteration instead of restarting.
func Chat(ctx context.Context, opts Options) error {
	settings, err := opts.settings()
	if err != nil {
		return err
	}
	logger := newLogger(opts.Verbose)
	pipeline, err := NewPipeline(settings, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	// The outcome callback runs on the worker goroutine so the prompt
	// loop keeps reading stdin while a request is in flight.
	worker := agent.NewWorker(pipeline.Agent, logger, func(outcome agent.Outcome, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n> ", err)
			return
		}
		fmt.Printf("\n%s\n", outcome.Response)
		if opts.Verbose {
			fmt.Fprintf(os.Stderr, "steps: %s | tokens: %d\n",
				strings.Join(outcome.StepsRun, " -> "), outcome.Usage.TotalTokens)
		}
		fmt.Print("> ")
	})
	defer worker.Stop()

	fmt.Println("Interactive session. Commands: /new, /export, /cancel, /quit.")
	fmt.Println("Input typed while the agent is working is forwarded into the running step.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			worker.Cancel()
			return scanner.Err()
		case "/cancel":
			worker.Cancel()
			fmt.Println("Cancellation requested.")
			continue
		case "/new":
			if worker.Busy() {
				fmt.Println("A request is still running; cancel it first.")
				continue
			}
			id := pipeline.Agent.StartNewConversation()
			fmt.Printf("Started conversation %s\n", id)
			continue
		case "/export":
			dir := settings.Agent.ExportDir
			if dir == "" {
				dir = "."
			}
			path, err := pipeline.Env.History.ExportToFile(dir, "chat session")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
			} else {
				fmt.Printf("Transcript written to %s\n", path)
			}
			continue
		}

		if worker.Busy() {
			active := pipeline.Controller.ActiveStep()
			if active == "" {
				active = "main"
			}
			pipeline.Env.Configs.Get(active).PushUserMessage(line)
			fmt.Printf("(queued for the running '%s' step)\n", active)
			continue
		}

		if err := worker.Submit(line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

// PrintSteps prints the pipeline's step graph.
func PrintSteps(opts Options) error {
	settings, err := opts.settings()
	if err != nil {
		return err
	}
	// The graph is static; no provider call is needed to display it.
	pipeline, err := newPipelineWithProvider(settings, nil, newLogger(opts.Verbose))
	if err != nil {
		return err
	}
	defer pipeline.Close()

	graph := pipeline.StepGraph()
	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Pipeline steps:")
	for _, name := range names {
		dests := graph[name]
		if len(dests) == 0 {
			fmt.Printf("  %s (no routing)\n", name)
			continue
		}
		fmt.Printf("  %s -> %s\n", name, strings.Join(dests, ", "))
	}
	return nil
}
