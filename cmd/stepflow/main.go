// Package main provides the stepflow CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forshape/stepflow/cli"
)

var (
	// Global flags
	provider  string
	maxIter   int
	workspace string
	archive   string
	verbose   bool
)

func opts() cli.Options {
	return cli.Options{
		Provider:  provider,
		MaxIter:   maxIter,
		Workspace: workspace,
		Archive:   archive,
		Verbose:   verbose,
	}
}

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "stepflow",
		Short: "Multi-step tool-calling agent over your workspace",
		Long: `stepflow drives an LLM through a pipeline of named steps. Each step
runs its own tool-calling loop and can jump to or call other steps; a
called step returns control to its caller when it finishes.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "openai", "LLM provider (openai, fireworks, anthropic, gemini)")
	rootCmd.PersistentFlags().IntVarP(&maxIter, "max-iter", "m", 0, "Maximum loop iterations per step (0 = use configured default)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory the file tools operate in")
	rootCmd.PersistentFlags().StringVar(&archive, "archive", "", "SQLite file for transcript archival")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show step progress and diagnostics")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(stepsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <request>",
		Short: "Run a single request through the pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return cli.RunTask(context.Background(), strings.Join(args, " "), opts())
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return cli.Chat(context.Background(), opts())
		},
	}
}

func stepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "Print the pipeline's step graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return cli.PrintSteps(opts())
		},
	}
}
