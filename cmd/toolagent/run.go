package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolagent/internal/runner"
)

var promptFlag string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load the tool servers and stream the agent's answer to one prompt",
	Long: `Load the credential files, launch every enabled MCP server in order, keep the
allow-listed tools and send one prompt to the agent, streaming its output.

Examples:
  toolagent run
  toolagent run --prompt "Search the web for the latest Go release"
  toolagent run --model qwen3:8b --profile github`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Prompt to send (default: agent.prompt from config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	prompt := promptFlag
	if prompt == "" {
		prompt = s.cfg.Agent.Prompt
	}
	slog.Debug("starting run", "runner", s.runner.String(), "endpoint", s.cfg.Provider.BaseURL)

	fmt.Println("\nAgent Output:")
	run, err := s.runner.Run(ctx, prompt, runner.Events{
		OnTextDelta: func(delta string) {
			fmt.Print(delta)
		},
		OnToolResult: func(name string, _ string) {
			fmt.Printf("\n[Tool executed: %s]\n", name)
		},
	})
	fmt.Println()
	if err != nil {
		return fmt.Errorf("run %s: %w", shortID(run.ID), err)
	}
	slog.Debug("run finished", "run", run.ID, "status", run.Status)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
