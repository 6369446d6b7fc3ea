package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	timeago "github.com/caarlos0/timea.go"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolagent/internal/config"
	"github.com/michaelbrown/toolagent/internal/llm"
	"github.com/michaelbrown/toolagent/internal/storage"
	"github.com/michaelbrown/toolagent/internal/storage/sqlite"
)

var (
	statusFilter string
	limitFlag    int
	exportFormat string
	exportOutput string
	forceFlag    bool
)

var runsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"run-history", "r"},
	Short:   "Inspect recorded runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run, its tool servers and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run as markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsExport,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd, runsExportCmd)

	runsListCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (running, completed, failed)")
	runsListCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max runs to show")

	runsExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md or json")
	runsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	runsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")
}

// openStore opens the run store without requiring the credential files.
func openStore() (storage.Store, error) {
	cfg, err := config.LoadSettings(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return sqlite.Open(cfg.Storage.DBPath)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), storage.RunListOptions{
		Status: storage.RunStatus(statusFilter),
		Limit:  limitFlag,
	})
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "STATUS", "PROMPT", "MODEL", "UPDATED"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			shortID(r.ID), statusText(r.Status), truncate(oneLine(r.Prompt), 38), truncate(r.Model, 13), timeago.Of(r.UpdatedAt),
		})
	}
	t.Render()
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Status:   %s\n", statusText(run.Status))
	fmt.Printf("Model:    %s\n", run.Model)
	if run.Profile != "" {
		fmt.Printf("Profile:  %s\n", run.Profile)
	}
	fmt.Printf("Created:  %s\n", run.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", run.UpdatedAt.Format(time.RFC3339))
	if run.Error != "" {
		fmt.Printf("Error:    %s\n", run.Error)
	}

	outcomes, err := store.LoadOutcomes(ctx, run.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\nTool servers: %d\n", len(outcomes))
	for _, o := range outcomes {
		if o.OK {
			fmt.Printf("  %-20s %d tools\n", o.Server, len(o.Tools))
		} else {
			fmt.Printf("  %-20s %s\n", o.Server, text.FgRed.Sprint(truncate(o.Error, 70)))
		}
	}

	messages, err := store.LoadMessages(ctx, run.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\nMessages: %d\n", len(messages))
	fmt.Println(strings.Repeat("─", 60))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleUser:
			fmt.Printf("\n\033[36mprompt>\033[0m %s\n", truncate(m.Content, 200))
		case llm.RoleAssistant:
			if m.Content != "" {
				fmt.Printf("\n\033[32magent>\033[0m %s\n", truncate(m.Content, 200))
			}
			for _, tc := range m.ToolCalls {
				fmt.Printf("  \033[33m[tool] %s\033[0m\n", tc.Name)
			}
		case llm.RoleTool:
			fmt.Printf("  \033[90m│ %s\033[0m\n", truncate(m.Content, 100))
		}
	}
	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}

	if !forceFlag {
		fmt.Printf("Delete run %s - %q? [y/N] ", shortID(run.ID), truncate(oneLine(run.Prompt), 60))
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted run %s\n", shortID(run.ID))
	return nil
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	outcomes, err := store.LoadOutcomes(ctx, run.ID)
	if err != nil {
		return err
	}
	messages, err := store.LoadMessages(ctx, run.ID)
	if err != nil {
		return err
	}

	var output string
	switch exportFormat {
	case "json":
		data, err := storage.ExportJSON(run, outcomes, messages)
		if err != nil {
			return err
		}
		output = string(data)
	case "md":
		output = storage.ExportMarkdown(run, outcomes, messages)
	default:
		return fmt.Errorf("unsupported format %q (use md or json)", exportFormat)
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, []byte(output), 0o644)
	}

	fmt.Print(output)
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

func statusText(status storage.RunStatus) string {
	switch status {
	case storage.StatusCompleted:
		return text.FgGreen.Sprint(status)
	case storage.StatusFailed:
		return text.FgRed.Sprint(status)
	default:
		return text.FgYellow.Sprint(status)
	}
}
