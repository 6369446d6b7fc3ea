package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolagent/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Load the tool servers and list the tools the agent would get",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	env, err := openTools(context.Background())
	if err != nil {
		return err
	}
	defer env.Close()
	agg := env.Tools

	fmt.Println()
	servers := table.NewWriter()
	servers.SetOutputMirror(os.Stdout)
	servers.SetStyle(table.StyleRounded)
	servers.SetTitle("Tool servers")
	servers.AppendHeader(table.Row{"SERVER", "STATUS", "TOOLS"})
	for _, o := range agg.Outcomes {
		if o.OK() {
			servers.AppendRow(table.Row{o.Server, text.FgGreen.Sprint("loaded"), len(o.Tools)})
		} else {
			servers.AppendRow(table.Row{o.Server, text.FgRed.Sprint(stageOf(o.Err)), "-"})
		}
	}
	servers.Render()

	allowed := table.NewWriter()
	allowed.SetOutputMirror(os.Stdout)
	allowed.SetStyle(table.StyleRounded)
	allowed.SetTitle(fmt.Sprintf("Allowed tools (%d of %d loaded)", len(agg.Tools), len(agg.All)))
	allowed.AppendHeader(table.Row{"TOOL", "SERVER", "DESCRIPTION"})
	for _, h := range agg.Tools {
		allowed.AppendRow(table.Row{h.Name, h.Server, truncate(oneLine(h.Description), 60)})
	}
	allowed.Render()
	return nil
}

// stageOf names the handshake step a server failed at.
func stageOf(err error) string {
	var se *tools.ServerError
	if errors.As(err, &se) {
		return "failed: " + string(se.Stage)
	}
	return "failed"
}
