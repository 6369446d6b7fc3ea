package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/michaelbrown/toolagent/internal/llm"
)

// ExportMarkdown renders a run, its tool servers and its transcript as markdown.
func ExportMarkdown(run *Run, outcomes []ServerOutcome, messages []llm.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", run.ID)
	fmt.Fprintf(&b, "- **Status:** %s\n", run.Status)
	fmt.Fprintf(&b, "- **Model:** %s\n", run.Model)
	if run.Profile != "" {
		fmt.Fprintf(&b, "- **Profile:** %s\n", run.Profile)
	}
	fmt.Fprintf(&b, "- **Created:** %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", run.Error)
	}

	if len(outcomes) > 0 {
		b.WriteString("\n## Tool servers\n\n")
		for _, o := range outcomes {
			if o.OK {
				fmt.Fprintf(&b, "- %s: %d tools (%s)\n", o.Server, len(o.Tools), strings.Join(o.Tools, ", "))
			} else {
				fmt.Fprintf(&b, "- %s: failed: %s\n", o.Server, o.Error)
			}
		}
	}
	b.WriteString("\n---\n\n")

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleUser:
			fmt.Fprintf(&b, "## Prompt\n\n%s\n\n", m.Content)
		case llm.RoleAssistant:
			if m.Content != "" {
				fmt.Fprintf(&b, "## Agent\n\n%s\n\n", m.Content)
			}
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&b, "**Tool Call:** `%s`\n```json\n%s\n```\n\n", tc.Name, tc.ArgsJSON())
			}
		case llm.RoleTool:
			fmt.Fprintf(&b, "<details>\n<summary>Tool Result</summary>\n\n```\n%s\n```\n</details>\n\n", m.Content)
		}
	}

	return b.String()
}

// ExportJSON renders a run with its outcomes and transcript as formatted JSON.
func ExportJSON(run *Run, outcomes []ServerOutcome, messages []llm.Message) ([]byte, error) {
	export := struct {
		Run      *Run            `json:"run"`
		Servers  []ServerOutcome `json:"servers"`
		Messages []llm.Message   `json:"messages"`
	}{
		Run:      run,
		Servers:  outcomes,
		Messages: messages,
	}
	return json.MarshalIndent(export, "", "  ")
}
