package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/toolagent/internal/llm"
)

func sampleRun() (*Run, []ServerOutcome, []llm.Message) {
	run := &Run{
		ID:        "r1",
		Prompt:    "create the repo",
		Status:    StatusCompleted,
		Model:     "llama3.1:8b",
		CreatedAt: time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC),
	}
	outcomes := []ServerOutcome{
		{Server: "github", OK: true, Tools: []string{"create_repository"}},
		{Server: "puppeteer", Error: "puppeteer: connect: connection failed: npx not found"},
	}
	messages := []llm.Message{
		llm.SystemMessage("secret system prompt"),
		llm.UserMessage("create the repo"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "create_repository", Args: map[string]any{"name": "hello"}}}},
		llm.ToolResultMessage("c1", "created"),
		llm.AssistantMessage("Done."),
	}
	return run, outcomes, messages
}

func TestExportMarkdown(t *testing.T) {
	md := ExportMarkdown(sampleRun())

	assert.Contains(t, md, "# Run r1")
	assert.Contains(t, md, "- **Created:** 2026-10-15 09:30:00")
	assert.Contains(t, md, "- github: 1 tools (create_repository)")
	assert.Contains(t, md, "- puppeteer: failed: puppeteer: connect")
	assert.Contains(t, md, "**Tool Call:** `create_repository`")
	assert.Contains(t, md, "## Agent\n\nDone.")
	assert.NotContains(t, md, "secret system prompt")
}

func TestExportJSON(t *testing.T) {
	data, err := ExportJSON(sampleRun())
	require.NoError(t, err)

	var decoded struct {
		Run      Run             `json:"run"`
		Servers  []ServerOutcome `json:"servers"`
		Messages []llm.Message   `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "r1", decoded.Run.ID)
	assert.Len(t, decoded.Servers, 2)
	assert.Len(t, decoded.Messages, 5)
}
