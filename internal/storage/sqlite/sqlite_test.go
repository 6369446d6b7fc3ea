package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/toolagent/internal/llm"
	"github.com/michaelbrown/toolagent/internal/storage"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err, "opening memory db")
	t.Cleanup(func() { s.Close() })
	return s
}

func createRun(t *testing.T, s *SQLiteStore, id string, status storage.RunStatus) *storage.Run {
	t.Helper()
	run := &storage.Run{
		ID:     id,
		Prompt: "Create a GitHub repository called 'hello_world_ollama'.",
		Status: status,
		Model:  "llama3.1:8b",
	}
	require.NoError(t, s.CreateRun(context.Background(), run))
	return run
}

func TestCreateAndGetRun(t *testing.T) {
	s := testStore(t)
	run := createRun(t, s, "abc12345-0000-0000-0000-000000000000", storage.StatusRunning)

	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, run.Prompt, got.Prompt)
	assert.Equal(t, storage.StatusRunning, got.Status)
	assert.Equal(t, "llama3.1:8b", got.Model)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetRunByPrefix(t *testing.T) {
	s := testStore(t)
	run := createRun(t, s, "abc12345-0000-0000-0000-000000000000", storage.StatusRunning)

	got, err := s.GetRun(context.Background(), "abc12345")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}

func TestGetRunAmbiguousPrefix(t *testing.T) {
	s := testStore(t)
	createRun(t, s, "abc1-0001", storage.StatusRunning)
	createRun(t, s, "abc1-0002", storage.StatusRunning)

	_, err := s.GetRun(context.Background(), "abc1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestGetRunNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListRuns(t *testing.T) {
	s := testStore(t)
	for i := range 3 {
		createRun(t, s, fmt.Sprintf("run-%d", i), storage.StatusRunning)
	}

	runs, err := s.ListRuns(context.Background(), storage.RunListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-2", runs[0].ID, "newest first")
}

func TestListRunsFilterAndLimit(t *testing.T) {
	s := testStore(t)
	createRun(t, s, "r1", storage.StatusCompleted)
	createRun(t, s, "r2", storage.StatusFailed)
	createRun(t, s, "r3", storage.StatusCompleted)

	runs, err := s.ListRuns(context.Background(), storage.RunListOptions{Status: storage.StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = s.ListRuns(context.Background(), storage.RunListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].ID)
}

func TestUpdateRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	run := createRun(t, s, "r1", storage.StatusRunning)

	run.Status = storage.StatusCompleted
	run.Answer = "Repository created."
	require.NoError(t, s.UpdateRun(ctx, run))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, got.Status)
	assert.Equal(t, "Repository created.", got.Answer)

	err = s.UpdateRun(ctx, &storage.Run{ID: "nope", Status: storage.StatusFailed})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	createRun(t, s, "r1", storage.StatusCompleted)
	require.NoError(t, s.SaveMessages(ctx, "r1", []llm.Message{llm.UserMessage("hi")}))
	require.NoError(t, s.SaveOutcomes(ctx, "r1", []storage.ServerOutcome{{Server: "github", OK: true}}))

	require.NoError(t, s.DeleteRun(ctx, "r1"))

	_, err := s.GetRun(ctx, "r1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	msgs, err := s.LoadMessages(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, msgs)
	outcomes, err := s.LoadOutcomes(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestSaveAndLoadMessages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	createRun(t, s, "r1", storage.StatusRunning)

	messages := []llm.Message{
		llm.SystemMessage("You are helpful."),
		llm.UserMessage("create the repo"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "create_repository", Args: map[string]any{"name": "hello_world_ollama"}},
		}},
		llm.ToolResultMessage("c1", "created"),
		llm.AssistantMessage("Done."),
	}
	require.NoError(t, s.SaveMessages(ctx, "r1", messages))

	got, err := s.LoadMessages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "create_repository", got[2].ToolCalls[0].Name)
	assert.Equal(t, "hello_world_ollama", got[2].ToolCalls[0].Args["name"])
	assert.Equal(t, "c1", got[3].ToolCallID)

	require.NoError(t, s.SaveMessages(ctx, "r1", messages[:2]))
	got, err = s.LoadMessages(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSaveAndLoadOutcomes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	createRun(t, s, "r1", storage.StatusRunning)

	outcomes := []storage.ServerOutcome{
		{Server: "filesystem", OK: true, Tools: []string{"write_file", "read_file"}},
		{Server: "brave-search", OK: false, Error: "brave-search: initialize: protocol error: EOF"},
		{Server: "github", OK: true, Tools: []string{"create_repository"}},
	}
	require.NoError(t, s.SaveOutcomes(ctx, "r1", outcomes))

	got, err := s.LoadOutcomes(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "filesystem", got[0].Server)
	assert.True(t, got[0].OK)
	assert.Equal(t, []string{"write_file", "read_file"}, got[0].Tools)
	assert.False(t, got[1].OK)
	assert.Equal(t, outcomes[1].Error, got[1].Error)
	assert.Empty(t, got[1].Tools)

	require.NoError(t, s.SaveOutcomes(ctx, "r1", outcomes[:1]))
	got, err = s.LoadOutcomes(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOpenFileReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "toolagent.db")

	s, err := Open(path)
	require.NoError(t, err)
	createRun(t, s, "r1", storage.StatusCompleted)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, got.Status)
}
