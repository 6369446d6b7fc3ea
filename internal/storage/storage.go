package storage

import (
	"context"
	"errors"
	"time"

	"github.com/michaelbrown/toolagent/internal/llm"
)

// ErrNotFound is returned when no run matches an ID or prefix.
var ErrNotFound = errors.New("run not found")

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is the metadata for one prompt sent through the agent.
type Run struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Status    RunStatus `json:"status"`
	Model     string    `json:"model"`
	Profile   string    `json:"profile"`
	Answer    string    `json:"answer"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServerOutcome is the persisted result of loading one tool server for a run.
type ServerOutcome struct {
	Server string   `json:"server"`
	OK     bool     `json:"ok"`
	Tools  []string `json:"tools,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// RunListOptions controls filtering and pagination for ListRuns.
type RunListOptions struct {
	Status RunStatus
	Limit  int
	Offset int
}

// Store is the persistence interface for runs.
type Store interface {
	// CreateRun inserts a new run. The ID field must be set by the caller.
	CreateRun(ctx context.Context, r *Run) error

	// GetRun returns a run by ID or unique ID prefix.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs ordered by updated_at descending.
	ListRuns(ctx context.Context, opts RunListOptions) ([]Run, error)

	// UpdateRun updates status, answer, error and updated_at.
	UpdateRun(ctx context.Context, r *Run) error

	// DeleteRun removes a run with its messages and outcomes.
	DeleteRun(ctx context.Context, id string) error

	// SaveMessages overwrites the transcript of a run.
	SaveMessages(ctx context.Context, runID string, messages []llm.Message) error

	// LoadMessages returns the transcript of a run.
	LoadMessages(ctx context.Context, runID string) ([]llm.Message, error)

	// SaveOutcomes replaces the tool server outcomes of a run, keeping their order.
	SaveOutcomes(ctx context.Context, runID string, outcomes []ServerOutcome) error

	// LoadOutcomes returns the tool server outcomes of a run in load order.
	LoadOutcomes(ctx context.Context, runID string) ([]ServerOutcome, error)

	Close() error
}
