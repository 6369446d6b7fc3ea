// Package runner wires the aggregated tools, the LLM client and the agent
// together and records each run in the store.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/michaelbrown/toolagent/internal/agent"
	"github.com/michaelbrown/toolagent/internal/config"
	"github.com/michaelbrown/toolagent/internal/llm"
	"github.com/michaelbrown/toolagent/internal/storage"
	"github.com/michaelbrown/toolagent/internal/tools"
)

// LoadTools opens every enabled server from cfg, one at a time, and narrows
// their tools to the allow-list. The caller must Close the registry.
func LoadTools(ctx context.Context, cfg *config.Config, dial tools.Dialer, out io.Writer) (*tools.Registry, *tools.Aggregation) {
	registry := tools.NewRegistry(dial,
		tools.WithSecrets(cfg.Secrets.Lookup),
		tools.WithConnectTimeout(cfg.Tools.ConnectTimeout),
	)
	return registry, tools.Aggregate(ctx, registry, cfg.Servers, cfg.AllowedTools(), out)
}

// Environment is a loaded config with its tool servers running.
type Environment struct {
	Config   *config.Config
	Registry *tools.Registry
	Tools    *tools.Aggregation
}

// Open loads the config at path together with the credential files and only
// then launches the tool servers with dial, printing progress to out. A
// missing or empty credential file fails before any server is contacted.
// The caller must Close the environment.
func Open(ctx context.Context, path string, dial tools.Dialer, out io.Writer) (*Environment, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	registry, agg := LoadTools(ctx, cfg, dial, out)
	return &Environment{Config: cfg, Registry: registry, Tools: agg}, nil
}

// Close shuts down the tool servers in reverse start order.
func (e *Environment) Close() error {
	return e.Registry.Close()
}

// Events receives progress from a run. Nil callbacks are skipped.
type Events struct {
	OnTextDelta  func(delta string)
	OnToolCall   func(name string, args map[string]any)
	OnToolResult func(name string, result string)
}

// Runner executes prompts against a fixed tool collection.
type Runner struct {
	cfg     *config.Config
	client  llm.Client
	model   string
	toolset *tools.Aggregation
	store   storage.Store
	profile *agent.Profile
}

// New creates a Runner. toolset, store and profile may be nil.
// client must already target Model(cfg, profile).
func New(cfg *config.Config, client llm.Client, toolset *tools.Aggregation, store storage.Store, profile *agent.Profile) *Runner {
	return &Runner{
		cfg:     cfg,
		client:  client,
		model:   Model(cfg, profile),
		toolset: toolset,
		store:   store,
		profile: profile,
	}
}

// Model is the model a run uses: the profile's when it names one, else the provider's.
func Model(cfg *config.Config, profile *agent.Profile) string {
	if profile != nil && profile.Model != "" {
		return profile.Model
	}
	return cfg.Provider.Model
}

// NewClient creates the LLM client for cfg and profile.
func NewClient(cfg *config.Config, profile *agent.Profile) *llm.OpenAICompatClient {
	opts := cfg.Provider.Options()
	opts.Model = Model(cfg, profile)
	return llm.NewClient(opts)
}

// NewAgent builds an agent with the configured system message, tools and profile.
func (r *Runner) NewAgent() *agent.Agent {
	var ts agent.Toolset
	if r.toolset != nil {
		ts = r.toolset
	}
	a := agent.New(r.client, ts, r.cfg.Agent.MaxIterations)
	a.SetSystemPrompt(r.cfg.Secrets.SystemMessage)
	a.SetMaxTokens(r.cfg.Agent.HistoryTokens)
	if r.profile != nil {
		r.profile.Apply(a)
	}
	return a
}

// Run sends one prompt through a fresh agent, streaming progress to ev.
// The run is persisted when a store is configured; the returned Run is never
// nil and carries the final status.
func (r *Runner) Run(ctx context.Context, prompt string, ev Events) (*storage.Run, error) {
	run := r.Begin(ctx, prompt)
	return run, r.Continue(ctx, run, ev)
}

// Continue executes a run created by Begin.
func (r *Runner) Continue(ctx context.Context, run *storage.Run, ev Events) error {
	a := r.NewAgent()
	a.OnTextDelta = ev.OnTextDelta
	a.OnToolCall = ev.OnToolCall
	a.OnToolResult = ev.OnToolResult

	answer, err := a.RunStreaming(ctx, run.Prompt)
	run.Answer = answer
	run.Status = storage.StatusCompleted
	if err != nil {
		run.Status = storage.StatusFailed
		run.Error = err.Error()
	}
	r.finish(run, a.History())
	return err
}

// Begin records a new running run without executing it, so callers can learn
// the run ID before streaming starts.
func (r *Runner) Begin(ctx context.Context, prompt string) *storage.Run {
	run := &storage.Run{
		ID:     uuid.New().String(),
		Prompt: prompt,
		Status: storage.StatusRunning,
		Model:  r.model,
	}
	if r.profile != nil {
		run.Profile = r.profile.Name
	}
	if r.store == nil {
		return run
	}

	if err := r.store.CreateRun(ctx, run); err != nil {
		slog.Warn("recording run", "run", run.ID, "error", err)
		return run
	}
	if err := r.store.SaveOutcomes(ctx, run.ID, Outcomes(r.toolset)); err != nil {
		slog.Warn("recording tool servers", "run", run.ID, "error", err)
	}
	return run
}

// finish persists the transcript with a fresh context so a cancelled run is still recorded.
func (r *Runner) finish(run *storage.Run, history []llm.Message) {
	if r.store == nil {
		return
	}
	ctx := context.Background()
	if err := r.store.SaveMessages(ctx, run.ID, history); err != nil {
		slog.Warn("saving transcript", "run", run.ID, "error", err)
	}
	if err := r.store.UpdateRun(ctx, run); err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Warn("updating run", "run", run.ID, "error", err)
	}
}

// Outcomes converts an aggregation's per-server results for storage.
func Outcomes(agg *tools.Aggregation) []storage.ServerOutcome {
	if agg == nil {
		return nil
	}
	out := make([]storage.ServerOutcome, len(agg.Outcomes))
	for i, o := range agg.Outcomes {
		out[i] = storage.ServerOutcome{
			Server: o.Server,
			OK:     o.OK(),
			Tools:  tools.Names(o.Tools),
		}
		if o.Err != nil {
			out[i].Error = o.Err.Error()
		}
	}
	return out
}

// String describes the runner for startup banners.
func (r *Runner) String() string {
	n := 0
	if r.toolset != nil {
		n = len(r.toolset.Tools)
	}
	return fmt.Sprintf("Model: %s | Tools: %d", r.model, n)
}
