package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/michaelbrown/toolagent/internal/agent"
	"github.com/michaelbrown/toolagent/internal/config"
	"github.com/michaelbrown/toolagent/internal/runner"
	"github.com/michaelbrown/toolagent/internal/storage"
	"github.com/michaelbrown/toolagent/internal/storage/sqlite"
	"github.com/michaelbrown/toolagent/internal/tools"
)

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openTools loads config and credentials, then launches the tool servers,
// applying --model to the loaded config.
func openTools(ctx context.Context) (*runner.Environment, error) {
	env, err := runner.Open(ctx, configFlag, tools.StdioDialer, os.Stdout)
	if err != nil {
		return nil, err
	}
	if modelFlag != "" {
		env.Config.Provider.Model = modelFlag
	}
	return env, nil
}

func loadProfile(cfg *config.Config) (*agent.Profile, error) {
	if profileFlag == "" {
		return nil, nil
	}
	profile, err := agent.LoadProfile(filepath.Join(cfg.Agent.ProfilesDir, profileFlag+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	return profile, nil
}

// openRunStore opens the run store. Runs still execute when it is unavailable.
func openRunStore(cfg *config.Config) storage.Store {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		slog.Warn("run history disabled", "error", err)
		return nil
	}
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		slog.Warn("run history disabled", "path", cfg.Storage.DBPath, "error", err)
		return nil
	}
	return store
}

// session bundles everything a command needs to execute prompts.
type session struct {
	env     *runner.Environment
	cfg     *config.Config
	toolset *tools.Aggregation
	store   storage.Store
	runner  *runner.Runner
}

// openSession loads config and credentials, launches the tool servers and
// builds a runner. The caller must Close the session.
func openSession(ctx context.Context) (*session, error) {
	env, err := openTools(ctx)
	if err != nil {
		return nil, err
	}
	cfg := env.Config
	profile, err := loadProfile(cfg)
	if err != nil {
		env.Close()
		return nil, err
	}

	store := openRunStore(cfg)
	return &session{
		env:     env,
		cfg:     cfg,
		toolset: env.Tools,
		store:   store,
		runner:  runner.New(cfg, runner.NewClient(cfg, profile), env.Tools, store, profile),
	}, nil
}

func (s *session) Close() {
	if err := s.env.Close(); err != nil {
		slog.Warn("closing tool servers", "error", err)
	}
	if s.store != nil {
		s.store.Close()
	}
}
