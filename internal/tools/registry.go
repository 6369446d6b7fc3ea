package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"
)

// SecretLookup resolves a ${name} reference in a server's env.
type SecretLookup func(name string) (string, bool)

// Option configures a Registry.
type Option func(*Registry)

// WithSecrets sets the lookup used to expand ${name} env references.
func WithSecrets(lookup SecretLookup) Option {
	return func(r *Registry) { r.lookup = lookup }
}

// WithConnectTimeout bounds the connect/initialize/list handshake of each server.
// Zero disables the bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// Registry owns the open tool server sessions and routes tool calls to them.
type Registry struct {
	dial      Dialer
	lookup    SecretLookup
	timeout   time.Duration
	logger    *slog.Logger
	sessions  []*Session          // acquisition order
	toolIndex map[string]*Session // tool name → first server exposing it
}

// NewRegistry creates an empty registry that opens servers with dial.
func NewRegistry(dial Dialer, opts ...Option) *Registry {
	r := &Registry{
		dial:      dial,
		logger:    slog.Default(),
		toolIndex: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register opens a session to the server and records its tools.
// The returned error is always a *ServerError.
func (r *Registry) Register(ctx context.Context, d ServerDescriptor) ([]Handle, error) {
	env, err := r.resolveEnv(d.Env)
	if err != nil {
		return nil, serverErr(d.Name, StageAuth, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	sess, err := OpenSession(ctx, r.dial, d, env)
	if err != nil {
		return nil, err
	}

	r.sessions = append(r.sessions, sess)
	for _, h := range sess.Tools() {
		if owner, ok := r.toolIndex[h.Name]; ok {
			r.logger.Warn("duplicate tool name, keeping first",
				"tool", h.Name, "kept", owner.server, "dropped", d.Name)
			continue
		}
		r.toolIndex[h.Name] = sess
	}
	return sess.Tools(), nil
}

// resolveEnv turns the env map into sorted KEY=value pairs, expanding ${name}
// from the secret lookup first and the process environment second.
func (r *Registry) resolveEnv(env map[string]string) ([]string, error) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v := env[k]
		if ref, ok := reference(v); ok {
			v = r.expand(ref)
			if v == "" {
				return nil, fmt.Errorf("%s: reference ${%s} is empty", k, ref)
			}
		}
		pairs = append(pairs, k+"="+v)
	}
	return pairs, nil
}

func (r *Registry) expand(ref string) string {
	if r.lookup != nil {
		if v, ok := r.lookup(ref); ok {
			return v
		}
	}
	return os.Getenv(ref)
}

func reference(v string) (string, bool) {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return v[2 : len(v)-1], true
	}
	return "", false
}

// CallTool routes a tool call to the server that registered the tool first.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	sess, ok := r.toolIndex[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return sess.CallTool(ctx, name, args)
}

// HasTools reports whether any server contributed a tool.
func (r *Registry) HasTools() bool {
	return len(r.toolIndex) > 0
}

// Close shuts down every session in reverse acquisition order.
func (r *Registry) Close() error {
	var errs []error
	for i := len(r.sessions) - 1; i >= 0; i-- {
		if err := r.sessions[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.sessions = nil
	clear(r.toolIndex)
	return errors.Join(errs...)
}
