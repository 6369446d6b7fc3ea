package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/michaelbrown/toolagent/internal/llm"
)

// AllowList is the set of tool names the agent may use.
type AllowList map[string]struct{}

// NewAllowList builds an allow-list from names.
func NewAllowList(names ...string) AllowList {
	a := make(AllowList, len(names))
	for _, n := range names {
		a[n] = struct{}{}
	}
	return a
}

// Allows reports whether name is on the list.
func (a AllowList) Allows(name string) bool {
	_, ok := a[name]
	return ok
}

// Filter returns the handles whose name is allowed, in order of first
// appearance. A later handle with an already-kept name is dropped.
// hs is not modified.
func (a AllowList) Filter(hs []Handle) []Handle {
	out := make([]Handle, 0, len(hs))
	seen := make(map[string]bool, len(hs))
	for _, h := range hs {
		if !a.Allows(h.Name) || seen[h.Name] {
			continue
		}
		seen[h.Name] = true
		out = append(out, h)
	}
	return out
}

// Outcome is the result of loading one server: tools on success, Err on failure.
type Outcome struct {
	Server      string
	DisplayName string
	Tools       []Handle
	Err         error
}

// OK reports whether the server loaded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Aggregation is the result of loading every configured server.
// It serves the allowed tools to an agent through the registry it was built from.
type Aggregation struct {
	Outcomes []Outcome
	All      []Handle // every tool from every server, in server order
	Tools    []Handle // All narrowed to the allow-list

	registry *Registry
}

// Failed returns the outcomes of servers that contributed no tools.
func (a *Aggregation) Failed() []Outcome {
	var failed []Outcome
	for _, o := range a.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// ToolDefs converts the allowed tools for the LLM API.
func (a *Aggregation) ToolDefs() []llm.ToolDef {
	defs := make([]llm.ToolDef, len(a.Tools))
	for i, h := range a.Tools {
		defs[i] = h.Def()
	}
	return defs
}

// CallTool invokes an allowed tool. Tools outside the filtered collection are
// rejected even when a server exposes them.
func (a *Aggregation) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	for _, h := range a.Tools {
		if h.Name == name {
			return a.registry.CallTool(ctx, name, args)
		}
	}
	return "", fmt.Errorf("tool not allowed: %s", name)
}

// Aggregate registers each enabled server in order, one at a time, and
// narrows the collected tools to allow. A server that fails is reported on
// out and in its Outcome; the remaining servers are still loaded.
// Sessions stay open in r until r.Close.
func Aggregate(ctx context.Context, r *Registry, servers []ServerDescriptor, allow AllowList, out io.Writer) *Aggregation {
	agg := &Aggregation{registry: r}

	for _, d := range servers {
		if !d.Enabled {
			continue
		}
		name := d.DisplayName()
		outcome := Outcome{Server: d.Name, DisplayName: name}

		handles, err := r.Register(ctx, d)
		if err != nil {
			outcome.Err = err
			agg.Outcomes = append(agg.Outcomes, outcome)
			r.logger.Warn("tool server unavailable", "server", d.Name, "error", err)
			fmt.Fprintln(out, err)
			continue
		}

		outcome.Tools = handles
		agg.Outcomes = append(agg.Outcomes, outcome)
		agg.All = append(agg.All, handles...)

		fmt.Fprintf(out, "%s: Loaded %d tools\n", name, len(handles))
		for _, h := range handles {
			fmt.Fprintf(out, "   - %s\n", h.Name)
		}
	}

	agg.Tools = allow.Filter(agg.All)
	r.logger.Debug("tools aggregated",
		slog.Int("servers", len(agg.Outcomes)),
		slog.Int("failed", len(agg.Failed())),
		slog.Int("loaded", len(agg.All)),
		slog.Int("allowed", len(agg.Tools)))
	return agg
}
