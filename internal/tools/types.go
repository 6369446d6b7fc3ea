package tools

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/toolagent/internal/llm"
)

// ServerDescriptor describes how to launch one MCP tool server.
type ServerDescriptor struct {
	Name    string            `mapstructure:"name"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Enabled bool              `mapstructure:"enabled"` // config loading defaults it to true
}

// DisplayName is the last launch argument, or the command when there are none.
func (d ServerDescriptor) DisplayName() string {
	if len(d.Args) > 0 {
		return d.Args[len(d.Args)-1]
	}
	return d.Command
}

// Handle is a tool exposed by a server.
type Handle struct {
	Name        string
	Description string
	Server      string
	InputSchema mcp.ToolInputSchema
}

// Def converts the handle's MCP schema to an llm.ToolDef.
func (h Handle) Def() llm.ToolDef {
	params := map[string]any{
		"type": h.InputSchema.Type,
	}
	if params["type"] == "" {
		params["type"] = "object"
	}
	if h.InputSchema.Properties != nil {
		params["properties"] = h.InputSchema.Properties
	}
	if len(h.InputSchema.Required) > 0 {
		params["required"] = h.InputSchema.Required
	}
	return llm.ToolDef{
		Name:        h.Name,
		Description: h.Description,
		Parameters:  params,
	}
}

func handlesFrom(server string, list []mcp.Tool) []Handle {
	out := make([]Handle, len(list))
	for i, t := range list {
		out[i] = Handle{
			Name:        t.Name,
			Description: t.Description,
			Server:      server,
			InputSchema: t.InputSchema,
		}
	}
	return out
}

// Names returns the tool names of hs in order.
func Names(hs []Handle) []string {
	names := make([]string, len(hs))
	for i, h := range hs {
		names[i] = h.Name
	}
	return names
}
