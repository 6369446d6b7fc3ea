package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPClient is the part of *client.Client a Session uses.
type MCPClient interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer launches the server described by d with the resolved env pairs.
type Dialer func(ctx context.Context, d ServerDescriptor, env []string) (MCPClient, error)

// StdioDialer spawns the server as a child process speaking MCP over stdio.
// mcp-go appends env to the parent's environment.
func StdioDialer(_ context.Context, d ServerDescriptor, env []string) (MCPClient, error) {
	c, err := client.NewStdioMCPClient(d.Command, env, d.Args...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Session is an initialized connection to one tool server.
type Session struct {
	server string
	client MCPClient
	tools  []Handle
}

// OpenSession connects to a server, performs the MCP handshake and lists its tools.
// On failure the connection is closed and a *ServerError is returned.
func OpenSession(ctx context.Context, dial Dialer, d ServerDescriptor, env []string) (*Session, error) {
	c, err := dial(ctx, d, env)
	if err != nil {
		return nil, serverErr(d.Name, StageConnect, err)
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, serverErr(d.Name, StageConnect, err)
	}

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "toolagent",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, serverErr(d.Name, StageInitialize, err)
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, serverErr(d.Name, StageListTools, err)
	}

	return &Session{
		server: d.Name,
		client: c,
		tools:  handlesFrom(d.Name, result.Tools),
	}, nil
}

// Tools returns the tools the server exposed at handshake time.
func (s *Session) Tools() []Handle {
	return s.tools
}

// CallTool invokes a tool on this server and returns its text content.
// A tool-level failure is returned as text prefixed with "error: " so the model can see it.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("calling tool %s on %s: %w", name, s.server, err)
	}
	if result == nil {
		return "", errors.New("empty tool result")
	}

	var parts []string
	for _, c := range result.Content {
		switch c := c.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		default:
			parts = append(parts, "[non-text content]")
		}
	}

	text := strings.Join(parts, "\n")
	if result.IsError {
		return "error: " + text, nil
	}
	return text, nil
}

// Close shuts down the connection and the server process.
func (s *Session) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", s.server, err)
	}
	return nil
}
