package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/michaelbrown/toolagent/internal/llm"
)

const defaultSystemPrompt = `You are a helpful assistant with access to tools.
Use the available tools when a task needs them, and report what you did.`

const defaultMaxTokens = 6000

// ErrMaxIterations is returned when the model keeps requesting tools past the iteration limit.
var ErrMaxIterations = errors.New("agent reached max iterations without a final response")

// Toolset is the collection of tools an agent may call.
type Toolset interface {
	ToolDefs() []llm.ToolDef
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Agent manages a conversation and executes the ReAct loop.
type Agent struct {
	llm          llm.Client
	toolset      Toolset
	tools        []llm.ToolDef
	history      []llm.Message
	maxIter      int
	maxTokens    int
	OnToolCall   func(name string, args map[string]any)
	OnToolResult func(name string, result string)
	OnTextDelta  func(delta string)
}

// New creates an Agent over the given tools. A nil or empty toolset leaves
// the model with no tools.
func New(client llm.Client, toolset Toolset, maxIterations int) *Agent {
	a := &Agent{
		llm:       client,
		toolset:   toolset,
		maxIter:   maxIterations,
		maxTokens: defaultMaxTokens,
		history: []llm.Message{
			llm.SystemMessage(defaultSystemPrompt),
		},
	}
	if toolset != nil {
		a.tools = toolset.ToolDefs()
	}
	return a
}

// SetSystemPrompt overrides the default system prompt.
func (a *Agent) SetSystemPrompt(prompt string) {
	if prompt != "" {
		a.history[0] = llm.SystemMessage(prompt)
	}
}

// FilterTools narrows the available tools to names. An empty list keeps all tools.
func (a *Agent) FilterTools(names []string) {
	if len(names) == 0 {
		return
	}
	a.tools = slices.DeleteFunc(a.tools, func(t llm.ToolDef) bool {
		return !slices.Contains(names, t.Name)
	})
}

// Tools returns the tool definitions sent to the model.
func (a *Agent) Tools() []llm.ToolDef {
	return a.tools
}

// SetMaxTokens sets the token budget the history is trimmed to before each run.
func (a *Agent) SetMaxTokens(maxTokens int) {
	if maxTokens > 0 {
		a.maxTokens = maxTokens
	}
}

// Run sends a user message and executes the full ReAct loop.
// Returns the final assistant text response.
func (a *Agent) Run(ctx context.Context, userMessage string) (string, error) {
	return a.loop(ctx, userMessage, func(ctx context.Context) (*llm.Response, error) {
		return a.llm.ChatCompletion(ctx, a.history, a.tools)
	})
}

// RunStreaming is like Run but streams text output token-by-token via OnTextDelta.
func (a *Agent) RunStreaming(ctx context.Context, userMessage string) (string, error) {
	return a.loop(ctx, userMessage, func(ctx context.Context) (*llm.Response, error) {
		return a.llm.ChatCompletionStream(ctx, a.history, a.tools, a.OnTextDelta)
	})
}

func (a *Agent) loop(ctx context.Context, userMessage string, complete func(context.Context) (*llm.Response, error)) (string, error) {
	a.history = trimHistory(a.history, a.maxTokens)
	a.history = append(a.history, llm.UserMessage(userMessage))

	for i := 0; i < a.maxIter; i++ {
		resp, err := complete(ctx)
		if err != nil {
			return "", fmt.Errorf("llm call (iteration %d): %w", i+1, err)
		}

		a.history = append(a.history, resp.Message)

		if !resp.WantsTools() {
			return resp.Message.Content, nil
		}

		for _, tc := range resp.Message.ToolCalls {
			if a.OnToolCall != nil {
				a.OnToolCall(tc.Name, tc.Args)
			}

			result := a.executeTool(ctx, tc)

			if a.OnToolResult != nil {
				a.OnToolResult(tc.Name, result)
			}

			a.history = append(a.history, llm.ToolResultMessage(tc.ID, result))
		}
	}

	return "", fmt.Errorf("%w (%d)", ErrMaxIterations, a.maxIter)
}

// executeTool dispatches a tool call. Failures become the tool result so the
// model can react to them.
func (a *Agent) executeTool(ctx context.Context, tc llm.ToolCall) string {
	if !slices.ContainsFunc(a.tools, func(t llm.ToolDef) bool { return t.Name == tc.Name }) {
		return fmt.Sprintf("error: unknown tool %q", tc.Name)
	}
	result, err := a.toolset.CallTool(ctx, tc.Name, tc.Args)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return result
}

// History returns the current conversation history.
func (a *Agent) History() []llm.Message {
	return a.history
}

// HistoryJSON returns the conversation as formatted JSON.
func (a *Agent) HistoryJSON() string {
	data, _ := json.MarshalIndent(a.history, "", "  ")
	return string(data)
}

// Reset clears conversation history (keeps system prompt).
func (a *Agent) Reset() {
	a.history = a.history[:1]
}

func (a *Agent) String() string {
	return fmt.Sprintf("Agent(tools=%d, history=%d messages, maxIter=%d)",
		len(a.tools), len(a.history), a.maxIter)
}

// FormatToolCall returns a human-readable string for a tool call, arguments sorted by name.
func FormatToolCall(name string, args map[string]any) string {
	return llm.ToolCall{Name: name, Args: args}.String()
}
