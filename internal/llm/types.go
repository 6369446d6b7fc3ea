package llm

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Role is the author of a transcript entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a run transcript. Tool results carry the ID of
// the call they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is the model asking to run one MCP tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"arguments"`
}

// ArgsJSON encodes the arguments the way MCP servers and the endpoint expect
// them: always a JSON object, "{}" when there are none.
func (tc ToolCall) ArgsJSON() string {
	if len(tc.Args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(tc.Args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// String renders the call as name(key=value, ...) with keys sorted.
func (tc ToolCall) String() string {
	keys := make([]string, 0, len(tc.Args))
	for k := range tc.Args {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, tc.Args[k])
	}
	return fmt.Sprintf("%s(%s)", tc.Name, strings.Join(parts, ", "))
}

// ToolDef is an allow-listed MCP tool as offered to the model; Parameters
// is the tool's JSON Schema.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Response is the assistant turn of one completion.
type Response struct {
	Message Message
}

// WantsTools reports whether the model asked for tool calls instead of answering.
func (r *Response) WantsTools() bool {
	return len(r.Message.ToolCalls) > 0
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage answers call toolCallID with the tool's text output.
func ToolResultMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}
