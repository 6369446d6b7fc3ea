package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "llama3.1:8b",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "create_repository", "arguments": "{\"name\":\"hello_world_ollama\"}"}
      }]
    }
  }]
}`

func newTestClient(url string, retries int) *OpenAICompatClient {
	return NewClient(Options{
		BaseURL:     url + "/v1/",
		APIKey:      "ollama",
		Model:       "llama3.1:8b",
		Temperature: 0.1,
		MaxRetries:  retries,
	})
}

func TestChatCompletionSendsModelAndTemperature(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, toolCallCompletion)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	resp, err := c.ChatCompletion(context.Background(),
		[]Message{SystemMessage("be brief"), UserMessage("create a repo")},
		[]ToolDef{{Name: "create_repository", Description: "Create a GitHub repository", Parameters: map[string]any{"type": "object"}}},
	)
	require.NoError(t, err)

	assert.Equal(t, "llama3.1:8b", body["model"])
	assert.InDelta(t, 0.1, body["temperature"], 1e-9)
	assert.Len(t, body["tools"], 1)
	assert.Len(t, body["messages"], 2)

	require.Len(t, resp.Message.ToolCalls, 1)
	tc := resp.Message.ToolCalls[0]
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "create_repository", tc.Name)
	assert.Equal(t, map[string]any{"name": "hello_world_ollama"}, tc.Args)
}

func TestChatCompletionRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After-Ms", "1")
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, toolCallCompletion)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2).ChatCompletion(context.Background(), []Message{UserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatCompletionStream(t *testing.T) {
	chunks := []string{
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"llama3.1:8b","choices":[{"index":0,"delta":{"role":"assistant","content":"Hello"}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"llama3.1:8b","choices":[{"index":0,"delta":{"content":" World"}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"llama3.1:8b","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var deltas []string
	resp, err := newTestClient(srv.URL, 0).ChatCompletionStream(context.Background(),
		[]Message{UserMessage("say hello")}, nil, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello", " World"}, deltas)
	assert.Equal(t, "Hello World", resp.Message.Content)
	assert.Equal(t, RoleAssistant, resp.Message.Role)
	assert.Empty(t, resp.Message.ToolCalls)
}

func TestDecodeArgs(t *testing.T) {
	assert.Equal(t, map[string]any{}, decodeArgs(""))
	assert.Equal(t, map[string]any{"path": "a.txt"}, decodeArgs(`{"path":"a.txt"}`))
	assert.Equal(t, map[string]any{"_raw": "{not json"}, decodeArgs("{not json"))
}

func TestConvertMessagesKeepsToolCallPairs(t *testing.T) {
	msgs := []Message{
		SystemMessage("sys"),
		UserMessage("write it"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "t1", Name: "write_file", Args: map[string]any{"path": "x"}}}},
		ToolResultMessage("t1", "ok"),
		AssistantMessage("done"),
	}
	out := convertMessages(msgs)
	require.Len(t, out, 5)
	require.NotNil(t, out[2].OfAssistant)
	assert.Equal(t, "write_file", out[2].OfAssistant.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"path":"x"}`, out[2].OfAssistant.ToolCalls[0].Function.Arguments)
	require.NotNil(t, out[3].OfTool)
	assert.Equal(t, "t1", out[3].OfTool.ToolCallID)
}
