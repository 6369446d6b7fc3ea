package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/toolagent/internal/runner"
	"github.com/michaelbrown/toolagent/internal/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string `json:"type"`
	RunID   string `json:"run_id,omitempty"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
	Args    any    `json:"args,omitempty"`
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(v wsOutgoing) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("websocket marshal", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("websocket write", "error", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn}

	var (
		mu      sync.Mutex
		current string
		wg      sync.WaitGroup
	)
	defer wg.Wait()

	// Cancelled on client disconnect, before waiting for the run to drain.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read", "error", err)
			}
			return
		}

		switch msg.Type {
		case "run":
			mu.Lock()
			busy := current != ""
			mu.Unlock()
			if busy {
				c.send(wsOutgoing{Type: "error", Content: "a run is already in progress"})
				continue
			}

			prompt := msg.Content
			if prompt == "" {
				prompt = s.cfg.Agent.Prompt
			}
			run := s.runner.Begin(ctx, prompt)
			mu.Lock()
			current = run.ID
			mu.Unlock()
			runCtx, done := s.runs.Start(ctx, run.ID)
			c.send(wsOutgoing{Type: "started", RunID: run.ID})

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					mu.Lock()
					current = ""
					mu.Unlock()
				}()
				s.streamRun(runCtx, done, c, run)
			}()
		case "cancel":
			mu.Lock()
			id := current
			mu.Unlock()
			if id == "" || !s.runs.Cancel(id) {
				c.send(wsOutgoing{Type: "error", Content: "no run in progress"})
			}
		default:
			c.send(wsOutgoing{Type: "error", Content: "invalid message"})
		}
	}
}

// streamRun executes a run registered with the run manager and reports how it ended.
func (s *Server) streamRun(ctx context.Context, done func(), c *wsConn, run *storage.Run) {
	id := run.ID
	err := s.runner.Continue(ctx, run, s.wsEvents(c, id))
	interrupted := ctx.Err() != nil
	done()

	switch {
	case err != nil && interrupted:
		c.send(wsOutgoing{Type: "error", RunID: id, Content: "interrupted"})
	case err != nil:
		c.send(wsOutgoing{Type: "error", RunID: id, Content: err.Error()})
	default:
		c.send(wsOutgoing{Type: "done", RunID: id, Content: run.Answer})
	}
}

func (s *Server) wsEvents(c *wsConn, id string) runner.Events {
	return runner.Events{
		OnTextDelta: func(delta string) {
			c.send(wsOutgoing{Type: "text_delta", RunID: id, Content: delta})
		},
		OnToolCall: func(name string, args map[string]any) {
			c.send(wsOutgoing{Type: "tool_call", RunID: id, Name: name, Args: args})
		},
		OnToolResult: func(name string, result string) {
			c.send(wsOutgoing{Type: "tool_result", RunID: id, Name: name, Content: result})
		},
	}
}
