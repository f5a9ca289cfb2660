// Package misc implements the built-ins that aren't filesystem, exec, or
// web facing: the todo tracker, mode switcher, clarifying-question tool,
// persistent memory, and skill loader.
package misc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// TodoItem is one tracked unit of work within a session.
type TodoItem struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"` // pending, in_progress, completed
}

// TodoTracker lets the model maintain a session-scoped todo list, replacing
// it wholesale on every call (the same discipline the agent loop uses for
// compaction: a single atomic write, never an incremental patch).
type TodoTracker struct {
	mu    sync.Mutex
	items []TodoItem
}

func NewTodoTracker() *TodoTracker { return &TodoTracker{} }

func (t *TodoTracker) Name() string                       { return "update_todos" }
func (t *TodoTracker) Description() string                { return "Replace the current todo list with an updated one." }
func (t *TodoTracker) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *TodoTracker) Modes() []tool.Mode                  { return []tool.Mode{tool.ModePlan, tool.ModeAgent} }
func (t *TodoTracker) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (t *TodoTracker) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"items": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"id": {"type": "string"},
						"text": {"type": "string"},
						"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]}
					},
					"required": ["id", "text", "status"]
				}
			}
		},
		"required": ["items"]
	}`)
}

func (t *TodoTracker) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Items []TodoItem `json:"items"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return &tool.Output{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	t.mu.Lock()
	t.items = in.Items
	t.mu.Unlock()

	if sc, ok := tool.SideChannelFromContext(ctx); ok {
		sc.Push(tool.SideEvent{Kind: tool.SideEventTodoUpdate, Payload: t.Snapshot()})
	}

	return &tool.Output{Content: fmt.Sprintf("tracked %d todo item(s)", len(in.Items))}, nil
}

// Snapshot returns a copy of the current todo list; Execute pushes it as
// the payload of the SideEventTodoUpdate that the agent loop turns into a
// TodoUpdate event.
func (t *TodoTracker) Snapshot() []TodoItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TodoItem, len(t.items))
	copy(out, t.items)
	return out
}
