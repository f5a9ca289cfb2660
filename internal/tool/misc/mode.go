package misc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// ModeSwitcher lets the model request a change of operating mode
// (research/plan/agent). Execute pushes a SideEventModeChanged onto the
// side channel, which the agent loop turns into a ModeChanged event and
// its own mode switch; Current reports the switcher's last accepted mode.
type ModeSwitcher struct {
	mu      sync.Mutex
	current tool.Mode
}

func NewModeSwitcher(initial tool.Mode) *ModeSwitcher {
	return &ModeSwitcher{current: initial}
}

func (t *ModeSwitcher) Name() string                       { return "switch_mode" }
func (t *ModeSwitcher) Description() string                { return "Switch the agent's operating mode." }
func (t *ModeSwitcher) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *ModeSwitcher) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent} }
func (t *ModeSwitcher) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (t *ModeSwitcher) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"mode": {"type": "string", "enum": ["research", "plan", "agent"]}},
		"required": ["mode"]
	}`)
}

func (t *ModeSwitcher) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return &tool.Output{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	mode := tool.Mode(in.Mode)
	switch mode {
	case tool.ModeResearch, tool.ModePlan, tool.ModeAgent:
	default:
		return &tool.Output{Content: "unknown mode: " + in.Mode, IsError: true}, nil
	}
	t.mu.Lock()
	t.current = mode
	t.mu.Unlock()

	if sc, ok := tool.SideChannelFromContext(ctx); ok {
		sc.Push(tool.SideEvent{Kind: tool.SideEventModeChanged, Payload: mode})
	}

	return &tool.Output{Content: "switched to " + in.Mode}, nil
}

// Current returns the active mode.
func (t *ModeSwitcher) Current() tool.Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
