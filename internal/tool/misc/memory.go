package misc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// Memory persists short facts the model wants remembered across sessions,
// one per line in a flat file under the workspace — the teacher extracts
// facts heuristically from conversation text; here the model asserts them
// directly, which is the natural shape for an explicit tool call.
type Memory struct {
	mu   sync.Mutex
	path string
}

func NewMemory(workspace string) *Memory {
	return &Memory{path: filepath.Join(workspace, ".agentcore", "memory.md")}
}

func (t *Memory) Name() string                       { return "update_memory" }
func (t *Memory) Description() string                { return "Append a fact to persistent cross-session memory." }
func (t *Memory) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *Memory) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeAgent, tool.ModePlan} }
func (t *Memory) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (t *Memory) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"fact":{"type":"string"}},"required":["fact"]}`)
}

func (t *Memory) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Fact string `json:"fact"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return &tool.Output{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	fact := strings.TrimSpace(in.Fact)
	if fact == "" {
		return &tool.Output{Content: "fact is required", IsError: true}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return &tool.Output{Content: err.Error(), IsError: true}, nil
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &tool.Output{Content: err.Error(), IsError: true}, nil
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, "- "+fact); err != nil {
		return &tool.Output{Content: err.Error(), IsError: true}, nil
	}
	return &tool.Output{Content: "remembered: " + fact}, nil
}

// ReadLints shells out to a configured linter and returns its output
// verbatim; it never fails the tool call on a non-zero exit since lint
// findings are the point of running it.
type ReadLints struct {
	Workspace string
	Command   []string // e.g. []string{"go", "vet", "./..."}
}

func (t *ReadLints) Name() string                       { return "read_lints" }
func (t *ReadLints) Description() string                { return "Run the configured linter and return its findings." }
func (t *ReadLints) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *ReadLints) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeAgent} }
func (t *ReadLints) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (t *ReadLints) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

func (t *ReadLints) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	if len(t.Command) == 0 {
		return &tool.Output{Content: "no lint command configured", IsError: true}, nil
	}
	cmd := exec.CommandContext(ctx, t.Command[0], t.Command[1:]...)
	cmd.Dir = t.Workspace
	output, _ := cmd.CombinedOutput()
	if len(output) == 0 {
		return &tool.Output{Content: "no lint findings"}, nil
	}
	return &tool.Output{Content: string(output)}, nil
}
