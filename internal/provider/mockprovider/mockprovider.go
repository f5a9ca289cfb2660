// Package mockprovider is a deterministic, in-memory provider.Provider used
// by tests that exercise the agent loop without a network dependency.
package mockprovider

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oskarlindberg/agentcore/internal/provider"
)

// Turn is one scripted response: either plain text or a single tool call.
// Struct tags let a script live as YAML data (see LoadTurnsFromYAML)
// instead of only as Go literals.
type Turn struct {
	Text          string `yaml:"text"`
	ToolCallID    string `yaml:"tool_call_id"`
	ToolName      string `yaml:"tool_name"`
	ToolArguments string `yaml:"tool_arguments"`
	InputTokens   int    `yaml:"input_tokens"`
	OutputTokens  int    `yaml:"output_tokens"`
}

// LoadTurnsFromYAML reads a script file of the form:
//
//	turns:
//	  - text: "hello"
//	  - tool_name: read_file
//	    tool_call_id: call_1
//	    tool_arguments: '{"path":"README.md"}'
//
// so a deterministic test fixture can be authored as data and reused across
// tests without recompiling, the same motivation spec.md gives for a
// mock/YAML driver distinct from a Go-struct-scripted one.
func LoadTurnsFromYAML(path string) ([]Turn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mockprovider: read script: %w", err)
	}
	var doc struct {
		Turns []Turn `yaml:"turns"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("mockprovider: parse script: %w", err)
	}
	if len(doc.Turns) == 0 {
		return nil, fmt.Errorf("mockprovider: script %s defines no turns", path)
	}
	return doc.Turns, nil
}

// NewFromYAML builds a Driver from a YAML script file, per LoadTurnsFromYAML.
func NewFromYAML(path string) (*Driver, error) {
	turns, err := LoadTurnsFromYAML(path)
	if err != nil {
		return nil, err
	}
	return New(turns...), nil
}

// Driver replays a fixed script of Turns, one per Complete call, looping
// back to the last Turn if Complete is called more times than scripted.
type Driver struct {
	Turns []Turn
	calls int
}

func New(turns ...Turn) *Driver {
	return &Driver{Turns: turns}
}

func (d *Driver) Name() string { return "mock" }

func (d *Driver) ModelName(requested string) string {
	if requested != "" {
		return requested
	}
	return "mock-model"
}

func (d *Driver) ListModels() []provider.Model {
	return []provider.Model{{ID: "mock-model", Name: "Mock Model", ContextWindow: 200000}}
}

func (d *Driver) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ResponseEvent, error) {
	idx := d.calls
	if idx >= len(d.Turns) {
		idx = len(d.Turns) - 1
	}
	d.calls++
	turn := d.Turns[idx]

	out := make(chan provider.ResponseEvent, 8)
	go func() {
		defer close(out)
		select {
		case <-ctx.Done():
			out <- provider.ResponseEvent{Kind: provider.EventError, Err: ctx.Err()}
			return
		default:
		}
		if turn.Text != "" {
			out <- provider.ResponseEvent{Kind: provider.EventTextDelta, Text: turn.Text}
		}
		if turn.ToolName != "" {
			out <- provider.ResponseEvent{Kind: provider.EventToolCallFragment, ToolCall: provider.ToolCallFragment{ID: turn.ToolCallID, Name: turn.ToolName}}
			out <- provider.ResponseEvent{Kind: provider.EventToolCallFragment, ToolCall: provider.ToolCallFragment{ArgumentsFragment: turn.ToolArguments}}
		}
		out <- provider.ResponseEvent{Kind: provider.EventUsage, Usage: provider.Usage{InputTokens: turn.InputTokens, OutputTokens: turn.OutputTokens}}
		out <- provider.ResponseEvent{Kind: provider.EventDone}
	}()
	return out, nil
}
