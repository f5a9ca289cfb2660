package fsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// ReadFile reads a file's contents, optionally windowed by line range.
type ReadFile struct {
	resolver Resolver
}

func NewReadFile(cfg Config) *ReadFile { return &ReadFile{resolver: Resolver{Root: cfg.Workspace}} }

func (t *ReadFile) Name() string        { return "read_file" }
func (t *ReadFile) Description() string { return "Read the contents of a file in the workspace." }
func (t *ReadFile) DefaultPolicy() tool.Policy { return tool.PolicyAuto }
func (t *ReadFile) Modes() []tool.Mode {
	return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent}
}
func (t *ReadFile) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (t *ReadFile) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path relative to the workspace."},
			"start_line": {"type": "integer", "description": "1-based first line to include."},
			"end_line": {"type": "integer", "description": "1-based last line to include."}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFile) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Path      string `json:"path"`
		StartLine int    `json:"start_line"`
		EndLine   int    `json:"end_line"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return errOutput(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return errOutput(err.Error()), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return errOutput(fmt.Sprintf("read file: %v", err)), nil
	}
	if in.StartLine <= 0 && in.EndLine <= 0 {
		return &tool.Output{Content: string(data)}, nil
	}
	lines := strings.Split(string(data), "\n")
	start := in.StartLine - 1
	if start < 0 {
		start = 0
	}
	end := in.EndLine
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return &tool.Output{Content: ""}, nil
	}
	return &tool.Output{Content: strings.Join(lines[start:end], "\n")}, nil
}

func errOutput(msg string) *tool.Output { return &tool.Output{Content: msg, IsError: true} }
