package fsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// WriteFile overwrites (or creates) a file with the given content.
type WriteFile struct {
	resolver Resolver
}

func NewWriteFile(cfg Config) *WriteFile { return &WriteFile{resolver: Resolver{Root: cfg.Workspace}} }

func (t *WriteFile) Name() string        { return "write_file" }
func (t *WriteFile) Description() string { return "Write content to a file, creating parent directories as needed." }
func (t *WriteFile) DefaultPolicy() tool.Policy        { return tool.PolicyAsk }
func (t *WriteFile) Modes() []tool.Mode                { return []tool.Mode{tool.ModeAgent} }
func (t *WriteFile) OutputCategory() tool.OutputCategory { return tool.CategoryFileChange }

func (t *WriteFile) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFile) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return errOutput(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return errOutput(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errOutput(fmt.Sprintf("create directories: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(in.Content), 0o644); err != nil {
		return errOutput(fmt.Sprintf("write file: %v", err)), nil
	}
	return &tool.Output{Content: fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)}, nil
}

// DeleteFile removes a file from the workspace.
type DeleteFile struct {
	resolver Resolver
}

func NewDeleteFile(cfg Config) *DeleteFile { return &DeleteFile{resolver: Resolver{Root: cfg.Workspace}} }

func (t *DeleteFile) Name() string                       { return "delete_file" }
func (t *DeleteFile) Description() string                { return "Delete a file in the workspace." }
func (t *DeleteFile) DefaultPolicy() tool.Policy          { return tool.PolicyAsk }
func (t *DeleteFile) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeAgent} }
func (t *DeleteFile) OutputCategory() tool.OutputCategory { return tool.CategoryFileChange }

func (t *DeleteFile) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)
}

func (t *DeleteFile) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return errOutput(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return errOutput(err.Error()), nil
	}
	if err := os.Remove(resolved); err != nil {
		return errOutput(fmt.Sprintf("delete file: %v", err)), nil
	}
	return &tool.Output{Content: "deleted " + in.Path}, nil
}
