package fsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// EditFile applies one or more find/replace edits to an existing file.
type EditFile struct {
	resolver Resolver
}

func NewEditFile(cfg Config) *EditFile { return &EditFile{resolver: Resolver{Root: cfg.Workspace}} }

func (t *EditFile) Name() string                       { return "edit_file" }
func (t *EditFile) Description() string                { return "Apply find/replace edits to a file in the workspace." }
func (t *EditFile) DefaultPolicy() tool.Policy          { return tool.PolicyAsk }
func (t *EditFile) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeAgent} }
func (t *EditFile) OutputCategory() tool.OutputCategory { return tool.CategoryFileChange }

func (t *EditFile) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"edits": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"old_text": {"type": "string"},
						"new_text": {"type": "string"},
						"replace_all": {"type": "boolean"}
					},
					"required": ["old_text", "new_text"]
				}
			}
		},
		"required": ["path", "edits"]
	}`)
}

func (t *EditFile) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Path  string `json:"path"`
		Edits []struct {
			OldText    string `json:"old_text"`
			NewText    string `json:"new_text"`
			ReplaceAll bool   `json:"replace_all"`
		} `json:"edits"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return errOutput(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if len(in.Edits) == 0 {
		return errOutput("edits are required"), nil
	}
	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return errOutput(err.Error()), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return errOutput(fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	replacements := 0
	for _, e := range in.Edits {
		if e.OldText == "" {
			return errOutput("old_text is required"), nil
		}
		if !strings.Contains(content, e.OldText) {
			return errOutput("old_text not found: " + e.OldText), nil
		}
		if e.ReplaceAll {
			replacements += strings.Count(content, e.OldText)
			content = strings.ReplaceAll(content, e.OldText, e.NewText)
		} else {
			content = strings.Replace(content, e.OldText, e.NewText, 1)
			replacements++
		}
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errOutput(fmt.Sprintf("write file: %v", err)), nil
	}
	return &tool.Output{Content: fmt.Sprintf("applied %d replacement(s) to %s", replacements, in.Path)}, nil
}
