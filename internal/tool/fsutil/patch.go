package fsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oskarlindberg/agentcore/internal/tool"
	"github.com/oskarlindberg/agentcore/pkg/patch"
)

// patchFS adapts a workspace-confined Resolver into patch.FileSystem so
// Apply never sees a path that could escape the workspace root.
type patchFS struct {
	resolver Resolver
}

func (p patchFS) resolve(path string) (string, error) { return p.resolver.Resolve(path) }

func (p patchFS) ReadFile(path string) (string, error) {
	resolved, err := p.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	return string(data), err
}

func (p patchFS) WriteFile(path string, content string) error {
	resolved, err := p.resolve(path)
	if err != nil {
		return err
	}
	return os.WriteFile(resolved, []byte(content), 0o644)
}

func (p patchFS) Remove(path string) error {
	resolved, err := p.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(resolved)
}

func (p patchFS) MkdirAll(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	resolved, err := p.resolve(dir)
	if err != nil {
		return err
	}
	return os.MkdirAll(resolved, 0o755)
}

// ApplyPatch applies an apply_patch envelope (Begin/End Patch, Add/Delete/
// Update File sections) to files within the workspace.
type ApplyPatch struct {
	resolver Resolver
}

func NewApplyPatch(cfg Config) *ApplyPatch {
	return &ApplyPatch{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *ApplyPatch) Name() string { return "apply_patch" }
func (t *ApplyPatch) Description() string {
	return "Apply a patch in apply_patch envelope format (Add/Delete/Update File sections) to workspace files."
}
func (t *ApplyPatch) DefaultPolicy() tool.Policy          { return tool.PolicyAsk }
func (t *ApplyPatch) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeAgent} }
func (t *ApplyPatch) OutputCategory() tool.OutputCategory { return tool.CategoryFileChange }

func (t *ApplyPatch) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"patch": {"type": "string", "description": "*** Begin Patch / *** End Patch envelope"}
		},
		"required": ["patch"]
	}`)
}

func (t *ApplyPatch) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Patch string `json:"patch"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return errOutput(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(in.Patch) == "" {
		return errOutput("patch is required"), nil
	}

	parsed, err := patch.Parse(in.Patch)
	if err != nil {
		return errOutput(err.Error()), nil
	}

	for _, f := range parsed.Files {
		if _, err := t.resolver.Resolve(f.Path); err != nil {
			return errOutput(err.Error()), nil
		}
		if f.Action == patch.ActionAdd {
			if _, err := t.resolver.Resolve(filepath.Dir(f.Path)); err != nil {
				return errOutput(err.Error()), nil
			}
		}
	}

	summaries, err := patch.Apply(patchFS{resolver: t.resolver}, parsed)
	if err != nil {
		return errOutput(err.Error()), nil
	}

	var b strings.Builder
	for _, s := range summaries {
		b.WriteString(s.String())
		b.WriteString("\n")
	}
	return &tool.Output{Content: b.String()}, nil
}
