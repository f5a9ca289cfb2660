// Package search implements the search_codebase tool: a ripgrep wrapper
// with opinionated excludes, distinct from fsutil's hand-rolled grep_files
// walker. Where grep_files is a dependency-free literal-substring scan,
// search_codebase shells out to rg the way exec.Command shells out to sh,
// trading portability for rg's regex engine, .gitignore awareness, and
// speed on large trees.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// excludedGlobs are passed to rg as --glob=!pattern, keeping noisy
// vendor/build/VCS directories out of results without the caller having to
// know to ask for it.
var excludedGlobs = []string{
	".git", "node_modules", "vendor", "dist", "build", ".next", "target",
}

// Config controls how rg is invoked.
type Config struct {
	Workspace string
	Binary    string // default "rg"
	Timeout   time.Duration
}

// RipgrepSearch runs ripgrep against the workspace tree.
type RipgrepSearch struct {
	cfg Config
}

func New(cfg Config) *RipgrepSearch {
	if cfg.Binary == "" {
		cfg.Binary = "rg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &RipgrepSearch{cfg: cfg}
}

func (t *RipgrepSearch) Name() string { return "search_codebase" }
func (t *RipgrepSearch) Description() string {
	return "Search the codebase with ripgrep (regex, respects .gitignore, opinionated excludes)."
}
func (t *RipgrepSearch) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *RipgrepSearch) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent} }
func (t *RipgrepSearch) OutputCategory() tool.OutputCategory { return tool.CategorySearch }

func (t *RipgrepSearch) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string"},
			"path": {"type": "string"},
			"glob": {"type": "string"},
			"case_sensitive": {"type": "boolean"},
			"max_matches": {"type": "integer"}
		},
		"required": ["pattern"]
	}`)
}

func (t *RipgrepSearch) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Pattern       string `json:"pattern"`
		Path          string `json:"path"`
		Glob          string `json:"glob"`
		CaseSensitive bool   `json:"case_sensitive"`
		MaxMatches    int    `json:"max_matches"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return &tool.Output{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(in.Pattern) == "" {
		return &tool.Output{Content: "pattern is required", IsError: true}, nil
	}
	max := in.MaxMatches
	if max <= 0 {
		max = 200
	}

	runCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	args := []string{"--line-number", "--no-heading", "--color=never", "--max-count", strconv.Itoa(max)}
	if !in.CaseSensitive {
		args = append(args, "--smart-case")
	}
	for _, g := range excludedGlobs {
		args = append(args, "--glob", "!"+g)
	}
	if in.Glob != "" {
		args = append(args, "--glob", in.Glob)
	}
	args = append(args, "--", in.Pattern)

	searchPath := t.cfg.Workspace
	if in.Path != "" {
		searchPath = joinWorkspacePath(t.cfg.Workspace, in.Path)
	}
	if searchPath != "" {
		args = append(args, searchPath)
	}

	cmd := exec.CommandContext(runCtx, t.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return &tool.Output{Content: "search timed out", IsError: true}, nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		// rg exits 1 for "ran fine, found nothing" and 2 for a real error.
		if exitErr.ExitCode() == 1 {
			return &tool.Output{Content: "no matches"}, nil
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return &tool.Output{Content: msg, IsError: true}, nil
	}
	if runErr != nil {
		return &tool.Output{Content: fmt.Sprintf("rg: %v", runErr), IsError: true}, nil
	}

	out := strings.TrimRight(stdout.String(), "\n")
	lines := strings.Split(out, "\n")
	if len(lines) > max {
		lines = lines[:max]
	}
	return &tool.Output{Content: strings.Join(lines, "\n")}, nil
}

func joinWorkspacePath(root, path string) string {
	root = strings.TrimSpace(root)
	path = strings.TrimSpace(path)
	if root == "" {
		return path
	}
	if path == "" || path == "." {
		return root
	}
	return root + "/" + strings.TrimPrefix(path, "/")
}
