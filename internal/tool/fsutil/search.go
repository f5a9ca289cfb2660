package fsutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// ListDir lists the direct entries of a workspace directory.
type ListDir struct {
	resolver Resolver
}

func NewListDir(cfg Config) *ListDir { return &ListDir{resolver: Resolver{Root: cfg.Workspace}} }

func (t *ListDir) Name() string                       { return "list_dir" }
func (t *ListDir) Description() string                { return "List files and directories at a workspace path." }
func (t *ListDir) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *ListDir) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent} }
func (t *ListDir) OutputCategory() tool.OutputCategory { return tool.CategorySearch }

func (t *ListDir) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)
}

func (t *ListDir) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
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
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return errOutput(fmt.Sprintf("list dir: %v", err)), nil
	}
	var lines []string
	for _, e := range entries {
		suffix := ""
		if e.IsDir() {
			suffix = "/"
		}
		lines = append(lines, e.Name()+suffix)
	}
	sort.Strings(lines)
	return &tool.Output{Content: strings.Join(lines, "\n")}, nil
}

// GlobFiles finds workspace files matching a glob pattern.
type GlobFiles struct {
	resolver Resolver
}

func NewGlobFiles(cfg Config) *GlobFiles { return &GlobFiles{resolver: Resolver{Root: cfg.Workspace}} }

func (t *GlobFiles) Name() string                       { return "glob_files" }
func (t *GlobFiles) Description() string                { return "Find files in the workspace matching a glob pattern." }
func (t *GlobFiles) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *GlobFiles) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent} }
func (t *GlobFiles) OutputCategory() tool.OutputCategory { return tool.CategorySearch }

func (t *GlobFiles) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"}},"required":["pattern"]}`)
}

func (t *GlobFiles) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return errOutput(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	root := t.resolver.Root
	if root == "" {
		root = "."
	}
	full := filepath.Join(root, in.Pattern)
	if rel, err := filepath.Rel(root, full); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return errOutput("path escapes workspace"), nil
	}
	matches, err := filepath.Glob(full)
	if err != nil {
		return errOutput(fmt.Sprintf("invalid pattern: %v", err)), nil
	}
	var rels []string
	for _, m := range matches {
		rel, err := filepath.Rel(root, m)
		if err != nil {
			rel = m
		}
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	return &tool.Output{Content: strings.Join(rels, "\n")}, nil
}

// GrepFiles searches workspace file contents for a literal substring,
// excluding common vendor/build directories.
type GrepFiles struct {
	resolver Resolver
}

func NewGrepFiles(cfg Config) *GrepFiles { return &GrepFiles{resolver: Resolver{Root: cfg.Workspace}} }

func (t *GrepFiles) Name() string { return "grep_files" }
func (t *GrepFiles) Description() string {
	return "Search workspace file contents for a literal substring."
}
func (t *GrepFiles) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *GrepFiles) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent} }
func (t *GrepFiles) OutputCategory() tool.OutputCategory { return tool.CategorySearch }

var grepExcludedDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "dist": true, "build": true,
}

func (t *GrepFiles) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"max_matches": {"type": "integer"}
		},
		"required": ["query"]
	}`)
}

func (t *GrepFiles) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Query      string `json:"query"`
		MaxMatches int    `json:"max_matches"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return errOutput(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if in.Query == "" {
		return errOutput("query is required"), nil
	}
	max := in.MaxMatches
	if max <= 0 {
		max = 200
	}
	root := t.resolver.Root
	if root == "" {
		root = "."
	}

	var hits []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if grepExcludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(hits) >= max {
			return filepath.SkipAll
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if strings.Contains(scanner.Text(), in.Query) {
				rel, _ := filepath.Rel(root, path)
				hits = append(hits, fmt.Sprintf("%s:%d:%s", rel, lineNo, scanner.Text()))
				if len(hits) >= max {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return errOutput(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(hits) == 0 {
		return &tool.Output{Content: "no matches"}, nil
	}
	return &tool.Output{Content: strings.Join(hits, "\n")}, nil
}
