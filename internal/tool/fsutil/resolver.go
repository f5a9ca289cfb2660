// Package fsutil implements the filesystem-facing built-in tools: read,
// write, edit, list, glob, and grep, all scoped to a workspace root.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver confines relative and absolute paths to a workspace root,
// rejecting anything that would escape it via "..".
type Resolver struct {
	Root string
}

// Resolve returns the absolute, workspace-confined form of path.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace")
	}
	return targetAbs, nil
}

// Config is shared construction config for every fsutil tool.
type Config struct {
	Workspace string
}
