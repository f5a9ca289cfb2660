package search

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, filepath.Dir(name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// rgAvailable skips a test when ripgrep isn't installed on the machine
// running the suite, since this tool has no in-process fallback.
func rgAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("rg"); err != nil {
		t.Skip("rg not found on PATH")
	}
}

func TestExecuteFindsMatchesWithLineNumbers(t *testing.T) {
	rgAvailable(t)
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hello world\")\n}\n")

	s := New(Config{Workspace: dir})
	out, err := s.Execute(context.Background(), "c1", json.RawMessage(`{"pattern":"hello world"}`))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.False(t, out.IsError)
	assert.Contains(t, out.Content, "main.go")
	assert.Contains(t, out.Content, "hello world")
}

func TestExecuteExcludesVendorAndNodeModules(t *testing.T) {
	rgAvailable(t)
	dir := t.TempDir()
	writeFile(t, dir, "app.go", "needle\n")
	writeFile(t, dir, "vendor/lib.go", "needle\n")
	writeFile(t, dir, "node_modules/pkg/index.js", "needle\n")

	s := New(Config{Workspace: dir})
	out, err := s.Execute(context.Background(), "c1", json.RawMessage(`{"pattern":"needle"}`))
	require.NoError(t, err)
	assert.Contains(t, out.Content, "app.go")
	assert.NotContains(t, out.Content, "vendor")
	assert.NotContains(t, out.Content, "node_modules")
}

func TestExecuteReturnsNoMatchesWithoutError(t *testing.T) {
	rgAvailable(t)
	dir := t.TempDir()
	writeFile(t, dir, "app.go", "package main\n")

	s := New(Config{Workspace: dir})
	out, err := s.Execute(context.Background(), "c1", json.RawMessage(`{"pattern":"this string does not appear"}`))
	require.NoError(t, err)
	assert.False(t, out.IsError)
	assert.Contains(t, out.Content, "no matches")
}

func TestExecuteRejectsEmptyPattern(t *testing.T) {
	s := New(Config{Workspace: t.TempDir()})
	out, err := s.Execute(context.Background(), "c1", json.RawMessage(`{"pattern":""}`))
	require.NoError(t, err)
	assert.True(t, out.IsError)
	assert.Contains(t, out.Content, "pattern is required")
}

func TestExecuteRejectsInvalidArguments(t *testing.T) {
	s := New(Config{Workspace: t.TempDir()})
	out, err := s.Execute(context.Background(), "c1", json.RawMessage(`not json`))
	require.NoError(t, err)
	assert.True(t, out.IsError)
	assert.Contains(t, out.Content, "invalid parameters")
}

func TestExecuteHonorsGlobFilter(t *testing.T) {
	rgAvailable(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "needle\n")
	writeFile(t, dir, "b.md", "needle\n")

	s := New(Config{Workspace: dir})
	out, err := s.Execute(context.Background(), "c1", json.RawMessage(`{"pattern":"needle","glob":"*.go"}`))
	require.NoError(t, err)
	assert.Contains(t, out.Content, "a.go")
	assert.NotContains(t, out.Content, "b.md")
}

func TestExecuteTimesOut(t *testing.T) {
	rgAvailable(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "needle\n")

	s := New(Config{Workspace: dir, Timeout: time.Nanosecond})
	out, err := s.Execute(context.Background(), "c1", json.RawMessage(`{"pattern":"needle"}`))
	require.NoError(t, err)
	assert.True(t, out.IsError)
	assert.Contains(t, out.Content, "timed out")
}

func TestNameDescriptionAndMetadata(t *testing.T) {
	s := New(Config{Workspace: "."})
	assert.Equal(t, "search_codebase", s.Name())
	assert.NotEmpty(t, s.Description())
	assert.NotEmpty(t, s.ParametersSchema())
}
