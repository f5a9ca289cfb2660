package fsutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustWrite(t *testing.T, dir, name, content string) string {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return full
}

func TestResolverRejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	r := Resolver{Root: dir}
	if _, err := r.Resolve("../outside"); err == nil {
		t.Fatal("expected an error for a path escaping the workspace")
	}
}

func TestResolverRejectsEmptyPath(t *testing.T) {
	r := Resolver{Root: t.TempDir()}
	if _, err := r.Resolve("   "); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestResolverAcceptsNestedRelativePath(t *testing.T) {
	dir := t.TempDir()
	r := Resolver{Root: dir}
	resolved, err := r.Resolve("a/b/c.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filepath.Dir(resolved) != filepath.Join(dir, "a", "b") {
		t.Fatalf("unexpected resolved path: %s", resolved)
	}
}

func TestReadFileWindowsByLineRange(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, dir, "doc.txt", "one\ntwo\nthree\nfour\n")

	tool := NewReadFile(Config{Workspace: dir})
	args, _ := json.Marshal(map[string]any{"path": "doc.txt", "start_line": 2, "end_line": 3})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected tool error: %s", out.Content)
	}
	if out.Content != "two\nthree" {
		t.Fatalf("unexpected content: %q", out.Content)
	}
}

func TestReadFileMissingReturnsToolError(t *testing.T) {
	tool := NewReadFile(Config{Workspace: t.TempDir()})
	args, _ := json.Marshal(map[string]any{"path": "missing.txt"})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !out.IsError {
		t.Fatal("expected a tool-level error for a missing file")
	}
}

func TestWriteFileCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	tool := NewWriteFile(Config{Workspace: dir})
	args, _ := json.Marshal(map[string]any{"path": "nested/new.txt", "content": "hello"})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected tool error: %s", out.Content)
	}
	data, err := os.ReadFile(filepath.Join(dir, "nested", "new.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestDeleteFileRemovesFile(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, dir, "gone.txt", "x")
	tool := NewDeleteFile(Config{Workspace: dir})
	args, _ := json.Marshal(map[string]any{"path": "gone.txt"})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected tool error: %s", out.Content)
	}
	if _, err := os.Stat(filepath.Join(dir, "gone.txt")); !os.IsNotExist(err) {
		t.Fatal("expected the file to be gone")
	}
}

func TestEditFileReplacesFirstOccurrenceByDefault(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, dir, "a.txt", "foo bar foo")
	tool := NewEditFile(Config{Workspace: dir})
	args, _ := json.Marshal(map[string]any{
		"path": "a.txt",
		"edits": []map[string]any{
			{"old_text": "foo", "new_text": "baz"},
		},
	})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected tool error: %s", out.Content)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "a.txt"))
	if string(data) != "baz bar foo" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestEditFileReplaceAll(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, dir, "a.txt", "foo bar foo")
	tool := NewEditFile(Config{Workspace: dir})
	args, _ := json.Marshal(map[string]any{
		"path": "a.txt",
		"edits": []map[string]any{
			{"old_text": "foo", "new_text": "baz", "replace_all": true},
		},
	})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected tool error: %s", out.Content)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "a.txt"))
	if string(data) != "baz bar baz" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestEditFileOldTextNotFoundIsToolError(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, dir, "a.txt", "foo")
	tool := NewEditFile(Config{Workspace: dir})
	args, _ := json.Marshal(map[string]any{
		"path":  "a.txt",
		"edits": []map[string]any{{"old_text": "missing", "new_text": "x"}},
	})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !out.IsError {
		t.Fatal("expected a tool-level error when old_text is not present")
	}
}

func TestListDirSortsEntriesAndMarksDirectories(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, dir, "b.txt", "")
	mustWrite(t, dir, "a.txt", "")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	tool := NewListDir(Config{Workspace: dir})
	args, _ := json.Marshal(map[string]any{"path": "."})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := "a.txt\nb.txt\nsub/"
	if out.Content != want {
		t.Fatalf("got %q, want %q", out.Content, want)
	}
}

func TestGrepFilesFindsLiteralMatches(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, dir, "a.txt", "nothing here")
	mustWrite(t, dir, "b.txt", "needle found here\nanother line")
	tool := NewGrepFiles(Config{Workspace: dir})
	args, _ := json.Marshal(map[string]any{"query": "needle"})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected tool error: %s", out.Content)
	}
	if !strings.Contains(out.Content, "b.txt:1:needle found here") {
		t.Fatalf("unexpected content: %q", out.Content)
	}
}

func TestGrepFilesNoMatches(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, dir, "a.txt", "nothing here")
	tool := NewGrepFiles(Config{Workspace: dir})
	args, _ := json.Marshal(map[string]any{"query": "needle"})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Content != "no matches" {
		t.Fatalf("unexpected content: %q", out.Content)
	}
}
