package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page content"))
	}))
	defer srv.Close()

	tool := NewFetch()
	args, _ := json.Marshal(map[string]any{"url": srv.URL})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected tool error: %s", out.Content)
	}
	if out.Content != "page content" {
		t.Fatalf("unexpected content: %q", out.Content)
	}
}

func TestFetchRejectsNonHTTPScheme(t *testing.T) {
	tool := NewFetch()
	args, _ := json.Marshal(map[string]any{"url": "ftp://example.com/file"})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !out.IsError {
		t.Fatal("expected a tool-level error for a non-http(s) URL")
	}
}

func TestFetchSurfacesHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}))
	defer srv.Close()

	tool := NewFetch()
	args, _ := json.Marshal(map[string]any{"url": srv.URL})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !out.IsError {
		t.Fatal("expected a tool-level error for a 404 response")
	}
	if !strings.Contains(out.Content, "404") {
		t.Fatalf("expected status code in content, got %q", out.Content)
	}
}

func TestFetchCapsBodySize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	tool := NewFetch()
	tool.MaxSize = 100
	args, _ := json.Marshal(map[string]any{"url": srv.URL})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Content) != 100 {
		t.Fatalf("expected body capped to 100 bytes, got %d", len(out.Content))
	}
}

type fakeSearcher struct {
	results []SearchResult
	err     error
}

func (f fakeSearcher) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestSearchWithoutBackendIsToolError(t *testing.T) {
	tool := NewSearch(nil)
	args, _ := json.Marshal(map[string]any{"query": "anything"})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !out.IsError {
		t.Fatal("expected a tool-level error when no backend is configured")
	}
}

func TestSearchReturnsBackendResultsAsJSON(t *testing.T) {
	backend := fakeSearcher{results: []SearchResult{{Title: "t", URL: "u", Snippet: "s"}}}
	tool := NewSearch(backend)
	args, _ := json.Marshal(map[string]any{"query": "q", "count": 3})
	out, err := tool.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected tool error: %s", out.Content)
	}
	var results []SearchResult
	if err := json.Unmarshal([]byte(out.Content), &results); err != nil {
		t.Fatalf("unmarshal results: %v", err)
	}
	if len(results) != 1 || results[0].Title != "t" {
		t.Fatalf("unexpected results: %+v", results)
	}
}
