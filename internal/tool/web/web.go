// Package web implements the web_fetch and web_search built-in tools.
//
// Neither the teacher nor any other example repo in the pack carries an
// HTML-extraction or search-API client library (no goquery, no readability
// port), so both tools are built on net/http directly; this is a
// stdlib-only package by necessity, not preference.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// Fetch retrieves a URL's body as text, capped to avoid pulling huge pages
// into the conversation context.
type Fetch struct {
	Client  *http.Client
	MaxSize int64
}

func NewFetch() *Fetch {
	return &Fetch{Client: &http.Client{Timeout: 15 * time.Second}, MaxSize: 512 * 1024}
}

func (t *Fetch) Name() string                       { return "web_fetch" }
func (t *Fetch) Description() string                { return "Fetch the contents of a URL." }
func (t *Fetch) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *Fetch) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent} }
func (t *Fetch) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (t *Fetch) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`)
}

func (t *Fetch) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return &tool.Output{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	parsed, err := url.Parse(in.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &tool.Output{Content: "url must be an http(s) URL", IsError: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return &tool.Output{Content: err.Error(), IsError: true}, nil
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return &tool.Output{Content: err.Error(), IsError: true}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.MaxSize))
	if err != nil {
		return &tool.Output{Content: err.Error(), IsError: true}, nil
	}
	if resp.StatusCode >= 400 {
		return &tool.Output{Content: fmt.Sprintf("http %d: %s", resp.StatusCode, string(body)), IsError: true}, nil
	}
	return &tool.Output{Content: string(body)}, nil
}

// SearchResult is one entry of a Search response.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher is the minimal surface a web search backend must implement. This
// package ships no backend; tests supply a scripted fake.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// Search runs a query against a pluggable Searcher backend and returns the
// results as JSON.
type Search struct {
	Backend Searcher
}

func NewSearch(backend Searcher) *Search { return &Search{Backend: backend} }

func (t *Search) Name() string                       { return "web_search" }
func (t *Search) Description() string                { return "Search the web for a query." }
func (t *Search) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *Search) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent} }
func (t *Search) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (t *Search) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"count": {"type": "integer", "minimum": 1, "maximum": 20}
		},
		"required": ["query"]
	}`)
}

func (t *Search) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	if t.Backend == nil {
		return &tool.Output{Content: "web search backend not configured", IsError: true}, nil
	}
	var in struct {
		Query string `json:"query"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return &tool.Output{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	count := in.Count
	if count <= 0 {
		count = 5
	}
	results, err := t.Backend.Search(ctx, in.Query, count)
	if err != nil {
		return &tool.Output{Content: err.Error(), IsError: true}, nil
	}
	payload, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return &tool.Output{Content: err.Error(), IsError: true}, nil
	}
	return &tool.Output{Content: string(payload)}, nil
}
