package openaicompat

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oskarlindberg/agentcore/internal/provider"
)

// sseServer replies to POST /chat/completions with a fixed sequence of
// OpenAI chat-completion-chunk SSE lines, terminated by "data: [DONE]", the
// same wire shape CreateChatCompletionStream parses. This drives the real
// go-openai streaming client end to end rather than faking its internals,
// since the library exposes no other seam to construct a ChatCompletionStream.
func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		bw := bufio.NewWriter(w)
		for _, line := range lines {
			fmt.Fprintf(bw, "data: %s\n\n", line)
			bw.Flush()
			flusher.Flush()
		}
	}))
}

func drainOpenAICompat(t *testing.T, lines []string, req *provider.CompletionRequest) []provider.ResponseEvent {
	t.Helper()
	server := sseServer(t, lines)
	defer server.Close()

	d := New(Config{APIKey: "test-key", BaseURL: server.URL, MaxRetries: 1, RetryDelay: time.Millisecond})
	out, err := d.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	var events []provider.ResponseEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out waiting for stream to finish")
		}
	}
}

// TestProcessStreamMultipleToolCallsEachFlushOnce covers the same bug class
// as the Anthropic and Bedrock drivers: two sequential tool calls tracked by
// choice index must each flush exactly once, at the tool_calls finish
// reason, never replayed across chunks.
func TestProcessStreamMultipleToolCallsEachFlushOnce(t *testing.T) {
	events := drainOpenAICompat(t, []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"read_file","arguments":""}}]},"finish_reason":null}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"path\":"}}]},"finish_reason":null}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"a.go\"}"}}]},"finish_reason":null}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_2","type":"function","function":{"name":"write_file","arguments":"{\"path\":\"b.go\"}"}}]},"finish_reason":null}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
		"[DONE]",
	}, &provider.CompletionRequest{Model: "gpt-4o", Messages: []provider.RequestMessage{{Role: "user", Text: "do it"}}})

	var calls []provider.ToolCallFragment
	var usage provider.Usage
	var sawDone bool
	for _, ev := range events {
		switch ev.Kind {
		case provider.EventToolCallFragment:
			calls = append(calls, ev.ToolCall)
		case provider.EventUsage:
			usage = ev.Usage
		case provider.EventDone:
			sawDone = true
		}
	}
	if len(calls) != 2 {
		t.Fatalf("expected exactly 2 tool call fragments, got %d: %+v", len(calls), calls)
	}
	if calls[0].ID != "call_1" || calls[0].Name != "read_file" || calls[0].ArgumentsFragment != `{"path":"a.go"}` {
		t.Fatalf("first call mangled: %+v", calls[0])
	}
	if calls[1].ID != "call_2" || calls[1].Name != "write_file" || calls[1].ArgumentsFragment != `{"path":"b.go"}` {
		t.Fatalf("second call mangled: %+v", calls[1])
	}
	if !sawDone {
		t.Fatal("expected a Done event")
	}
	if usage.InputTokens != 10 || usage.OutputTokens != 5 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestProcessStreamTextDeltas(t *testing.T) {
	events := drainOpenAICompat(t, []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":", world"},"finish_reason":null}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		"[DONE]",
	}, &provider.CompletionRequest{Model: "gpt-4o", Messages: []provider.RequestMessage{{Role: "user", Text: "hi"}}})

	var text string
	for _, ev := range events {
		if ev.Kind == provider.EventTextDelta {
			text += ev.Text
		}
		if ev.Kind == provider.EventToolCallFragment {
			t.Fatalf("unexpected tool call fragment in a text-only turn: %+v", ev.ToolCall)
		}
	}
	if text != "Hello, world" {
		t.Fatalf("unexpected assembled text: %q", text)
	}
}

func TestConvertMessagesIncludesSystemAndToolResult(t *testing.T) {
	d := New(Config{APIKey: "test-key"})
	msgs := d.convertMessages([]provider.RequestMessage{
		{Role: "user", Text: "hi"},
		{Role: "tool", ToolCallID: "call_1", ToolResult: "42"},
	}, "be terse")
	if len(msgs) != 3 {
		t.Fatalf("expected system + user + tool = 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "be terse" {
		t.Fatalf("expected system message first, got %+v", msgs[0])
	}
	if msgs[2].ToolCallID != "call_1" || msgs[2].Content != "42" {
		t.Fatalf("unexpected tool message: %+v", msgs[2])
	}
}

func TestModelNameDefaults(t *testing.T) {
	d := New(Config{APIKey: "test-key", DefaultModel: "gpt-4-turbo"})
	if got := d.ModelName(""); got != "gpt-4-turbo" {
		t.Fatalf("expected configured default, got %q", got)
	}
	if got := d.ModelName("gpt-3.5-turbo"); got != "gpt-3.5-turbo" {
		t.Fatalf("expected requested model passthrough, got %q", got)
	}
}
