package convfile

import (
	"testing"

	"github.com/oskarlindberg/agentcore/internal/message"
)

func TestParseTitleAndSections(t *testing.T) {
	text := "# Debugging session\n\n## User\n\nWhy is this failing?\n\n## Assistant\n\nLet me check the logs.\n"
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Debugging session" {
		t.Errorf("Title = %q", doc.Title)
	}
	if len(doc.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(doc.Messages))
	}
	if doc.Messages[0].Role != message.RoleUser {
		t.Errorf("Messages[0].Role = %v, want user", doc.Messages[0].Role)
	}
	if doc.Messages[1].Role != message.RoleAssistant {
		t.Errorf("Messages[1].Role = %v, want assistant", doc.Messages[1].Role)
	}
	if doc.Pending != "" {
		t.Errorf("Pending = %q, want empty (assistant replied)", doc.Pending)
	}
}

func TestParseTrailingUserSectionIsPending(t *testing.T) {
	text := "## User\n\nfirst question\n\n## Assistant\n\nfirst answer\n\n## User\n\nfollow-up question\n"
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Pending != "follow-up question" {
		t.Errorf("Pending = %q, want %q", doc.Pending, "follow-up question")
	}
	if len(doc.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(doc.Messages))
	}
}

func TestParseToolCallAndResultSections(t *testing.T) {
	text := "## Tool\n\n```json\n{\n  \"id\": \"call-1\",\n  \"name\": \"read_file\",\n  \"arguments\": {\"path\": \"a.go\"}\n}\n```\n\n" +
		"## Tool Result\n\n```json\n{\n  \"tool_call_id\": \"call-1\",\n  \"text\": \"package main\"\n}\n```\n"
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(doc.Messages))
	}
	call := doc.Messages[0]
	if call.Role != message.RoleAssistant || call.Content.Kind != message.KindToolCall {
		t.Fatalf("got %+v", call)
	}
	if call.Content.ToolCall.ToolCallID != "call-1" || call.Content.ToolCall.FunctionName != "read_file" {
		t.Errorf("got %+v", call.Content.ToolCall)
	}

	result := doc.Messages[1]
	if result.Role != message.RoleTool || result.Content.Kind != message.KindToolResult {
		t.Fatalf("got %+v", result)
	}
	if result.Content.ToolResult.Text != "package main" {
		t.Errorf("Text = %q", result.Content.ToolResult.Text)
	}
}

func TestParseRejectsUnknownHeading(t *testing.T) {
	if _, err := Parse("## Narrator\n\nonce upon a time\n"); err == nil {
		t.Error("expected error for unknown section heading")
	}
}

func TestRoundTripPlainConversation(t *testing.T) {
	doc := &Document{
		Title: "Debugging session",
		Messages: []message.Message{
			message.NewUser("why is this failing?"),
			message.NewAssistant("let me check the logs."),
			message.NewUser("any update?"),
		},
	}
	assertRoundTrips(t, doc)
}

func TestRoundTripWithToolCallAndResult(t *testing.T) {
	doc := &Document{
		Messages: []message.Message{
			message.NewUser("read the file"),
			message.NewAssistantToolCall("call-1", "read_file", `{"path":"a.go"}`),
			message.NewToolResult("call-1", "package main"),
			message.NewAssistant("it's a main package."),
		},
	}
	assertRoundTrips(t, doc)
}

func assertRoundTrips(t *testing.T, doc *Document) {
	t.Helper()
	rendered, err := Render(doc)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	parsed, err := Parse(rendered)
	if err != nil {
		t.Fatalf("Parse(Render(doc)): %v\n--- rendered ---\n%s", err, rendered)
	}
	if parsed.Title != doc.Title {
		t.Errorf("Title = %q, want %q", parsed.Title, doc.Title)
	}
	if len(parsed.Messages) != len(doc.Messages) {
		t.Fatalf("len(Messages) = %d, want %d", len(parsed.Messages), len(doc.Messages))
	}
	for i := range doc.Messages {
		want := doc.Messages[i]
		got := parsed.Messages[i]
		if got.Role != want.Role || got.Content.Kind != want.Content.Kind {
			t.Errorf("message %d: got role=%v kind=%v, want role=%v kind=%v", i, got.Role, got.Content.Kind, want.Role, want.Content.Kind)
			continue
		}
		switch want.Content.Kind {
		case message.KindText:
			wantText, _ := want.Text()
			gotText, _ := got.Text()
			if wantText != gotText {
				t.Errorf("message %d text = %q, want %q", i, gotText, wantText)
			}
		case message.KindToolCall:
			if got.Content.ToolCall.ToolCallID != want.Content.ToolCall.ToolCallID ||
				got.Content.ToolCall.FunctionName != want.Content.ToolCall.FunctionName {
				t.Errorf("message %d tool call = %+v, want %+v", i, got.Content.ToolCall, want.Content.ToolCall)
			}
		case message.KindToolResult:
			if got.Content.ToolResult.ToolCallID != want.Content.ToolResult.ToolCallID ||
				got.Content.ToolResult.Text != want.Content.ToolResult.Text {
				t.Errorf("message %d tool result = %+v, want %+v", i, got.Content.ToolResult, want.Content.ToolResult)
			}
		}
	}

	// A second round trip from the already-rendered text must be
	// byte-identical, confirming Render is a fixed point after one pass.
	renderedAgain, err := Render(parsed)
	if err != nil {
		t.Fatalf("second Render: %v", err)
	}
	if renderedAgain != rendered {
		t.Errorf("second render diverged:\n--- first ---\n%s\n--- second ---\n%s", rendered, renderedAgain)
	}
}
