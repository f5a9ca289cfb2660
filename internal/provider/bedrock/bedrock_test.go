package bedrock

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/oskarlindberg/agentcore/internal/provider"
)

// drainEvents feeds fakeEvents through consumeEvents and collects every
// ResponseEvent it emits, the same seam the real processStream uses once
// it has unwrapped the AWS SDK's event-stream reader.
func drainEvents(t *testing.T, fakeEvents []types.ConverseStreamOutput) []provider.ResponseEvent {
	t.Helper()
	d := &Driver{defaultModel: "anthropic.claude-3-sonnet", retry: provider.NewRetrier(1, time.Millisecond)}

	eventChan := make(chan types.ConverseStreamOutput, len(fakeEvents))
	for _, e := range fakeEvents {
		eventChan <- e
	}
	close(eventChan)

	out := make(chan provider.ResponseEvent, 16)
	d.consumeEvents(context.Background(), eventChan, func() error { return nil }, out, "anthropic.claude-3-sonnet")
	close(out)

	var events []provider.ResponseEvent
	for ev := range out {
		events = append(events, ev)
	}
	return events
}

func int32Ptr(v int32) *int32 { return &v }

// TestConsumeEventsSingleToolCallAnnouncesIDOnFirstCall reproduces the
// reported bug: with only one tool call in the turn, ContentBlockStart has
// no previous call to flush, so the id/name must surface at
// ContentBlockStop instead, not get silently dropped.
func TestConsumeEventsSingleToolCallAnnouncesIDOnFirstCall(t *testing.T) {
	events := drainEvents(t, []types.ConverseStreamOutput{
		&types.ConverseStreamOutputMemberContentBlockStart{Value: types.ContentBlockStartEvent{
			Start: &types.ContentBlockStartMemberToolUse{Value: types.ToolUseBlockStart{
				ToolUseId: aws.String("call_1"),
				Name:      aws.String("read_file"),
			}},
		}},
		&types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberToolUse{Value: types.ToolUseBlockDelta{Input: aws.String(`{"path":`)}},
		}},
		&types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberToolUse{Value: types.ToolUseBlockDelta{Input: aws.String(`"a.go"}`)}},
		}},
		&types.ConverseStreamOutputMemberContentBlockStop{},
		&types.ConverseStreamOutputMemberMessageStop{},
		&types.ConverseStreamOutputMemberMetadata{Value: types.ConverseStreamMetadataEvent{
			Usage: &types.TokenUsage{InputTokens: int32Ptr(42), OutputTokens: int32Ptr(7)},
		}},
	})

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

	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 tool call fragment, got %d: %+v", len(calls), calls)
	}
	if calls[0].ID != "call_1" || calls[0].Name != "read_file" {
		t.Fatalf("unexpected call id/name: %+v", calls[0])
	}
	if calls[0].ArgumentsFragment != `{"path":"a.go"}` {
		t.Fatalf("unexpected assembled arguments: %q", calls[0].ArgumentsFragment)
	}
	if !sawDone {
		t.Fatal("expected a Done event")
	}
	if usage.InputTokens != 42 || usage.OutputTokens != 7 {
		t.Fatalf("expected usage from Metadata (42,7) after MessageStop, got %+v", usage)
	}
}

// TestConsumeEventsMultipleToolCallsEachFlushOnce guards against the
// sibling bug class: every call in a multi-call turn must be reported
// exactly once, never replayed when the next call's block starts.
func TestConsumeEventsMultipleToolCallsEachFlushOnce(t *testing.T) {
	events := drainEvents(t, []types.ConverseStreamOutput{
		&types.ConverseStreamOutputMemberContentBlockStart{Value: types.ContentBlockStartEvent{
			Start: &types.ContentBlockStartMemberToolUse{Value: types.ToolUseBlockStart{
				ToolUseId: aws.String("call_1"), Name: aws.String("read_file"),
			}},
		}},
		&types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberToolUse{Value: types.ToolUseBlockDelta{Input: aws.String(`{"path":"a.go"}`)}},
		}},
		&types.ConverseStreamOutputMemberContentBlockStop{},
		&types.ConverseStreamOutputMemberContentBlockStart{Value: types.ContentBlockStartEvent{
			Start: &types.ContentBlockStartMemberToolUse{Value: types.ToolUseBlockStart{
				ToolUseId: aws.String("call_2"), Name: aws.String("write_file"),
			}},
		}},
		&types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberToolUse{Value: types.ToolUseBlockDelta{Input: aws.String(`{"path":"b.go"}`)}},
		}},
		&types.ConverseStreamOutputMemberContentBlockStop{},
		&types.ConverseStreamOutputMemberMessageStop{},
		&types.ConverseStreamOutputMemberMetadata{Value: types.ConverseStreamMetadataEvent{
			Usage: &types.TokenUsage{InputTokens: int32Ptr(10), OutputTokens: int32Ptr(5)},
		}},
	})

	var calls []provider.ToolCallFragment
	for _, ev := range events {
		if ev.Kind == provider.EventToolCallFragment {
			calls = append(calls, ev.ToolCall)
		}
	}
	if len(calls) != 2 {
		t.Fatalf("expected exactly 2 tool call fragments, got %d: %+v", len(calls), calls)
	}
	if calls[0].ID != "call_1" || calls[0].ArgumentsFragment != `{"path":"a.go"}` {
		t.Fatalf("first call mangled: %+v", calls[0])
	}
	if calls[1].ID != "call_2" || calls[1].ArgumentsFragment != `{"path":"b.go"}` {
		t.Fatalf("second call mangled: %+v", calls[1])
	}
}

// TestConsumeEventsTextOnlyTurn exercises the plain-text path alongside the
// MessageStop-then-Metadata ordering, with no tool calls in play.
func TestConsumeEventsTextOnlyTurn(t *testing.T) {
	events := drainEvents(t, []types.ConverseStreamOutput{
		&types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberText{Value: "Hello"},
		}},
		&types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberText{Value: ", world"},
		}},
		&types.ConverseStreamOutputMemberContentBlockStop{},
		&types.ConverseStreamOutputMemberMessageStop{},
		&types.ConverseStreamOutputMemberMetadata{Value: types.ConverseStreamMetadataEvent{
			Usage: &types.TokenUsage{InputTokens: int32Ptr(3), OutputTokens: int32Ptr(2)},
		}},
	})

	var text string
	var usage provider.Usage
	for _, ev := range events {
		switch ev.Kind {
		case provider.EventTextDelta:
			text += ev.Text
		case provider.EventUsage:
			usage = ev.Usage
		case provider.EventToolCallFragment:
			t.Fatalf("unexpected tool call fragment in a text-only turn: %+v", ev.ToolCall)
		}
	}
	if text != "Hello, world" {
		t.Fatalf("unexpected assembled text: %q", text)
	}
	if usage.InputTokens != 3 || usage.OutputTokens != 2 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}
