package controlplane

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/oskarlindberg/agentcore/internal/agentcore"
	"github.com/oskarlindberg/agentcore/internal/provider/mockprovider"
	"github.com/oskarlindberg/agentcore/internal/tool"
)

func testFactory(sessionID, workingDir string) (*tool.Registry, agentcore.Config, func(*agentcore.Agent)) {
	return tool.NewRegistry(), agentcore.Config{}, nil
}

func waitForEvent(t *testing.T, cp *ControlPlane, subID string, want agentcore.EventKind, timeout time.Duration) ControlEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		ev, ok := cp.Next(ctx, subID)
		if !ok {
			t.Fatalf("subscription closed before seeing event kind %v", want)
		}
		if ev.Lagged > 0 {
			continue
		}
		if ev.Event.Kind == want {
			return ev
		}
	}
}

func TestSendInputPublishesTaggedEvents(t *testing.T) {
	driver := mockprovider.New(mockprovider.Turn{Text: "hello", InputTokens: 5, OutputTokens: 3})
	cp := New(driver, 200000, 8192, testFactory, nil, nil)

	if err := cp.NewSession("sess-1", tool.ModeAgent, ""); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	subID := cp.Subscribe()

	if err := cp.SendInput(context.Background(), "sess-1", "hi"); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	ev := waitForEvent(t, cp, subID, agentcore.EventTurnComplete, time.Second)
	if ev.SessionID != "sess-1" {
		t.Fatalf("expected SessionID sess-1, got %q", ev.SessionID)
	}
}

func TestSendInputUnknownSessionErrors(t *testing.T) {
	driver := mockprovider.New(mockprovider.Turn{Text: "hi"})
	cp := New(driver, 200000, 8192, testFactory, nil, nil)

	if err := cp.SendInput(context.Background(), "missing", "hi"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestNewSessionRejectsDuplicateID(t *testing.T) {
	driver := mockprovider.New(mockprovider.Turn{Text: "hi"})
	cp := New(driver, 200000, 8192, testFactory, nil, nil)

	if err := cp.NewSession("dup", tool.ModeAgent, ""); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := cp.NewSession("dup", tool.ModeAgent, ""); err == nil {
		t.Fatal("expected error for duplicate session id")
	}
}

func TestListSessionsAndCloseSession(t *testing.T) {
	driver := mockprovider.New(mockprovider.Turn{Text: "hi"})
	cp := New(driver, 200000, 8192, testFactory, nil, nil)

	_ = cp.NewSession("a", tool.ModeAgent, "")
	_ = cp.NewSession("b", tool.ModeAgent, "")

	names := cp.ListSessions()
	if len(names) != 2 {
		t.Fatalf("expected 2 sessions, got %d: %v", len(names), names)
	}

	if err := cp.CloseSession("a"); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if err := cp.CloseSession("a"); err == nil {
		t.Fatal("expected error closing an already-closed session")
	}

	names = cp.ListSessions()
	if len(names) != 1 || names[0] != "b" {
		t.Fatalf("expected only session b remaining, got %v", names)
	}
}

type pingTool struct{}

func (pingTool) Name() string                        { return "ping" }
func (pingTool) Description() string                 { return "Replies pong." }
func (pingTool) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (pingTool) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeAgent} }
func (pingTool) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }
func (pingTool) ParametersSchema() json.RawMessage   { return json.RawMessage(`{"type":"object"}`) }
func (pingTool) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	return &tool.Output{CallID: callID, Content: "pong"}, nil
}

func TestListToolsAndCallTool(t *testing.T) {
	admin := tool.NewRegistry()
	admin.Register(pingTool{})

	driver := mockprovider.New(mockprovider.Turn{Text: "hi"})
	cp := New(driver, 200000, 8192, testFactory, admin, nil)

	names := cp.ListTools()
	if len(names) != 1 || names[0] != "ping" {
		t.Fatalf("expected [ping], got %v", names)
	}

	out := cp.CallTool(context.Background(), "ping", []byte(`{}`))
	if out.IsError {
		t.Fatalf("expected success, got error output: %s", out.Content)
	}
	if out.Content != "pong" {
		t.Fatalf("expected pong, got %q", out.Content)
	}
}
