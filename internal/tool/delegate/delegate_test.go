package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestDelegationContextNext(t *testing.T) {
	t.Run("extends chain within depth limit", func(t *testing.T) {
		root := Root("origin")
		next, err := root.Next("child-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next.Depth != 1 {
			t.Errorf("Depth = %d, want 1", next.Depth)
		}
		if len(next.Chain) != 2 || next.Chain[1] != "child-1" {
			t.Errorf("Chain = %v, want [origin child-1]", next.Chain)
		}
	})

	t.Run("refuses to exceed MaxDelegationDepth", func(t *testing.T) {
		dc := Root("origin")
		var err error
		for i := 0; i < MaxDelegationDepth; i++ {
			dc, err = dc.Next("hop-" + string(rune('a'+i)))
			if err != nil {
				t.Fatalf("unexpected error at hop %d: %v", i, err)
			}
		}
		if _, err := dc.Next("one-too-many"); err == nil {
			t.Error("expected depth limit error, got nil")
		}
	})

	t.Run("refuses a cycle back to an existing node", func(t *testing.T) {
		dc := Root("origin")
		dc, err := dc.Next("a")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := dc.Next("origin"); err == nil {
			t.Error("expected cycle error, got nil")
		}
	})
}

func TestDelegationContextRoundTripsThroughContext(t *testing.T) {
	dc := Root("origin")
	ctx := ContextWithDelegation(context.Background(), dc)
	got := DelegationFromContext(ctx)
	if got.Depth != dc.Depth || len(got.Chain) != len(dc.Chain) {
		t.Errorf("DelegationFromContext = %+v, want %+v", got, dc)
	}
}

func TestDelegationFromContextDefaultsWhenAbsent(t *testing.T) {
	got := DelegationFromContext(context.Background())
	if got.Chain != nil {
		t.Errorf("expected nil chain for bare context, got %v", got.Chain)
	}
}

type fakeRunner struct {
	result string
	err    error
}

func (f *fakeRunner) RunTask(ctx context.Context, task string, allowed, denied []string) (string, error) {
	return f.result, f.err
}

func TestLocalDelegatorExecuteReturnsSubAgentResult(t *testing.T) {
	ledger := NewLedger(5)
	d := NewLocalDelegator("origin", &fakeRunner{result: "done"}, ledger)

	args, _ := json.Marshal(map[string]any{"name": "researcher", "task": "find the bug"})
	out, err := d.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error output: %s", out.Content)
	}
	if out.Content != "done" {
		t.Errorf("Content = %q, want %q", out.Content, "done")
	}

	tasks := ledger.ListByParent("origin")
	if len(tasks) != 1 || tasks[0].Status != StatusCompleted {
		t.Errorf("expected one completed task, got %+v", tasks)
	}
}

func TestLocalDelegatorExecuteRecordsFailure(t *testing.T) {
	ledger := NewLedger(5)
	d := NewLocalDelegator("origin", &fakeRunner{err: errors.New("boom")}, ledger)

	args, _ := json.Marshal(map[string]any{"name": "researcher", "task": "find the bug"})
	out, err := d.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Error("expected error output on runner failure")
	}

	tasks := ledger.ListByParent("origin")
	if len(tasks) != 1 || tasks[0].Status != StatusFailed {
		t.Errorf("expected one failed task, got %+v", tasks)
	}
}

func TestLocalDelegatorExecuteRejectsMissingFields(t *testing.T) {
	ledger := NewLedger(5)
	d := NewLocalDelegator("origin", &fakeRunner{result: "done"}, ledger)

	args, _ := json.Marshal(map[string]any{"name": "researcher"})
	out, err := d.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Error("expected error output for missing task")
	}
}

func TestLocalDelegatorExecuteRejectsCycleViaDelegationContext(t *testing.T) {
	ledger := NewLedger(5)
	d := NewLocalDelegator("origin", &fakeRunner{result: "done"}, ledger)

	dc, err := Root("origin").Next("researcher")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := ContextWithDelegation(context.Background(), dc)

	args, _ := json.Marshal(map[string]any{"name": "researcher", "task": "loop back"})
	out, err := d.Execute(ctx, "call-1", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Error("expected cycle to be rejected as an error output")
	}
}

func TestLedgerEnforcesMaxActive(t *testing.T) {
	ledger := NewLedger(1)
	if !ledger.tryAcquire() {
		t.Fatal("expected first acquire to succeed")
	}
	if ledger.tryAcquire() {
		t.Error("expected second acquire to fail at max capacity")
	}
	ledger.release()
	if !ledger.tryAcquire() {
		t.Error("expected acquire to succeed again after release")
	}
}

type fakePeerRunner struct {
	result string
	err    error
}

func (f *fakePeerRunner) RunOnPeer(ctx context.Context, peerID, task string, dc DelegationContext) (string, error) {
	return f.result, f.err
}

func TestPeerDelegatorExecuteReturnsPeerResult(t *testing.T) {
	ledger := NewLedger(5)
	d := NewPeerDelegator("origin", &fakePeerRunner{result: "peer says hi"}, ledger)

	args, _ := json.Marshal(map[string]any{"peer_id": "peer-1", "task": "ping"})
	out, err := d.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error output: %s", out.Content)
	}
	if want := "peer peer-1 replied:\npeer says hi"; out.Content != want {
		t.Errorf("Content = %q, want %q", out.Content, want)
	}
}

func TestPeerDelegatorExecuteWithoutRunnerIsErrorOutput(t *testing.T) {
	ledger := NewLedger(5)
	d := NewPeerDelegator("origin", nil, ledger)

	args, _ := json.Marshal(map[string]any{"peer_id": "peer-1", "task": "ping"})
	out, err := d.Execute(context.Background(), "call-1", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Error("expected error output when no peer transport is configured")
	}
}
