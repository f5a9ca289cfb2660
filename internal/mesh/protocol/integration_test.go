package protocol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/oskarlindberg/agentcore/internal/agentcore"
	"github.com/oskarlindberg/agentcore/internal/controlplane"
	"github.com/oskarlindberg/agentcore/internal/mesh/allowlist"
	"github.com/oskarlindberg/agentcore/internal/mesh/identity"
	"github.com/oskarlindberg/agentcore/internal/mesh/transport"
	"github.com/oskarlindberg/agentcore/internal/provider/mockprovider"
	"github.com/oskarlindberg/agentcore/internal/tool"
	"github.com/oskarlindberg/agentcore/internal/tool/delegate"
)

func startTestServer(t *testing.T, allow *allowlist.Allowlist, cp *controlplane.ControlPlane, runner stubRunner) (*Server, net.Listener, *identity.Identity) {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	noiseKey, err := transport.GenerateNoiseKeypair()
	if err != nil {
		t.Fatalf("GenerateNoiseKeypair: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	srv := NewServer(id, noiseKey, allow, cp, runner, AgentCard{PeerID: string(id.ID), Name: "srv"}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() { cancel(); ln.Close() })
	go srv.Serve(ctx, ln)
	return srv, ln, id
}

func testFactoryForMesh(sessionID, workingDir string) (*tool.Registry, agentcore.Config, func(*agentcore.Agent)) {
	return tool.NewRegistry(), agentcore.Config{}, nil
}

func TestClientTaskRoundTripsThroughServer(t *testing.T) {
	driver := mockprovider.New(mockprovider.Turn{Text: "hi"})
	cp := controlplane.New(driver, 200000, 8192, testFactoryForMesh, nil, nil)
	srv, ln, serverID := startTestServer(t, nil, cp, stubRunner{result: "task done"})
	_ = srv

	clientID, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	clientNoiseKey, err := transport.GenerateNoiseKeypair()
	if err != nil {
		t.Fatalf("GenerateNoiseKeypair: %v", err)
	}

	roster := NewRoster()
	roster.Upsert(RosterEntry{PeerID: serverID.ID, Address: ln.Addr().String()})

	client := NewClient(clientID, clientNoiseKey, roster, AgentCard{PeerID: string(clientID.ID), Name: "cli"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.RunOnPeer(ctx, string(serverID.ID), "please do the thing", delegate.Root("client-root-task"))
	if err != nil {
		t.Fatalf("RunOnPeer: %v", err)
	}
	if result != "task done" {
		t.Fatalf("expected %q, got %q", "task done", result)
	}
}

func TestControlCommandIsRejectedWithoutAllowlistEntry(t *testing.T) {
	driver := mockprovider.New(mockprovider.Turn{Text: "hi"})
	cp := controlplane.New(driver, 200000, 8192, testFactoryForMesh, nil, nil)
	allow := allowlist.New()
	_, ln, serverID := startTestServer(t, allow, cp, stubRunner{})
	_ = serverID

	clientID, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	clientNoiseKey, err := transport.GenerateNoiseKeypair()
	if err != nil {
		t.Fatalf("GenerateNoiseKeypair: %v", err)
	}
	client := NewClient(clientID, clientNoiseKey, NewRoster(), AgentCard{PeerID: string(clientID.ID)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := SendControlCommand(ctx, client, ln.Addr().String(), ControlCommand{Name: "ListSessions"})
	if err != nil {
		t.Fatalf("SendControlCommand: %v", err)
	}
	if resp.OK {
		t.Fatal("expected the command to be rejected for an unlisted peer")
	}
}

func TestControlCommandSucceedsForOperator(t *testing.T) {
	driver := mockprovider.New(mockprovider.Turn{Text: "hi"})
	cp := controlplane.New(driver, 200000, 8192, testFactoryForMesh, nil, nil)
	allow := allowlist.New()

	clientID, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	allow.Set(clientID.ID, allowlist.RoleOperator)

	_, ln, _ := startTestServer(t, allow, cp, stubRunner{})

	clientNoiseKey, err := transport.GenerateNoiseKeypair()
	if err != nil {
		t.Fatalf("GenerateNoiseKeypair: %v", err)
	}
	client := NewClient(clientID, clientNoiseKey, NewRoster(), AgentCard{PeerID: string(clientID.ID)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cp.NewSession("s1", tool.ModeAgent, ""); err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	resp, err := SendControlCommand(ctx, client, ln.Addr().String(), ControlCommand{Name: "ListSessions"})
	if err != nil {
		t.Fatalf("SendControlCommand: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected success for an operator, got error: %s", resp.Error)
	}
}
