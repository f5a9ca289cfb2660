package delegate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// PeerRunner dispatches a delegated task to a specific peer over the mesh
// and blocks for its response. Implemented by internal/mesh's protocol
// client; kept as an interface here so the tool package never imports mesh
// transport details.
type PeerRunner interface {
	RunOnPeer(ctx context.Context, peerID, task string, dc DelegationContext) (string, error)
}

// PeerDelegator hands a task to another agent reachable over the mesh. It
// carries the same DelegationContext discipline as LocalDelegator so a
// chain that hops between processes still gets depth and cycle checks.
type PeerDelegator struct {
	ledger *Ledger
	runner PeerRunner
	selfID string
}

func NewPeerDelegator(selfID string, runner PeerRunner, ledger *Ledger) *PeerDelegator {
	return &PeerDelegator{ledger: ledger, runner: runner, selfID: selfID}
}

func (d *PeerDelegator) Name() string { return "delegate_to_peer" }
func (d *PeerDelegator) Description() string {
	return "Delegate a task to a known peer agent over the mesh and wait for its result."
}
func (d *PeerDelegator) DefaultPolicy() tool.Policy          { return tool.PolicyAsk }
func (d *PeerDelegator) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeAgent} }
func (d *PeerDelegator) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (d *PeerDelegator) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"peer_id": {"type": "string", "description": "the peer's identity, as recorded in the mesh roster"},
			"task": {"type": "string", "description": "the task for the peer to complete"}
		},
		"required": ["peer_id", "task"]
	}`)
}

func (d *PeerDelegator) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		PeerID string `json:"peer_id"`
		Task   string `json:"task"`
	}
	if err := mustUnmarshal(arguments, &in); err != nil {
		return errOutput("%v", err), nil
	}
	if in.PeerID == "" || in.Task == "" {
		return errOutput("peer_id and task are required"), nil
	}
	if d.runner == nil {
		return errOutput("no peer transport configured"), nil
	}

	dc := DelegationFromContext(ctx)
	if dc.Chain == nil {
		dc = Root(d.selfID)
	}
	next, err := dc.Next(in.PeerID)
	if err != nil {
		return errOutput("%v", err), nil
	}

	if !d.ledger.tryAcquire() {
		return errOutput("max active delegated tasks reached (%d)", d.ledger.maxActive), nil
	}
	defer d.ledger.release()

	t := d.ledger.start(d.selfID, in.PeerID, in.Task)
	result, runErr := d.runner.RunOnPeer(ctx, in.PeerID, in.Task, next)
	if runErr != nil {
		d.ledger.finish(t.ID, "", runErr.Error())
		return errOutput("peer %s failed: %v", in.PeerID, runErr), nil
	}
	d.ledger.finish(t.ID, result, "")
	return &tool.Output{Content: fmt.Sprintf("peer %s replied:\n%s", in.PeerID, result)}, nil
}
