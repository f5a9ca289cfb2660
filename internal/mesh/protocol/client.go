package protocol

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/flynn/noise"

	"github.com/oskarlindberg/agentcore/internal/mesh/identity"
	"github.com/oskarlindberg/agentcore/internal/mesh/transport"
	"github.com/oskarlindberg/agentcore/internal/tool/delegate"
)

// TaskResponseTimeout is the fixed P2P delegate_task response timeout
// from spec §5.
const TaskResponseTimeout = 15 * time.Minute

// Client dials peers and implements delegate.PeerRunner by sending
// Task requests over the agent-to-agent protocol.
type Client struct {
	id       *identity.Identity
	noiseKey noise.DHKey
	roster   *Roster
	card     AgentCard
	dialer   net.Dialer
}

var _ delegate.PeerRunner = (*Client)(nil)

func NewClient(id *identity.Identity, noiseKey noise.DHKey, roster *Roster, card AgentCard) *Client {
	return &Client{id: id, noiseKey: noiseKey, roster: roster, card: card}
}

func (c *Client) dial(ctx context.Context, addr string) (*transport.Conn, error) {
	raw, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mesh: dial %s: %w", addr, err)
	}
	conn, err := transport.Handshake(raw, true, c.noiseKey, c.id)
	if err != nil {
		raw.Close()
		return nil, err
	}
	return conn, nil
}

// Announce dials addr and sends our AgentCard, which the receiving
// Server records in its own roster. Nothing in this module calls it.
func (c *Client) Announce(ctx context.Context, addr string) error {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	card := c.card
	req := envelope{Kind: envelopeAgent, Agent: &P2pRequest{Kind: P2pAnnounce, Announce: &card}}
	if err := conn.Send(req); err != nil {
		return err
	}
	var resp responseEnvelope
	return conn.Recv(&resp)
}

// RunOnPeer implements delegate.PeerRunner: resolve addr via the roster,
// send a Task request carrying dc's depth/chain, and wait for its result.
func (c *Client) RunOnPeer(ctx context.Context, peerID string, task string, dc delegate.DelegationContext) (string, error) {
	entry, err := c.roster.Resolve(peerID)
	if err != nil {
		return "", err
	}
	if entry.Address == "" {
		return "", fmt.Errorf("mesh: no known address for peer %s", peerID)
	}

	ctx, cancel := context.WithTimeout(ctx, TaskResponseTimeout)
	defer cancel()

	conn, err := c.dial(ctx, entry.Address)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	req := envelope{Kind: envelopeAgent, Agent: &P2pRequest{Kind: P2pTask, Task: &TaskRequest{
		ID:          fmt.Sprintf("%s-%d", c.id.ID, time.Now().UnixNano()),
		Description: task,
		Payload:     []ContentBlock{{Kind: "text", Text: task}},
		Depth:       uint32(dc.Depth),
		Chain:       dc.Chain,
	}}}
	if err := conn.Send(req); err != nil {
		return "", err
	}

	var resp responseEnvelope
	if err := conn.Recv(&resp); err != nil {
		return "", fmt.Errorf("mesh: awaiting task result from %s: %w", peerID, err)
	}
	if resp.Agent == nil || resp.Agent.TaskResult == nil {
		return "", fmt.Errorf("mesh: peer %s returned no task result", peerID)
	}

	result := resp.Agent.TaskResult
	if result.Status == TaskFailed {
		return "", fmt.Errorf("peer %s: %s", peerID, result.FailureReason)
	}

	text := ""
	for _, block := range result.Result {
		text += block.Text
	}
	return text, nil
}

// SendControlCommand dials addr, sends cmd as an Operator control
// request, and returns the response — a thin client for CLI/operator use.
func SendControlCommand(ctx context.Context, c *Client, addr string, cmd ControlCommand) (ControlP2pResponse, error) {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return ControlP2pResponse{}, err
	}
	defer conn.Close()

	req := envelope{Kind: envelopeControl, Control: &ControlP2pRequest{Command: cmd}}
	if err := conn.Send(req); err != nil {
		return ControlP2pResponse{}, err
	}
	var resp responseEnvelope
	if err := conn.Recv(&resp); err != nil {
		return ControlP2pResponse{}, err
	}
	if resp.Control == nil {
		return ControlP2pResponse{}, fmt.Errorf("mesh: malformed control response")
	}
	return *resp.Control, nil
}
