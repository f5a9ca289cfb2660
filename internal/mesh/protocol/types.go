// Package protocol implements spec §4.G's two wire protocols layered over
// internal/mesh/transport: the Operator control protocol (request/response
// with polled event delivery) and the agent-to-agent protocol (Announce
// and Task/TaskResult), plus the cycle-safe P2P delegation flow that backs
// the delegate_to_peer tool.
package protocol

import (
	"encoding/json"
)

// ContentBlock is one unit of a task's payload or result. Kind is
// currently always "text"; the field exists so richer block kinds (e.g.
// structured tool output) can be added without breaking the wire shape.
type ContentBlock struct {
	Kind string `cbor:"kind"`
	Text string `cbor:"text"`
}

// AgentCard describes one node for Announce and for attaching to a
// TaskResponse so the caller knows which agent actually ran the task.
type AgentCard struct {
	PeerID      string   `cbor:"peer_id"`
	Name        string   `cbor:"name"`
	Description string   `cbor:"description"`
	Modes       []string `cbor:"modes"`
}

// TaskStatus is the outcome of a completed or partially-completed task.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskPartial   TaskStatus = "partial"
)

// TaskRequest is one delegated unit of work sent to a peer, per spec
// §4.G's agent-to-agent protocol.
type TaskRequest struct {
	ID             string         `cbor:"id"`
	OriginatorRoom string         `cbor:"originator_room"`
	Description    string         `cbor:"description"`
	Payload        []ContentBlock `cbor:"payload"`
	Depth          uint32         `cbor:"depth"`
	Chain          []string       `cbor:"chain"`
}

// TaskResponse answers a TaskRequest.
type TaskResponse struct {
	RequestID     string         `cbor:"request_id"`
	Agent         AgentCard      `cbor:"agent"`
	Result        []ContentBlock `cbor:"result"`
	Status        TaskStatus     `cbor:"status"`
	FailureReason string         `cbor:"failure_reason,omitempty"`
	DurationMs    int64          `cbor:"duration_ms"`
}

// P2pRequestKind tags which variant of P2pRequest is populated. CBOR has
// no native tagged-union support, so the envelope carries a kind
// discriminator alongside pointer fields where only one is ever set.
type P2pRequestKind string

const (
	P2pAnnounce P2pRequestKind = "announce"
	P2pTask     P2pRequestKind = "task"
)

// P2pRequest is the agent-to-agent request envelope: Announce(AgentCard)
// or Task(TaskRequest).
type P2pRequest struct {
	Kind     P2pRequestKind `cbor:"kind"`
	Announce *AgentCard     `cbor:"announce,omitempty"`
	Task     *TaskRequest   `cbor:"task,omitempty"`
}

// P2pResponseKind tags which variant of P2pResponse is populated.
type P2pResponseKind string

const (
	P2pAck        P2pResponseKind = "ack"
	P2pTaskResult P2pResponseKind = "task_result"
)

// P2pResponse is the agent-to-agent response envelope: Ack or
// TaskResult(TaskResponse).
type P2pResponse struct {
	Kind       P2pResponseKind `cbor:"kind"`
	TaskResult *TaskResponse   `cbor:"task_result,omitempty"`
}

// ControlCommand is the Operator protocol's command envelope. CBOR has no
// tagged unions, so this flattens every command's fields into one struct;
// Name selects which fields are meaningful, mirroring spec §4.H's command
// list one-for-one.
type ControlCommand struct {
	Name          string          `cbor:"name"`
	SessionID     string          `cbor:"session_id,omitempty"`
	Mode          string          `cbor:"mode,omitempty"`
	WorkingDir    string          `cbor:"working_dir,omitempty"`
	Text          string          `cbor:"text,omitempty"`
	ToolName      string          `cbor:"tool_name,omitempty"`
	ToolArgs      json.RawMessage `cbor:"tool_args,omitempty"`
}

// ControlP2pRequest wraps one ControlCommand sent by an Operator (or, for
// the three allowed commands, an Observer).
type ControlP2pRequest struct {
	Command ControlCommand `cbor:"command"`
}

// ControlEventWire is the wire form of a fanned-out agent event: session
// id, a JSON-serialized AgentEvent (per spec §6, the event stream may be
// serialized as JSON for transport even over a CBOR envelope), and a
// lagged-marker count.
type ControlEventWire struct {
	SessionID string `cbor:"session_id"`
	EventJSON []byte `cbor:"event_json,omitempty"`
	Lagged    int64  `cbor:"lagged,omitempty"`
}

// ControlP2pResponse answers a ControlP2pRequest. Events carries every
// event buffered for this peer's subscription since its last request,
// implementing spec §4.G's polling event-delivery model.
type ControlP2pResponse struct {
	OK     bool               `cbor:"ok"`
	Error  string             `cbor:"error,omitempty"`
	Events []ControlEventWire `cbor:"events,omitempty"`
}

// envelopeKind tags which of the two protocols a top-level wire frame
// carries, since a single TCP connection multiplexes both the Operator
// control protocol and the agent-to-agent protocol.
type envelopeKind string

const (
	envelopeControl envelopeKind = "control"
	envelopeAgent   envelopeKind = "agent"
)

// envelope is the outermost frame shape sent over a transport.Conn.
type envelope struct {
	Kind    envelopeKind       `cbor:"kind"`
	Control *ControlP2pRequest `cbor:"control,omitempty"`
	Agent   *P2pRequest        `cbor:"agent,omitempty"`
}

// responseEnvelope is the outermost response frame shape.
type responseEnvelope struct {
	Kind    envelopeKind        `cbor:"kind"`
	Control *ControlP2pResponse `cbor:"control,omitempty"`
	Agent   *P2pResponse        `cbor:"agent,omitempty"`
}
