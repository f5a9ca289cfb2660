package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"
	"golang.org/x/time/rate"

	"github.com/oskarlindberg/agentcore/internal/controlplane"
	"github.com/oskarlindberg/agentcore/internal/mesh/allowlist"
	"github.com/oskarlindberg/agentcore/internal/mesh/identity"
	"github.com/oskarlindberg/agentcore/internal/mesh/transport"
	"github.com/oskarlindberg/agentcore/internal/observability"
	"github.com/oskarlindberg/agentcore/internal/tool/delegate"
)

// Server accepts incoming mesh connections, authorizes Operator/Observer
// commands against an Allowlist, dispatches them to a ControlPlane, and
// answers agent-to-agent Announce/Task requests for locally-run tasks.
type Server struct {
	id        *identity.Identity
	noiseKey  noise.DHKey
	allow     *allowlist.Allowlist
	roster    *Roster
	cp        *controlplane.ControlPlane
	localTask delegate.TaskRunner
	card      AgentCard
	logger    *observability.Logger
	metrics   *observability.Metrics

	mu   sync.Mutex
	subs map[identity.PeerID]string // peer -> control-plane broadcast subscription id

	acceptLimiter *rate.Limiter
}

// DefaultAcceptRate and DefaultAcceptBurst throttle how fast Serve accepts
// new connections, protecting a node from a peer (or a misbehaving
// discovery loop) opening connections faster than handshakes can drain.
const (
	DefaultAcceptRate  = 50 // connections per second
	DefaultAcceptBurst = 20
)

// NewServer constructs a Server. localTask runs an inbound TaskRequest's
// description as if it were delegated locally, per spec §4.G step 7.
func NewServer(id *identity.Identity, noiseKey noise.DHKey, allow *allowlist.Allowlist, cp *controlplane.ControlPlane, localTask delegate.TaskRunner, card AgentCard, logger *observability.Logger, metrics *observability.Metrics) *Server {
	return &Server{
		id:        id,
		noiseKey:  noiseKey,
		allow:     allow,
		roster:    NewRoster(),
		cp:        cp,
		localTask: localTask,
		card:      card,
		logger:    logger,
		metrics:   metrics,
		subs:      make(map[identity.PeerID]string),

		acceptLimiter: rate.NewLimiter(rate.Limit(DefaultAcceptRate), DefaultAcceptBurst),
	}
}

// Roster exposes the server's view of discovered/announced peers.
func (s *Server) Roster() *Roster { return s.roster }

// Serve accepts connections on ln until ctx is cancelled or ln is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("mesh: accept: %w", err)
			}
		}
		if err := s.acceptLimiter.Wait(ctx); err != nil {
			conn.Close()
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, raw net.Conn) {
	defer raw.Close()

	conn, err := transport.Handshake(raw, false, s.noiseKey, s.id)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn(ctx, "mesh handshake failed", "err", err)
		}
		return
	}
	defer s.removeSubscription(conn.RemotePeerID)

	for {
		var env envelope
		if err := conn.Recv(&env); err != nil {
			return
		}

		switch env.Kind {
		case envelopeControl:
			resp := s.dispatchControl(conn.RemotePeerID, env.Control)
			_ = conn.Send(responseEnvelope{Kind: envelopeControl, Control: &resp})
		case envelopeAgent:
			resp := s.dispatchAgent(ctx, conn.RemotePeerID, env.Agent)
			_ = conn.Send(responseEnvelope{Kind: envelopeAgent, Agent: &resp})
		}
	}
}

func (s *Server) dispatchControl(peer identity.PeerID, req *ControlP2pRequest) ControlP2pResponse {
	if req == nil {
		return ControlP2pResponse{OK: false, Error: "empty control request"}
	}
	cmd := req.Command
	if !s.allow.Authorize(peer, cmd.Name) {
		return ControlP2pResponse{OK: false, Error: "not authorized"}
	}

	switch cmd.Name {
	case "NewSession":
		if err := s.cp.NewSession(cmd.SessionID, toToolMode(cmd.Mode), cmd.WorkingDir); err != nil {
			return ControlP2pResponse{OK: false, Error: err.Error()}
		}
		return ControlP2pResponse{OK: true}

	case "SendInput":
		if err := s.cp.SendInput(context.Background(), cmd.SessionID, cmd.Text); err != nil {
			return ControlP2pResponse{OK: false, Error: err.Error()}
		}
		return s.okWithEvents(peer)

	case "CancelTurn":
		if err := s.cp.CancelTurn(cmd.SessionID); err != nil {
			return ControlP2pResponse{OK: false, Error: err.Error()}
		}
		return ControlP2pResponse{OK: true}

	case "Subscribe":
		s.mu.Lock()
		s.subs[peer] = s.cp.Subscribe()
		s.mu.Unlock()
		return ControlP2pResponse{OK: true}

	case "Unsubscribe":
		s.removeSubscription(peer)
		return ControlP2pResponse{OK: true}

	case "ListSessions":
		names := s.cp.ListSessions()
		events := make([]ControlEventWire, 0, len(names))
		for _, n := range names {
			events = append(events, ControlEventWire{SessionID: n})
		}
		return ControlP2pResponse{OK: true, Events: events}

	case "ListTools":
		names := s.cp.ListTools()
		events := make([]ControlEventWire, 0, len(names))
		for _, n := range names {
			events = append(events, ControlEventWire{SessionID: n})
		}
		return ControlP2pResponse{OK: true, Events: events}

	case "CallTool":
		out := s.cp.CallTool(context.Background(), cmd.ToolName, cmd.ToolArgs)
		if out.IsError {
			return ControlP2pResponse{OK: false, Error: out.Content}
		}
		return ControlP2pResponse{OK: true}

	case "CloseSession":
		if err := s.cp.CloseSession(cmd.SessionID); err != nil {
			return ControlP2pResponse{OK: false, Error: err.Error()}
		}
		s.removeSubscription(peer)
		return ControlP2pResponse{OK: true}

	default:
		return ControlP2pResponse{OK: false, Error: fmt.Sprintf("unknown command %q", cmd.Name)}
	}
}

// okWithEvents drains every event currently buffered for peer's
// subscription (if any) without blocking, implementing the polling
// delivery model of spec §4.G: "each response carries all events buffered
// for this peer since its last request."
func (s *Server) okWithEvents(peer identity.PeerID) ControlP2pResponse {
	s.mu.Lock()
	subID, ok := s.subs[peer]
	s.mu.Unlock()
	if !ok {
		return ControlP2pResponse{OK: true}
	}

	var events []ControlEventWire
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		ev, ok := s.cp.Next(ctx, subID)
		cancel()
		if !ok {
			break
		}
		if ev.Lagged > 0 {
			events = append(events, ControlEventWire{Lagged: ev.Lagged})
			continue
		}
		payload, err := json.Marshal(ev.Event)
		if err != nil {
			continue
		}
		events = append(events, ControlEventWire{SessionID: ev.SessionID, EventJSON: payload})
	}
	return ControlP2pResponse{OK: true, Events: events}
}

func (s *Server) removeSubscription(peer identity.PeerID) {
	s.mu.Lock()
	subID, ok := s.subs[peer]
	delete(s.subs, peer)
	s.mu.Unlock()
	if ok {
		s.cp.Unsubscribe(subID)
	}
}

func (s *Server) dispatchAgent(ctx context.Context, peer identity.PeerID, req *P2pRequest) P2pResponse {
	if req == nil {
		return P2pResponse{Kind: P2pAck}
	}

	switch req.Kind {
	case P2pAnnounce:
		if req.Announce != nil {
			s.roster.Upsert(RosterEntry{PeerID: peer, Card: *req.Announce})
		}
		return P2pResponse{Kind: P2pAck}

	case P2pTask:
		return P2pResponse{Kind: P2pTaskResult, TaskResult: s.runInboundTask(ctx, peer, req.Task)}

	default:
		return P2pResponse{Kind: P2pAck}
	}
}

// runInboundTask implements spec §4.G step 7: re-validate depth and chain
// before handing the task to the local runner, then bind the resulting
// DelegationContext into ctx so any further outbound delegation from this
// task inherits the chain.
func (s *Server) runInboundTask(ctx context.Context, peer identity.PeerID, task *TaskRequest) *TaskResponse {
	start := time.Now()
	if task == nil {
		return &TaskResponse{Status: TaskFailed, FailureReason: "empty task", Agent: s.card}
	}

	dc := delegate.DelegationContext{Depth: int(task.Depth), Chain: task.Chain}
	if dc.Depth > delegate.MaxDelegationDepth {
		return &TaskResponse{
			RequestID: task.ID, Agent: s.card, Status: TaskFailed,
			FailureReason: fmt.Sprintf("delegation depth limit (%d) exceeded", delegate.MaxDelegationDepth),
			DurationMs:    time.Since(start).Milliseconds(),
		}
	}
	for _, id := range task.Chain {
		if identity.PeerID(id) == s.id.ID {
			return &TaskResponse{
				RequestID: task.ID, Agent: s.card, Status: TaskFailed,
				FailureReason: "delegation cycle detected: this peer already in chain",
				DurationMs:    time.Since(start).Milliseconds(),
			}
		}
	}

	runCtx := delegate.ContextWithDelegation(ctx, dc)
	result, err := s.localTask.RunTask(runCtx, task.Description, nil, nil)
	if err != nil {
		return &TaskResponse{
			RequestID: task.ID, Agent: s.card, Status: TaskFailed,
			FailureReason: err.Error(), DurationMs: time.Since(start).Milliseconds(),
		}
	}
	return &TaskResponse{
		RequestID:  task.ID,
		Agent:      s.card,
		Result:     []ContentBlock{{Kind: "text", Text: result}},
		Status:     TaskCompleted,
		DurationMs: time.Since(start).Milliseconds(),
	}
}
