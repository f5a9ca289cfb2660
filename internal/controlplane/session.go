package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/oskarlindberg/agentcore/internal/agentcore"
	"github.com/oskarlindberg/agentcore/internal/observability"
	"github.com/oskarlindberg/agentcore/internal/provider"
	"github.com/oskarlindberg/agentcore/internal/session"
	"github.com/oskarlindberg/agentcore/internal/tool"
)

// RegistryFactory builds the tool registry and agent config for a freshly
// created session. Tool registries are built per session rather than
// shared wholesale because several built-ins (ModeSwitcher, TodoTracker,
// AskQuestion, LocalDelegator) carry session-scoped mutable state; the
// capability *definitions* are the part spec §5 calls internally immutable
// after construction, and a factory reconstructing them per session keeps
// that contract without cross-session state bleed.
//
// The returned postInit, if non-nil, is called once the session's Agent
// exists. It exists because a couple of built-ins (LocalDelegator's
// TaskRunner, AskQuestion's resolver) close over the Agent itself and so
// cannot be constructed until after agentcore.New returns; postInit gets a
// chance to register them into the same *tool.Registry the factory already
// built and handed to that Agent.
type RegistryFactory func(sessionID string, workingDir string) (*tool.Registry, agentcore.Config, func(agent *agentcore.Agent))

type sessionEntry struct {
	mu     sync.Mutex // serializes Submit calls: exactly one task owns a Session
	agent  *agentcore.Agent
	sender *agentcore.ChannelSender
}

// ControlPlane is the long-lived service of spec §4.H.
type ControlPlane struct {
	mu          sync.RWMutex
	sessions    map[string]*sessionEntry
	broadcast   *Broadcaster
	model       provider.Provider
	factory     RegistryFactory
	maxTokens   int
	maxOutTok   int
	adminTools  *tool.Registry // backs the ListTools/CallTool control commands
	metrics     *observability.Metrics
}

// New constructs a ControlPlane. adminTools, if non-nil, is the registry
// ListTools/CallTool operate against (distinct from any given session's
// own tool surface, since those commands are not session-scoped). metrics
// may be nil, in which case ActiveSessions is simply not reported.
func New(model provider.Provider, maxTokens, maxOutputTokens int, factory RegistryFactory, adminTools *tool.Registry, metrics *observability.Metrics) *ControlPlane {
	if adminTools == nil {
		adminTools = tool.NewRegistry()
	}
	return &ControlPlane{
		sessions:   make(map[string]*sessionEntry),
		broadcast:  NewBroadcaster(),
		model:      model,
		factory:    factory,
		maxTokens:  maxTokens,
		maxOutTok:  maxOutputTokens,
		adminTools: adminTools,
		metrics:    metrics,
	}
}

// NewSession creates a session and its agent under id, in mode, rooted at
// workingDir. No one is subscribed to it yet.
func (cp *ControlPlane) NewSession(id string, mode tool.Mode, workingDir string) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if _, exists := cp.sessions[id]; exists {
		return fmt.Errorf("session %s already exists", id)
	}

	registry, cfg, postInit := cp.factory(id, workingDir)
	sess := session.New(cp.maxTokens, cp.maxOutTok)
	agent := agentcore.New(sess, registry, cp.model, mode, cfg)
	if postInit != nil {
		postInit(agent)
	}

	entry := &sessionEntry{agent: agent, sender: agentcore.NewChannelSender(BroadcastCapacity)}
	cp.sessions[id] = entry

	if cp.metrics != nil {
		cp.metrics.ActiveSessions.Inc()
	}
	go cp.forward(id, entry.sender)
	return nil
}

// forward relays every event the session's agent produces onto the
// broadcast channel, tagged with the session id, until the sender is
// closed at CloseSession.
func (cp *ControlPlane) forward(id string, sender *agentcore.ChannelSender) {
	for ev := range sender.Events() {
		cp.broadcast.Publish(ControlEvent{SessionID: id, Event: ev})
	}
}

func (cp *ControlPlane) get(id string) (*sessionEntry, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	e, ok := cp.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return e, nil
}

// SendInput runs agent.Submit(text) on the named session.
func (cp *ControlPlane) SendInput(ctx context.Context, sessionID, text string) error {
	entry, err := cp.get(sessionID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.agent.Submit(ctx, text, entry.sender)
}

// CancelTurn sets the cancel flag for the in-flight turn on sessionID.
func (cp *ControlPlane) CancelTurn(sessionID string) error {
	entry, err := cp.get(sessionID)
	if err != nil {
		return err
	}
	entry.agent.Cancel()
	return nil
}

// Subscribe registers a new broadcast subscription, returning its id.
func (cp *ControlPlane) Subscribe() string { return cp.broadcast.Subscribe() }

// Unsubscribe removes a broadcast subscription.
func (cp *ControlPlane) Unsubscribe(id string) { cp.broadcast.Unsubscribe(id) }

// Next blocks for the next event delivered to subscription id.
func (cp *ControlPlane) Next(ctx context.Context, subscriptionID string) (ControlEvent, bool) {
	return cp.broadcast.Next(ctx, subscriptionID)
}

// ListSessions returns every live session id.
func (cp *ControlPlane) ListSessions() []string {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	out := make([]string, 0, len(cp.sessions))
	for id := range cp.sessions {
		out = append(out, id)
	}
	return out
}

// ListTools returns the names of every tool in the admin registry.
func (cp *ControlPlane) ListTools() []string {
	all := cp.adminTools.All()
	out := make([]string, 0, len(all))
	for _, t := range all {
		out = append(out, t.Name())
	}
	return out
}

// CallTool executes a tool directly against the admin registry, outside
// any session's agent loop.
func (cp *ControlPlane) CallTool(ctx context.Context, name string, args json.RawMessage) *tool.Output {
	return cp.adminTools.Execute(ctx, uuid.NewString(), name, args)
}

// CloseSession tears down a session: its sender is closed (stopping the
// forwarding goroutine) and it is removed from the registry.
func (cp *ControlPlane) CloseSession(id string) error {
	cp.mu.Lock()
	entry, ok := cp.sessions[id]
	if ok {
		delete(cp.sessions, id)
	}
	cp.mu.Unlock()
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	entry.sender.Close()
	if cp.metrics != nil {
		cp.metrics.ActiveSessions.Dec()
	}
	return nil
}
