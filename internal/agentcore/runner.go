package agentcore

import (
	"context"
	"sync"

	"github.com/oskarlindberg/agentcore/internal/session"
	"github.com/oskarlindberg/agentcore/internal/tool"
	"github.com/oskarlindberg/agentcore/internal/tool/delegate"
)

// localRunner implements delegate.TaskRunner by spinning up a fresh nested
// Agent per delegated task, per spec §4.F: round cap and provider are
// inherited from the parent, but session and tool scope are independent.
type localRunner struct {
	parent *Agent
}

// NewLocalRunner returns a delegate.TaskRunner that executes delegated
// tasks as fresh nested Agents sharing this agent's provider and round cap.
func (a *Agent) NewLocalRunner() delegate.TaskRunner {
	return &localRunner{parent: a}
}

func (r *localRunner) RunTask(ctx context.Context, task string, allowedTools, deniedTools []string) (string, error) {
	if r.parent.cfg.Metrics != nil {
		r.parent.cfg.Metrics.DelegationDepth.Observe(float64(delegate.DelegationFromContext(ctx).Depth))
	}

	childSession := session.New(r.parent.session.MaxTokens, r.parent.session.MaxOutputTokens)
	childTools := scopeRegistry(r.parent.tools, allowedTools, deniedTools)
	child := New(childSession, childTools, r.parent.model, r.parent.Mode(), r.parent.cfg)

	sender := NewChannelSender(64)
	var mu sync.Mutex
	var finalText string
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range sender.Events() {
			if ev.Kind == EventTextComplete {
				mu.Lock()
				finalText = ev.Text
				mu.Unlock()
			}
		}
	}()

	err := child.Submit(ctx, task, sender)
	sender.Close()
	<-drained
	if err != nil {
		return "", err
	}

	mu.Lock()
	defer mu.Unlock()
	return finalText, nil
}

// scopeRegistry builds a Registry restricted to allowed (or, when allowed is
// empty, every tool in base) minus denied, for handing to a delegated task
// that must not see the full parent tool surface.
func scopeRegistry(base *tool.Registry, allowed, denied []string) *tool.Registry {
	deniedSet := make(map[string]bool, len(denied))
	for _, name := range denied {
		deniedSet[name] = true
	}

	out := tool.NewRegistry()
	if len(allowed) > 0 {
		for _, name := range allowed {
			if deniedSet[name] {
				continue
			}
			if t, ok := base.Get(name); ok {
				out.Register(t)
			}
		}
		return out
	}
	for _, t := range base.All() {
		if deniedSet[t.Name()] {
			continue
		}
		out.Register(t)
	}
	return out
}
