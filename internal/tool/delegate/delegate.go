// Package delegate provides tools that let a running agent hand work off to
// another agent instance: a local nested sub-agent within the same process,
// or a peer agent reachable over the mesh. Both share a DelegationContext so
// a chain of hand-offs can be bounded and cycle-checked the same way
// regardless of whether the next hop is in-process or over the wire.
package delegate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// MaxDelegationDepth bounds how many hops a task may be forwarded through,
// local or remote, before a delegate call is refused outright.
const MaxDelegationDepth = 3

// DelegationContext travels alongside a delegated task so that both local
// spawns and peer hand-offs can refuse to create cycles or runaway chains.
// Chain holds the identifiers (local sub-agent IDs or peer IDs) visited so
// far, in order, including the originator.
type DelegationContext struct {
	Depth int
	Chain []string
}

// Root returns the starting DelegationContext for a freshly submitted turn.
func Root(originID string) DelegationContext {
	return DelegationContext{Depth: 0, Chain: []string{originID}}
}

// Next returns the DelegationContext a new hop should carry, or an error if
// the hop would exceed MaxDelegationDepth or revisit a node already in the
// chain.
func (d DelegationContext) Next(nextID string) (DelegationContext, error) {
	if d.Depth+1 > MaxDelegationDepth {
		return DelegationContext{}, fmt.Errorf("delegation depth limit (%d) exceeded", MaxDelegationDepth)
	}
	for _, id := range d.Chain {
		if id == nextID {
			return DelegationContext{}, fmt.Errorf("delegation cycle detected: %s already in chain %s", nextID, strings.Join(d.Chain, " -> "))
		}
	}
	chain := make([]string, len(d.Chain), len(d.Chain)+1)
	copy(chain, d.Chain)
	chain = append(chain, nextID)
	return DelegationContext{Depth: d.Depth + 1, Chain: chain}, nil
}

type delegationContextKey struct{}

// ContextWithDelegation attaches a DelegationContext to ctx.
func ContextWithDelegation(ctx context.Context, dc DelegationContext) context.Context {
	return context.WithValue(ctx, delegationContextKey{}, dc)
}

// DelegationFromContext recovers a DelegationContext, defaulting to the
// zero value (depth zero, nil Chain) when none was attached; callers start
// a chain with Root when Chain is nil.
func DelegationFromContext(ctx context.Context) DelegationContext {
	if dc, ok := ctx.Value(delegationContextKey{}).(DelegationContext); ok {
		return dc
	}
	return DelegationContext{}
}

// Status enumerates the lifecycle of a delegated task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// TaskRunner abstracts a target agent that can accept a delegated task and
// stream back text, regardless of whether it lives in this process
// (nested sub-agent) or across the mesh (peer).
type TaskRunner interface {
	// RunTask blocks until the delegated work completes (or ctx is
	// cancelled) and returns the accumulated text result.
	RunTask(ctx context.Context, task string, allowedTools, deniedTools []string) (string, error)
}

// Task records one delegated unit of work, local or remote.
type Task struct {
	ID          string
	ParentID    string
	Target      string // sub-agent name, or peer ID for P2P delegation
	Description string
	Status      Status
	CreatedAt   time.Time
	CompletedAt time.Time
	Result      string
	Error       string
}

// Ledger tracks delegated tasks and enforces a concurrency ceiling, the same
// shape the teacher's sub-agent manager uses for its active-count guard.
type Ledger struct {
	mu          sync.RWMutex
	tasks       map[string]*Task
	maxActive   int
	activeCount int64
}

func NewLedger(maxActive int) *Ledger {
	if maxActive <= 0 {
		maxActive = 5
	}
	return &Ledger{tasks: make(map[string]*Task), maxActive: maxActive}
}

func (l *Ledger) tryAcquire() bool {
	for {
		cur := atomic.LoadInt64(&l.activeCount)
		if cur >= int64(l.maxActive) {
			return false
		}
		if atomic.CompareAndSwapInt64(&l.activeCount, cur, cur+1) {
			return true
		}
	}
}

func (l *Ledger) release() { atomic.AddInt64(&l.activeCount, -1) }

func (l *Ledger) start(parentID, target, description string) *Task {
	t := &Task{
		ID:          uuid.NewString(),
		ParentID:    parentID,
		Target:      target,
		Description: description,
		Status:      StatusRunning,
		CreatedAt:   time.Now(),
	}
	l.mu.Lock()
	l.tasks[t.ID] = t
	l.mu.Unlock()
	return t
}

func (l *Ledger) finish(id, result, errMsg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tasks[id]
	if !ok {
		return
	}
	t.CompletedAt = time.Now()
	if errMsg != "" {
		t.Status = StatusFailed
		t.Error = errMsg
	} else {
		t.Status = StatusCompleted
		t.Result = result
	}
}

// Get returns a task by ID.
func (l *Ledger) Get(id string) (*Task, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tasks[id]
	return t, ok
}

// ListByParent returns every task delegated from the given parent.
func (l *Ledger) ListByParent(parentID string) []*Task {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Task
	for _, t := range l.tasks {
		if t.ParentID == parentID {
			out = append(out, t)
		}
	}
	return out
}

// ActiveCount reports the number of in-flight delegated tasks.
func (l *Ledger) ActiveCount() int { return int(atomic.LoadInt64(&l.activeCount)) }

func errOutput(format string, args ...any) *tool.Output {
	return &tool.Output{Content: fmt.Sprintf(format, args...), IsError: true}
}

func mustUnmarshal(arguments json.RawMessage, v any) error {
	if err := json.Unmarshal(arguments, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}
