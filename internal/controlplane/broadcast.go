// Package controlplane implements the long-lived service of spec §4.H: it
// owns zero or more sessions keyed by UUID and fans every agent event out
// on a broadcast channel tagged with the originating session id.
package controlplane

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/oskarlindberg/agentcore/internal/agentcore"
)

// BroadcastCapacity is the per-subscriber channel capacity from spec §5; a
// subscriber that falls behind is notified with a lagged marker rather than
// blocking the broadcaster.
const BroadcastCapacity = 256

// ControlEvent is one fanned-out agent event, tagged with the session it
// came from. Lagged is non-zero only on a synthetic marker event delivered
// in place of the events a slow subscriber missed.
type ControlEvent struct {
	SessionID string
	Event     agentcore.AgentEvent
	Lagged    int64
}

type subscription struct {
	id      string
	ch      chan ControlEvent
	dropped int64
}

// Broadcaster fans ControlEvents out to every active subscription. No
// ordering is promised between events from different sessions, matching
// spec §5; within one session, events preserve issue order because each
// session's Agent sends them from a single goroutine.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]*subscription
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]*subscription)}
}

// Subscribe registers a new subscription and returns its id, used later to
// Unsubscribe.
func (b *Broadcaster) Subscribe() string {
	id := uuid.NewString()
	b.mu.Lock()
	b.subs[id] = &subscription{id: id, ch: make(chan ControlEvent, BroadcastCapacity)}
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription; further Publishes are no longer
// delivered to it.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish delivers ev to every current subscription, non-blocking: a full
// subscriber channel increments that subscriber's drop counter instead of
// blocking the publisher.
func (b *Broadcaster) Publish(ev ControlEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			atomic.AddInt64(&s.dropped, 1)
		}
	}
}

// Next blocks until the next event for subscription id is available, ctx is
// cancelled, or the subscription no longer exists. When events were
// dropped since the last Next call, the first call afterward returns a
// synthetic lagged marker instead of consuming from the channel.
func (b *Broadcaster) Next(ctx context.Context, id string) (ControlEvent, bool) {
	b.mu.RLock()
	s, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return ControlEvent{}, false
	}

	if n := atomic.SwapInt64(&s.dropped, 0); n > 0 {
		return ControlEvent{Lagged: n}, true
	}

	select {
	case ev, ok := <-s.ch:
		return ev, ok
	case <-ctx.Done():
		return ControlEvent{}, false
	}
}
