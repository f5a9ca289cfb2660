package agentcore

import "sync"

// EventSender delivers AgentEvents to whatever is watching a turn. Send must
// never block the agent loop indefinitely: a gone subscriber is not a hard
// error, per spec (half-closing the sender stops delivery but the loop runs
// the turn to completion anyway so the session stays consistent).
type EventSender interface {
	Send(ev AgentEvent)
}

// ChannelSender is the default EventSender, backed by a buffered channel.
// Stop lets a subscriber signal it has gone away without closing the
// channel out from under a producer still mid-turn; Close is for the
// producer side (the agent loop, or a one-shot caller like the delegation
// runner) to signal no more events are coming, so a ranging consumer can
// terminate.
type ChannelSender struct {
	ch        chan AgentEvent
	stopped   chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// NewChannelSender creates a ChannelSender with the given channel buffer
// size.
func NewChannelSender(buffer int) *ChannelSender {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSender{
		ch:      make(chan AgentEvent, buffer),
		stopped: make(chan struct{}),
	}
}

// Events returns the receive side of the event channel.
func (s *ChannelSender) Events() <-chan AgentEvent { return s.ch }

// Send delivers ev, or drops it silently if Stop has been called.
func (s *ChannelSender) Send(ev AgentEvent) {
	select {
	case s.ch <- ev:
	case <-s.stopped:
	}
}

// Stop marks the subscriber as gone; subsequent Sends are dropped instead of
// blocking.
func (s *ChannelSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Close marks the producer as done; a consumer ranging over Events() will
// terminate. Callers must not call Send after Close.
func (s *ChannelSender) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// NopSender discards every event, for callers that only care about the
// final session state (tests, delegation callers that don't need progress).
type NopSender struct{}

func (NopSender) Send(AgentEvent) {}
