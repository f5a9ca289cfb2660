// Package session implements the mutable conversation state described in
// spec §3/§4.D: the message list, token accounting with EMA calibration
// against provider-reported usage, and near-context-limit detection.
package session

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/oskarlindberg/agentcore/internal/message"
)

const (
	// CalibrationMin and CalibrationMax bound calibration_factor per
	// invariant 2.
	CalibrationMin = 0.5
	CalibrationMax = 3.0

	calibrationAlpha = 0.2
)

// Session is the owned, mutable conversation state for one agent run. It is
// never accessed concurrently; exactly one task (the Agent Loop, or a
// nested delegation loop) owns a given Session at a time. The mutex here
// guards against accidental concurrent access rather than expecting
// contention.
type Session struct {
	mu sync.Mutex

	ID       string
	Messages []message.Message

	TokenCount        int
	MaxTokens         int
	MaxOutputTokens   int
	CalibrationFactor float64
	SchemaOverhead    int

	CacheReadTotal  int64
	CacheWriteTotal int64
}

// New creates an empty session with a fresh id and a calibration factor of
// 1.0 (inside the invariant-2 range [0.5, 3.0]).
func New(maxTokens, maxOutputTokens int) *Session {
	return &Session{
		ID:                uuid.NewString(),
		MaxTokens:         maxTokens,
		MaxOutputTokens:   maxOutputTokens,
		CalibrationFactor: 1.0,
	}
}

// Push appends a message and updates the running token count (invariant 1).
func (s *Session) Push(m message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, m)
	s.TokenCount += m.ApproxTokens()
}

// ReplaceMessages atomically swaps the history, used by compaction and
// external edits. Callers must follow up with RecalculateTokens unless
// they already know the resulting token count.
func (s *Session) ReplaceMessages(msgs []message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = msgs
}

// RecalculateTokens restores invariant 1 by summing ApproxTokens over the
// current message list. Call this after ReplaceMessages, and after any
// streaming operation that left TokenCount stale.
func (s *Session) RecalculateTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, m := range s.Messages {
		total += m.ApproxTokens()
	}
	s.TokenCount = total
}

// Snapshot returns a copy of the current message list, safe to range over
// without holding the session lock.
func (s *Session) Snapshot() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Len reports the number of messages currently in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages)
}

// InputBudget is max_tokens - max_output_tokens, or max_tokens when
// max_output_tokens is unknown (0).
func (s *Session) InputBudget() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputBudgetLocked()
}

func (s *Session) inputBudgetLocked() int {
	if s.MaxOutputTokens == 0 {
		return s.MaxTokens
	}
	budget := s.MaxTokens - s.MaxOutputTokens
	if budget < 0 {
		return 0
	}
	return budget
}

// EffectiveTokens is floor(token_count * calibration_factor) + schema_overhead.
func (s *Session) EffectiveTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveTokensLocked()
}

func (s *Session) effectiveTokensLocked() int {
	return int(math.Floor(float64(s.TokenCount)*s.CalibrationFactor)) + s.SchemaOverhead
}

// ContextFraction is effective_tokens / input_budget, or 0 when the budget
// is 0.
func (s *Session) ContextFraction() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	budget := s.inputBudgetLocked()
	if budget <= 0 {
		return 0
	}
	return float64(s.effectiveTokensLocked()) / float64(budget)
}

// IsNearLimit reports whether context_fraction has reached or exceeded
// threshold, a real in (0, 1].
func (s *Session) IsNearLimit(threshold float64) bool {
	return s.ContextFraction() >= threshold
}

// UpdateCalibration applies the EMA update from spec §4.D:
//
//	ratio = actual_input / estimated
//	calibration_factor <- 0.8*calibration_factor + 0.2*ratio
//
// clamped to [0.5, 3.0]. Both inputs being positive is required; either
// being 0 makes this a no-op (spec §8 boundary behavior).
func (s *Session) UpdateCalibration(actualInput, estimated int) {
	if actualInput == 0 || estimated == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ratio := float64(actualInput) / float64(estimated)
	next := (1-calibrationAlpha)*s.CalibrationFactor + calibrationAlpha*ratio
	s.CalibrationFactor = clampCalibration(next)
}

func clampCalibration(v float64) float64 {
	if v < CalibrationMin {
		return CalibrationMin
	}
	if v > CalibrationMax {
		return CalibrationMax
	}
	return v
}

// AddCacheUsage rolls the provider-reported cache totals into the session.
func (s *Session) AddCacheUsage(read, write int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CacheReadTotal += read
	s.CacheWriteTotal += write
}

// Validate checks invariants 3-5 over the current message list. It is used
// by tests and by the conversation-file round-trip loader; the agent loop
// does not call this on every mutation (that would be redundant with the
// construction discipline), but test suites assert it holds after each
// scenario.
func (s *Session) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seenCalls := make(map[string]bool)
	for i, m := range s.Messages {
		if i != 0 && m.Role == message.RoleSystem {
			return fmt.Errorf("session %s: system message at index %d, only index 0 may be system", s.ID, i)
		}

		switch m.Content.Kind {
		case message.KindToolCall:
			if m.Role != message.RoleAssistant {
				return fmt.Errorf("session %s: tool call at index %d not authored by assistant", s.ID, i)
			}
			seenCalls[m.Content.ToolCall.ToolCallID] = true
		case message.KindToolResult:
			if m.Role != message.RoleTool {
				return fmt.Errorf("session %s: tool result at index %d not authored by tool role", s.ID, i)
			}
			id := m.Content.ToolResult.ToolCallID
			if !seenCalls[id] {
				return fmt.Errorf("session %s: tool result %s at index %d has no matching prior tool call", s.ID, id, i)
			}
		}
	}
	return nil
}
