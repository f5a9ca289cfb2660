// Package agentcore implements the agent loop: the turn-by-turn driver
// that streams a provider completion, executes any tool calls it produces,
// and feeds results back until the model stops calling tools or a resource
// limit is hit.
package agentcore

import (
	"github.com/oskarlindberg/agentcore/internal/provider"
	"github.com/oskarlindberg/agentcore/internal/tool"
	"github.com/oskarlindberg/agentcore/internal/tool/misc"
)

// EventKind tags the variant carried by an AgentEvent.
type EventKind int

const (
	EventTextDelta EventKind = iota
	EventTextComplete
	EventThinkingDelta
	EventToolCallStarted
	EventToolCallFinished
	EventTokenUsage
	EventContextCompacted
	EventTodoUpdate
	EventModeChanged
	EventQuestion
	EventQuestionAnswer
	EventTurnComplete
	EventError
)

// AgentEvent is the tagged variant the agent loop emits over the course of
// a turn. Exactly the fields relevant to Kind are populated.
type AgentEvent struct {
	Kind EventKind

	// TextDelta, TextComplete, ThinkingDelta
	Text string

	// ToolCallStarted, ToolCallFinished
	ToolCallID  string
	ToolName    string
	ToolArgs    string
	ToolResult  string
	ToolIsError bool

	// TokenUsage
	Usage        provider.Usage
	ContextTotal int

	// ContextCompacted
	TokensBefore int
	TokensAfter  int

	// TodoUpdate
	TodoItems []misc.TodoItem

	// ModeChanged
	Mode tool.Mode

	// Question, QuestionAnswer
	QuestionID string
	Question   string

	// Error
	Err error
}
