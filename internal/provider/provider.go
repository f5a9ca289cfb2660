// Package provider defines the vendor-agnostic LLM completion interface and
// the streaming event model every driver converts its wire format into.
package provider

import (
	"context"
	"encoding/json"
)

// ToolSchema describes one callable tool as advertised to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// CompletionRequest is the vendor-agnostic shape of one turn sent to a
// Provider. Messages are pre-flattened from session history by the caller.
type CompletionRequest struct {
	Model          string
	System         string
	Messages       []RequestMessage
	Tools          []ToolSchema
	MaxTokens      int
	Temperature    *float64
	EnableThinking bool
	ThinkingBudget int
}

// RequestMessage is one entry of CompletionRequest.Messages, already
// collapsed from message.Message into the flat shape every vendor driver
// expects to further translate.
type RequestMessage struct {
	Role       string
	Text       string
	ToolCallID string
	ToolName   string
	ToolArgs   json.RawMessage
	ToolResult string
	IsError    bool
}

// EventKind tags the variant carried by a ResponseEvent.
type EventKind int

const (
	EventTextDelta EventKind = iota
	EventThinkingDelta
	EventToolCallFragment
	EventUsage
	EventDone
	EventError
)

// ToolCallFragment is one piece of a tool call as it streams off the wire.
// The first fragment for a given call carries a non-empty ID and Name; every
// subsequent fragment for that call carries an empty ID and only
// ArgumentsFragment, per the buffering protocol every vendor driver follows.
type ToolCallFragment struct {
	ID                string
	Name              string
	ArgumentsFragment string
}

// Usage is provider-reported token accounting for one completion.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
	CacheWriteTokens int
}

// ResponseEvent is the tagged variant emitted by Provider.Complete. Exactly
// one of the typed fields is populated, selected by Kind.
type ResponseEvent struct {
	Kind     EventKind
	Text     string
	ToolCall ToolCallFragment
	Usage    Usage
	Err      error
}

// Model describes one model a Provider can serve.
type Model struct {
	ID             string
	Name           string
	ContextWindow  int
	SupportsVision bool
}

// Provider is the capability interface every vendor driver implements.
// Complete streams ResponseEvents on the returned channel and closes it
// when the turn is finished or fails; a non-nil error return means no
// stream was opened (the request could not be built, or, in drivers that
// open the stream before returning, the call still failed after retries),
// distinct from an in-stream EventError.
type Provider interface {
	Name() string
	ModelName(requested string) string
	ListModels() []Model
	Complete(ctx context.Context, req *CompletionRequest) (<-chan ResponseEvent, error)
}

// ToolCallAccumulator implements the streaming tool-call buffering protocol
// shared by every driver: the first fragment for a call carries its id and
// name, later fragments carry only argument text, and the call finalizes
// either when a new non-empty id arrives or the stream ends.
type ToolCallAccumulator struct {
	id   string
	name string
	args []byte
}

// Active reports whether a call is currently being assembled.
func (a *ToolCallAccumulator) Active() bool { return a.id != "" }

// Start begins assembling a new call, returning the previous one if it was
// left unfinished (the caller should finalize it before starting the next).
func (a *ToolCallAccumulator) Start(id, name string) (prevID, prevName string, prevArgs []byte, hadPrev bool) {
	if a.Active() {
		prevID, prevName, prevArgs, hadPrev = a.id, a.name, a.args, true
	}
	a.id, a.name, a.args = id, name, nil
	return
}

// Append adds an argument fragment to the call currently being assembled.
func (a *ToolCallAccumulator) Append(fragment string) {
	a.args = append(a.args, fragment...)
}

// Finish finalizes and clears the call currently being assembled.
func (a *ToolCallAccumulator) Finish() (id, name string, args []byte, ok bool) {
	if !a.Active() {
		return "", "", nil, false
	}
	id, name, args = a.id, a.name, a.args
	a.id, a.name, a.args = "", "", nil
	return id, name, args, true
}

// FinalizeArguments best-effort parses raw into validated JSON, falling back
// to a JSON null when the accumulated fragments never formed valid JSON
// (spec-mandated: this degrades the tool call, it never aborts the turn).
func FinalizeArguments(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(raw)
}
