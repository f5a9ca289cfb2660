// Package message defines the conversation entities shared across the agent
// core: roles, content variants, and the token-estimation used for context
// budgeting.
package message

import (
	"encoding/json"
	"math"
)

// Role is a closed enumeration of who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multimodal message body.
type ContentPart struct {
	Text   string `json:"text,omitempty"`
	Image  string `json:"image_url,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// IsImage reports whether this part carries an image rather than text.
func (p ContentPart) IsImage() bool {
	return p.Image != ""
}

// ToolCallContent is the assistant's intent to invoke a tool. Arguments are
// kept as an opaque JSON string because vendors stream them in fragments
// that are not valid JSON until the call is finalized.
type ToolCallContent struct {
	ToolCallID   string `json:"tool_call_id"`
	FunctionName string `json:"name"`
	ArgumentsRaw string `json:"arguments_json"`
}

// ToolResultContent is a tool's reply to a prior ToolCallContent.
type ToolResultContent struct {
	ToolCallID string        `json:"tool_call_id"`
	Text       string        `json:"text,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
}

// ContentKind discriminates the tagged variant stored in Content.
type ContentKind int

const (
	KindText ContentKind = iota
	KindParts
	KindToolCall
	KindToolResult
)

// Content is the tagged MessageContent variant from spec §3. Exactly one of
// the typed fields is meaningful, selected by Kind.
type Content struct {
	Kind       ContentKind
	Text       string
	Parts      []ContentPart
	ToolCall   ToolCallContent
	ToolResult ToolResultContent
}

// TextContent builds a plain-text content variant.
func TextContent(text string) Content { return Content{Kind: KindText, Text: text} }

// PartsContent builds a multimodal content variant.
func PartsContent(parts []ContentPart) Content { return Content{Kind: KindParts, Parts: parts} }

// ToolCallVariant builds a tool-call content variant.
func ToolCallVariant(id, name, argumentsJSON string) Content {
	return Content{Kind: KindToolCall, ToolCall: ToolCallContent{
		ToolCallID:   id,
		FunctionName: name,
		ArgumentsRaw: argumentsJSON,
	}}
}

// ToolResultText builds a tool-result content variant carrying plain text.
func ToolResultText(toolCallID, text string) Content {
	return Content{Kind: KindToolResult, ToolResult: ToolResultContent{
		ToolCallID: toolCallID,
		Text:       text,
	}}
}

// ToolResultPartsVariant builds a tool-result content variant carrying parts.
func ToolResultPartsVariant(toolCallID string, parts []ContentPart) Content {
	return Content{Kind: KindToolResult, ToolResult: ToolResultContent{
		ToolCallID: toolCallID,
		Parts:      parts,
	}}
}

// Message is one entry in a Session's conversation history (spec §3).
type Message struct {
	Role    Role
	Content Content
}

// NewSystem constructs a system message.
func NewSystem(text string) Message { return Message{Role: RoleSystem, Content: TextContent(text)} }

// NewUser constructs a user message.
func NewUser(text string) Message { return Message{Role: RoleUser, Content: TextContent(text)} }

// NewAssistant constructs an assistant text message.
func NewAssistant(text string) Message {
	return Message{Role: RoleAssistant, Content: TextContent(text)}
}

// NewAssistantToolCall constructs an assistant message representing a tool
// invocation.
func NewAssistantToolCall(id, name, argumentsJSON string) Message {
	return Message{Role: RoleAssistant, Content: ToolCallVariant(id, name, argumentsJSON)}
}

// NewToolResult constructs a tool-role message carrying a tool's reply text.
func NewToolResult(toolCallID, text string) Message {
	return Message{Role: RoleTool, Content: ToolResultText(toolCallID, text)}
}

// Text extracts the plain text of a message when its content is Text or
// ContentParts composed only of text parts. The second return value is
// false when the content carries images, a tool call, or a tool result.
func (m Message) Text() (string, bool) {
	switch m.Content.Kind {
	case KindText:
		return m.Content.Text, true
	case KindParts:
		var out string
		for _, p := range m.Content.Parts {
			if p.IsImage() {
				return "", false
			}
			out += p.Text
		}
		return out, true
	default:
		return "", false
	}
}

// ApproxTokens estimates this message's token footprint as
// ceil(char_count/4) over its serialized content. Images are counted only
// by the length of their URL, per spec §4.A.
func (m Message) ApproxTokens() int {
	return approxTokens(charCount(m.Content))
}

func charCount(c Content) int {
	switch c.Kind {
	case KindText:
		return len(c.Text)
	case KindParts:
		n := 0
		for _, p := range c.Parts {
			if p.IsImage() {
				n += len(p.Image)
			} else {
				n += len(p.Text)
			}
		}
		return n
	case KindToolCall:
		return len(c.ToolCall.ToolCallID) + len(c.ToolCall.FunctionName) + len(c.ToolCall.ArgumentsRaw)
	case KindToolResult:
		n := len(c.ToolResult.ToolCallID) + len(c.ToolResult.Text)
		for _, p := range c.ToolResult.Parts {
			if p.IsImage() {
				n += len(p.Image)
			} else {
				n += len(p.Text)
			}
		}
		return n
	default:
		return 0
	}
}

func approxTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return int(math.Ceil(float64(chars) / 4.0))
}

// MarshalJSON renders Content as a small tagged object, used by the
// conversation-file and control-plane event serializers.
func (c Content) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind       string              `json:"kind"`
		Text       string              `json:"text,omitempty"`
		Parts      []ContentPart       `json:"parts,omitempty"`
		ToolCall   *ToolCallContent    `json:"tool_call,omitempty"`
		ToolResult *ToolResultContent  `json:"tool_result,omitempty"`
	}
	w := wire{}
	switch c.Kind {
	case KindText:
		w.Kind = "text"
		w.Text = c.Text
	case KindParts:
		w.Kind = "parts"
		w.Parts = c.Parts
	case KindToolCall:
		w.Kind = "tool_call"
		w.ToolCall = &c.ToolCall
	case KindToolResult:
		w.Kind = "tool_result"
		w.ToolResult = &c.ToolResult
	}
	return json.Marshal(w)
}
