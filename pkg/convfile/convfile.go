// Package convfile parses and serializes the conversation file format: a
// Markdown document with an optional H1 title and alternating `## User` /
// `## Assistant` / `## Tool` / `## Tool Result` sections. Tool calls and
// tool results serialize as fenced JSON blocks under the `## Tool` and
// `## Tool Result` headings respectively. Parse(Render(d)) reproduces d's
// message roles, text (trimmed of surrounding whitespace), tool-call IDs
// and names, and tool results; tool-call arguments come back as the same
// JSON value, re-indented. Rendering a parsed document again yields the
// same bytes.
package convfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/oskarlindberg/agentcore/internal/message"
)

// Document is a fully parsed conversation file.
type Document struct {
	Title    string
	Messages []message.Message
	// Pending holds the text of a trailing `## User` section with no
	// following `## Assistant` reply, used to resume `conversation` mode.
	// Empty when the file ends on a non-user section or has no messages.
	Pending string
}

var headingRegex = regexp.MustCompile(`^(#{1,2})\s+(.+)$`)

const (
	headingUser       = "User"
	headingAssistant  = "Assistant"
	headingTool       = "Tool"
	headingToolResult = "Tool Result"
)

type toolCallWire struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolResultWire struct {
	ToolCallID string `json:"tool_call_id"`
	Text       string `json:"text"`
}

// Parse reads a conversation file's Markdown source into a Document.
func Parse(text string) (*Document, error) {
	scanner := bufio.NewScanner(bytes.NewBufferString(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	doc := &Document{}
	var sectionHeading string
	var body strings.Builder
	haveSection := false

	flush := func() error {
		if !haveSection {
			return nil
		}
		msg, err := sectionToMessage(sectionHeading, strings.TrimSpace(body.String()))
		if err != nil {
			return fmt.Errorf("convfile: section %q: %w", sectionHeading, err)
		}
		doc.Messages = append(doc.Messages, msg)
		body.Reset()
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimRight(line, "\r")
		if strings.HasPrefix(trimmed, "# ") && doc.Title == "" && !haveSection && len(doc.Messages) == 0 {
			doc.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			continue
		}
		if match := headingRegex.FindStringSubmatch(trimmed); match != nil && len(match[1]) == 2 {
			if err := flush(); err != nil {
				return nil, err
			}
			sectionHeading = strings.TrimSpace(match[2])
			haveSection = true
			continue
		}
		if haveSection {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("convfile: scan: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if n := len(doc.Messages); n > 0 {
		last := doc.Messages[n-1]
		if last.Role == message.RoleUser {
			if text, ok := last.Text(); ok {
				doc.Pending = text
			}
		}
	}

	return doc, nil
}

func sectionToMessage(heading, body string) (message.Message, error) {
	switch heading {
	case headingUser:
		return message.NewUser(body), nil
	case headingAssistant:
		return message.NewAssistant(body), nil
	case headingTool:
		var wire toolCallWire
		fenced, err := extractFencedJSON(body)
		if err != nil {
			return message.Message{}, err
		}
		if err := json.Unmarshal(fenced, &wire); err != nil {
			return message.Message{}, fmt.Errorf("decode tool call: %w", err)
		}
		return message.NewAssistantToolCall(wire.ID, wire.Name, string(wire.Arguments)), nil
	case headingToolResult:
		var wire toolResultWire
		fenced, err := extractFencedJSON(body)
		if err != nil {
			return message.Message{}, err
		}
		if err := json.Unmarshal(fenced, &wire); err != nil {
			return message.Message{}, fmt.Errorf("decode tool result: %w", err)
		}
		return message.NewToolResult(wire.ToolCallID, wire.Text), nil
	default:
		return message.Message{}, fmt.Errorf("unknown section heading %q", heading)
	}
}

var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")

func extractFencedJSON(body string) ([]byte, error) {
	match := fencedBlockRegex.FindStringSubmatch(body)
	if match == nil {
		return nil, fmt.Errorf("missing fenced JSON block")
	}
	return []byte(match[1]), nil
}
