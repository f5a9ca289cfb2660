package convfile

import (
	"encoding/json"
	"strings"

	"github.com/oskarlindberg/agentcore/internal/message"
)

// Render serializes messages (and an optional title) into conversation file
// Markdown, the inverse of Parse.
func Render(doc *Document) (string, error) {
	var b strings.Builder
	if doc.Title != "" {
		b.WriteString("# " + doc.Title + "\n\n")
	}
	for _, msg := range doc.Messages {
		if err := renderMessage(&b, msg); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func renderMessage(b *strings.Builder, msg message.Message) error {
	switch msg.Content.Kind {
	case message.KindToolCall:
		b.WriteString("## " + headingTool + "\n\n")
		wire := toolCallWire{
			ID:        msg.Content.ToolCall.ToolCallID,
			Name:      msg.Content.ToolCall.FunctionName,
			Arguments: json.RawMessage(msg.Content.ToolCall.ArgumentsRaw),
		}
		if len(wire.Arguments) == 0 {
			wire.Arguments = json.RawMessage("null")
		}
		payload, err := json.MarshalIndent(wire, "", "  ")
		if err != nil {
			return err
		}
		b.WriteString("```json\n")
		b.Write(payload)
		b.WriteString("\n```\n\n")
		return nil
	case message.KindToolResult:
		b.WriteString("## " + headingToolResult + "\n\n")
		wire := toolResultWire{
			ToolCallID: msg.Content.ToolResult.ToolCallID,
			Text:       msg.Content.ToolResult.Text,
		}
		payload, err := json.MarshalIndent(wire, "", "  ")
		if err != nil {
			return err
		}
		b.WriteString("```json\n")
		b.Write(payload)
		b.WriteString("\n```\n\n")
		return nil
	default:
		text, _ := msg.Text()
		heading := headingAssistant
		if msg.Role == message.RoleUser {
			heading = headingUser
		}
		b.WriteString("## " + heading + "\n\n")
		b.WriteString(text)
		b.WriteString("\n\n")
		return nil
	}
}
