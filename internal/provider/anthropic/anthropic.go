// Package anthropic drives Anthropic's Messages API as a provider.Provider.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/oskarlindberg/agentcore/internal/provider"
)

// Config configures a Driver. APIKey is required; everything else has a
// default matching Claude's current general-purpose model.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// Driver implements provider.Provider against the Anthropic Messages API.
type Driver struct {
	client       anthropic.Client
	defaultModel string
	retry        provider.Retrier
}

// New builds a Driver, applying defaults for every optional Config field.
func New(cfg Config) (*Driver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Driver{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		retry:        provider.NewRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

func (d *Driver) Name() string { return "anthropic" }

func (d *Driver) ModelName(requested string) string {
	if requested == "" {
		return d.defaultModel
	}
	return requested
}

func (d *Driver) ListModels() []provider.Model {
	return []provider.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextWindow: 200000, SupportsVision: true},
	}
}

func (d *Driver) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ResponseEvent, error) {
	params, err := d.buildParams(req)
	if err != nil {
		return nil, err
	}

	out := make(chan provider.ResponseEvent)
	go func() {
		defer close(out)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		runErr := d.retry.Do(ctx, provider.IsRetryable, func() error {
			stream = d.client.Messages.NewStreaming(ctx, params)
			return nil
		})
		if runErr != nil {
			out <- provider.ResponseEvent{Kind: provider.EventError, Err: d.wrapError(runErr, params.Model)}
			return
		}
		d.processStream(stream, out, string(params.Model))
	}()
	return out, nil
}

func (d *Driver) buildParams(req *provider.CompletionRequest) (anthropic.MessageNewParams, error) {
	model := d.ModelName(req.Model)
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		var content []anthropic.ContentBlockParamUnion
		if m.Text != "" {
			content = append(content, anthropic.NewTextBlock(m.Text))
		}
		if m.ToolResult != "" || m.ToolCallID != "" && m.Role == "tool" {
			content = append(content, anthropic.NewToolResultBlock(m.ToolCallID, m.ToolResult, m.IsError))
		}
		if m.ToolName != "" && m.Role == "assistant" && len(m.ToolArgs) > 0 {
			var input map[string]interface{}
			if err := json.Unmarshal(m.ToolArgs, &input); err != nil {
				return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: invalid tool call arguments: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(m.ToolCallID, input, m.ToolName))
		}
		if len(content) == 0 {
			continue
		}
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(content...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(content...))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := d.convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	if req.EnableThinking {
		budget := int64(req.ThinkingBudget)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	return params, nil
}

func (d *Driver) convertTools(tools []provider.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid schema for %s: %w", t.Name, err)
		}
		p := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if p.OfTool == nil {
			return nil, fmt.Errorf("anthropic: missing tool definition for %s", t.Name)
		}
		p.OfTool.Description = anthropic.String(t.Description)
		result = append(result, p)
	}
	return result, nil
}

// maxEmptyStreamEvents bounds how many consecutive no-op SSE events we
// tolerate before treating the stream as malformed.
const maxEmptyStreamEvents = 300

func (d *Driver) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- provider.ResponseEvent, model string) {
	acc := provider.ToolCallAccumulator{}
	empties := 0
	var usage provider.Usage

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				usage.InputTokens = int(ms.Message.Usage.InputTokens)
			}
			if ms.Message.Usage.CacheReadInputTokens > 0 {
				usage.CacheReadTokens = int(ms.Message.Usage.CacheReadInputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				acc.Start(tu.ID, tu.Name)
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- provider.ResponseEvent{Kind: provider.EventTextDelta, Text: delta.Text}
					processed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- provider.ResponseEvent{Kind: provider.EventThinkingDelta, Text: delta.Thinking}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					acc.Append(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			// Anthropic streams one content block at a time, so whatever the
			// accumulator holds here is exactly the block that just closed.
			// Flush it once, fully assembled, mirroring openaicompat's
			// flush-on-boundary: streaming the id/name and every argument
			// fragment separately as they arrived would have the outer
			// accumulator see this same call twice, once live and once
			// again replayed when the next tool_use block starts.
			if id, name, args, ok := acc.Finish(); ok {
				out <- provider.ResponseEvent{Kind: provider.EventToolCallFragment, ToolCall: provider.ToolCallFragment{ID: id, Name: name, ArgumentsFragment: string(args)}}
			}
			processed = true

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(md.Usage.OutputTokens)
			}
			processed = true

		case "message_stop":
			out <- provider.ResponseEvent{Kind: provider.EventUsage, Usage: usage}
			out <- provider.ResponseEvent{Kind: provider.EventDone}
			return

		case "error":
			out <- provider.ResponseEvent{Kind: provider.EventError, Err: d.wrapError(errors.New("anthropic stream error"), model)}
			return
		}

		if processed {
			empties = 0
		} else {
			empties++
			if empties >= maxEmptyStreamEvents {
				out <- provider.ResponseEvent{Kind: provider.EventError, Err: d.wrapError(fmt.Errorf("stream malformed: %d consecutive empty events", empties), model)}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		out <- provider.ResponseEvent{Kind: provider.EventError, Err: d.wrapError(err, model)}
	}
}

type errorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (d *Driver) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := provider.AsError(err); ok {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := provider.NewError("anthropic", model, err).WithStatus(apiErr.StatusCode)
		var payload errorPayload
		if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil {
			if payload.Error.Message != "" {
				pe = pe.WithMessage(payload.Error.Message)
			}
			if payload.Error.Type != "" {
				pe = pe.WithCode(payload.Error.Type)
			}
			if payload.RequestID != "" {
				pe = pe.WithRequestID(payload.RequestID)
			}
		}
		return pe
	}
	return provider.NewError("anthropic", model, err)
}
