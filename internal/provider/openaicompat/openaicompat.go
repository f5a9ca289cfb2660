// Package openaicompat drives any OpenAI chat-completions-compatible
// endpoint (OpenAI itself, Ollama, OpenRouter) as a provider.Provider.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/oskarlindberg/agentcore/internal/provider"
)

// Config configures a Driver against OpenAI or an OpenAI-compatible gateway.
type Config struct {
	APIKey       string
	BaseURL      string // empty means api.openai.com
	DefaultModel string
	ProviderName string // "openai", "ollama", "openrouter"...
	MaxRetries   int
	RetryDelay   time.Duration

	// AzureEndpoint, when set, switches client construction to
	// openai.DefaultAzureConfig: Azure OpenAI needs an api-key header and
	// an api-version query parameter rather than a bearer token.
	AzureEndpoint   string
	AzureAPIVersion string
}

// Driver implements provider.Provider against the OpenAI chat completions
// streaming API and anything wire-compatible with it.
type Driver struct {
	client       *openai.Client
	name         string
	defaultModel string
	retry        provider.Retrier
}

// New builds a Driver. An empty APIKey is accepted for local gateways
// (Ollama) that don't require authentication.
func New(cfg Config) *Driver {
	var oaiCfg openai.ClientConfig
	if cfg.AzureEndpoint != "" {
		oaiCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.AzureEndpoint)
		if cfg.AzureAPIVersion != "" {
			oaiCfg.APIVersion = cfg.AzureAPIVersion
		}
	} else {
		oaiCfg = openai.DefaultConfig(cfg.APIKey)
		if strings.TrimSpace(cfg.BaseURL) != "" {
			oaiCfg.BaseURL = cfg.BaseURL
		}
	}
	name := cfg.ProviderName
	if name == "" {
		name = "openai"
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &Driver{
		client:       openai.NewClientWithConfig(oaiCfg),
		name:         name,
		defaultModel: defaultModel,
		retry:        provider.NewRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}
}

func (d *Driver) Name() string { return d.name }

func (d *Driver) ModelName(requested string) string {
	if requested == "" {
		return d.defaultModel
	}
	return requested
}

func (d *Driver) ListModels() []provider.Model {
	return []provider.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextWindow: 16385, SupportsVision: false},
	}
}

func (d *Driver) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ResponseEvent, error) {
	model := d.ModelName(req.Model)
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: d.convertMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = d.convertTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err := d.retry.Do(ctx, provider.IsRetryable, func() error {
		s, err := d.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return d.wrapError(err, model)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan provider.ResponseEvent)
	go d.processStream(ctx, stream, out, model)
	return out, nil
}

func (d *Driver) processStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- provider.ResponseEvent, model string) {
	defer close(out)
	defer stream.Close()

	accs := make(map[int]*provider.ToolCallAccumulator)
	order := make([]int, 0, 4)
	var usage provider.Usage

	flush := func() {
		for _, idx := range order {
			if id, name, args, ok := accs[idx].Finish(); ok && id != "" {
				out <- provider.ResponseEvent{Kind: provider.EventToolCallFragment, ToolCall: provider.ToolCallFragment{ID: id, Name: name, ArgumentsFragment: string(args)}}
			}
		}
		accs = make(map[int]*provider.ToolCallAccumulator)
		order = order[:0]
	}

	for {
		select {
		case <-ctx.Done():
			out <- provider.ResponseEvent{Kind: provider.EventError, Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				out <- provider.ResponseEvent{Kind: provider.EventUsage, Usage: usage}
				out <- provider.ResponseEvent{Kind: provider.EventDone}
				return
			}
			out <- provider.ResponseEvent{Kind: provider.EventError, Err: d.wrapError(err, model)}
			return
		}
		if resp.Usage != nil {
			usage.InputTokens = resp.Usage.PromptTokens
			usage.OutputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			out <- provider.ResponseEvent{Kind: provider.EventTextDelta, Text: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, seen := accs[idx]
			if !seen {
				acc = &provider.ToolCallAccumulator{}
				accs[idx] = acc
				order = append(order, idx)
			}
			if tc.ID != "" || tc.Function.Name != "" {
				acc.Start(tc.ID, tc.Function.Name)
			}
			if tc.Function.Arguments != "" {
				acc.Append(tc.Function.Arguments)
			}
		}
		if choice.FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

func (d *Driver) convertMessages(messages []provider.RequestMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case "tool":
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.ToolResult,
				ToolCallID: m.ToolCallID,
			})
		case "assistant":
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text}
			if m.ToolName != "" {
				msg.ToolCalls = []openai.ToolCall{{
					ID:   m.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      m.ToolName,
						Arguments: string(m.ToolArgs),
					},
				}}
			}
			result = append(result, msg)
		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
		}
	}
	return result
}

func (d *Driver) convertTools(tools []provider.ToolSchema) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		})
	}
	return result
}

func (d *Driver) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := provider.NewError(d.name, model, err).WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Message != "" {
			pe = pe.WithMessage(apiErr.Message)
		}
		if code, ok := apiErr.Code.(string); ok && code != "" {
			pe = pe.WithCode(code)
		}
		return pe
	}
	return provider.NewError(d.name, model, err)
}
