// Package google drives the Gemini API as a provider.Provider using the
// Google Gen AI Go SDK's streaming iterator.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/oskarlindberg/agentcore/internal/provider"
)

// Config configures a Driver. APIKey is required; everything else has a
// default matching a current fast general-purpose Gemini model.
type Config struct {
	APIKey       string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// Driver implements provider.Provider against the Gemini generateContent
// streaming API.
type Driver struct {
	client       *genai.Client
	defaultModel string
	retry        provider.Retrier
}

// New builds a Driver, applying defaults for every optional Config field.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	return &Driver{
		client:       client,
		defaultModel: cfg.DefaultModel,
		retry:        provider.NewRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

func (d *Driver) Name() string { return "google" }

func (d *Driver) ModelName(requested string) string {
	if requested == "" {
		return d.defaultModel
	}
	return requested
}

func (d *Driver) ListModels() []provider.Model {
	return []provider.Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextWindow: 1000000, SupportsVision: true},
		{ID: "gemini-2.0-flash-lite", Name: "Gemini 2.0 Flash Lite", ContextWindow: 1000000, SupportsVision: true},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextWindow: 2000000, SupportsVision: true},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ContextWindow: 1000000, SupportsVision: true},
	}
}

func (d *Driver) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ResponseEvent, error) {
	model := d.ModelName(req.Model)
	contents, err := d.convertMessages(req.Messages)
	if err != nil {
		return nil, provider.NewError("google", model, err)
	}
	config := d.buildConfig(req)

	out := make(chan provider.ResponseEvent)
	go func() {
		defer close(out)

		runErr := d.retry.Do(ctx, provider.IsRetryable, func() error {
			stream := d.client.Models.GenerateContentStream(ctx, model, contents, config)
			return d.processStream(ctx, stream, out, model)
		})
		if runErr != nil {
			if ctx.Err() != nil {
				out <- provider.ResponseEvent{Kind: provider.EventError, Err: ctx.Err()}
				return
			}
			out <- provider.ResponseEvent{Kind: provider.EventError, Err: d.wrapError(runErr, model)}
		}
	}()
	return out, nil
}

// processStream drains one Gemini stream into ResponseEvents, using a
// ToolCallAccumulator to flatten Gemini's whole-call-at-once function calls
// into the same fragment protocol every other driver emits. Gemini never
// sends a function call's arguments incrementally, so each call is started,
// appended once, and finished within the same iteration.
func (d *Driver) processStream(ctx context.Context, streamIter iter.Seq2[*genai.GenerateContentResponse, error], out chan<- provider.ResponseEvent, model string) error {
	acc := provider.ToolCallAccumulator{}
	var usage provider.Usage
	toolCallSeq := 0

	for resp, err := range streamIter {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					out <- provider.ResponseEvent{Kind: provider.EventTextDelta, Text: part.Text}
				}
				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					toolCallSeq++
					id := part.FunctionCall.Name
					if id == "" {
						id = fmt.Sprintf("call_%d", toolCallSeq)
					} else {
						id = fmt.Sprintf("call_%s_%d", id, toolCallSeq)
					}
					acc.Start(id, part.FunctionCall.Name)
					acc.Append(string(argsJSON))
					callID, callName, callArgs, ok := acc.Finish()
					if ok {
						out <- provider.ResponseEvent{Kind: provider.EventToolCallFragment, ToolCall: provider.ToolCallFragment{ID: callID, Name: callName}}
						out <- provider.ResponseEvent{Kind: provider.EventToolCallFragment, ToolCall: provider.ToolCallFragment{ArgumentsFragment: string(callArgs)}}
					}
				}
			}
		}
	}

	out <- provider.ResponseEvent{Kind: provider.EventUsage, Usage: usage}
	out <- provider.ResponseEvent{Kind: provider.EventDone}
	return nil
}

func (d *Driver) convertMessages(messages []provider.RequestMessage) ([]*genai.Content, error) {
	var result []*genai.Content
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		content := &genai.Content{}
		switch m.Role {
		case "assistant":
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if m.Text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: m.Text})
		}
		if m.Role == "assistant" && m.ToolName != "" && len(m.ToolArgs) > 0 {
			var args map[string]any
			if err := json.Unmarshal(m.ToolArgs, &args); err != nil {
				args = make(map[string]any)
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: m.ToolName, Args: args},
			})
		}
		if m.Role == "tool" {
			var response map[string]any
			if err := json.Unmarshal([]byte(m.ToolResult), &response); err != nil {
				response = map[string]any{"result": m.ToolResult, "error": m.IsError}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: m.ToolName, Response: response},
			})
		}
		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result, nil
}

func (d *Driver) convertTools(tools []provider.ToolSchema) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(t.Parameters, &schemaMap); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a decoded JSON Schema document into Gemini's
// Schema type, which uses upper-cased type names and its own struct shape
// rather than accepting a raw JSON Schema document.
func toGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}
	return schema
}

func (d *Driver) buildConfig(req *provider.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = d.convertTools(req.Tools)
	}
	return config
}

func (d *Driver) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := provider.AsError(err); ok {
		return err
	}
	return provider.NewError("google", model, err)
}
