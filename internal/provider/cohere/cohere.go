// Package cohere drives Cohere's chat-stream API as a provider.Provider.
//
// Cohere ships no official streaming Go SDK with a stable v1 chat-stream
// surface in the wild the way Anthropic and OpenAI do, so this driver talks
// the documented REST+NDJSON wire format directly: one POST to /chat with
// "stream": true, response body one JSON object per line. The request/
// response shapes below (message, chat_history, tool_results,
// parameter_definitions, the text-generation/tool-calls-generation/
// stream-end event names) are grounded on digitallysavvy-go-ai's Cohere
// provider, which wraps the same endpoint.
package cohere

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oskarlindberg/agentcore/internal/provider"
)

const defaultBaseURL = "https://api.cohere.ai/v1"

// Config configures a Driver. APIKey is required; everything else has a
// default matching Cohere's current flagship chat model.
type Config struct {
	APIKey       string
	BaseURL      string // empty means defaultBaseURL
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration

	// HTTPClient overrides the client used for requests; nil uses
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Driver implements provider.Provider against Cohere's /chat endpoint.
type Driver struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	defaultModel string
	retry        provider.Retrier
}

// New builds a Driver, applying defaults for every optional Config field.
func New(cfg Config) (*Driver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("cohere: API key is required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "command-r-plus"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Driver{
		httpClient:   httpClient,
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		defaultModel: defaultModel,
		retry:        provider.NewRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

func (d *Driver) Name() string { return "cohere" }

func (d *Driver) ModelName(requested string) string {
	if requested == "" {
		return d.defaultModel
	}
	return requested
}

func (d *Driver) ListModels() []provider.Model {
	return []provider.Model{
		{ID: "command-r-plus", Name: "Command R+", ContextWindow: 128000, SupportsVision: false},
		{ID: "command-r", Name: "Command R", ContextWindow: 128000, SupportsVision: false},
		{ID: "command", Name: "Command", ContextWindow: 4096, SupportsVision: false},
		{ID: "command-light", Name: "Command Light", ContextWindow: 4096, SupportsVision: false},
	}
}

func (d *Driver) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ResponseEvent, error) {
	model := d.ModelName(req.Model)
	body, err := d.buildRequestBody(req, model)
	if err != nil {
		return nil, err
	}

	out := make(chan provider.ResponseEvent)
	go func() {
		defer close(out)

		var resp *http.Response
		runErr := d.retry.Do(ctx, provider.IsRetryable, func() error {
			r, err := d.post(ctx, body)
			if err != nil {
				return d.wrapError(err, model)
			}
			if r.StatusCode >= 400 {
				apiErr := d.wrapHTTPError(r, model)
				r.Body.Close()
				return apiErr
			}
			resp = r
			return nil
		})
		if runErr != nil {
			out <- provider.ResponseEvent{Kind: provider.EventError, Err: runErr}
			return
		}
		d.processStream(ctx, resp.Body, out, model)
	}()
	return out, nil
}

func (d *Driver) post(ctx context.Context, body map[string]any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("cohere: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	return d.httpClient.Do(httpReq)
}

func (d *Driver) buildRequestBody(req *provider.CompletionRequest, model string) (map[string]any, error) {
	message, history, toolResults := convertMessages(req.Messages)
	body := map[string]any{
		"model":  model,
		"stream": true,
	}
	if message != "" {
		body["message"] = message
	}
	if len(history) > 0 {
		body["chat_history"] = history
	}
	if len(toolResults) > 0 {
		body["tool_results"] = toolResults
	}
	if req.System != "" {
		body["preamble"] = req.System
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		body["tools"] = tools
	}
	return body, nil
}

// cohereChatMessage is one chat_history entry. Cohere's roles are USER,
// CHATBOT and SYSTEM; tool turns travel separately via top-level
// tool_results rather than as chat_history entries.
type cohereChatMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type cohereToolResult struct {
	Call struct {
		Name       string         `json:"name"`
		Parameters map[string]any `json:"parameters"`
	} `json:"call"`
	Outputs []map[string]any `json:"outputs"`
}

// convertMessages splits the flattened RequestMessage list into Cohere's
// three-part shape: the final message, when it is a user message, as
// message; every other user and assistant message, in order, as
// chat_history (an assistant tool call as its JSON arguments); and every
// tool message in the list as tool_results. Tool results are not limited
// to those answering the most recent tool calls.
func convertMessages(messages []provider.RequestMessage) (message string, history []cohereChatMessage, toolResults []cohereToolResult) {
	for i, m := range messages {
		isLast := i == len(messages)-1
		switch m.Role {
		case "tool":
			var tr cohereToolResult
			tr.Call.Name = m.ToolName
			tr.Outputs = []map[string]any{{"result": m.ToolResult, "is_error": m.IsError}}
			toolResults = append(toolResults, tr)
		case "assistant":
			if m.ToolName != "" && len(m.ToolArgs) > 0 {
				var params map[string]any
				if err := json.Unmarshal(m.ToolArgs, &params); err == nil {
					if b, err := json.Marshal(params); err == nil {
						history = append(history, cohereChatMessage{Role: "CHATBOT", Message: string(b)})
					}
				}
				continue
			}
			if m.Text != "" {
				history = append(history, cohereChatMessage{Role: "CHATBOT", Message: m.Text})
			}
		default:
			if m.Text == "" {
				continue
			}
			if isLast {
				message = m.Text
				continue
			}
			history = append(history, cohereChatMessage{Role: "USER", Message: m.Text})
		}
	}
	return message, history, toolResults
}

// cohereParameter is one entry of a tool's parameter_definitions map.
type cohereParameter struct {
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
}

// convertTools translates provider.ToolSchema's JSON Schema parameters into
// Cohere's own parameter_definitions shape, which names types with its own
// short vocabulary (str, float, bool, ...) rather than accepting a raw JSON
// Schema document, the same adaptation google.go performs for Gemini.
func convertTools(tools []provider.ToolSchema) ([]map[string]any, error) {
	result := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		var schema struct {
			Properties map[string]struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			} `json:"properties"`
			Required []string `json:"required"`
		}
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("cohere: invalid schema for %s: %w", t.Name, err)
		}
		required := make(map[string]bool, len(schema.Required))
		for _, r := range schema.Required {
			required[r] = true
		}
		defs := make(map[string]cohereParameter, len(schema.Properties))
		for name, prop := range schema.Properties {
			defs[name] = cohereParameter{
				Description: prop.Description,
				Type:        cohereParamType(prop.Type),
				Required:    required[name],
			}
		}
		result = append(result, map[string]any{
			"name":                 t.Name,
			"description":          t.Description,
			"parameter_definitions": defs,
		})
	}
	return result, nil
}

func cohereParamType(jsonSchemaType string) string {
	switch jsonSchemaType {
	case "integer", "number":
		return "float"
	case "boolean":
		return "bool"
	case "array":
		return "list"
	case "object":
		return "dict"
	default:
		return "str"
	}
}

// cohereStreamEvent is the union of every NDJSON line the /chat endpoint
// can emit, decoded permissively: each event kind only ever populates the
// fields relevant to its event_type.
type cohereStreamEvent struct {
	EventType string `json:"event_type"`
	Text      string `json:"text"`
	ToolCalls []struct {
		Name       string         `json:"name"`
		Parameters map[string]any `json:"parameters"`
	} `json:"tool_calls"`
	FinishReason string `json:"finish_reason"`
	Response     struct {
		Meta struct {
			Tokens struct {
				InputTokens  float64 `json:"input_tokens"`
				OutputTokens float64 `json:"output_tokens"`
			} `json:"tokens"`
			BilledUnits struct {
				InputTokens  float64 `json:"input_tokens"`
				OutputTokens float64 `json:"output_tokens"`
			} `json:"billed_units"`
		} `json:"meta"`
	} `json:"response"`
}

// maxScannerLine bounds a single NDJSON line; Cohere's stream-end event
// carries the full accumulated response and can run long.
const maxScannerLine = 1 << 20

// processStream reads one line-delimited JSON object per event off body,
// translating each into the common ResponseEvent protocol. Cohere never
// streams a tool call's arguments incrementally — the whole call arrives in
// one tool-calls-generation event — so each call is started, appended and
// finished within the same iteration, exactly like google.go's Gemini
// driver does for the same reason.
func (d *Driver) processStream(ctx context.Context, body io.ReadCloser, out chan<- provider.ResponseEvent, model string) {
	defer body.Close()

	acc := provider.ToolCallAccumulator{}
	var usage provider.Usage
	toolCallSeq := 0

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerLine)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- provider.ResponseEvent{Kind: provider.EventError, Err: ctx.Err()}
			return
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event cohereStreamEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}

		switch event.EventType {
		case "text-generation":
			if event.Text != "" {
				out <- provider.ResponseEvent{Kind: provider.EventTextDelta, Text: event.Text}
			}

		case "tool-calls-generation":
			for _, tc := range event.ToolCalls {
				argsJSON, err := json.Marshal(tc.Parameters)
				if err != nil {
					argsJSON = []byte("{}")
				}
				toolCallSeq++
				id := fmt.Sprintf("call_%s_%d", tc.Name, toolCallSeq)
				acc.Start(id, tc.Name)
				acc.Append(string(argsJSON))
				callID, callName, callArgs, ok := acc.Finish()
				if ok {
					out <- provider.ResponseEvent{Kind: provider.EventToolCallFragment, ToolCall: provider.ToolCallFragment{ID: callID, Name: callName, ArgumentsFragment: string(callArgs)}}
				}
			}

		case "stream-end":
			tokens := event.Response.Meta.Tokens
			if tokens.InputTokens == 0 && tokens.OutputTokens == 0 {
				tokens = event.Response.Meta.BilledUnits
			}
			usage.InputTokens = int(tokens.InputTokens)
			usage.OutputTokens = int(tokens.OutputTokens)
			out <- provider.ResponseEvent{Kind: provider.EventUsage, Usage: usage}
			out <- provider.ResponseEvent{Kind: provider.EventDone}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		out <- provider.ResponseEvent{Kind: provider.EventError, Err: d.wrapError(err, model)}
		return
	}
	out <- provider.ResponseEvent{Kind: provider.EventUsage, Usage: usage}
	out <- provider.ResponseEvent{Kind: provider.EventDone}
}

type cohereErrorPayload struct {
	Message string `json:"message"`
}

func (d *Driver) wrapHTTPError(resp *http.Response, model string) error {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	pe := provider.NewError("cohere", model, fmt.Errorf("cohere: http %d", resp.StatusCode)).WithStatus(resp.StatusCode)
	var payload cohereErrorPayload
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		pe = pe.WithMessage(payload.Message)
	}
	return pe
}

func (d *Driver) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := provider.AsError(err); ok {
		return err
	}
	return provider.NewError("cohere", model, err)
}
