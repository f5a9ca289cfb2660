// Package bedrock drives the AWS Bedrock Converse streaming API as a
// provider.Provider, giving access to whichever foundation models an
// account has enabled (Anthropic, Titan, Llama, Mistral, Cohere...).
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/oskarlindberg/agentcore/internal/provider"
)

// Config configures a Driver against an AWS account's Bedrock runtime.
type Config struct {
	Region          string
	AccessKeyID     string // optional; falls back to the default credential chain
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
	RetryDelay      time.Duration
}

// Driver implements provider.Provider against bedrockruntime.ConverseStream.
type Driver struct {
	client       *bedrockruntime.Client
	defaultModel string
	retry        provider.Retrier
}

// New builds a Driver, loading AWS credentials from cfg if given or the
// default chain (environment, shared config, IAM role) otherwise.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &Driver{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		retry:        provider.NewRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

func (d *Driver) Name() string { return "bedrock" }

func (d *Driver) ModelName(requested string) string {
	if requested == "" {
		return d.defaultModel
	}
	return requested
}

func (d *Driver) ListModels() []provider.Model {
	return []provider.Model{
		{ID: "anthropic.claude-3-opus-20240229-v1:0", Name: "Claude 3 Opus (Bedrock)", ContextWindow: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-sonnet-20240229-v1:0", Name: "Claude 3 Sonnet (Bedrock)", ContextWindow: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextWindow: 200000, SupportsVision: true},
		{ID: "amazon.titan-text-express-v1", Name: "Titan Text Express", ContextWindow: 8192, SupportsVision: false},
		{ID: "meta.llama3-70b-instruct-v1:0", Name: "Llama 3 70B (Bedrock)", ContextWindow: 8192, SupportsVision: false},
		{ID: "mistral.mixtral-8x7b-instruct-v0:1", Name: "Mixtral 8x7B (Bedrock)", ContextWindow: 32768, SupportsVision: false},
		{ID: "cohere.command-r-plus-v1:0", Name: "Command R+ (Bedrock)", ContextWindow: 128000, SupportsVision: false},
	}
}

func (d *Driver) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ResponseEvent, error) {
	if d.client == nil {
		return nil, provider.NewError("bedrock", req.Model, errors.New("bedrock client not initialized"))
	}
	model := d.ModelName(req.Model)

	messages, err := d.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to convert messages: %w", err)
	}

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		converseReq.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		converseReq.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	}
	if len(req.Tools) > 0 {
		converseReq.ToolConfig = d.convertTools(req.Tools)
	}

	out := make(chan provider.ResponseEvent)
	go func() {
		defer close(out)

		var stream *bedrockruntime.ConverseStreamOutput
		runErr := d.retry.Do(ctx, provider.IsRetryable, func() error {
			resp, err := d.client.ConverseStream(ctx, converseReq)
			if err != nil {
				return d.wrapError(err, model)
			}
			stream = resp
			return nil
		})
		if runErr != nil {
			out <- provider.ResponseEvent{Kind: provider.EventError, Err: d.wrapError(runErr, model)}
			return
		}
		d.processStream(ctx, stream, out, model)
	}()
	return out, nil
}

func (d *Driver) processStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, out chan<- provider.ResponseEvent, model string) {
	eventStream := stream.GetStream()
	defer eventStream.Close()
	d.consumeEvents(ctx, eventStream.Events(), eventStream.Err, out, model)
}

// consumeEvents drains a channel of Bedrock Converse stream events into
// ResponseEvents. Split out from processStream so tests can feed it a fake
// event channel instead of standing up the AWS SDK's binary event-stream
// decoder end to end.
func (d *Driver) consumeEvents(ctx context.Context, eventChan <-chan types.ConverseStreamOutput, streamErr func() error, out chan<- provider.ResponseEvent, model string) {
	acc := provider.ToolCallAccumulator{}
	var usage provider.Usage

	for {
		select {
		case <-ctx.Done():
			out <- provider.ResponseEvent{Kind: provider.EventError, Err: ctx.Err()}
			return
		case event, ok := <-eventChan:
			if !ok {
				// Safety net for a stream that closes without a trailing
				// ContentBlockStop; normally acc is already inactive here.
				if id, name, args, had := acc.Finish(); had {
					out <- provider.ResponseEvent{Kind: provider.EventToolCallFragment, ToolCall: provider.ToolCallFragment{ID: id, Name: name, ArgumentsFragment: string(args)}}
				}
				if err := streamErr(); err != nil {
					out <- provider.ResponseEvent{Kind: provider.EventError, Err: d.wrapError(err, model)}
					return
				}
				out <- provider.ResponseEvent{Kind: provider.EventUsage, Usage: usage}
				out <- provider.ResponseEvent{Kind: provider.EventDone}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					acc.Start(aws.ToString(toolUse.Value.ToolUseId), aws.ToString(toolUse.Value.Name))
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						out <- provider.ResponseEvent{Kind: provider.EventTextDelta, Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						acc.Append(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				// Bedrock streams one content block at a time, so whatever
				// the accumulator holds here is exactly the block that just
				// closed. Flush it once, fully assembled: this is also the
				// only place the first tool call of a turn ever gets its
				// id/name announced, since ContentBlockStart alone has
				// nothing previous to flush for it.
				if id, name, args, ok := acc.Finish(); ok {
					out <- provider.ResponseEvent{Kind: provider.EventToolCallFragment, ToolCall: provider.ToolCallFragment{ID: id, Name: name, ArgumentsFragment: string(args)}}
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				// Usage lives in the Metadata event, which AWS sends after
				// MessageStop, not before — don't return yet, keep draining
				// the stream until Metadata arrives and the channel closes.

			case *types.ConverseStreamOutputMemberMetadata:
				if ev.Value.Usage != nil {
					usage.InputTokens = int(aws.ToInt32(ev.Value.Usage.InputTokens))
					usage.OutputTokens = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
				}
			}
		}
	}
}

func (d *Driver) convertMessages(messages []provider.RequestMessage) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}

		var content []types.ContentBlock
		if m.Text != "" {
			content = append(content, &types.ContentBlockMemberText{Value: m.Text})
		}
		if m.Role == "tool" {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.ToolResult}},
					Status:    toolResultStatus(m.IsError),
				},
			})
		}
		if m.Role == "assistant" && m.ToolName != "" && len(m.ToolArgs) > 0 {
			var input any
			if err := json.Unmarshal(m.ToolArgs, &input); err != nil {
				input = map[string]any{}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Name:      aws.String(m.ToolName),
					Input:     document.NewLazyDocument(input),
				},
			})
		}

		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		if len(content) > 0 {
			result = append(result, types.Message{Role: role, Content: content})
		}
	}
	return result, nil
}

func toolResultStatus(isError bool) types.ToolResultStatus {
	if isError {
		return types.ToolResultStatusError
	}
	return types.ToolResultStatusSuccess
}

func (d *Driver) convertTools(tools []provider.ToolSchema) *types.ToolConfiguration {
	bedrockTools := make([]types.Tool, len(tools))
	for i, t := range tools {
		var schema any
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		bedrockTools[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		}
	}
	return &types.ToolConfiguration{Tools: bedrockTools}
}

func (d *Driver) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := provider.AsError(err); ok {
		return err
	}
	pe := provider.NewError("bedrock", model, err)
	msg := err.Error()
	if strings.Contains(msg, "ThrottlingException") || strings.Contains(msg, "TooManyRequestsException") {
		pe.Reason = provider.FailoverRateLimit
	} else if strings.Contains(msg, "ServiceUnavailableException") {
		pe.Reason = provider.FailoverServerError
	}
	return pe
}
