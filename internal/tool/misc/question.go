package misc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// AskQuestion lets the model pause a turn to request clarification from the
// operator. Execute calls the resolver and blocks until it returns; the
// agent loop's resolver emits a Question event and waits for the
// operator's QuestionAnswer, and the reply becomes the tool result the
// model sees.
type AskQuestion struct {
	resolve func(ctx context.Context, question string) (string, error)
}

// NewAskQuestion wires the tool to a resolver supplied by the agent loop,
// which emits the Question event and blocks on the operator reply.
func NewAskQuestion(resolve func(ctx context.Context, question string) (string, error)) *AskQuestion {
	return &AskQuestion{resolve: resolve}
}

func (t *AskQuestion) Name() string                       { return "ask_question" }
func (t *AskQuestion) Description() string                { return "Ask the operator a clarifying question and wait for their answer." }
func (t *AskQuestion) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *AskQuestion) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent} }
func (t *AskQuestion) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (t *AskQuestion) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"question":{"type":"string"}},"required":["question"]}`)
}

func (t *AskQuestion) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return &tool.Output{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if t.resolve == nil {
		return &tool.Output{Content: "no question resolver configured", IsError: true}, nil
	}
	answer, err := t.resolve(ctx, in.Question)
	if err != nil {
		return &tool.Output{Content: err.Error(), IsError: true}, nil
	}
	return &tool.Output{Content: answer}, nil
}
