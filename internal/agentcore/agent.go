package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oskarlindberg/agentcore/internal/message"
	"github.com/oskarlindberg/agentcore/internal/observability"
	"github.com/oskarlindberg/agentcore/internal/provider"
	"github.com/oskarlindberg/agentcore/internal/session"
	"github.com/oskarlindberg/agentcore/internal/tool"
	"github.com/oskarlindberg/agentcore/internal/tool/misc"
)

// DefaultMaxToolRounds and DefaultCompactionThreshold match spec §4.D/§4.E's
// suggested defaults; callers override via Config.
const (
	DefaultMaxToolRounds         = 50
	DefaultCompactionThreshold   = 0.85
	DefaultCompactionInstruction = "Summarize this conversation so it can continue with minimal context. Preserve open tasks, decisions, and file paths already touched."
)

// Config holds the tunables spec §4.E groups under Agent.config. It carries
// yaml struct tags so a deployment can set every field from a config file
// (see cmd/agentcore); Metrics/Logger are wired programmatically afterward,
// never decoded from YAML.
type Config struct {
	MaxToolRounds       int     `yaml:"max_tool_rounds"`
	CompactionThreshold float64 `yaml:"compaction_threshold"`
	// SystemPromptSuffix is optional free text appended to the generated
	// system message (mode + tool names), e.g. project-specific guidance.
	SystemPromptSuffix string `yaml:"system_prompt_suffix"`
	MaxOutputTokens    int    `yaml:"max_output_tokens"`
	EnableThinking     bool   `yaml:"enable_thinking"`
	ThinkingBudget     int    `yaml:"thinking_budget"`
	ModelName          string `yaml:"model_name"`

	// Metrics and Logger are optional; when nil, the agent loop runs
	// without recording them (tests, and anyone not wiring observability).
	Metrics *observability.Metrics `yaml:"-"`
	Logger  *observability.Logger  `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.CompactionThreshold <= 0 {
		c.CompactionThreshold = DefaultCompactionThreshold
	}
	return c
}

// Agent is the agent loop described in spec §4.E: it owns a Session, a tool
// Registry, a model Provider, and the current operating Mode, and drives
// one Submit call through streaming, tool execution, and (when needed)
// compaction.
type Agent struct {
	session *session.Session
	tools   *tool.Registry
	model   provider.Provider
	cfg     Config

	modeMu sync.Mutex
	mode   tool.Mode

	cancelled atomic.Bool

	pendingQuestions sync.Map // question id -> chan string
}

// New constructs an Agent over sess, tools, and model, starting in
// initialMode.
func New(sess *session.Session, tools *tool.Registry, model provider.Provider, initialMode tool.Mode, cfg Config) *Agent {
	return &Agent{
		session: sess,
		tools:   tools,
		model:   model,
		mode:    initialMode,
		cfg:     cfg.withDefaults(),
	}
}

// Session returns the agent's underlying session.
func (a *Agent) Session() *session.Session { return a.session }

// Mode returns the current operating mode.
func (a *Agent) Mode() tool.Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.mode
}

func (a *Agent) setMode(m tool.Mode) {
	a.modeMu.Lock()
	a.mode = m
	a.modeMu.Unlock()
}

// Cancel requests the loop stop between rounds. An in-flight model call is
// allowed to finish first; aborting mid-stream would leave the tool-call
// buffer inconsistent. The request covers one Submit call and is cleared
// when that call returns.
func (a *Agent) Cancel() { a.cancelled.Store(true) }

type toolCallSpec struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Submit pushes user_input onto the session and drives the agentic loop to
// completion, emitting AgentEvents on sender as it goes. A non-nil error
// means the provider call itself failed (construction/transport); tool
// failures and the round-cap are reported as events, not errors.
func (a *Agent) Submit(ctx context.Context, userInput string, sender EventSender) error {
	defer a.cancelled.Store(false)
	if a.session.IsNearLimit(a.cfg.CompactionThreshold) {
		if err := a.compact(ctx, sender); err != nil {
			return err
		}
	}
	if a.session.Len() == 0 {
		a.session.Push(message.NewSystem(a.buildSystemPrompt(a.Mode())))
	}
	a.session.Push(message.NewUser(userInput))

	ctx = contextWithSender(ctx, sender)
	return a.runLoop(ctx, sender)
}

func (a *Agent) runLoop(ctx context.Context, sender EventSender) error {
	for round := 1; ; round++ {
		if a.cancelled.Load() {
			return nil
		}
		if round > a.cfg.MaxToolRounds {
			err := fmt.Errorf("exceeded max tool rounds (%d)", a.cfg.MaxToolRounds)
			if a.cfg.Logger != nil {
				a.cfg.Logger.Warn(observability.WithSessionID(ctx, a.session.ID), "round cap exceeded", "max_tool_rounds", a.cfg.MaxToolRounds)
			}
			sender.Send(AgentEvent{Kind: EventError, Err: err})
			return nil
		}

		mode := a.Mode()
		fullText, calls, err := a.streamOneTurn(ctx, mode, sender)
		if err != nil {
			return err
		}
		if fullText != "" {
			a.session.Push(message.NewAssistant(fullText))
		}
		if len(calls) == 0 {
			sender.Send(AgentEvent{Kind: EventTurnComplete})
			return nil
		}

		for _, call := range calls {
			sender.Send(AgentEvent{Kind: EventToolCallStarted, ToolCallID: call.ID, ToolName: call.Name, ToolArgs: string(call.Args)})
			a.session.Push(message.NewAssistantToolCall(call.ID, call.Name, string(call.Args)))

			sc := tool.NewSideChannel(tool.SideChannelCapacity)
			execCtx := tool.ContextWithSideChannel(ctx, sc)
			execCtx = observability.WithToolName(execCtx, call.Name)

			start := time.Now()
			output := a.tools.Execute(execCtx, call.ID, call.Name, call.Args)
			a.recordToolMetrics(call.Name, output.IsError, time.Since(start))

			for _, ev := range sc.Drain() {
				sender.Send(translateSideEvent(ev))
				if ev.Kind == tool.SideEventModeChanged {
					if m, ok := ev.Payload.(tool.Mode); ok {
						a.setMode(m)
					}
				}
			}

			sender.Send(AgentEvent{
				Kind:        EventToolCallFinished,
				ToolCallID:  call.ID,
				ToolName:    call.Name,
				ToolResult:  output.Content,
				ToolIsError: output.IsError,
			})
			a.session.Push(message.NewToolResult(call.ID, output.Content))
		}
	}
}

func translateSideEvent(ev tool.SideEvent) AgentEvent {
	switch ev.Kind {
	case tool.SideEventTodoUpdate:
		items, _ := ev.Payload.([]misc.TodoItem)
		return AgentEvent{Kind: EventTodoUpdate, TodoItems: items}
	case tool.SideEventModeChanged:
		m, _ := ev.Payload.(tool.Mode)
		return AgentEvent{Kind: EventModeChanged, Mode: m}
	default:
		return AgentEvent{Kind: EventError, Err: fmt.Errorf("unrecognized side event kind: %s", ev.Kind)}
	}
}

// streamOneTurn builds a CompletionRequest from the current session and
// mode, streams the provider's response, and returns the accumulated
// assistant text and any finalized tool calls.
func (a *Agent) streamOneTurn(ctx context.Context, mode tool.Mode, sender EventSender) (string, []toolCallSpec, error) {
	estimated := a.session.TokenCount + a.session.SchemaOverhead

	req := a.buildCompletionRequest(mode)
	start := time.Now()
	ch, err := a.model.Complete(ctx, req)
	if err != nil {
		a.recordProviderMetrics(req.Model, "error", time.Since(start))
		return "", nil, err
	}

	var acc provider.ToolCallAccumulator
	var calls []toolCallSpec
	var full strings.Builder

streamLoop:
	for ev := range ch {
		switch ev.Kind {
		case provider.EventTextDelta:
			if ev.Text != "" {
				full.WriteString(ev.Text)
				sender.Send(AgentEvent{Kind: EventTextDelta, Text: ev.Text})
			}
		case provider.EventThinkingDelta:
			sender.Send(AgentEvent{Kind: EventThinkingDelta, Text: ev.Text})
		case provider.EventToolCallFragment:
			frag := ev.ToolCall
			if frag.ID != "" {
				if prevID, prevName, prevArgs, had := acc.Start(frag.ID, frag.Name); had {
					calls = append(calls, toolCallSpec{ID: prevID, Name: prevName, Args: provider.FinalizeArguments(prevArgs)})
				}
			}
			if frag.ArgumentsFragment != "" {
				acc.Append(frag.ArgumentsFragment)
			}
		case provider.EventUsage:
			sender.Send(AgentEvent{Kind: EventTokenUsage, Usage: ev.Usage, ContextTotal: a.session.TokenCount})
			actual := ev.Usage.InputTokens + ev.Usage.CacheReadTokens
			a.session.UpdateCalibration(actual, estimated)
			a.session.AddCacheUsage(int64(ev.Usage.CacheReadTokens), int64(ev.Usage.CacheWriteTokens))
			a.recordTokenMetrics(req.Model, ev.Usage)
		case provider.EventDone:
			break streamLoop
		case provider.EventError:
			sender.Send(AgentEvent{Kind: EventError, Err: ev.Err})
		}
	}
	a.recordProviderMetrics(req.Model, "success", time.Since(start))

	if id, name, args, ok := acc.Finish(); ok {
		calls = append(calls, toolCallSpec{ID: id, Name: name, Args: provider.FinalizeArguments(args)})
	}

	text := full.String()
	if text != "" {
		sender.Send(AgentEvent{Kind: EventTextComplete, Text: text})
	}
	return text, calls, nil
}

func (a *Agent) buildSystemPrompt(mode tool.Mode) string {
	names := a.tools.NamesForMode(mode)
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "You are operating in %s mode.", mode)
	if len(names) > 0 {
		b.WriteString(" Available tools: ")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString(".")
	}
	if a.cfg.SystemPromptSuffix != "" {
		b.WriteString("\n\n")
		b.WriteString(a.cfg.SystemPromptSuffix)
	}
	return b.String()
}

func (a *Agent) buildCompletionRequest(mode tool.Mode) *provider.CompletionRequest {
	snapshot := a.session.Snapshot()

	var system string
	messages := make([]provider.RequestMessage, 0, len(snapshot))
	for i, m := range snapshot {
		if i == 0 && m.Role == message.RoleSystem {
			system, _ = m.Text()
			continue
		}
		messages = append(messages, toRequestMessage(m))
	}

	return &provider.CompletionRequest{
		Model:          a.cfg.ModelName,
		System:         system,
		Messages:       messages,
		Tools:          a.tools.SchemasForMode(mode),
		MaxTokens:      a.cfg.MaxOutputTokens,
		EnableThinking: a.cfg.EnableThinking,
		ThinkingBudget: a.cfg.ThinkingBudget,
	}
}

func toRequestMessage(m message.Message) provider.RequestMessage {
	switch m.Content.Kind {
	case message.KindToolCall:
		return provider.RequestMessage{
			Role:       string(m.Role),
			ToolCallID: m.Content.ToolCall.ToolCallID,
			ToolName:   m.Content.ToolCall.FunctionName,
			ToolArgs:   json.RawMessage(m.Content.ToolCall.ArgumentsRaw),
		}
	case message.KindToolResult:
		return provider.RequestMessage{
			Role:       string(m.Role),
			ToolCallID: m.Content.ToolResult.ToolCallID,
			ToolResult: m.Content.ToolResult.Text,
		}
	default:
		text, _ := m.Text()
		return provider.RequestMessage{Role: string(m.Role), Text: text}
	}
}

// AnswerQuestion delivers answer to a pending ask_question resolution
// identified by id, returning false if no such question is outstanding
// (already answered, timed out, or never asked).
func (a *Agent) AnswerQuestion(id, answer string) bool {
	v, ok := a.pendingQuestions.Load(id)
	if !ok {
		return false
	}
	ch := v.(chan string)
	select {
	case ch <- answer:
	default:
	}
	return true
}

// askResolver implements the function signature misc.AskQuestion expects:
// it emits an EventQuestion on the sender attached to ctx, blocks until
// AnswerQuestion delivers a reply or ctx is cancelled, and emits
// EventQuestionAnswer once resolved.
func (a *Agent) askResolver(ctx context.Context, question string) (string, error) {
	sender, ok := senderFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("ask_question: no event sender bound to context")
	}

	id := uuid.NewString()
	answerCh := make(chan string, 1)
	a.pendingQuestions.Store(id, answerCh)
	defer a.pendingQuestions.Delete(id)

	sender.Send(AgentEvent{Kind: EventQuestion, QuestionID: id, Question: question})

	select {
	case ans := <-answerCh:
		sender.Send(AgentEvent{Kind: EventQuestionAnswer, QuestionID: id, Text: ans})
		return ans, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AskResolver returns the resolver function to hand to misc.NewAskQuestion
// when wiring this agent's tool registry.
func (a *Agent) AskResolver() func(ctx context.Context, question string) (string, error) {
	return a.askResolver
}

func (a *Agent) recordToolMetrics(toolName string, isError bool, d time.Duration) {
	if a.cfg.Metrics == nil {
		return
	}
	status := "success"
	if isError {
		status = "error"
	}
	a.cfg.Metrics.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	a.cfg.Metrics.ToolExecutionDuration.WithLabelValues(toolName, status).Observe(d.Seconds())
}

func (a *Agent) recordProviderMetrics(model, status string, d time.Duration) {
	if a.cfg.Metrics == nil {
		return
	}
	a.cfg.Metrics.ProviderRequestDuration.WithLabelValues(a.model.Name(), model, status).Observe(d.Seconds())
}

func (a *Agent) recordTokenMetrics(model string, usage provider.Usage) {
	if a.cfg.Metrics == nil {
		return
	}
	m := a.cfg.Metrics
	providerName := a.model.Name()
	m.TokensUsed.WithLabelValues(providerName, model, "input").Add(float64(usage.InputTokens))
	m.TokensUsed.WithLabelValues(providerName, model, "output").Add(float64(usage.OutputTokens))
	m.TokensUsed.WithLabelValues(providerName, model, "cache_read").Add(float64(usage.CacheReadTokens))
	m.TokensUsed.WithLabelValues(providerName, model, "cache_write").Add(float64(usage.CacheWriteTokens))
}

type senderContextKey struct{}

func contextWithSender(ctx context.Context, s EventSender) context.Context {
	return context.WithValue(ctx, senderContextKey{}, s)
}

func senderFromContext(ctx context.Context) (EventSender, bool) {
	s, ok := ctx.Value(senderContextKey{}).(EventSender)
	return s, ok
}
