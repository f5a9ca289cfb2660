package agentcore

import (
	"context"
	"strings"

	"github.com/oskarlindberg/agentcore/internal/message"
	"github.com/oskarlindberg/agentcore/internal/provider"
)

// compact implements the three-step compaction protocol of spec §4.D: ask
// the model to summarize the conversation, then atomically replace the
// session history with [system, assistant(summary)], recompute the token
// count, and emit ContextCompacted. Invoked at the top of Submit whenever
// the session is near its compaction threshold.
//
// Per spec §7.5, a failed summarization turn is not fatal: the original
// history is kept intact and Submit proceeds in degraded (uncompacted)
// mode rather than surfacing an error.
func (a *Agent) compact(ctx context.Context, sender EventSender) error {
	tokensBefore := a.session.EffectiveTokens()

	req := a.buildCompletionRequest(a.Mode())
	req.Tools = nil
	req.Messages = append(req.Messages, provider.RequestMessage{
		Role: string(message.RoleUser),
		Text: DefaultCompactionInstruction,
	})

	ch, err := a.model.Complete(ctx, req)
	if err != nil {
		if a.cfg.Logger != nil {
			a.cfg.Logger.Warn(ctx, "compaction turn failed, continuing with uncompacted history", "err", err)
		}
		if a.cfg.Metrics != nil {
			a.cfg.Metrics.CompactionsTotal.WithLabelValues("failed").Inc()
		}
		return nil
	}

	var summary strings.Builder
	streamFailed := false
compactLoop:
	for ev := range ch {
		switch ev.Kind {
		case provider.EventTextDelta:
			summary.WriteString(ev.Text)
		case provider.EventDone:
			break compactLoop
		case provider.EventError:
			streamFailed = true
			if a.cfg.Logger != nil {
				a.cfg.Logger.Warn(ctx, "compaction stream error, continuing with uncompacted history", "err", ev.Err)
			}
		}
	}
	if streamFailed {
		if a.cfg.Metrics != nil {
			a.cfg.Metrics.CompactionsTotal.WithLabelValues("failed").Inc()
		}
		return nil
	}

	snapshot := a.session.Snapshot()
	replacement := make([]message.Message, 0, 2)
	if len(snapshot) > 0 && snapshot[0].Role == message.RoleSystem {
		replacement = append(replacement, snapshot[0])
	} else {
		replacement = append(replacement, message.NewSystem(a.buildSystemPrompt(a.Mode())))
	}
	replacement = append(replacement, message.NewAssistant(summary.String()))

	a.session.ReplaceMessages(replacement)
	a.session.RecalculateTokens()

	tokensAfter := a.session.EffectiveTokens()
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.CompactionsTotal.WithLabelValues("success").Inc()
	}
	sender.Send(AgentEvent{Kind: EventContextCompacted, TokensBefore: tokensBefore, TokensAfter: tokensAfter})
	return nil
}
