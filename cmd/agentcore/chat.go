package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oskarlindberg/agentcore/internal/agentcore"
	"github.com/oskarlindberg/agentcore/internal/observability"
	"github.com/oskarlindberg/agentcore/internal/session"
	"github.com/oskarlindberg/agentcore/internal/tool"
	"github.com/oskarlindberg/agentcore/internal/tool/delegate"
)

func buildChatCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run a single interactive session against a terminal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			m := tool.Mode(mode)
			if m != tool.ModeResearch && m != tool.ModePlan && m != tool.ModeAgent {
				return fmt.Errorf("invalid --mode %q: must be research, plan, or agent", mode)
			}
			return runChat(cmd.Context(), *cfg, m)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(tool.ModeAgent), "initial operating mode: research, plan, or agent")
	return cmd
}

func runChat(parent context.Context, cfg Config, mode tool.Mode) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := buildLogger(cfg.Logging)
	metrics := observability.NewMetrics()

	provider, err := buildProvider(ctx, cfg.Provider)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	rt := &runtime{
		cfg:     cfg,
		model:   provider,
		logger:  logger,
		metrics: metrics,
		ledger:  delegate.NewLedger(cfg.Tools.MaxDelegated),
	}
	registry, agentCfg, postInit := rt.buildRegistryFactory()("local", cfg.Workspace.Root)

	sess := session.New(cfg.Agent.MaxOutputTokens*8, cfg.Agent.MaxOutputTokens)
	agent := agentcore.New(sess, registry, provider, mode, agentCfg)
	if postInit != nil {
		postInit(agent)
	}

	fmt.Printf("agentcore %s — mode=%s, provider=%s. Ctrl-D to exit.\n", version, mode, provider.Name())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		sender := agentcore.NewChannelSender(32)
		done := make(chan error, 1)
		go func() {
			done <- agent.Submit(ctx, line, sender)
			sender.Close()
		}()
		printEvents(agent, scanner, sender.Events())
		if err := <-done; err != nil {
			fmt.Fprintf(os.Stderr, "turn error: %v\n", err)
		}
	}
}

// printEvents renders one turn's AgentEvents to stdout the way an
// operator's terminal client would, draining the channel until it closes.
// An EventQuestion pauses the drain to read the operator's reply from the
// same scanner and deliver it via AnswerQuestion — safe because the
// Submit goroutine producing these events is blocked inside the
// ask_question tool call waiting for exactly that, not competing for
// stdin itself.
func printEvents(agent *agentcore.Agent, scanner *bufio.Scanner, events <-chan agentcore.AgentEvent) {
	for ev := range events {
		switch ev.Kind {
		case agentcore.EventTextDelta:
			fmt.Print(ev.Text)
		case agentcore.EventTextComplete:
			fmt.Println()
		case agentcore.EventToolCallStarted:
			fmt.Printf("\n[tool] %s(%s)\n", ev.ToolName, ev.ToolArgs)
		case agentcore.EventToolCallFinished:
			status := "ok"
			if ev.ToolIsError {
				status = "error"
			}
			fmt.Printf("[tool %s] %s\n", status, truncate(ev.ToolResult, 400))
		case agentcore.EventContextCompacted:
			fmt.Printf("[context compacted: %d -> %d tokens]\n", ev.TokensBefore, ev.TokensAfter)
		case agentcore.EventModeChanged:
			fmt.Printf("[mode changed to %s]\n", ev.Mode)
		case agentcore.EventQuestion:
			fmt.Printf("\n[question] %s\n> ", ev.Question)
			answer := ""
			if scanner.Scan() {
				answer = scanner.Text()
			}
			agent.AnswerQuestion(ev.QuestionID, answer)
		case agentcore.EventError:
			fmt.Fprintf(os.Stderr, "[error] %v\n", ev.Err)
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
