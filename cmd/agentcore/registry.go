package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/oskarlindberg/agentcore/internal/agentcore"
	"github.com/oskarlindberg/agentcore/internal/observability"
	"github.com/oskarlindberg/agentcore/internal/provider"
	"github.com/oskarlindberg/agentcore/internal/session"
	"github.com/oskarlindberg/agentcore/internal/tool"
	"github.com/oskarlindberg/agentcore/internal/tool/delegate"
	"github.com/oskarlindberg/agentcore/internal/tool/exec"
	"github.com/oskarlindberg/agentcore/internal/tool/fsutil"
	"github.com/oskarlindberg/agentcore/internal/tool/misc"
	"github.com/oskarlindberg/agentcore/internal/tool/search"
	"github.com/oskarlindberg/agentcore/internal/tool/web"
)

// runtime bundles the pieces buildRegistryFactory needs to close over,
// built once at startup and shared by every session a control plane opens.
type runtime struct {
	cfg        Config
	model      provider.Provider
	logger     *observability.Logger
	metrics    *observability.Metrics
	ledger     *delegate.Ledger
	selfID     string
	peerRunner delegate.PeerRunner // nil under chat; serve always sets it
}

// buildRegistryFactory returns the controlplane.RegistryFactory every new
// session uses to assemble its own tool.Registry and agentcore.Config. Each
// session gets its own ModeSwitcher, TodoTracker, AskQuestion, and
// LocalDelegator instances because those carry session-scoped state; the
// stateless built-ins (fsutil, exec, web, skill loader) are still
// reconstructed per session for simplicity, since they are cheap and
// sessions may run against different working directories.
func (rt *runtime) buildRegistryFactory() func(sessionID, workingDir string) (*tool.Registry, agentcore.Config, func(*agentcore.Agent)) {
	return func(sessionID, workingDir string) (*tool.Registry, agentcore.Config, func(*agentcore.Agent)) {
		if workingDir == "" {
			workingDir = rt.cfg.Workspace.Root
		}
		registry := tool.NewRegistry()
		fsCfg := fsutil.Config{Workspace: workingDir}
		registry.Register(fsutil.NewReadFile(fsCfg))
		registry.Register(fsutil.NewWriteFile(fsCfg))
		registry.Register(fsutil.NewEditFile(fsCfg))
		registry.Register(fsutil.NewDeleteFile(fsCfg))
		registry.Register(fsutil.NewListDir(fsCfg))
		registry.Register(fsutil.NewGlobFiles(fsCfg))
		registry.Register(fsutil.NewGrepFiles(fsCfg))
		registry.Register(search.New(search.Config{Workspace: workingDir}))

		execCfg := rt.cfg.Tools.Exec
		registry.Register(exec.New(exec.Config{
			Workspace:      workingDir,
			AllowPatterns:  execCfg.AllowPatterns,
			DenyPatterns:   execCfg.DenyPatterns,
			DefaultTimeout: execCfg.DefaultTimeout,
			DockerImage:    execCfg.DockerImage,
			RatePerMinute:  execCfg.RatePerMinute,
			BurstSize:      execCfg.BurstSize,
		}))

		// web_search is not registered: no search-API client backend is
		// wired anywhere in this module (see DESIGN.md), and web.Search
		// with a nil Backend only ever returns an error, which would be a
		// tool present in every session's schema that can never succeed.
		registry.Register(web.NewFetch())

		registry.Register(misc.NewMemory(workingDir))
		registry.Register(misc.NewTodoTracker())
		modeSwitcher := misc.NewModeSwitcher(tool.ModeAgent)
		registry.Register(modeSwitcher)
		registry.Register(misc.NewLoadSkill(filepath.Join(rt.cfg.Workspace.Root, rt.cfg.Workspace.SkillsDir)))

		var agentRef *agentcore.Agent
		registry.Register(misc.NewAskQuestion(func(ctx context.Context, q string) (string, error) {
			if agentRef == nil {
				return "", errors.New("agent not ready to answer questions yet")
			}
			return agentRef.AskResolver()(ctx, q)
		}))

		localDelegator := delegate.NewLocalDelegator(sessionID, rt.newNestedRunner(workingDir), rt.ledger)
		localDelegator.SetAnnouncer(func(ctx context.Context, msg string) {
			if rt.logger != nil {
				rt.logger.Info(ctx, "sub-agent task started", "session_id", sessionID, "msg", msg)
			}
		})
		registry.Register(localDelegator)
		registry.Register(delegate.NewStatusTool(sessionID, rt.ledger))

		if rt.peerRunner != nil {
			registry.Register(delegate.NewPeerDelegator(rt.selfID, rt.peerRunner, rt.ledger))
		}

		cfg := rt.cfg.Agent
		cfg.Metrics = rt.metrics
		cfg.Logger = rt.logger

		postInit := func(agent *agentcore.Agent) { agentRef = agent }
		return registry, cfg, postInit
	}
}

// nestedTaskRunner implements delegate.TaskRunner by running a complete,
// independent agent turn against its own session and (optionally
// allow/deny-filtered) copy of the tool registry the parent session was
// built with, then returning the concatenated assistant text — the same
// shape spec §4.F describes for a nested sub-agent's result.
type nestedTaskRunner struct {
	rt         *runtime
	workingDir string
}

func (rt *runtime) newNestedRunner(workingDir string) *nestedTaskRunner {
	return &nestedTaskRunner{rt: rt, workingDir: workingDir}
}

func (n *nestedTaskRunner) RunTask(ctx context.Context, task string, allowedTools, deniedTools []string) (string, error) {
	factory := n.rt.buildRegistryFactory()
	registry, cfg, postInit := factory("sub-"+task[:min(len(task), 8)], n.workingDir)
	registry = filterRegistry(registry, allowedTools, deniedTools)

	sess := session.New(n.rt.cfg.Agent.MaxOutputTokens*8, n.rt.cfg.Agent.MaxOutputTokens)
	agent := agentcore.New(sess, registry, n.rt.model, tool.ModeAgent, cfg)
	if postInit != nil {
		postInit(agent)
	}

	// Per ChannelSender's own doc, a one-shot caller like this one owns
	// Close: Submit blocks for the whole turn, so closing right after it
	// returns is safe and lets the range below terminate.
	sender := agentcore.NewChannelSender(32)
	done := make(chan error, 1)
	go func() {
		done <- agent.Submit(ctx, task, sender)
		sender.Close()
	}()

	var text string
	var turnErr error
	for ev := range sender.Events() {
		switch ev.Kind {
		case agentcore.EventTextComplete:
			text += ev.Text
		case agentcore.EventError:
			turnErr = ev.Err
		}
	}
	if err := <-done; err != nil {
		return text, err
	}
	return text, turnErr
}

// filterRegistry copies only the tools a delegated sub-agent is allowed to
// see out of full, per spec §4.F's allow/deny scoping for delegate_task. An
// empty allowedTools means "everything not explicitly denied."
func filterRegistry(full *tool.Registry, allowedTools, deniedTools []string) *tool.Registry {
	if len(allowedTools) == 0 && len(deniedTools) == 0 {
		return full
	}
	allow := toSet(allowedTools)
	deny := toSet(deniedTools)

	scoped := tool.NewRegistry()
	for _, t := range full.All() {
		name := t.Name()
		if deny[name] {
			continue
		}
		if len(allow) > 0 && !allow[name] {
			continue
		}
		scoped.Register(t)
	}
	return scoped
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
