package delegate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// LocalDelegator spawns nested agent turns within the same process, handing
// a scoped subset of tools to the child via allow/deny lists the way the
// teacher's sub-agent manager scopes policy per spawn.
type LocalDelegator struct {
	ledger   *Ledger
	runner   TaskRunner
	selfID   string
	announce func(ctx context.Context, msg string)
}

func NewLocalDelegator(selfID string, runner TaskRunner, ledger *Ledger) *LocalDelegator {
	return &LocalDelegator{ledger: ledger, runner: runner, selfID: selfID}
}

// SetAnnouncer wires an optional callback fired when a task is spawned;
// cmd/agentcore uses it to log each spawn.
func (d *LocalDelegator) SetAnnouncer(fn func(ctx context.Context, msg string)) {
	d.announce = fn
}

func (d *LocalDelegator) Name() string              { return "delegate_task" }
func (d *LocalDelegator) Description() string {
	return "Delegate a task to a nested sub-agent running in this process and wait for its result."
}
func (d *LocalDelegator) DefaultPolicy() tool.Policy          { return tool.PolicyAsk }
func (d *LocalDelegator) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeAgent, tool.ModePlan} }
func (d *LocalDelegator) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (d *LocalDelegator) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "description": "short label for the sub-agent, e.g. researcher"},
			"task": {"type": "string", "description": "the task for the sub-agent to complete"},
			"allowed_tools": {"type": "array", "items": {"type": "string"}},
			"denied_tools": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["name", "task"]
	}`)
}

func (d *LocalDelegator) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Name         string   `json:"name"`
		Task         string   `json:"task"`
		AllowedTools []string `json:"allowed_tools"`
		DeniedTools  []string `json:"denied_tools"`
	}
	if err := mustUnmarshal(arguments, &in); err != nil {
		return errOutput("%v", err), nil
	}
	if in.Name == "" || in.Task == "" {
		return errOutput("name and task are required"), nil
	}

	dc := DelegationFromContext(ctx)
	if dc.Chain == nil {
		dc = Root(d.selfID)
	}
	next, err := dc.Next(in.Name)
	if err != nil {
		return errOutput("%v", err), nil
	}

	if !d.ledger.tryAcquire() {
		return errOutput("max active delegated tasks reached (%d)", d.ledger.maxActive), nil
	}
	defer d.ledger.release()

	t := d.ledger.start(d.selfID, in.Name, in.Task)
	if d.announce != nil {
		d.announce(ctx, fmt.Sprintf("delegating to sub-agent %q: %s", in.Name, in.Task))
	}

	childCtx := ContextWithDelegation(ctx, next)
	result, runErr := d.runner.RunTask(childCtx, in.Task, in.AllowedTools, in.DeniedTools)
	if runErr != nil {
		d.ledger.finish(t.ID, "", runErr.Error())
		return errOutput("sub-agent %q failed: %v", in.Name, runErr), nil
	}
	d.ledger.finish(t.ID, result, "")
	return &tool.Output{Content: result}, nil
}

// StatusTool reports on delegated tasks spawned by this agent, local or
// peer, sharing the same Ledger.
type StatusTool struct {
	ledger *Ledger
	selfID string
}

func NewStatusTool(selfID string, ledger *Ledger) *StatusTool {
	return &StatusTool{ledger: ledger, selfID: selfID}
}

func (t *StatusTool) Name() string                       { return "delegation_status" }
func (t *StatusTool) Description() string                { return "Check the status of delegated tasks, local or peer." }
func (t *StatusTool) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *StatusTool) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeAgent, tool.ModePlan} }
func (t *StatusTool) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (t *StatusTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"}}}`)
}

func (t *StatusTool) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := mustUnmarshal(arguments, &in); err != nil {
		return errOutput("%v", err), nil
	}

	if in.ID != "" {
		task, ok := t.ledger.Get(in.ID)
		if !ok {
			return errOutput("delegated task not found: %s", in.ID), nil
		}
		msg := fmt.Sprintf("task %s -> %s: %s\nstatus: %s\n", task.ID, task.Target, task.Description, task.Status)
		if task.Status == StatusCompleted {
			msg += "result: " + task.Result + "\n"
		}
		if task.Status == StatusFailed {
			msg += "error: " + task.Error + "\n"
		}
		return &tool.Output{Content: msg}, nil
	}

	tasks := t.ledger.ListByParent(t.selfID)
	if len(tasks) == 0 {
		return &tool.Output{Content: "no delegated tasks"}, nil
	}
	msg := fmt.Sprintf("active: %d/%d\n", t.ledger.ActiveCount(), t.ledger.maxActive)
	for _, task := range tasks {
		msg += fmt.Sprintf("- %s -> %s: %s (%s)\n", task.ID, task.Target, task.Description, task.Status)
	}
	return &tool.Output{Content: msg}, nil
}
