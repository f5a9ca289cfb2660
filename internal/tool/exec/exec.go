// Package exec implements the run_terminal_command tool: shell execution
// with a timeout, an allow/deny glob policy, and optional Docker sandboxing.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// Config controls how commands are screened and run.
type Config struct {
	Workspace      string
	AllowPatterns  []string // glob patterns; empty means allow everything not denied
	DenyPatterns   []string
	DefaultTimeout time.Duration
	DockerImage    string // when set, commands run inside this image via `docker run`

	// RatePerMinute caps how many commands this tool instance will start
	// per minute; 0 means unlimited. Protects a shared workspace from a
	// runaway loop of delegated sub-agents each spawning commands.
	RatePerMinute float64
	BurstSize     int
}

// Command runs shell commands in the workspace, subject to an allow/deny
// glob policy matched against the command's first whitespace-delimited
// token (the executable name).
type Command struct {
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config) *Command {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 2 * time.Minute
	}
	c := &Command{cfg: cfg}
	if cfg.RatePerMinute > 0 {
		burst := cfg.BurstSize
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60.0), burst)
	}
	return c
}

func (t *Command) Name() string        { return "run_terminal_command" }
func (t *Command) Description() string { return "Run a shell command in the workspace with a timeout." }
func (t *Command) DefaultPolicy() tool.Policy          { return tool.PolicyAsk }
func (t *Command) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeAgent} }
func (t *Command) OutputCategory() tool.OutputCategory { return tool.CategoryCommand }

func (t *Command) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string"},
			"cwd": {"type": "string"},
			"timeout_seconds": {"type": "integer", "minimum": 0}
		},
		"required": ["command"]
	}`)
}

func (t *Command) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Command        string `json:"command"`
		Cwd            string `json:"cwd"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return &tool.Output{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	command := strings.TrimSpace(in.Command)
	if command == "" {
		return &tool.Output{Content: "command is required", IsError: true}, nil
	}
	if !t.allowed(command) {
		return &tool.Output{Content: "command is blocked by policy: " + command, IsError: true}, nil
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return &tool.Output{Content: fmt.Sprintf("rate limit wait: %v", err), IsError: true}, nil
		}
	}

	timeout := t.cfg.DefaultTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := t.buildCmd(runCtx, command)
	if in.Cwd != "" {
		cmd.Dir = filepath.Join(t.cfg.Workspace, in.Cwd)
	} else if t.cfg.Workspace != "" {
		cmd.Dir = t.cfg.Workspace
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := struct {
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
		ExitCode int    `json:"exit_code"`
		TimedOut bool   `json:"timed_out"`
	}{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: runCtx.Err() == context.DeadlineExceeded,
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	} else if runErr != nil && !result.TimedOut {
		return &tool.Output{Content: runErr.Error(), IsError: true}, nil
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return &tool.Output{Content: fmt.Sprintf("encode result: %v", err), IsError: true}, nil
	}
	return &tool.Output{Content: string(payload), IsError: result.ExitCode != 0 || result.TimedOut}, nil
}

func (t *Command) buildCmd(ctx context.Context, command string) *exec.Cmd {
	if t.cfg.DockerImage != "" {
		return exec.CommandContext(ctx, "docker", "run", "--rm", "-i",
			"-v", t.cfg.Workspace+":/workspace", "-w", "/workspace",
			t.cfg.DockerImage, "sh", "-c", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

func (t *Command) allowed(command string) bool {
	executable := strings.Fields(command)[0]
	for _, pattern := range t.cfg.DenyPatterns {
		if ok, _ := filepath.Match(pattern, executable); ok {
			return false
		}
	}
	if len(t.cfg.AllowPatterns) == 0 {
		return true
	}
	for _, pattern := range t.cfg.AllowPatterns {
		if ok, _ := filepath.Match(pattern, executable); ok {
			return true
		}
	}
	return false
}
