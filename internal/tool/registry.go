package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/oskarlindberg/agentcore/internal/provider"
)

// MaxNameLength and MaxParamsSize bound a single tool call, protecting the
// registry from pathological or malicious argument payloads.
const (
	MaxNameLength = 256
	MaxParamsSize = 10 << 20
)

// Registry is a thread-safe collection of Tools, looked up by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t, replacing any existing tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs the named tool, recovering from panics and turning both
// unknown-tool and panic cases into an error Output rather than propagating
// a Go error — a single tool must never be able to crash the agent loop.
func (r *Registry) Execute(ctx context.Context, callID, name string, arguments json.RawMessage) (out *Output) {
	if len(name) > MaxNameLength {
		return &Output{CallID: callID, Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxNameLength), IsError: true}
	}
	if len(arguments) > MaxParamsSize {
		return &Output{CallID: callID, Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxParamsSize), IsError: true}
	}

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return &Output{CallID: callID, Content: "tool not found: " + name, IsError: true}
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = &Output{CallID: callID, Content: fmt.Sprintf("tool %s panicked: %v", name, rec), IsError: true}
		}
	}()

	if err := validateArguments(t, arguments); err != nil {
		return &Output{CallID: callID, Content: fmt.Sprintf("invalid arguments for %s: %v", name, err), IsError: true}
	}

	result, err := t.Execute(ctx, callID, arguments)
	if err != nil {
		return &Output{CallID: callID, Content: err.Error(), IsError: true}
	}
	if result == nil {
		return &Output{CallID: callID, IsError: true, Content: "tool returned no result"}
	}
	result.CallID = callID
	return result
}

// schemaCache holds one compiled *jsonschema.Schema per distinct parameter
// schema string, since most tools share a handful of schemas and compiling
// is the expensive part, not validating.
var schemaCache sync.Map

// validateArguments checks arguments against t's declared parameter schema
// before dispatch, so a malformed tool call fails with a descriptive error
// instead of reaching Execute's own ad-hoc field checks.
func validateArguments(t Tool, arguments json.RawMessage) error {
	schemaJSON := t.ParametersSchema()
	if len(schemaJSON) == 0 {
		return nil
	}

	compiled, err := compileSchema(schemaJSON)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(arguments, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}

	return compiled.Validate(decoded)
}

func compileSchema(schemaJSON json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaJSON)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// All returns every registered tool, in no particular order. Used for
// scoping a delegated subagent's registry and for the control plane's
// list_tools command.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// SchemasForMode returns the ToolSchema of every tool exposed under mode,
// for inclusion in a provider.CompletionRequest.
func (r *Registry) SchemasForMode(mode Mode) []provider.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]provider.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		if !SupportsMode(t, mode) {
			continue
		}
		out = append(out, provider.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParametersSchema(),
		})
	}
	return out
}

// NamesForMode returns the names of every tool exposed under mode.
func (r *Registry) NamesForMode(mode Mode) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name, t := range r.tools {
		if SupportsMode(t, mode) {
			out = append(out, name)
		}
	}
	return out
}
