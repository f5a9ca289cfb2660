package misc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oskarlindberg/agentcore/internal/tool"
)

// LoadSkill reads a named Markdown skill file from a skills directory and
// returns its contents so the model can fold reusable procedure text into
// its own context on demand, rather than carrying every skill up front.
type LoadSkill struct {
	SkillsDir string
}

func NewLoadSkill(skillsDir string) *LoadSkill { return &LoadSkill{SkillsDir: skillsDir} }

func (t *LoadSkill) Name() string                       { return "load_skill" }
func (t *LoadSkill) Description() string                { return "Load a named skill's instructions into context." }
func (t *LoadSkill) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *LoadSkill) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent} }
func (t *LoadSkill) OutputCategory() tool.OutputCategory { return tool.CategoryInfo }

func (t *LoadSkill) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)
}

func (t *LoadSkill) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return &tool.Output{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	name := strings.TrimSuffix(filepath.Base(in.Name), filepath.Ext(in.Name))
	if name == "" || name == "." || name == ".." {
		return &tool.Output{Content: "invalid skill name", IsError: true}, nil
	}
	data, err := os.ReadFile(filepath.Join(t.SkillsDir, name+".md"))
	if err != nil {
		return &tool.Output{Content: fmt.Sprintf("skill not found: %s", name), IsError: true}, nil
	}
	return &tool.Output{Content: string(data)}, nil
}

// KnowledgeSearcher is a pluggable backend for search_knowledge, kept
// separate from Memory so a project can back it with whatever local index
// it already maintains.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// SearchKnowledge queries a project-local knowledge base.
type SearchKnowledge struct {
	Backend KnowledgeSearcher
}

func NewSearchKnowledge(backend KnowledgeSearcher) *SearchKnowledge {
	return &SearchKnowledge{Backend: backend}
}

func (t *SearchKnowledge) Name() string                       { return "search_knowledge" }
func (t *SearchKnowledge) Description() string                { return "Search the project's knowledge base." }
func (t *SearchKnowledge) DefaultPolicy() tool.Policy          { return tool.PolicyAuto }
func (t *SearchKnowledge) Modes() []tool.Mode                  { return []tool.Mode{tool.ModeResearch, tool.ModePlan, tool.ModeAgent} }
func (t *SearchKnowledge) OutputCategory() tool.OutputCategory { return tool.CategorySearch }

func (t *SearchKnowledge) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"query": {"type": "string"}, "limit": {"type": "integer"}},
		"required": ["query"]
	}`)
}

func (t *SearchKnowledge) Execute(ctx context.Context, callID string, arguments json.RawMessage) (*tool.Output, error) {
	if t.Backend == nil {
		return &tool.Output{Content: "no knowledge backend configured", IsError: true}, nil
	}
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(arguments, &in); err != nil {
		return &tool.Output{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	results, err := t.Backend.Search(ctx, in.Query, limit)
	if err != nil {
		return &tool.Output{Content: err.Error(), IsError: true}, nil
	}
	return &tool.Output{Content: strings.Join(results, "\n---\n")}, nil
}
