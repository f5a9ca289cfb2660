package protocol

import "github.com/oskarlindberg/agentcore/internal/tool"

func toToolMode(s string) tool.Mode {
	switch tool.Mode(s) {
	case tool.ModeResearch, tool.ModePlan, tool.ModeAgent:
		return tool.Mode(s)
	default:
		return tool.ModeAgent
	}
}
