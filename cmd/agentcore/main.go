// Package main provides the agentcore CLI: a single binary that runs the
// agent loop of internal/agentcore either as a local interactive session
// or as a long-lived control-plane/mesh node other operators and agents
// can connect to, per spec §4.H and §4.G.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds:
//
//	go build -ldflags "-X main.version=v0.1.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configPath string

// buildRootCmd assembles the full command tree. Separated from main so
// tests can exercise it without going through os.Exit.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentcore",
		Short: "A tool-calling agent loop with local, headless, and mesh-networked operating modes.",
		Long: `agentcore runs an LLM agent loop against a pluggable tool registry, in
one of three modes: a local interactive session (chat), a headless
control-plane service other operators drive over the mesh (serve), or
as a peer in a mesh of other agentcore nodes.

Supported providers: Anthropic, OpenAI-compatible (OpenAI, Ollama,
OpenRouter), Google Gemini, AWS Bedrock, Cohere.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "agentcore.yaml", "path to the YAML config file")
	root.AddCommand(
		buildChatCmd(),
		buildServeCmd(),
		buildIdentityCmd(),
	)
	return root
}
