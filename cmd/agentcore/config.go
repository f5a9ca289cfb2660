package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oskarlindberg/agentcore/internal/agentcore"
)

// ProviderConfig selects and configures the one model provider a node runs
// against. Kind picks the driver; the remaining fields are a union over
// what each driver's own Config needs, left empty where not applicable.
type ProviderConfig struct {
	Kind            string        `yaml:"kind"` // anthropic, openai, google, bedrock, cohere, mock
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	DefaultModel    string        `yaml:"default_model"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	AzureEndpoint   string        `yaml:"azure_endpoint"`
	AzureAPIVersion string        `yaml:"azure_api_version"`
	AWSRegion       string        `yaml:"aws_region"`
	AWSAccessKeyID  string        `yaml:"aws_access_key_id"`
	AWSSecretKey    string        `yaml:"aws_secret_access_key"`
	AWSSessionToken string        `yaml:"aws_session_token"`
	MockScriptPath  string        `yaml:"mock_script_path"` // YAML turns script for kind: mock
}

// LoggingConfig maps onto observability.LogConfig, minus Output (always
// stderr for a CLI process — stdout is reserved for REPL output in chat
// mode).
type LoggingConfig struct {
	Level          string   `yaml:"level"`
	Format         string   `yaml:"format"`
	AddSource      bool     `yaml:"add_source"`
	RedactPatterns []string `yaml:"redact_patterns"`
}

// TracingConfig maps onto observability.TraceConfig. No exporter is
// configurable yet: spans are created and ended but only exported once a
// deployment wires a SpanProcessor in code, per TraceConfig's own doc.
type TracingConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// WorkspaceConfig roots the filesystem tools and persistent memory.
type WorkspaceConfig struct {
	Root      string `yaml:"root"`
	SkillsDir string `yaml:"skills_dir"`
}

// ExecToolConfig maps onto internal/tool/exec.Config.
type ExecToolConfig struct {
	AllowPatterns  []string      `yaml:"allow_patterns"`
	DenyPatterns   []string      `yaml:"deny_patterns"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	DockerImage    string        `yaml:"docker_image"`
	RatePerMinute  float64       `yaml:"rate_per_minute"`
	BurstSize      int           `yaml:"burst_size"`
}

// ToolsConfig groups the tunables of built-in tools that have any.
type ToolsConfig struct {
	Exec         ExecToolConfig `yaml:"exec"`
	MaxDelegated int            `yaml:"max_delegated"` // delegate.Ledger's maxActive
}

// DiscoveryConfig controls which of spec §4.G's two peer-discovery
// mechanisms a node runs.
type DiscoveryConfig struct {
	MDNS      bool   `yaml:"mdns"`
	RelayURL  string `yaml:"relay_url"`
	RelayRoom string `yaml:"relay_room"`
}

// MeshConfig configures the mesh listener. Enabled is decoded but no
// command reads it: serve always listens on ListenAddr and registers
// delegate_to_peer, and chat never opens a listening socket.
type MeshConfig struct {
	Enabled         bool              `yaml:"enabled"`
	ListenAddr      string            `yaml:"listen_addr"`
	IdentityPath    string            `yaml:"identity_path"`
	NodeName        string            `yaml:"node_name"`
	NodeDescription string            `yaml:"node_description"`
	Allowlist       map[string]string `yaml:"allowlist"` // hex PeerID -> "operator"|"observer"
	Discovery       DiscoveryConfig   `yaml:"discovery"`
}

// Config is the top-level shape a deployment's YAML file decodes into.
// Agent embeds agentcore.Config directly, since that is the struct spec
// names as yaml.v3's consumer — every other section here exists only to
// get its fields *into* an agentcore.Config, a provider Config, or an
// observability Config at wiring time.
type Config struct {
	Agent     agentcore.Config `yaml:"agent"`
	Provider  ProviderConfig   `yaml:"provider"`
	Logging   LoggingConfig    `yaml:"logging"`
	Tracing   TracingConfig    `yaml:"tracing"`
	Workspace WorkspaceConfig  `yaml:"workspace"`
	Tools     ToolsConfig      `yaml:"tools"`
	Mesh      MeshConfig       `yaml:"mesh"`
}

func defaultConfig() Config {
	return Config{
		Agent: agentcore.Config{
			MaxToolRounds:       50,
			CompactionThreshold: 0.8,
			MaxOutputTokens:     4096,
		},
		Provider: ProviderConfig{Kind: "anthropic"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Workspace: WorkspaceConfig{
			Root:      ".",
			SkillsDir: ".agentcore/skills",
		},
		Tools: ToolsConfig{MaxDelegated: 5},
		Mesh: MeshConfig{
			ListenAddr:   "0.0.0.0:7420",
			IdentityPath: ".agentcore/identity.key",
		},
	}
}

// loadConfig reads a YAML file at path, expanding ${VAR} references against
// the process environment before parsing (so secrets like API keys can be
// kept out of the file itself), and decodes it over defaultConfig(). An
// unknown field or a second YAML document in the same file is rejected,
// matching the strictness of the teacher's own config loader minus its
// $include/JSON5 machinery, which this module has no library to support.
func loadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := defaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("parse config %s: expected a single YAML document", path)
	}
	return &cfg, nil
}
