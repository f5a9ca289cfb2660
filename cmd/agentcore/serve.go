package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oskarlindberg/agentcore/internal/controlplane"
	"github.com/oskarlindberg/agentcore/internal/mesh/allowlist"
	"github.com/oskarlindberg/agentcore/internal/mesh/discovery"
	"github.com/oskarlindberg/agentcore/internal/mesh/identity"
	"github.com/oskarlindberg/agentcore/internal/mesh/protocol"
	"github.com/oskarlindberg/agentcore/internal/mesh/transport"
	"github.com/oskarlindberg/agentcore/internal/observability"
	"github.com/oskarlindberg/agentcore/internal/tool/delegate"
)

func buildServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as a long-lived mesh node, accepting operator and peer connections.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), *cfg)
		},
	}
	return cmd
}

func runServe(parent context.Context, cfg Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := buildLogger(cfg.Logging)
	metrics := observability.NewMetrics()
	_, shutdownTracing := buildTracer(cfg.Tracing)
	if shutdownTracing != nil {
		defer shutdownTracing(context.Background())
	}

	provider, err := buildProvider(ctx, cfg.Provider)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	id, err := identity.LoadOrCreate(cfg.Mesh.IdentityPath)
	if err != nil {
		return fmt.Errorf("load mesh identity: %w", err)
	}
	noiseKey, err := transport.GenerateNoiseKeypair()
	if err != nil {
		return fmt.Errorf("generate noise keypair: %w", err)
	}

	allow := allowlist.New()
	for peerHex, role := range cfg.Mesh.Allowlist {
		switch role {
		case string(allowlist.RoleOperator):
			allow.Set(identity.PeerID(peerHex), allowlist.RoleOperator)
		case string(allowlist.RoleObserver):
			allow.Set(identity.PeerID(peerHex), allowlist.RoleObserver)
		default:
			logger.Warn(ctx, "ignoring allowlist entry with unknown role", "peer_id", peerHex, "role", role)
		}
	}

	card := protocol.AgentCard{
		PeerID:      string(id.ID),
		Name:        cfg.Mesh.NodeName,
		Description: cfg.Mesh.NodeDescription,
		Modes:       []string{"research", "plan", "agent"},
	}
	roster := protocol.NewRoster()
	client := protocol.NewClient(id, noiseKey, roster, card)

	rt := &runtime{
		cfg:        cfg,
		model:      provider,
		logger:     logger,
		metrics:    metrics,
		ledger:     delegate.NewLedger(cfg.Tools.MaxDelegated),
		selfID:     string(id.ID),
		peerRunner: client,
	}
	factory := rt.buildRegistryFactory()
	adminTools, _, _ := factory("admin", cfg.Workspace.Root)

	cp := controlplane.New(provider, cfg.Agent.MaxOutputTokens*8, cfg.Agent.MaxOutputTokens, factory, adminTools, metrics)
	localTask := rt.newNestedRunner(cfg.Workspace.Root)
	server := protocol.NewServer(id, noiseKey, allow, cp, localTask, card, logger, metrics)

	ln, err := net.Listen("tcp", cfg.Mesh.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Mesh.ListenAddr, err)
	}
	defer ln.Close()
	logger.Info(ctx, "mesh node listening", "addr", cfg.Mesh.ListenAddr, "peer_id", id.ID)

	stopDiscovery := startDiscovery(ctx, logger, cfg.Mesh, id, ln)
	defer stopDiscovery()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx, ln) }()

	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutting down")
		return nil
	case err := <-serveErr:
		return err
	}
}

// startDiscovery wires whichever of spec §4.G's two discovery mechanisms
// config enables and returns a cleanup func. It only makes this node
// findable: it advertises over mDNS and publishes once to the relay, and
// performs no mDNS lookups or relay polling, so nothing in this command
// dials or Announces to other peers.
func startDiscovery(ctx context.Context, logger *observability.Logger, cfg MeshConfig, id *identity.Identity, ln net.Listener) func() {
	var mdnsServer interface{ Shutdown() error }
	if cfg.Discovery.MDNS {
		_, port, err := net.SplitHostPort(ln.Addr().String())
		if err != nil {
			logger.Warn(ctx, "mdns advertise skipped: could not parse listen address", "err", err)
		} else {
			hostName, hostErr := os.Hostname()
			if hostErr != nil {
				hostName = string(id.ID)
			}
			var portNum int
			fmt.Sscanf(port, "%d", &portNum)
			srv, advErr := discovery.Advertise(string(id.ID), hostName, portNum)
			if advErr != nil {
				logger.Warn(ctx, "mdns advertise failed", "err", advErr)
			} else {
				mdnsServer = srv
				logger.Info(ctx, "advertising via mdns", "service", discovery.ServiceName)
			}
		}
	}

	if cfg.Discovery.RelayURL != "" && cfg.Discovery.RelayRoom != "" {
		relay := discovery.NewRelayClient(cfg.Discovery.RelayURL, cfg.Discovery.RelayRoom)
		if err := relay.Publish(ctx, discovery.RelayRecord{PeerID: string(id.ID), Address: ln.Addr().String()}); err != nil {
			logger.Warn(ctx, "relay publish failed", "err", err)
		} else {
			logger.Info(ctx, "published to relay", "room", cfg.Discovery.RelayRoom)
		}
	}

	return func() {
		if mdnsServer != nil {
			_ = mdnsServer.Shutdown()
		}
	}
}
