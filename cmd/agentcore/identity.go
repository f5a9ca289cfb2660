package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oskarlindberg/agentcore/internal/mesh/identity"
)

func buildIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Print this node's mesh PeerID, generating one if none exists yet.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			id, err := identity.LoadOrCreate(cfg.Mesh.IdentityPath)
			if err != nil {
				return fmt.Errorf("load identity: %w", err)
			}
			fmt.Println(id.ID)
			return nil
		},
	}
	return cmd
}
