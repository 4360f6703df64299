package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jaydenbeard/e2ecore/internal/keys"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage pairwise sessions",
	}
	cmd.AddCommand(sessionStartCmd())
	return cmd
}

// sessionStartCmd runs the initiator side of X3DH against a peer's
// exported bundle and persists the resulting ratchet session.
func sessionStartCmd() *cobra.Command {
	var peerID, bundleFile string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a pairwise session with a peer from their exported bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(bundleFile)
			if err != nil {
				return fmt.Errorf("read bundle: %w", err)
			}
			var bundle keys.PrekeyBundle
			if err := json.Unmarshal(raw, &bundle); err != nil {
				return fmt.Errorf("parse bundle: %w", err)
			}

			if err := client.StartPairwiseSession(peerID, &bundle); err != nil {
				return err
			}
			return saveClient(client)
		},
	}
	cmd.Flags().StringVar(&peerID, "peer", "", "peer id to key the session under")
	cmd.Flags().StringVar(&bundleFile, "bundle", "", "path to the peer's exported bundle JSON")
	cmd.MarkFlagRequired("peer")
	cmd.MarkFlagRequired("bundle")
	return cmd
}
