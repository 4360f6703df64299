package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// bundleCmd exports the account's current prekey bundle for a peer to
// start a pairwise session against, out-of-band.
func bundleCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Export this account's prekey bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(client.Bundle(), "", "  ")
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Println(string(raw))
				return nil
			}
			return os.WriteFile(out, raw, 0o600)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "file to write the bundle to (default: stdout)")
	return cmd
}
