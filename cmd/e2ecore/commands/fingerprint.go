package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaydenbeard/e2ecore/internal/keys"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print this account's identity fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}
			fmt.Println(keys.Fingerprint(client.Identity.Public))
			return nil
		},
	}
}
