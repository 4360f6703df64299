package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jaydenbeard/e2ecore/internal/core"
	"github.com/jaydenbeard/e2ecore/internal/keys"
)

// initCmd creates a new local identity and signed prekey and seals them
// into the account file at --home/account.json.
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new local identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(accountPath()); err == nil {
				return fmt.Errorf("account already exists at %s", accountPath())
			}

			cfg, err := loadCoreConfig()
			if err != nil {
				return err
			}
			wrapper, err := identityWrapper(cfg)
			if err != nil {
				return err
			}
			client, err := core.New(cfg, core.WithIdentityWrapper(wrapper))
			if err != nil {
				return fmt.Errorf("creating identity: %w", err)
			}
			if err := saveClient(client); err != nil {
				return fmt.Errorf("saving account: %w", err)
			}

			fmt.Println("Identity created.")
			fmt.Printf("Fingerprint: %s\n", keys.Fingerprint(client.Identity.Public))
			return nil
		},
	}
}
