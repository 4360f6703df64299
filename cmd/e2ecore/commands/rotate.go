package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaydenbeard/e2ecore/internal/keys"
)

// rotateCmd groups the account's own key-rotation operations: signed
// prekey refresh and full identity key rotation.
func rotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate this account's own signed prekey or identity key",
	}
	cmd.AddCommand(rotateSignedPrekeyCmd(), rotateIdentityCmd())
	return cmd
}

// rotateSignedPrekeyCmd replaces the account's signed prekey with a
// freshly generated, freshly signed one and prints its new id; the
// updated bundle to re-upload is exported with "e2ecore bundle".
func rotateSignedPrekeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signed-prekey",
		Short: "Generate and adopt a new signed prekey",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}
			next, err := client.RotateSignedPrekey()
			if err != nil {
				return err
			}
			if err := saveClient(client); err != nil {
				return err
			}
			fmt.Printf("New signed prekey id: %d\n", next.ID)
			return nil
		},
	}
}

// rotateIdentityCmd replaces the account's long-term identity key pair
// with a freshly generated one, keeping the retired key available for
// the transition window.
func rotateIdentityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Generate and adopt a new long-term identity key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}
			newIdentity, err := client.RotateIdentityKey()
			if err != nil {
				return err
			}
			if err := saveClient(client); err != nil {
				return err
			}
			fmt.Printf("New fingerprint: %s\n", keys.Fingerprint(newIdentity.Public))
			return nil
		},
	}
}
