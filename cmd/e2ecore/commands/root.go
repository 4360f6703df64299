package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	// These flags are shared across all commands.
	homeDir    string
	passphrase string
)

// Execute builds and runs the root cobra command.
func Execute() error {
	root := &cobra.Command{
		Use:   "e2ecore",
		Short: "End-to-end encrypted messaging core: identity, sessions, groups, backups",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if homeDir == "" {
				if h, err := os.UserHomeDir(); err == nil {
					homeDir = filepath.Join(h, ".e2ecore")
				}
			}
			if err := os.MkdirAll(homeDir, 0o700); err != nil {
				return fmt.Errorf("creating home dir: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&homeDir, "home", "", "account directory (default: $HOME/.e2ecore)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the local account file")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		bundleCmd(),
		sessionCmd(),
		sendCmd(),
		recvCmd(),
		channelCmd(),
		backupCmd(),
		rotateCmd(),
	)

	return root.Execute()
}
