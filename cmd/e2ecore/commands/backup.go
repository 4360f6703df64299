package commands

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaydenbeard/e2ecore/internal/core"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore an encrypted backup of this account",
	}
	cmd.AddCommand(backupExportCmd(), backupRestoreCmd())
	return cmd
}

// backupExportCmd writes a standalone encrypted backup of the whole
// account to a file, independent of the live account.json.
func backupExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an encrypted backup of this account to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}
			pass, err := requirePassphrase()
			if err != nil {
				return err
			}

			ciphertext, nonce, salt, err := client.CreateBackup(pass, time.Now())
			if err != nil {
				return err
			}
			f := accountFile{
				Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
				Nonce:      base64.StdEncoding.EncodeToString(nonce),
				Salt:       base64.StdEncoding.EncodeToString(salt),
			}
			raw, err := json.MarshalIndent(f, "", "  ")
			if err != nil {
				return err
			}
			return os.WriteFile(out, raw, 0o600)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "path to write the backup file")
	cmd.MarkFlagRequired("out")
	return cmd
}

// backupRestoreCmd replaces the local account file with a backup file,
// after confirming the supplied passphrase actually opens it.
func backupRestoreCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the local account from a backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := requirePassphrase()
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read backup: %w", err)
			}
			var f accountFile
			if err := json.Unmarshal(raw, &f); err != nil {
				return fmt.Errorf("parse backup: %w", err)
			}

			ciphertext, err := base64.StdEncoding.DecodeString(f.Ciphertext)
			if err != nil {
				return fmt.Errorf("decode backup ciphertext: %w", err)
			}
			nonce, err := base64.StdEncoding.DecodeString(f.Nonce)
			if err != nil {
				return fmt.Errorf("decode backup nonce: %w", err)
			}
			salt, err := base64.StdEncoding.DecodeString(f.Salt)
			if err != nil {
				return fmt.Errorf("decode backup salt: %w", err)
			}

			cfg, err := loadCoreConfig()
			if err != nil {
				return err
			}
			wrapper, err := identityWrapper(cfg)
			if err != nil {
				return err
			}
			if _, _, _, err := core.DecodeBackup(ciphertext, nonce, salt, pass, wrapper); err != nil {
				return fmt.Errorf("decrypt backup: %w", err)
			}
			return os.WriteFile(accountPath(), raw, 0o600)
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "path to the backup file to restore")
	cmd.MarkFlagRequired("in")
	return cmd
}
