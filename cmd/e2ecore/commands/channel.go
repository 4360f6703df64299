package commands

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func channelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage group channel sender keys and messages",
	}
	cmd.AddCommand(channelCreateCmd(), channelRotateCmd(), channelSealCmd(), channelSendCmd())
	return cmd
}

// channelCreateCmd generates this account's sending sender key for a
// channel, replacing any it already holds there.
func channelCreateCmd() *cobra.Command {
	var channelID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate this account's sending sender key for a channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}
			if _, err := client.CreateChannelSenderKey(channelID); err != nil {
				return err
			}
			return saveClient(client)
		},
	}
	cmd.Flags().StringVar(&channelID, "channel", "", "channel id")
	cmd.MarkFlagRequired("channel")
	return cmd
}

// channelRotateCmd generates a fresh sender key for a channel this
// account already distributes to, clearing the distributed mark so the
// caller knows to reseal and redistribute the new key to every
// remaining member (for example after someone leaves the channel).
func channelRotateCmd() *cobra.Command {
	var channelID string
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate this account's sending sender key for a channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}
			if _, err := client.RotateSenderKey(channelID); err != nil {
				return err
			}
			return saveClient(client)
		},
	}
	cmd.Flags().StringVar(&channelID, "channel", "", "channel id")
	cmd.MarkFlagRequired("channel")
	return cmd
}

// channelSealCmd seals this account's current sender key for one
// recipient's identity public key, to distribute over a pairwise
// session before the first group message.
func channelSealCmd() *cobra.Command {
	var channelID, recipientIdentity, out string
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Seal this account's current sender key for one recipient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}

			recipientPub, err := base64.StdEncoding.DecodeString(recipientIdentity)
			if err != nil {
				return fmt.Errorf("decode recipient identity: %w", err)
			}

			sealed, err := client.SealSenderKeyFor(channelID, ed25519.PublicKey(recipientPub))
			if err != nil {
				return err
			}
			if err := saveClient(client); err != nil {
				return err
			}

			encoded := base64.StdEncoding.EncodeToString(sealed)
			if out == "" {
				fmt.Println(encoded)
				return nil
			}
			return os.WriteFile(out, []byte(encoded), 0o600)
		},
	}
	cmd.Flags().StringVar(&channelID, "channel", "", "channel id")
	cmd.Flags().StringVar(&recipientIdentity, "recipient-identity", "", "recipient's base64 Ed25519 identity public key")
	cmd.Flags().StringVar(&out, "out", "", "file to write the sealed distribution message to (default: stdout)")
	cmd.MarkFlagRequired("channel")
	cmd.MarkFlagRequired("recipient-identity")
	return cmd
}

// channelSendCmd encrypts a group message on this account's current
// sender key.
func channelSendCmd() *cobra.Command {
	var channelID, message, out string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Encrypt a group message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}

			frame, err := client.SendGroup(channelID, []byte(message))
			if err != nil {
				return err
			}
			if err := saveClient(client); err != nil {
				return err
			}

			encoded := base64.StdEncoding.EncodeToString(frame)
			if out == "" {
				fmt.Println(encoded)
				return nil
			}
			return os.WriteFile(out, []byte(encoded), 0o600)
		},
	}
	cmd.Flags().StringVar(&channelID, "channel", "", "channel id")
	cmd.Flags().StringVar(&message, "message", "", "plaintext message")
	cmd.Flags().StringVar(&out, "out", "", "file to write the base64-encoded group frame to (default: stdout)")
	cmd.MarkFlagRequired("channel")
	cmd.MarkFlagRequired("message")
	return cmd
}
