package commands

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// recvCmd routes one inbound envelope through the dispatcher, whether
// it is a pairwise ratchet envelope, a sealed sender-key distribution
// message, or a group frame.
func recvCmd() *cobra.Command {
	var senderID, channelID, in string
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Decrypt one inbound envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}

			var raw []byte
			if in == "" || in == "-" {
				raw, err = io.ReadAll(os.Stdin)
			} else {
				raw, err = os.ReadFile(in)
			}
			if err != nil {
				return fmt.Errorf("read envelope: %w", err)
			}

			wire, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
			if err != nil {
				return fmt.Errorf("decode envelope: %w", err)
			}

			plaintext, err := client.ReceiveEnvelope(senderID, channelID, wire)
			if err != nil {
				return err
			}
			if err := saveClient(client); err != nil {
				return err
			}

			fmt.Println(string(plaintext))
			return nil
		},
	}
	cmd.Flags().StringVar(&senderID, "sender", "", "sender id the envelope came from")
	cmd.Flags().StringVar(&channelID, "channel", "", "channel id, for sealed sender-key and group envelopes")
	cmd.Flags().StringVar(&in, "in", "-", "file to read the base64-encoded envelope from (default: stdin)")
	cmd.MarkFlagRequired("sender")
	return cmd
}
