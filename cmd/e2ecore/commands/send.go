package commands

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// sendCmd encrypts a pairwise message on the named peer's session,
// prepending the handshake prefix automatically if this is the first
// outbound message of a session Client.StartPairwiseSession just began.
func sendCmd() *cobra.Command {
	var peerID, message, out string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Encrypt a pairwise message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}

			wire, err := client.SendPairwise(peerID, []byte(message))
			if err != nil {
				return err
			}
			if err := saveClient(client); err != nil {
				return err
			}

			encoded := base64.StdEncoding.EncodeToString(wire)
			if out == "" {
				fmt.Println(encoded)
				return nil
			}
			return os.WriteFile(out, []byte(encoded), 0o600)
		},
	}
	cmd.Flags().StringVar(&peerID, "peer", "", "peer id of the session to send on")
	cmd.Flags().StringVar(&message, "message", "", "plaintext message")
	cmd.Flags().StringVar(&out, "out", "", "file to write the base64-encoded envelope to (default: stdout)")
	cmd.MarkFlagRequired("peer")
	cmd.MarkFlagRequired("message")
	return cmd
}
