package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/app"
	"cipherlink/internal/wire"
)

// recv <peer> <packet.json>: decrypt a packet received from <peer>.
func recvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recv <peer> <packet.json|->",
		Short: "Decrypt a packet from a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args[1])
			if err != nil {
				return err
			}
			packet, err := wire.UnmarshalPacketJSON(raw)
			if err != nil {
				return err
			}
			return withApp(func(w *app.Wire) error {
				pt, err := w.Messages.Receive(peerArg(args[0]), packet)
				if err != nil {
					return err
				}
				fmt.Printf("[%s] %s\n", args[0], string(pt))
				return nil
			})
		},
	}
}
