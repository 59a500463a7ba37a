package commands

import (
	"github.com/spf13/cobra"

	"cipherlink/internal/app"
	"cipherlink/internal/wire"
)

// send <peer> <message>: encrypt a message for <peer> into a JSON packet.
func sendCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(w *app.Wire) error {
				packet, err := w.Messages.Send(peerArg(args[0]), []byte(args[1]))
				if err != nil {
					return err
				}
				raw, err := wire.MarshalPacketJSON(packet)
				if err != nil {
					return err
				}
				return writeOutput(out, raw)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the packet to file instead of stdout")
	return cmd
}
