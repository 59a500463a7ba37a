package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/app"
	"cipherlink/internal/services/identity"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint [peer]",
		Short: "Print your identity fingerprint, or an imported peer's",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(w *app.Wire) error {
				if len(args) == 1 {
					b, err := w.Peers.FetchBundle(peerArg(args[0]))
					if err != nil {
						return err
					}
					fmt.Printf("Fingerprint: %s\n", identity.Fingerprint(b.IdentityKey))
					return nil
				}
				fp, err := w.Identity.FingerprintIdentity()
				if err != nil {
					return err
				}
				fmt.Printf("Fingerprint: %s\n", fp)
				return nil
			})
		},
	}
}
