package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/app"
	"cipherlink/internal/services/identity"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate identity and pre-keys and store them securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := identity.CheckPassphrase(config().Passphrase); err != nil {
				return err
			}
			return withApp(func(w *app.Wire) error {
				fp, err := w.Identity.GenerateIdentity()
				if err != nil {
					return err
				}
				bundle, err := w.Prekey.Generate(w.OneTimePreKeys)
				if err != nil {
					return err
				}
				fmt.Printf("Identity created.\nFingerprint: %s\nOne-time pre-keys: %d\n",
					fp, len(bundle.OneTimePreKeys))
				return nil
			})
		},
	}
}
