package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/app"
	"cipherlink/internal/domain"
	"cipherlink/internal/services/identity"
	"cipherlink/internal/wire"
)

// bundle: export the public bundle for peers to import.
func bundleCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Export your public key bundle as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(w *app.Wire) error {
				b, err := w.Prekey.Bundle()
				if err != nil {
					return err
				}
				raw, err := wire.MarshalBundleJSON(b)
				if err != nil {
					return err
				}
				return writeOutput(out, raw)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	return cmd
}

func rotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the signed pre-key and top up one-time pre-keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(w *app.Wire) error {
				if _, err := w.Prekey.RotateSignedPreKey(); err != nil {
					return err
				}
				added, err := w.Prekey.TopUp(w.OneTimePreKeys)
				if err != nil {
					return err
				}
				fmt.Printf("Signed pre-key rotated, %d one-time pre-keys added.\n", added)
				return nil
			})
		},
	}
}

// add-peer <name> <bundle.json>: import a peer's bundle after checking its
// signature.
func addPeerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-peer <name> <bundle.json|->",
		Short: "Import and verify a peer's key bundle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args[1])
			if err != nil {
				return err
			}
			b, err := wire.UnmarshalBundleJSON(raw)
			if err != nil {
				return err
			}
			return withApp(func(w *app.Wire) error {
				if err := w.Peers.AddBundle(peerArg(args[0]), b); err != nil {
					return err
				}
				fmt.Printf("Imported %s.\nFingerprint: %s\nCompare it with %s out of band.\n",
					args[0], identity.Fingerprint(b.IdentityKey), args[0])
				return nil
			})
		},
	}
}

func peerArg(s string) domain.ConversationID { return domain.ConversationID(s) }
