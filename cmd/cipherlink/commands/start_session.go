package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/app"
)

// startSessionCmd performs the X3DH handshake against a peer's imported
// bundle and persists a new session for future messaging.
func startSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-session <peer>",
		Short: "Establish a secure session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := peerArg(args[0])
			return withApp(func(w *app.Wire) error {
				if err := w.Messages.Start(peer); err != nil {
					return fmt.Errorf("starting session with %q: %w", peer, err)
				}
				fmt.Printf("Session created with %s. The handshake rides on your next packets.\n", peer)
				return nil
			})
		},
	}
}

func endSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end-session <peer>",
		Short: "Discard the session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := peerArg(args[0])
			return withApp(func(w *app.Wire) error {
				if err := w.Session.Close(peer); err != nil {
					return err
				}
				if err := w.Sessions.DeletePendingHandshake(peer); err != nil {
					return err
				}
				fmt.Printf("Session with %s closed.\n", peer)
				return nil
			})
		},
	}
}
