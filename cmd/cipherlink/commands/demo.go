package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"

	"cipherlink/internal/app"
	"cipherlink/internal/domain"
	"cipherlink/internal/services/identity"
	"cipherlink/internal/services/message"
	"cipherlink/internal/services/prekey"
	"cipherlink/internal/services/session"
	"cipherlink/internal/store"
	"cipherlink/internal/wire"
)

type demoParty struct {
	name     string
	prekeys  *prekey.Service
	messages *message.Service
	keys     *store.FileStore
}

// demoDirectory hands out bundles straight from each party's pre-key service.
type demoDirectory map[domain.ConversationID]*prekey.Service

func (d demoDirectory) FetchBundle(peer domain.ConversationID) (domain.KeyBundle, error) {
	svc, ok := d[peer]
	if !ok {
		return domain.KeyBundle{}, errors.Wrapf(store.ErrUnknownPeer, "%s", peer)
	}
	return svc.Bundle()
}

// MarkOneTimePreKeyUsed is a no-op: the demo never starts a second session
// before the peer has consumed the key from its own store.
func (d demoDirectory) MarkOneTimePreKeyUsed(domain.ConversationID, domain.X25519Public) error {
	return nil
}

func newDemoParty(name, dir string, directory demoDirectory) (*demoParty, error) {
	keys, err := store.OpenFileStore(dir, "demo-"+name, store.ScryptParams{N: 1 << 12, R: 8, P: 1})
	if err != nil {
		return nil, err
	}
	sessions := store.NewKVStore(ekv.MakeMemstore())
	p := &demoParty{
		name:     name,
		prekeys:  prekey.New(keys),
		messages: message.New(session.New(keys, sessions, app.LogEvents(jww.INFO.Printf)), directory, sessions),
		keys:     keys,
	}
	if _, err := p.prekeys.Generate(5); err != nil {
		return nil, err
	}
	directory[domain.ConversationID(name)] = p.prekeys
	return p, nil
}

func (p *demoParty) send(to *demoParty, text string) (domain.Packet, error) {
	packet, err := p.messages.Send(domain.ConversationID(to.name), []byte(text))
	if err != nil {
		return domain.Packet{}, err
	}
	raw, err := wire.MarshalPacket(packet)
	if err != nil {
		return domain.Packet{}, err
	}
	fmt.Printf("%s -> %s: message %d, %d bytes on the wire, handshake attached: %t\n",
		p.name, to.name, packet.Message.MessageNumber, len(raw), packet.Handshake != nil)
	return wire.UnmarshalPacket(raw)
}

func (p *demoParty) recv(from *demoParty, packet domain.Packet) error {
	pt, err := p.messages.Receive(domain.ConversationID(from.name), packet)
	if err != nil {
		return err
	}
	fmt.Printf("%s got %q\n", p.name, pt)
	return nil
}

// demo: run a two-party conversation with both parties in this process.
func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run an Alice and Bob conversation in memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.MkdirTemp("", "cipherlink-demo-")
			if err != nil {
				return errors.WithStack(err)
			}
			defer func() { _ = os.RemoveAll(dir) }()

			directory := demoDirectory{}
			alice, err := newDemoParty("alice", filepath.Join(dir, "alice"), directory)
			if err != nil {
				return err
			}
			defer func() { _ = alice.keys.Close() }()
			bob, err := newDemoParty("bob", filepath.Join(dir, "bob"), directory)
			if err != nil {
				return err
			}
			defer func() { _ = bob.keys.Close() }()

			for _, p := range []*demoParty{alice, bob} {
				b, err := p.prekeys.Bundle()
				if err != nil {
					return err
				}
				fmt.Printf("%s fingerprint %s\n", p.name, identity.Fingerprint(b.IdentityKey))
			}

			var first []domain.Packet
			for i := 1; i <= 3; i++ {
				packet, err := alice.send(bob, fmt.Sprintf("Message %d", i))
				if err != nil {
					return err
				}
				first = append(first, packet)
			}
			// Delivered out of order.
			for _, i := range []int{2, 0, 1} {
				if err := bob.recv(alice, first[i]); err != nil {
					return err
				}
			}

			reply, err := bob.send(alice, "Reply")
			if err != nil {
				return err
			}
			if err := alice.recv(bob, reply); err != nil {
				return err
			}

			next, err := alice.send(bob, "Message 4")
			if err != nil {
				return err
			}
			tampered := next
			tampered.Message.Ciphertext = append([]byte(nil), next.Message.Ciphertext...)
			tampered.Message.Ciphertext[0] ^= 1
			if err := bob.recv(alice, tampered); err != nil {
				fmt.Printf("bob rejected a tampered copy: %v\n", err)
			}
			if err := bob.recv(alice, next); err != nil {
				return err
			}
			if err := bob.recv(alice, next); err != nil {
				fmt.Printf("bob rejected a replay: %v\n", err)
			}
			return nil
		},
	}
}
