package store

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/domain"
	"cipherlink/internal/protocol/x3dh"
	"cipherlink/internal/wire"
)

// ErrUnknownPeer is returned when no bundle was imported for a peer.
var ErrUnknownPeer = errors.New("store: no bundle for peer")

var peerName = regexp.MustCompile(`^[A-Za-z0-9._@-]{1,64}$`)

// BundleDir keeps the public key bundles imported for peers, one JSON file
// per peer. Bundles are public so the files are not sealed.
type BundleDir struct {
	dir string
	mu  sync.Mutex
}

// NewBundleDir returns a BundleDir rooted at dir, creating it if needed.
func NewBundleDir(dir string) (*BundleDir, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.WithStack(err)
	}
	return &BundleDir{dir: dir}, nil
}

// AddBundle verifies b and stores it as the bundle for peer, replacing any
// earlier one.
func (d *BundleDir) AddBundle(peer domain.ConversationID, b domain.KeyBundle) error {
	path, err := d.path(peer)
	if err != nil {
		return err
	}
	if !x3dh.VerifyKeyBundle(b) {
		return errors.Wrapf(x3dh.ErrInvalidBundleSignature, "bundle for %s", peer)
	}
	raw, err := wire.MarshalBundleJSON(b)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return writeFile(path, raw, 0o600)
}

// FetchBundle returns the bundle imported for peer, without the one-time
// pre-keys already used against it.
func (d *BundleDir) FetchBundle(peer domain.ConversationID) (domain.KeyBundle, error) {
	path, err := d.path(peer)
	if err != nil {
		return domain.KeyBundle{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load(peer, path)
}

// MarkOneTimePreKeyUsed drops pub from the stored bundle for peer so the
// next handshake picks another one. Unknown keys are ignored.
func (d *BundleDir) MarkOneTimePreKeyUsed(peer domain.ConversationID, pub domain.X25519Public) error {
	path, err := d.path(peer)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.load(peer, path)
	if err != nil {
		return err
	}
	kept := b.OneTimePreKeys[:0]
	for _, k := range b.OneTimePreKeys {
		if k != pub {
			kept = append(kept, k)
		}
	}
	if len(kept) == len(b.OneTimePreKeys) {
		return nil
	}
	b.OneTimePreKeys = kept

	raw, err := wire.MarshalBundleJSON(b)
	if err != nil {
		return err
	}
	if err := writeFile(path, raw, 0o600); err != nil {
		return err
	}
	jww.DEBUG.Printf("store: %s has %d one-time pre-keys left", peer, len(kept))
	return nil
}

func (d *BundleDir) load(peer domain.ConversationID, path string) (domain.KeyBundle, error) {
	raw, err := readFile(path)
	if err != nil {
		return domain.KeyBundle{}, err
	}
	if raw == nil {
		return domain.KeyBundle{}, errors.Wrapf(ErrUnknownPeer, "%s", peer)
	}
	b, err := wire.UnmarshalBundleJSON(raw)
	if err != nil {
		return domain.KeyBundle{}, errors.Wrapf(err, "store: decode bundle for %s", peer)
	}
	return b, nil
}

func (d *BundleDir) path(peer domain.ConversationID) (string, error) {
	if !peerName.MatchString(peer.String()) {
		return "", errors.Errorf("store: invalid peer name %q", peer)
	}
	return filepath.Join(d.dir, peer.String()+".json"), nil
}

// Compile-time assertion that BundleDir implements domain.BundleDirectory.
var _ domain.BundleDirectory = (*BundleDir)(nil)
