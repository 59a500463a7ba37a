package app

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/domain"
	identitysvc "cipherlink/internal/services/identity"
	messagesvc "cipherlink/internal/services/message"
	prekeysvc "cipherlink/internal/services/prekey"
	sessionsvc "cipherlink/internal/services/session"
	"cipherlink/internal/store"
)

// Wire bundles all stores and services for the CLI.
type Wire struct {
	Keys     *store.FileStore
	Sessions *store.KVStore
	Peers    *store.BundleDir

	Identity *identitysvc.Service
	Prekey   *prekeysvc.Service
	Session  *sessionsvc.Service
	Messages *messagesvc.Service

	OneTimePreKeys int
}

// NewWire constructs the dependency graph from cfg. onEvent may be nil.
func NewWire(cfg Config, onEvent domain.EventHandler) (*Wire, error) {
	if cfg.Home == "" {
		return nil, errors.New("app: home directory required")
	}
	if cfg.Passphrase == "" {
		return nil, errors.New("app: passphrase required")
	}

	// Stores
	keys, err := store.OpenFileStore(cfg.Home, cfg.Passphrase, cfg.Scrypt)
	if err != nil {
		return nil, err
	}
	sessions, err := store.OpenKVStore(cfg.sessionsDir(), cfg.Passphrase)
	if err != nil {
		_ = keys.Close()
		return nil, err
	}
	peers, err := store.NewBundleDir(cfg.peersDir())
	if err != nil {
		_ = keys.Close()
		return nil, err
	}

	// Services
	sessionSvc := sessionsvc.New(keys, sessions, onEvent)
	w := &Wire{
		Keys:           keys,
		Sessions:       sessions,
		Peers:          peers,
		Identity:       identitysvc.New(keys),
		Prekey:         prekeysvc.New(keys),
		Session:        sessionSvc,
		Messages:       messagesvc.New(sessionSvc, peers, sessions),
		OneTimePreKeys: cfg.oneTimePreKeys(),
	}
	jww.DEBUG.Printf("app: wired stores under %s", cfg.Home)
	return w, nil
}

// Close erases the key store's derived key.
func (w *Wire) Close() error {
	return w.Keys.Close()
}
