package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/util/memzero"
)

const (
	keystoreFile      = "keystore.json"
	identityFile      = "identity.enc"
	signedPreKeysFile = "signed_prekeys.enc"
	oneTimePreKeyFile = "one_time_prekeys.enc"
)

// FileStore keeps the identity and pre-key private material under dir. Every
// file except the keystore header is sealed with a key derived once from the
// passphrase when the store is opened.
type FileStore struct {
	dir string
	key []byte
	mu  sync.Mutex
}

// OpenFileStore opens the key store in dir, creating it on first use. A zero
// params value selects DefaultScryptParams for a new store; existing stores
// keep the parameters they were created with. A wrong passphrase fails with
// ErrWrongPassphrase.
func OpenFileStore(dir, passphrase string, params ScryptParams) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "store: create %s", dir)
	}
	if params == (ScryptParams{}) {
		params = DefaultScryptParams
	}

	path := filepath.Join(dir, keystoreFile)
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}

	if b != nil {
		var h keystoreHeader
		if err := json.Unmarshal(b, &h); err != nil {
			return nil, errors.Wrap(err, "store: decode keystore header")
		}
		key, err := openHeader(passphrase, h)
		if err != nil {
			return nil, err
		}
		jww.DEBUG.Printf("store: opened key store in %s", dir)
		return &FileStore{dir: dir, key: key}, nil
	}

	h, key, err := newHeader(passphrase, params)
	if err != nil {
		return nil, err
	}
	hb, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		memzero.Zero(key)
		return nil, errors.WithStack(err)
	}
	if err := writeFile(path, hb, 0o600); err != nil {
		memzero.Zero(key)
		return nil, err
	}
	jww.INFO.Printf("store: created key store in %s", dir)
	return &FileStore{dir: dir, key: key}, nil
}

// Dir returns the directory the store lives in.
func (s *FileStore) Dir() string { return s.dir }

// Close erases the sealing key. The store must not be used afterwards.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	memzero.Zero(s.key)
	s.key = nil
	return nil
}

func (s *FileStore) checkOpen() error {
	if s.key == nil {
		return errors.New("store: file store is closed")
	}
	return nil
}
