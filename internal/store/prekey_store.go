package store

import (
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

// MaxStaleSignedPreKeys is how many replaced signed pre-keys stay loadable so
// handshakes started against an older bundle can still be accepted.
const MaxStaleSignedPreKeys = 3

// Internal record types.
type signedPreKeyRecord struct {
	Pair      domain.DHKeyPair `json:"pair"`
	Signature []byte           `json:"sig"`
	CreatedAt int64            `json:"created_at"`
}

// signedPreKeys is ordered oldest first; the last entry is current.
type signedPreKeys struct {
	Keys []signedPreKeyRecord `json:"keys"`
}

type oneTimePreKeyRecord struct {
	Pair      domain.DHKeyPair `json:"pair"`
	CreatedAt int64            `json:"created_at"`
}

// SaveSignedPreKey stores pair as the current signed pre-key. The previous
// current key is kept as stale; the oldest stale keys beyond
// MaxStaleSignedPreKeys are erased.
func (s *FileStore) SaveSignedPreKey(pair domain.DHKeyPair, signature []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	var m signedPreKeys
	if _, err := s.readSealed(signedPreKeysFile, &m); err != nil {
		return err
	}
	defer eraseSignedPreKeys(&m)

	m.Keys = append(m.Keys, signedPreKeyRecord{
		Pair:      pair,
		Signature: append([]byte(nil), signature...),
		CreatedAt: time.Now().Unix(),
	})
	if over := len(m.Keys) - 1 - MaxStaleSignedPreKeys; over > 0 {
		for i := 0; i < over; i++ {
			crypto.SecureErase(m.Keys[i].Pair.Private[:])
		}
		m.Keys = m.Keys[over:]
	}
	jww.DEBUG.Printf("store: signed pre-key %s is current, %d stale",
		crypto.Fingerprint(pair.Public[:]), len(m.Keys)-1)
	return s.writeSealed(signedPreKeysFile, m)
}

// LoadSignedPreKey returns the private half of a current or stale signed
// pre-key.
func (s *FileStore) LoadSignedPreKey(pub domain.X25519Public) (domain.X25519Private, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return domain.X25519Private{}, false, err
	}

	var m signedPreKeys
	if _, err := s.readSealed(signedPreKeysFile, &m); err != nil {
		return domain.X25519Private{}, false, err
	}
	defer eraseSignedPreKeys(&m)

	for _, k := range m.Keys {
		if k.Pair.Public == pub {
			return k.Pair.Private, true, nil
		}
	}
	return domain.X25519Private{}, false, nil
}

// CurrentSignedPreKey returns the public half and signature of the current
// signed pre-key.
func (s *FileStore) CurrentSignedPreKey() (domain.SignedPreKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return domain.SignedPreKey{}, false, err
	}

	var m signedPreKeys
	if _, err := s.readSealed(signedPreKeysFile, &m); err != nil {
		return domain.SignedPreKey{}, false, err
	}
	defer eraseSignedPreKeys(&m)

	if len(m.Keys) == 0 {
		return domain.SignedPreKey{}, false, nil
	}
	cur := m.Keys[len(m.Keys)-1]
	return domain.SignedPreKey{
		PublicKey: cur.Pair.Public,
		Signature: append([]byte(nil), cur.Signature...),
	}, true, nil
}

// SaveOneTimePreKeys appends pairs to the stored one-time pre-keys.
func (s *FileStore) SaveOneTimePreKeys(pairs []domain.DHKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	var keys []oneTimePreKeyRecord
	if _, err := s.readSealed(oneTimePreKeyFile, &keys); err != nil {
		return err
	}
	defer func() { eraseOneTimePreKeys(keys) }()

	now := time.Now().Unix()
	for _, p := range pairs {
		keys = append(keys, oneTimePreKeyRecord{Pair: p, CreatedAt: now})
	}
	return s.writeSealed(oneTimePreKeyFile, keys)
}

// ConsumeOneTimePreKey removes the one-time pre-key with public half pub and
// returns its private half. The removal is written before the key is
// returned, so a key is handed out at most once.
func (s *FileStore) ConsumeOneTimePreKey(pub domain.X25519Public) (domain.X25519Private, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return domain.X25519Private{}, false, err
	}

	var keys []oneTimePreKeyRecord
	if _, err := s.readSealed(oneTimePreKeyFile, &keys); err != nil {
		return domain.X25519Private{}, false, err
	}
	defer eraseOneTimePreKeys(keys)

	for i, k := range keys {
		if k.Pair.Public != pub {
			continue
		}
		priv := k.Pair.Private
		rest := make([]oneTimePreKeyRecord, 0, len(keys)-1)
		rest = append(rest, keys[:i]...)
		rest = append(rest, keys[i+1:]...)
		if err := s.writeSealed(oneTimePreKeyFile, rest); err != nil {
			crypto.SecureErase(priv[:])
			return domain.X25519Private{}, false, err
		}
		jww.DEBUG.Printf("store: consumed one-time pre-key %s, %d left",
			crypto.Fingerprint(pub[:]), len(rest))
		eraseOneTimePreKeys(rest)
		return priv, true, nil
	}
	return domain.X25519Private{}, false, nil
}

// ListOneTimePreKeys exposes only the public halves, oldest first.
func (s *FileStore) ListOneTimePreKeys() ([]domain.X25519Public, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var keys []oneTimePreKeyRecord
	if _, err := s.readSealed(oneTimePreKeyFile, &keys); err != nil {
		return nil, err
	}
	defer eraseOneTimePreKeys(keys)

	out := make([]domain.X25519Public, len(keys))
	for i, k := range keys {
		out[i] = k.Pair.Public
	}
	return out, nil
}

func eraseSignedPreKeys(m *signedPreKeys) {
	for i := range m.Keys {
		crypto.SecureErase(m.Keys[i].Pair.Private[:])
	}
}

func eraseOneTimePreKeys(keys []oneTimePreKeyRecord) {
	for i := range keys {
		crypto.SecureErase(keys[i].Pair.Private[:])
	}
}
