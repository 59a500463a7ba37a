package store

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/wire"
)

const (
	sessionKeyPrefix   = "session/"
	handshakeKeyPrefix = "handshake/"
	acceptedKeyPrefix  = "accepted/"
)

// MaxAcceptedHandshakes bounds how many accepted handshake ephemeral keys
// are remembered per peer for replay detection.
const MaxAcceptedHandshakes = 32

// KVStore persists per-conversation Double Ratchet state and handshake
// bookkeeping in an ekv key-value store. Use ekv.NewFilestore for an
// encrypted on-disk store and ekv.MakeMemstore in tests.
type KVStore struct {
	kv ekv.KeyValue
	mu sync.Mutex
}

// NewKVStore wraps kv.
func NewKVStore(kv ekv.KeyValue) *KVStore {
	return &KVStore{kv: kv}
}

// OpenKVStore opens (or creates) an encrypted ekv file store in dir.
func OpenKVStore(dir, passphrase string) (*KVStore, error) {
	fs, err := ekv.NewFilestore(dir, passphrase)
	if err != nil {
		return nil, errors.Wrapf(err, "store: open session store in %s", dir)
	}
	return NewKVStore(fs), nil
}

// stateBlob adapts an encoded snapshot to ekv's Marshaler and Unmarshaler.
// Both directions copy, since the backing store may keep the slice.
type stateBlob []byte

func (b stateBlob) Marshal() []byte { return append([]byte(nil), b...) }

func (b *stateBlob) Unmarshal(data []byte) error {
	*b = append((*b)[:0], data...)
	return nil
}

// SaveState writes a snapshot of state for id, replacing the previous one.
func (s *KVStore) SaveState(id domain.ConversationID, state domain.RatchetState) error {
	b, err := wire.MarshalState(&state)
	if err != nil {
		return err
	}
	defer crypto.SecureErase(b)

	if err := s.put(sessionKey(id), b); err != nil {
		return errors.Wrapf(err, "store: save session %s", id)
	}
	jww.TRACE.Printf("store: saved session %s", id)
	return nil
}

// LoadState returns the stored state for id; ok is false when there is none.
func (s *KVStore) LoadState(id domain.ConversationID) (domain.RatchetState, bool, error) {
	b, ok, err := s.get(sessionKey(id))
	if err != nil || !ok {
		return domain.RatchetState{}, false, errors.Wrapf(err, "store: load session %s", id)
	}
	defer crypto.SecureErase(b)

	st, err := wire.UnmarshalState(b)
	if err != nil {
		return domain.RatchetState{}, false, errors.Wrapf(err, "store: decode session %s", id)
	}
	return st, true, nil
}

// DeleteState removes the state for id. Deleting a missing session is not an
// error.
func (s *KVStore) DeleteState(id domain.ConversationID) error {
	return errors.Wrapf(s.delete(sessionKey(id)), "store: delete session %s", id)
}

// SavePendingHandshake remembers the handshake sent to id until the peer
// replies.
func (s *KVStore) SavePendingHandshake(id domain.ConversationID, hs domain.HandshakeMessage) error {
	b, err := wire.MarshalHandshake(hs)
	if err != nil {
		return err
	}
	return errors.Wrapf(s.put(handshakeKey(id), b), "store: save handshake %s", id)
}

// LoadPendingHandshake returns the unanswered handshake for id, if any.
func (s *KVStore) LoadPendingHandshake(id domain.ConversationID) (domain.HandshakeMessage, bool, error) {
	b, ok, err := s.get(handshakeKey(id))
	if err != nil || !ok {
		return domain.HandshakeMessage{}, false, errors.Wrapf(err, "store: load handshake %s", id)
	}
	hs, err := wire.UnmarshalHandshake(b)
	if err != nil {
		return domain.HandshakeMessage{}, false, errors.Wrapf(err, "store: decode handshake %s", id)
	}
	return hs, true, nil
}

// DeletePendingHandshake forgets the handshake for id.
func (s *KVStore) DeletePendingHandshake(id domain.ConversationID) error {
	return errors.Wrapf(s.delete(handshakeKey(id)), "store: delete handshake %s", id)
}

// RecordAcceptedHandshake appends the ephemeral key of a handshake accepted
// from id. Only the newest MaxAcceptedHandshakes keys are kept.
func (s *KVStore) RecordAcceptedHandshake(id domain.ConversationID, ephemeral domain.X25519Public) error {
	seen, err := s.AcceptedHandshakes(id)
	if err != nil {
		return err
	}
	seen = append(seen, ephemeral)
	if len(seen) > MaxAcceptedHandshakes {
		seen = seen[len(seen)-MaxAcceptedHandshakes:]
	}
	b := make([]byte, 0, len(seen)*len(ephemeral))
	for _, k := range seen {
		b = append(b, k[:]...)
	}
	return errors.Wrapf(s.put(acceptedKey(id), b), "store: record handshake %s", id)
}

// AcceptedHandshakes returns the remembered ephemeral keys for id, oldest
// first. The last one built the current session.
func (s *KVStore) AcceptedHandshakes(id domain.ConversationID) ([]domain.X25519Public, error) {
	b, ok, err := s.get(acceptedKey(id))
	if err != nil || !ok {
		return nil, errors.Wrapf(err, "store: load accepted handshakes %s", id)
	}
	var k domain.X25519Public
	if len(b)%len(k) != 0 {
		return nil, errors.Errorf("store: corrupt accepted handshakes for %s", id)
	}
	out := make([]domain.X25519Public, len(b)/len(k))
	for i := range out {
		copy(out[i][:], b[i*len(k):])
	}
	return out, nil
}

func (s *KVStore) put(key string, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Set(key, stateBlob(b))
}

func (s *KVStore) get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b stateBlob
	if err := s.kv.Get(key, &b); err != nil {
		if !ekv.Exists(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *KVStore) delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(key); err != nil && ekv.Exists(err) {
		return err
	}
	return nil
}

func sessionKey(id domain.ConversationID) string {
	return sessionKeyPrefix + id.String()
}

func handshakeKey(id domain.ConversationID) string {
	return handshakeKeyPrefix + id.String()
}

func acceptedKey(id domain.ConversationID) string {
	return acceptedKeyPrefix + id.String()
}

// Compile-time assertions that KVStore implements the domain store interfaces.
var (
	_ domain.SessionStore   = (*KVStore)(nil)
	_ domain.HandshakeStore = (*KVStore)(nil)
)
