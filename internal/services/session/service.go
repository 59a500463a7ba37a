package session

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/protocol/ratchet"
	"cipherlink/internal/protocol/x3dh"
)

var (
	// ErrNoSession indicates there is no stored session with the peer.
	ErrNoSession = errors.New("session: no session with peer")
	// ErrNoIdentity is returned when the local identity key is missing.
	ErrNoIdentity = errors.New("session: no local identity")
	// ErrUnknownSignedPreKey is returned when a handshake names a signed
	// pre-key this party does not hold.
	ErrUnknownSignedPreKey = errors.New("session: unknown signed pre-key")
	// ErrOneTimePreKeyUnavailable is returned when a handshake names a
	// one-time pre-key that was already consumed or never existed.
	ErrOneTimePreKeyUnavailable = errors.New("session: one-time pre-key unavailable")
)

// Service performs X3DH on both sides and drives the Double Ratchet for each
// conversation.
//
// The service handles:
//   - Loading our identity key from the key store.
//   - Running X3DH as initiator or responder and seeding the ratchet.
//   - Encrypting and decrypting, persisting the new state before returning.
//   - Reporting lifecycle events to the caller's handler.
type Service struct {
	keys     domain.PreKeyStore
	sessions domain.SessionStore
	onEvent  domain.EventHandler

	mu    sync.Mutex
	locks map[domain.ConversationID]*sync.Mutex
}

// New constructs a session service. onEvent may be nil.
func New(
	keys domain.PreKeyStore,
	sessions domain.SessionStore,
	onEvent domain.EventHandler,
) *Service {
	return &Service{
		keys:     keys,
		sessions: sessions,
		onEvent:  onEvent,
		locks:    make(map[domain.ConversationID]*sync.Mutex),
	}
}

// lock serialises all work on one conversation.
func (s *Service) lock(peer domain.ConversationID) func() {
	s.mu.Lock()
	l, ok := s.locks[peer]
	if !ok {
		l = &sync.Mutex{}
		s.locks[peer] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Initiate runs X3DH as the initiator against the peer's bundle, stores the
// new session and returns the handshake the peer needs to accept it.
// Any existing session with peer is replaced.
//
// Steps:
//  1. Load our identity key and draw an ephemeral key.
//  2. Verify the bundle and derive the root key (x3dh.Initiate).
//  3. Seed the ratchet as sender and persist it.
//  4. Return the handshake with our first ratchet key.
func (s *Service) Initiate(
	peer domain.ConversationID,
	bundle domain.KeyBundle,
	useOneTimePreKey bool,
) (domain.HandshakeMessage, error) {
	defer s.lock(peer)()

	id, err := s.identity()
	if err != nil {
		return domain.HandshakeMessage{}, err
	}
	defer crypto.SecureErase(id.Private[:])

	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return domain.HandshakeMessage{}, err
	}
	defer crypto.SecureErase(ephemeral.Private[:])

	res, err := x3dh.Initiate(id.Private, ephemeral.Private, bundle, useOneTimePreKey)
	if err != nil {
		if errors.Is(err, x3dh.ErrInvalidBundleSignature) {
			jww.WARN.Printf("session: rejected bundle for %s (identity %s): %v",
				peer, crypto.Fingerprint(bundle.IdentityKey[:]), err)
		}
		return domain.HandshakeMessage{}, err
	}
	defer crypto.SecureErase(res.RootKey[:])

	st, err := ratchet.InitSender(res.RootKey)
	if err != nil {
		return domain.HandshakeMessage{}, err
	}
	if err := s.sessions.SaveState(peer, st); err != nil {
		return domain.HandshakeMessage{}, err
	}

	hs := domain.HandshakeMessage{
		IdentityKey:   id.Public,
		EphemeralKey:  ephemeral.Public,
		SignedPreKey:  bundle.SignedPreKey.PublicKey,
		OneTimePreKey: res.OneTimePreKey,
		Salt:          res.Salt,
		RatchetKey:    st.OwnRatchetKey.Public,
	}
	jww.INFO.Printf("session: initiated with %s (one-time pre-key: %t)",
		peer, res.OneTimePreKey != nil)
	s.emit(domain.Event{Conversation: peer, Kind: domain.EventSessionEstablished})
	return hs, nil
}

// Accept runs X3DH as the responder for a handshake received from peer and
// stores the new session, replacing any existing one.
//
// The referenced one-time pre-key is consumed and persisted first, so a
// replayed handshake fails with ErrOneTimePreKeyUnavailable. The key stays
// consumed even when a later step fails (for example a malformed salt) and
// no session is created.
func (s *Service) Accept(peer domain.ConversationID, hs domain.HandshakeMessage) error {
	defer s.lock(peer)()

	st, err := s.accept(peer, hs)
	if err != nil {
		return err
	}
	defer eraseState(&st)
	if err := s.sessions.SaveState(peer, st); err != nil {
		return err
	}
	s.established(peer, hs)
	return nil
}

// AcceptMessage accepts hs like Accept and decrypts msg with the new
// session. The session is stored, replacing any existing one, only if msg
// authenticates; otherwise the stored state is left alone. The one-time
// pre-key is consumed either way.
func (s *Service) AcceptMessage(
	peer domain.ConversationID,
	hs domain.HandshakeMessage,
	msg domain.EncryptedMessage,
) ([]byte, error) {
	defer s.lock(peer)()

	st, err := s.accept(peer, hs)
	if err != nil {
		return nil, err
	}
	defer eraseState(&st)

	pt, err := ratchet.Decrypt(&st, msg)
	if err != nil {
		jww.WARN.Printf("session: handshake from %s (ephemeral %s) did not authenticate its message: %v",
			peer, crypto.Fingerprint(hs.EphemeralKey[:]), err)
		remote := msg.SenderRatchetKey
		s.emit(domain.Event{Conversation: peer, Kind: domain.EventDecryptFailed, RatchetKey: &remote, Err: err})
		return nil, err
	}
	if err := s.sessions.SaveState(peer, st); err != nil {
		crypto.SecureErase(pt)
		return nil, err
	}
	s.established(peer, hs)
	return pt, nil
}

// accept derives the responder's initial ratchet state for hs. The caller
// holds the conversation lock.
func (s *Service) accept(peer domain.ConversationID, hs domain.HandshakeMessage) (domain.RatchetState, error) {
	id, err := s.identity()
	if err != nil {
		return domain.RatchetState{}, err
	}
	defer crypto.SecureErase(id.Private[:])

	spk, ok, err := s.keys.LoadSignedPreKey(hs.SignedPreKey)
	if err != nil {
		return domain.RatchetState{}, err
	}
	if !ok {
		jww.WARN.Printf("session: handshake from %s names unknown signed pre-key %s",
			peer, crypto.Fingerprint(hs.SignedPreKey[:]))
		return domain.RatchetState{}, errors.WithStack(ErrUnknownSignedPreKey)
	}
	defer crypto.SecureErase(spk[:])

	var opk *domain.X25519Private
	if hs.OneTimePreKey != nil {
		priv, ok, err := s.keys.ConsumeOneTimePreKey(*hs.OneTimePreKey)
		if err != nil {
			return domain.RatchetState{}, err
		}
		if !ok {
			jww.WARN.Printf("session: handshake from %s names unavailable one-time pre-key %s",
				peer, crypto.Fingerprint(hs.OneTimePreKey[:]))
			return domain.RatchetState{}, errors.WithStack(ErrOneTimePreKeyUnavailable)
		}
		opk = &priv
		defer crypto.SecureErase(priv[:])
	}

	rk, err := x3dh.Accept(id.Private, spk, opk, hs.IdentityKey, hs.EphemeralKey, hs.Salt)
	if err != nil {
		return domain.RatchetState{}, err
	}
	defer crypto.SecureErase(rk[:])

	return ratchet.InitReceiver(rk, hs.RatchetKey)
}

func (s *Service) established(peer domain.ConversationID, hs domain.HandshakeMessage) {
	jww.INFO.Printf("session: accepted from %s (identity %s)",
		peer, crypto.Fingerprint(hs.IdentityKey[:]))
	remote := hs.RatchetKey
	s.emit(domain.Event{Conversation: peer, Kind: domain.EventSessionEstablished, RatchetKey: &remote})
}

// HasSession reports whether a session with peer is stored.
func (s *Service) HasSession(peer domain.ConversationID) (bool, error) {
	defer s.lock(peer)()
	_, ok, err := s.sessions.LoadState(peer)
	return ok, err
}

// Encrypt seals plaintext for peer. The advanced state is persisted before
// the message is returned; if persisting fails no message is produced.
func (s *Service) Encrypt(peer domain.ConversationID, plaintext []byte) (domain.EncryptedMessage, error) {
	defer s.lock(peer)()

	st, err := s.load(peer)
	if err != nil {
		return domain.EncryptedMessage{}, err
	}
	msg, err := ratchet.Encrypt(&st, plaintext)
	if err != nil {
		return domain.EncryptedMessage{}, err
	}
	if err := s.sessions.SaveState(peer, st); err != nil {
		return domain.EncryptedMessage{}, err
	}
	jww.TRACE.Printf("session: encrypted message %d for %s", msg.MessageNumber, peer)
	return msg, nil
}

// Decrypt opens msg from peer. The stored state only changes when the
// message authenticates and the new state was persisted.
func (s *Service) Decrypt(peer domain.ConversationID, msg domain.EncryptedMessage) ([]byte, error) {
	defer s.lock(peer)()

	st, err := s.load(peer)
	if err != nil {
		return nil, err
	}
	turned := st.RemoteRatchetKey == nil || *st.RemoteRatchetKey != msg.SenderRatchetKey

	pt, err := ratchet.Decrypt(&st, msg)
	if err != nil {
		jww.WARN.Printf("session: rejected message %d from %s (ratchet %s): %v",
			msg.MessageNumber, peer, crypto.Fingerprint(msg.SenderRatchetKey[:]), err)
		remote := msg.SenderRatchetKey
		s.emit(domain.Event{Conversation: peer, Kind: domain.EventDecryptFailed, RatchetKey: &remote, Err: err})
		return nil, err
	}
	if err := s.sessions.SaveState(peer, st); err != nil {
		crypto.SecureErase(pt)
		return nil, err
	}

	// A skipped key may belong to an older ratchet key; only a change of the
	// current remote key is a turn.
	if turned && st.RemoteRatchetKey != nil && *st.RemoteRatchetKey == msg.SenderRatchetKey {
		jww.DEBUG.Printf("session: ratchet turn with %s, remote %s",
			peer, crypto.Fingerprint(msg.SenderRatchetKey[:]))
		remote := msg.SenderRatchetKey
		s.emit(domain.Event{Conversation: peer, Kind: domain.EventRatchetTurn, RatchetKey: &remote})
	}
	return pt, nil
}

// Close discards the session with peer.
func (s *Service) Close(peer domain.ConversationID) error {
	defer s.lock(peer)()

	if err := s.sessions.DeleteState(peer); err != nil {
		return err
	}
	jww.INFO.Printf("session: closed %s", peer)
	s.emit(domain.Event{Conversation: peer, Kind: domain.EventSessionClosed})
	return nil
}

func (s *Service) identity() (domain.SigningKeyPair, error) {
	id, ok, err := s.keys.LoadIdentity()
	if err != nil {
		return domain.SigningKeyPair{}, err
	}
	if !ok {
		return domain.SigningKeyPair{}, errors.WithStack(ErrNoIdentity)
	}
	return id, nil
}

func (s *Service) load(peer domain.ConversationID) (domain.RatchetState, error) {
	st, ok, err := s.sessions.LoadState(peer)
	if err != nil {
		return domain.RatchetState{}, err
	}
	if !ok {
		return domain.RatchetState{}, errors.Wrapf(ErrNoSession, "%s", peer)
	}
	return st, nil
}

// eraseState wipes the secrets of a working copy once it was persisted or
// discarded.
func eraseState(st *domain.RatchetState) {
	crypto.SecureErase(st.RootKey[:])
	crypto.SecureErase(st.SendChainKey[:])
	crypto.SecureErase(st.ReceiveChainKey[:])
	crypto.SecureErase(st.OwnRatchetKey.Private[:])
	for i := range st.SkippedKeys {
		crypto.SecureErase(st.SkippedKeys[i].Key[:])
	}
}

func (s *Service) emit(e domain.Event) {
	if s.onEvent != nil {
		s.onEvent(e)
	}
}

// Compile-time assertion that Service implements domain.SessionService.
var _ domain.SessionService = (*Service)(nil)
