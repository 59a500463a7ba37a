package interfaces

import domaintypes "cipherlink/internal/domain/types"

// PreKeyStore persists the local identity and pre-key private material. It is
// the collaborator that enforces single use of one-time pre-keys.
type PreKeyStore interface {
	SaveIdentity(identity domaintypes.SigningKeyPair) error
	LoadIdentity() (domaintypes.SigningKeyPair, bool, error)

	// Signed pre-keys. Old ones stay loadable for in-flight handshakes.
	SaveSignedPreKey(pair domaintypes.DHKeyPair, signature []byte) error
	LoadSignedPreKey(
		pub domaintypes.X25519Public,
	) (domaintypes.X25519Private, bool, error)
	CurrentSignedPreKey() (domaintypes.SignedPreKey, bool, error)

	// One-time pre-keys.
	SaveOneTimePreKeys(pairs []domaintypes.DHKeyPair) error
	// ConsumeOneTimePreKey removes the pair and returns its private half. A
	// second call for the same key reports ok == false.
	ConsumeOneTimePreKey(
		pub domaintypes.X25519Public,
	) (priv domaintypes.X25519Private, ok bool, err error)
	ListOneTimePreKeys() ([]domaintypes.X25519Public, error)
}

// SessionStore keeps per-conversation Double Ratchet state.
type SessionStore interface {
	SaveState(id domaintypes.ConversationID, state domaintypes.RatchetState) error
	LoadState(id domaintypes.ConversationID) (domaintypes.RatchetState, bool, error)
	DeleteState(id domaintypes.ConversationID) error
}

// HandshakeStore remembers the handshake an initiator keeps attaching to its
// packets until the responder's first reply arrives, and on the responder
// side the ephemeral keys of handshakes already accepted.
type HandshakeStore interface {
	SavePendingHandshake(id domaintypes.ConversationID, hs domaintypes.HandshakeMessage) error
	LoadPendingHandshake(id domaintypes.ConversationID) (domaintypes.HandshakeMessage, bool, error)
	DeletePendingHandshake(id domaintypes.ConversationID) error

	RecordAcceptedHandshake(id domaintypes.ConversationID, ephemeral domaintypes.X25519Public) error
	// AcceptedHandshakes is ordered oldest first; the last entry built the
	// current session.
	AcceptedHandshakes(id domaintypes.ConversationID) ([]domaintypes.X25519Public, error)
}
