package interfaces

import domaintypes "cipherlink/internal/domain/types"

// IdentityService creates and describes the local long-term identity.
type IdentityService interface {
	GenerateIdentity() (domaintypes.Fingerprint, error)
	FingerprintIdentity() (domaintypes.Fingerprint, error)
}

// PreKeyService generates and publishes pre-key material.
type PreKeyService interface {
	Generate(oneTimePreKeyCount int) (domaintypes.KeyBundle, error)
	Bundle() (domaintypes.KeyBundle, error)
	RotateSignedPreKey() (domaintypes.SignedPreKey, error)
	Replenish(count int) ([]domaintypes.X25519Public, error)
	TopUp(count int) (int, error)
}

// SessionService establishes sessions and encrypts/decrypts within them.
// Calls for the same conversation are serialised by the implementation.
type SessionService interface {
	Initiate(
		peer domaintypes.ConversationID,
		bundle domaintypes.KeyBundle,
		useOneTimePreKey bool,
	) (domaintypes.HandshakeMessage, error)
	Accept(peer domaintypes.ConversationID, handshake domaintypes.HandshakeMessage) error
	// AcceptMessage runs Accept and decrypts msg with the new session, which
	// replaces any existing one only if msg authenticates.
	AcceptMessage(
		peer domaintypes.ConversationID,
		handshake domaintypes.HandshakeMessage,
		msg domaintypes.EncryptedMessage,
	) ([]byte, error)
	HasSession(peer domaintypes.ConversationID) (bool, error)
	Encrypt(peer domaintypes.ConversationID, plaintext []byte) (domaintypes.EncryptedMessage, error)
	Decrypt(peer domaintypes.ConversationID, msg domaintypes.EncryptedMessage) ([]byte, error)
	Close(peer domaintypes.ConversationID) error
}

// MessageService turns plaintexts into packets and back, bootstrapping the
// session on the first message in either direction.
type MessageService interface {
	Send(peer domaintypes.ConversationID, plaintext []byte) (domaintypes.Packet, error)
	Receive(peer domaintypes.ConversationID, packet domaintypes.Packet) ([]byte, error)
}

// BundleDirectory hands out a peer's published key bundle.
type BundleDirectory interface {
	FetchBundle(peer domaintypes.ConversationID) (domaintypes.KeyBundle, error)
	// MarkOneTimePreKeyUsed stops pub from being handed out again for peer.
	MarkOneTimePreKeyUsed(peer domaintypes.ConversationID, pub domaintypes.X25519Public) error
}

// EventHandler receives session lifecycle events. It is owned by the caller
// and invoked synchronously; it must not call back into the session service
// for the same conversation.
type EventHandler func(event domaintypes.Event)
