package types

// SignedPreKey is the public half of a medium-term DH key and the identity
// key's detached signature over its 32 public bytes.
type SignedPreKey struct {
	PublicKey X25519Public
	Signature []byte
}

// KeyBundle is the public projection published for handshake initiation.
type KeyBundle struct {
	IdentityKey    Ed25519Public
	SignedPreKey   SignedPreKey
	OneTimePreKeys []X25519Public
}

// PrivateKeyBundle holds every private half generated alongside a KeyBundle.
// Persisting it is the caller's responsibility.
type PrivateKeyBundle struct {
	Identity       SigningKeyPair
	SignedPreKey   DHKeyPair
	OneTimePreKeys []DHKeyPair
}

// HandshakeMessage carries the initiator's X3DH parameters to the responder,
// normally alongside the first EncryptedMessage.
type HandshakeMessage struct {
	// IdentityKey is the initiator's long-term identity key.
	IdentityKey Ed25519Public
	// EphemeralKey is the initiator's one-shot X3DH key.
	EphemeralKey X25519Public
	// SignedPreKey names which of the responder's signed pre-keys was used.
	SignedPreKey X25519Public
	// OneTimePreKey names the consumed one-time pre-key, nil if none.
	OneTimePreKey *X25519Public
	// Salt is the KDF salt drawn by the initiator.
	Salt []byte
	// RatchetKey is the initiator's first ratchet public key.
	RatchetKey X25519Public
}
