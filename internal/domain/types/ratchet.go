package types

// EncryptedMessage is the wire envelope produced by the Double Ratchet. It is
// self-describing: the receiver detects a DH ratchet turn from
// SenderRatchetKey alone.
type EncryptedMessage struct {
	Ciphertext          []byte
	Nonce               []byte
	SenderRatchetKey    X25519Public
	MessageNumber       uint32
	PreviousChainLength uint32
}

// SkippedMessageKey is a message key derived ahead of time for a message that
// has not arrived yet.
type SkippedMessageKey struct {
	RatchetKey    X25519Public
	MessageNumber uint32
	Key           Key
}

// RatchetState contains all fields the Double Ratchet needs to track for one
// conversation. It is mutated by every send and receive and must be persisted
// by the caller after each successful operation.
type RatchetState struct {
	RootKey         Key
	SendChainKey    Key
	ReceiveChainKey Key

	OwnRatchetKey DHKeyPair
	// RemoteRatchetKey is nil until the peer's first ratchet key is known.
	RemoteRatchetKey *X25519Public

	SendMessageNumber       uint32
	ReceiveMessageNumber    uint32
	PreviousSendChainLength uint32

	// SkippedKeys is ordered oldest first.
	SkippedKeys []SkippedMessageKey
}

// Initialized reports whether the state was produced by one of the ratchet
// initialisers.
func (s *RatchetState) Initialized() bool {
	return !s.OwnRatchetKey.Public.IsZero() && !s.RootKey.IsZero()
}

// Clone returns a deep copy that shares no memory with s.
func (s *RatchetState) Clone() RatchetState {
	out := *s
	if s.RemoteRatchetKey != nil {
		remote := *s.RemoteRatchetKey
		out.RemoteRatchetKey = &remote
	}
	if s.SkippedKeys != nil {
		out.SkippedKeys = make([]SkippedMessageKey, len(s.SkippedKeys))
		copy(out.SkippedKeys, s.SkippedKeys)
	}
	return out
}
