package types

// EventKind classifies a session lifecycle event.
type EventKind int

const (
	// EventSessionEstablished fires once a handshake produced a ratchet state.
	EventSessionEstablished EventKind = iota + 1
	// EventRatchetTurn fires when a received message carried a new ratchet key.
	EventRatchetTurn
	// EventDecryptFailed fires when a message was rejected.
	EventDecryptFailed
	// EventSessionClosed fires when the caller discards a session.
	EventSessionClosed
)

// String returns a short name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventSessionEstablished:
		return "established"
	case EventRatchetTurn:
		return "ratchet-turn"
	case EventDecryptFailed:
		return "decrypt-failed"
	case EventSessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered to the caller-owned event handler of a session service.
// It never carries secret material.
type Event struct {
	Conversation ConversationID
	Kind         EventKind
	// RatchetKey is the peer's current ratchet public key, if known.
	RatchetKey *X25519Public
	// Err is set for EventDecryptFailed.
	Err error
}
