package types

// Packet is what one party hands to its transport: an encrypted message and,
// on the first message of a conversation, the handshake the receiver needs
// to set up its side.
type Packet struct {
	Handshake *HandshakeMessage
	Message   EncryptedMessage
}
