package domain

import (
	interfaces "cipherlink/internal/domain/interfaces"
	types "cipherlink/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	ConversationID    = types.ConversationID
	Fingerprint       = types.Fingerprint
	X25519Public      = types.X25519Public
	X25519Private     = types.X25519Private
	Ed25519Public     = types.Ed25519Public
	Ed25519Private    = types.Ed25519Private
	Key               = types.Key
	DHKeyPair         = types.DHKeyPair
	SigningKeyPair    = types.SigningKeyPair
	SignedPreKey      = types.SignedPreKey
	KeyBundle         = types.KeyBundle
	PrivateKeyBundle  = types.PrivateKeyBundle
	HandshakeMessage  = types.HandshakeMessage
	EncryptedMessage  = types.EncryptedMessage
	Packet            = types.Packet
	SkippedMessageKey = types.SkippedMessageKey
	RatchetState      = types.RatchetState
	Event             = types.Event
	EventKind         = types.EventKind
)

// Event kinds.
const (
	EventSessionEstablished = types.EventSessionEstablished
	EventRatchetTurn        = types.EventRatchetTurn
	EventDecryptFailed      = types.EventDecryptFailed
	EventSessionClosed      = types.EventSessionClosed
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	PreKeyStore     = interfaces.PreKeyStore
	SessionStore    = interfaces.SessionStore
	HandshakeStore  = interfaces.HandshakeStore
	IdentityService = interfaces.IdentityService
	PreKeyService   = interfaces.PreKeyService
	SessionService  = interfaces.SessionService
	MessageService  = interfaces.MessageService
	BundleDirectory = interfaces.BundleDirectory
	EventHandler    = interfaces.EventHandler
)
