// Package ratchet implements the Double Ratchet session engine.
//
// A session keeps a root key and two KDF chains. Every message advances one
// chain through DeriveMessageKey, so a message key cannot be rebuilt from a
// later chain key. Whenever the peer presents a new ratchet public key the
// receiver performs two DHRatchetStep calls: one with its current ratchet key
// to refresh the receive chain, then one with a freshly generated key to
// refresh the send chain.
//
// Sessions start from an X3DH root key. The initiator calls InitSender, the
// responder calls InitReceiver with the initiator's first ratchet key. The
// first chain is derived with the same label on both sides; the responder's
// send chain comes from a DH step against the initiator's ratchet key, so
// either side may speak first after the handshake.
//
// Message keys for gaps in a chain are cached in the state, indexed by
// (ratchet public key, message number) and bounded by MaxSkip per message and
// MaxSkippedKeys overall.
//
// Decrypt never leaves a half-advanced state behind: it works on a clone and
// only replaces the caller's state when the message authenticates.
//
// Concurrency: RatchetState is NOT safe for concurrent use. Callers must
// serialise access per conversation.
package ratchet
