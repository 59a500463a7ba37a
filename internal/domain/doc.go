// Package domain re-exports the key, handshake, message and ratchet state
// types together with the store and service contracts, so callers import one
// package. The types live in domain/types and the interfaces in
// domain/interfaces; neither carries behaviour beyond small helpers.
package domain
