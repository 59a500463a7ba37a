// Package store provides persistence for key material and session state.
//
// It contains concrete implementations of the domain storage interfaces:
//   - FileStore (domain.PreKeyStore): the identity key, signed pre-keys and
//     one-time pre-keys as JSON files under a home directory, each sealed
//     with a key derived from the user's passphrase
//   - KVStore (domain.SessionStore, domain.HandshakeStore): Double Ratchet
//     state snapshots and unanswered handshakes in an ekv key-value store,
//     CBOR encoded
//   - BundleDir (domain.BundleDirectory): verified peer bundles as plain JSON
//
// All methods are safe for concurrent use.
package store
