// Package identity manages creation and inspection of the local identity.
//
// It enforces the passphrase policy for new key stores, generates the Ed25519
// identity key pair and persists it via the domain.PreKeyStore.
package identity
