// Package prekey manages signed pre-keys and one-time pre-keys for X3DH
// bootstrap.
//
// It generates the initial key bundle, rotates the current signed pre-key,
// replenishes one-time pre-keys and builds the public bundle from what the
// store holds.
package prekey
