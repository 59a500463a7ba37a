// Package session establishes Double Ratchet sessions and encrypts and
// decrypts within them.
//
// It runs the X3DH handshake on either side, seeds the ratchet, and persists
// the ratchet state after every operation before handing the result back.
// Calls for one conversation are serialised; different conversations proceed
// in parallel.
package session
