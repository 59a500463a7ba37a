// Package message turns plaintexts into packets and back.
//
// On the first message to a peer it fetches the peer's bundle, initiates a
// session and attaches the handshake to every packet until the peer has
// answered. On receipt it accepts an attached handshake when no session
// exists yet, then decrypts through the session service.
package message
