// Package wire is the serialisation boundary for bundles, handshakes,
// encrypted messages and ratchet state snapshots.
//
// The protocol packages only work with fixed-size arrays. This package maps
// them onto two encodings:
//
//   - JSON, with byte fields as standard base64 strings, for files and the CLI
//   - CBOR in core deterministic mode with integer keys, for compact storage
//     and transport
//
// Every record carries a format version. Decoding rejects unknown versions
// with ErrUnsupportedVersion and any fixed-size field of the wrong length with
// crypto.ErrInvalidKeyLength.
package wire
