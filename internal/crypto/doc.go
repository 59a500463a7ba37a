// Package crypto exposes the primitives used by the handshake and the ratchet.
//
// Contents
//
//   - Process-wide initialisation gate (Init, Ready)
//   - X25519 key generation and Diffie–Hellman (GenerateKeyPair, DH)
//   - Ed25519 key generation, signing and verification (GenerateSigningKeyPair,
//     Sign, Verify) and the Ed25519 to X25519 mapping (SigningPrivateToDH,
//     SigningPublicToDH)
//   - HKDF-SHA256 key derivation (KDF)
//   - XChaCha20-Poly1305 AEAD (AEADEncrypt, AEADDecrypt)
//   - BLAKE2b hashing and short fingerprints (Hash, Fingerprint)
//   - CSPRNG bytes (RandomBytes) and secret erasure (SecureErase)
//
// # Notes
//
// Init must be called once at startup. Until it succeeds every primitive
// fails with ErrNotInitialized and Verify reports false; SecureErase is the
// only function that works regardless.
//
// Callers own every secret returned here and must erase it with SecureErase
// as soon as it is no longer needed, including on error paths.
package crypto
