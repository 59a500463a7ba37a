// Package x3dh implements the X3DH key agreement used to bootstrap a Double
// Ratchet session between two parties.
//
// # Overview
//
// X3DH lets an initiator derive a shared 32-byte root key with a responder who
// has published a key bundle. The bundle contains:
//   - Identity key (Ed25519), which signs the signed pre-key
//   - Signed pre-key (X25519) and its Ed25519 signature
//   - Optional one-time pre-keys (X25519)
//
// Identity keys are Ed25519 signing keys. Before any DH they are mapped to
// their X25519 equivalents (crypto.SigningPrivateToDH, crypto.SigningPublicToDH);
// a signing key is never passed to DH directly.
//
// # Flows
//
// Initiator (Initiate):
//  1. Verify the signed pre-key signature; abort with ErrInvalidBundleSignature.
//  2. Compute DH1 = DH(IKa, SPKb), DH2 = DH(EKa, IKb), DH3 = DH(EKa, SPKb).
//  3. If requested and available, DH4 = DH(EKa, OPKb) with the first OPK.
//  4. HKDF over DH1‖DH2‖DH3[‖DH4] with a fresh random salt.
//  5. Erase every intermediate and return the root key, the salt and the OPK
//     index. The caller must have the responder's key store mark that OPK
//     consumed.
//
// Responder (Accept): the mirrored DH set (SPKb·IKa, IKb·EKa, SPKb·EKa[,
// OPKb·EKa]) and the same KDF with the initiator's salt yield the same root
// key.
//
// # Security notes
//
// Only public material and the salt travel over the wire. One-time pre-keys
// mix in a value that is deleted after first use.
package x3dh
