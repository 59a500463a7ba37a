package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the 32-byte BLAKE2b digest of data.
func Hash(data []byte) ([]byte, error) {
	if err := checkReady(); err != nil {
		return nil, err
	}
	sum := blake2b.Sum256(data)
	return sum[:], nil
}

// Fingerprint returns a short hex fingerprint of a public key for display and
// logging. It truncates the BLAKE2b digest to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := blake2b.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}
