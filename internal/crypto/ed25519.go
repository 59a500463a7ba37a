package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/pkg/errors"

	"cipherlink/internal/domain"
)

// SignatureSize is the length of a detached Ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// GenerateSigningKeyPair returns a new Ed25519 signing key pair.
func GenerateSigningKeyPair() (domain.SigningKeyPair, error) {
	if err := checkReady(); err != nil {
		return domain.SigningKeyPair{}, err
	}
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return domain.SigningKeyPair{}, errors.Wrap(err, "crypto: generate ed25519")
	}
	var kp domain.SigningKeyPair
	copy(kp.Private[:], sk)
	copy(kp.Public[:], pk)
	SecureErase(sk)
	return kp, nil
}

// Sign returns the detached signature of message under priv.
func Sign(message []byte, priv domain.Ed25519Private) ([]byte, error) {
	if err := checkReady(); err != nil {
		return nil, err
	}
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), message), nil
}

// Verify checks signature over message with pub. Malformed input, including
// a signature of the wrong length, yields false rather than a panic.
func Verify(message, signature []byte, pub domain.Ed25519Public) bool {
	if !Ready() || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, signature)
}
