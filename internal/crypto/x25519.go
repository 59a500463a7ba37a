package crypto

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"

	"cipherlink/internal/domain"
)

const (
	// DHKeySize is the length of X25519 scalars, points and shared secrets.
	DHKeySize = curve25519.ScalarSize
)

var (
	// ErrInvalidKeyLength is returned when key material has the wrong size.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length")
	// ErrLowOrderPoint is returned when a DH computation yields the all-zero
	// shared secret, which only happens for low-order peer points.
	ErrLowOrderPoint = errors.New("crypto: low-order public key")
)

// GenerateKeyPair returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateKeyPair() (domain.DHKeyPair, error) {
	if err := checkReady(); err != nil {
		return domain.DHKeyPair{}, err
	}
	var kp domain.DHKeyPair
	if err := readRandom(kp.Private[:]); err != nil {
		return domain.DHKeyPair{}, err
	}
	clamp(kp.Private[:])
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		SecureErase(kp.Private[:])
		return domain.DHKeyPair{}, errors.Wrap(err, "crypto: derive public key")
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// PublicFromPrivate recomputes the public half of a Curve25519 private key.
func PublicFromPrivate(priv domain.X25519Private) (domain.X25519Public, error) {
	var pub domain.X25519Public
	if err := checkReady(); err != nil {
		return pub, err
	}
	b, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, errors.Wrap(err, "crypto: derive public key")
	}
	copy(pub[:], b)
	return pub, nil
}

// DH computes X25519 Diffie–Hellman. Both inputs must be exactly 32 bytes;
// an Ed25519 key must be mapped with SigningPrivateToDH or SigningPublicToDH
// first. The caller owns and must erase the returned secret.
func DH(priv, pub []byte) ([]byte, error) {
	if err := checkReady(); err != nil {
		return nil, err
	}
	if len(priv) != DHKeySize || len(pub) != DHKeySize {
		return nil, errors.Wrapf(ErrInvalidKeyLength,
			"dh: private %d bytes, public %d bytes", len(priv), len(pub))
	}
	secret, err := curve25519.X25519(priv, pub)
	if err != nil {
		return nil, errors.Wrap(ErrLowOrderPoint, err.Error())
	}
	return secret, nil
}

func clamp(k []byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
