package crypto

import (
	"crypto/sha512"

	"filippo.io/edwards25519"
	"github.com/pkg/errors"

	"cipherlink/internal/domain"
)

// SigningPrivateToDH maps an Ed25519 private key to the X25519 scalar that
// corresponds to the same point (RFC 8032 §5.1.5 key expansion). The caller
// must erase the result.
func SigningPrivateToDH(priv domain.Ed25519Private) (domain.X25519Private, error) {
	var out domain.X25519Private
	if err := checkReady(); err != nil {
		return out, err
	}
	h := sha512.Sum512(priv[:32])
	copy(out[:], h[:DHKeySize])
	SecureErase(h[:])
	clamp(out[:])
	return out, nil
}

// SigningPublicToDH maps an Ed25519 public key to its X25519 (Montgomery u)
// equivalent via the birational map of RFC 7748 §4.1.
func SigningPublicToDH(pub domain.Ed25519Public) (domain.X25519Public, error) {
	var out domain.X25519Public
	if err := checkReady(); err != nil {
		return out, err
	}
	p, err := new(edwards25519.Point).SetBytes(pub[:])
	if err != nil {
		return out, errors.Wrap(ErrInvalidKeyLength, "ed25519 public key is not a valid point")
	}
	copy(out[:], p.BytesMontgomery())
	return out, nil
}
