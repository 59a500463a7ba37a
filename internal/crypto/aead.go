package crypto

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// AEADKeySize is the XChaCha20-Poly1305 key length.
	AEADKeySize = chacha20poly1305.KeySize
	// NonceSize is the XChaCha20-Poly1305 nonce length.
	NonceSize = chacha20poly1305.NonceSizeX
)

var (
	// ErrAuthenticationFailure is returned when a ciphertext, its nonce or its
	// associated data was tampered with or the key does not match.
	ErrAuthenticationFailure = errors.New("crypto: message authentication failed")
	// ErrInvalidNonceLength is returned for nonces that are not NonceSize bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length")
)

// AEADEncrypt seals plaintext under key with XChaCha20-Poly1305, binding ad.
// When nonce is nil a fresh random one is drawn and returned. A key must
// never be used twice with the same nonce.
func AEADEncrypt(key, plaintext, nonce, ad []byte) (ciphertext, usedNonce []byte, err error) {
	if err := checkReady(); err != nil {
		return nil, nil, err
	}
	if len(key) != AEADKeySize {
		return nil, nil, errors.Wrapf(ErrInvalidKeyLength, "aead key: %d bytes", len(key))
	}
	if nonce == nil {
		nonce = make([]byte, NonceSize)
		if err := readRandom(nonce); err != nil {
			return nil, nil, err
		}
	} else if len(nonce) != NonceSize {
		return nil, nil, errors.Wrapf(ErrInvalidNonceLength, "%d bytes", len(nonce))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "crypto: aead")
	}
	return aead.Seal(nil, nonce, plaintext, ad), nonce, nil
}

// AEADDecrypt opens ciphertext under key. On any mismatch it returns
// ErrAuthenticationFailure and no plaintext.
func AEADDecrypt(key, ciphertext, nonce, ad []byte) ([]byte, error) {
	if err := checkReady(); err != nil {
		return nil, err
	}
	if len(key) != AEADKeySize {
		return nil, errors.Wrapf(ErrInvalidKeyLength, "aead key: %d bytes", len(key))
	}
	if len(nonce) != NonceSize {
		return nil, errors.Wrapf(ErrInvalidNonceLength, "%d bytes", len(nonce))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: aead")
	}
	pt, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return pt, nil
}
