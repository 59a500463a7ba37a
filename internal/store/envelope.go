package store

import (
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"

	"cipherlink/internal/crypto"
	"cipherlink/internal/util/memzero"
)

// The current supported version of the sealed file format.
const keystoreFormatVersion = 1

var (
	// ErrWrongPassphrase is returned when the passphrase is incorrect or a
	// sealed file has been modified.
	ErrWrongPassphrase = errors.New("store: wrong passphrase or corrupted key store")

	// checkValue is sealed into the keystore header so a wrong passphrase is
	// detected on open rather than on the first read.
	checkValue = []byte("cipherlink keystore")
)

// ScryptParams are the passphrase KDF cost parameters.
type ScryptParams struct {
	N, R, P int
}

// DefaultScryptParams are used for new key stores.
var DefaultScryptParams = ScryptParams{N: 1 << 15, R: 8, P: 1}

// keystoreHeader is the on-disk JSON describing how the sealing key is derived.
type keystoreHeader struct {
	V     int    `json:"v"`
	Salt  []byte `json:"salt"`
	N     int    `json:"scrypt_N"`
	R     int    `json:"scrypt_r"`
	P     int    `json:"scrypt_p"`
	Check []byte `json:"check"`
	Nonce []byte `json:"nonce"`
}

// sealed is the on-disk JSON structure holding one encrypted file.
type sealed struct {
	V      int    `json:"v"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

func deriveKey(passphrase string, salt []byte, p ScryptParams) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, crypto.AEADKeySize)
	return key, errors.Wrap(err, "store: derive sealing key")
}

// newHeader draws a salt, derives the sealing key and returns both.
func newHeader(passphrase string, p ScryptParams) (keystoreHeader, []byte, error) {
	salt, err := crypto.RandomBytes(16)
	if err != nil {
		return keystoreHeader{}, nil, err
	}
	key, err := deriveKey(passphrase, salt, p)
	if err != nil {
		return keystoreHeader{}, nil, err
	}
	check, nonce, err := crypto.AEADEncrypt(key, checkValue, nil, salt)
	if err != nil {
		memzero.Zero(key)
		return keystoreHeader{}, nil, err
	}
	return keystoreHeader{
		V:     keystoreFormatVersion,
		Salt:  salt,
		N:     p.N,
		R:     p.R,
		P:     p.P,
		Check: check,
		Nonce: nonce,
	}, key, nil
}

// openHeader re-derives the sealing key and verifies it against the header.
func openHeader(passphrase string, h keystoreHeader) ([]byte, error) {
	if h.V > keystoreFormatVersion {
		return nil, errors.Errorf("store: unsupported keystore version %d", h.V)
	}
	key, err := deriveKey(passphrase, h.Salt, ScryptParams{N: h.N, R: h.R, P: h.P})
	if err != nil {
		return nil, err
	}
	if _, err := crypto.AEADDecrypt(key, h.Check, h.Nonce, h.Salt); err != nil {
		memzero.Zero(key)
		return nil, errors.WithStack(ErrWrongPassphrase)
	}
	return key, nil
}

// seal encrypts raw under key, binding the file name as associated data so
// sealed files cannot be swapped.
func seal(key []byte, name string, raw []byte) ([]byte, error) {
	ct, nonce, err := crypto.AEADEncrypt(key, raw, nil, []byte(name))
	if err != nil {
		return nil, err
	}
	return json.Marshal(sealed{V: keystoreFormatVersion, Nonce: nonce, Cipher: ct})
}

// unseal opens a file produced by seal.
func unseal(key []byte, name string, b []byte) ([]byte, error) {
	var s sealed
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrapf(err, "store: %s", name)
	}
	if s.V > keystoreFormatVersion {
		return nil, errors.Errorf("store: %s: unsupported version %d", name, s.V)
	}
	pt, err := crypto.AEADDecrypt(key, s.Cipher, s.Nonce, []byte(name))
	if err != nil {
		return nil, errors.Wrap(ErrWrongPassphrase, name)
	}
	return pt, nil
}
