package wire

import (
	"fmt"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

type signedPreKeyRecord struct {
	PublicKey []byte `json:"publicKey" cbor:"1,keyasint"`
	Signature []byte `json:"signature" cbor:"2,keyasint"`
}

type bundleRecord struct {
	Version        uint8              `json:"version" cbor:"0,keyasint"`
	IdentityKey    []byte             `json:"identityKey" cbor:"1,keyasint"`
	SignedPreKey   signedPreKeyRecord `json:"signedPreKey" cbor:"2,keyasint"`
	OneTimePreKeys [][]byte           `json:"oneTimePreKeys" cbor:"3,keyasint"`
}

func (r *bundleRecord) version() uint8 { return r.Version }

func newBundleRecord(b domain.KeyBundle) *bundleRecord {
	r := &bundleRecord{
		Version:     Version,
		IdentityKey: b.IdentityKey.Slice(),
		SignedPreKey: signedPreKeyRecord{
			PublicKey: b.SignedPreKey.PublicKey.Slice(),
			Signature: b.SignedPreKey.Signature,
		},
		OneTimePreKeys: make([][]byte, len(b.OneTimePreKeys)),
	}
	for i := range b.OneTimePreKeys {
		r.OneTimePreKeys[i] = b.OneTimePreKeys[i].Slice()
	}
	return r
}

func (r *bundleRecord) bundle() (domain.KeyBundle, error) {
	var b domain.KeyBundle
	if err := fixed(b.IdentityKey[:], r.IdentityKey, "identityKey"); err != nil {
		return domain.KeyBundle{}, err
	}
	if err := fixed(b.SignedPreKey.PublicKey[:], r.SignedPreKey.PublicKey, "signedPreKey.publicKey"); err != nil {
		return domain.KeyBundle{}, err
	}
	sig := make([]byte, crypto.SignatureSize)
	if err := fixed(sig, r.SignedPreKey.Signature, "signedPreKey.signature"); err != nil {
		return domain.KeyBundle{}, err
	}
	b.SignedPreKey.Signature = sig
	b.OneTimePreKeys = make([]domain.X25519Public, len(r.OneTimePreKeys))
	for i, k := range r.OneTimePreKeys {
		if err := fixed(b.OneTimePreKeys[i][:], k, fmt.Sprintf("oneTimePreKeys[%d]", i)); err != nil {
			return domain.KeyBundle{}, err
		}
	}
	return b, nil
}

// MarshalBundle encodes a public key bundle as CBOR.
func MarshalBundle(b domain.KeyBundle) ([]byte, error) {
	return marshalCBOR(newBundleRecord(b))
}

// UnmarshalBundle decodes a CBOR key bundle. The signature is not verified.
func UnmarshalBundle(data []byte) (domain.KeyBundle, error) {
	var r bundleRecord
	if err := unmarshalCBOR(data, &r); err != nil {
		return domain.KeyBundle{}, err
	}
	return r.bundle()
}

// MarshalBundleJSON encodes a public key bundle as JSON.
func MarshalBundleJSON(b domain.KeyBundle) ([]byte, error) {
	return marshalJSON(newBundleRecord(b))
}

// UnmarshalBundleJSON decodes a JSON key bundle. The signature is not
// verified.
func UnmarshalBundleJSON(data []byte) (domain.KeyBundle, error) {
	var r bundleRecord
	if err := unmarshalJSON(data, &r); err != nil {
		return domain.KeyBundle{}, err
	}
	return r.bundle()
}

type handshakeRecord struct {
	Version       uint8  `json:"version" cbor:"0,keyasint"`
	IdentityKey   []byte `json:"identityKey" cbor:"1,keyasint"`
	EphemeralKey  []byte `json:"ephemeralKey" cbor:"2,keyasint"`
	SignedPreKey  []byte `json:"signedPreKey" cbor:"3,keyasint"`
	OneTimePreKey []byte `json:"oneTimePreKey,omitempty" cbor:"4,keyasint,omitempty"`
	Salt          []byte `json:"salt" cbor:"5,keyasint"`
	RatchetKey    []byte `json:"ratchetKey" cbor:"6,keyasint"`
}

func (r *handshakeRecord) version() uint8 { return r.Version }

func newHandshakeRecord(h domain.HandshakeMessage) *handshakeRecord {
	return &handshakeRecord{
		Version:       Version,
		IdentityKey:   h.IdentityKey.Slice(),
		EphemeralKey:  h.EphemeralKey.Slice(),
		SignedPreKey:  h.SignedPreKey.Slice(),
		OneTimePreKey: optionalBytes(h.OneTimePreKey),
		Salt:          h.Salt,
		RatchetKey:    h.RatchetKey.Slice(),
	}
}

func (r *handshakeRecord) handshake() (domain.HandshakeMessage, error) {
	var h domain.HandshakeMessage
	var err error
	if err = fixed(h.IdentityKey[:], r.IdentityKey, "identityKey"); err != nil {
		return domain.HandshakeMessage{}, err
	}
	if h.EphemeralKey, err = x25519Public(r.EphemeralKey, "ephemeralKey"); err != nil {
		return domain.HandshakeMessage{}, err
	}
	if h.SignedPreKey, err = x25519Public(r.SignedPreKey, "signedPreKey"); err != nil {
		return domain.HandshakeMessage{}, err
	}
	if h.OneTimePreKey, err = optionalX25519Public(r.OneTimePreKey, "oneTimePreKey"); err != nil {
		return domain.HandshakeMessage{}, err
	}
	if h.RatchetKey, err = x25519Public(r.RatchetKey, "ratchetKey"); err != nil {
		return domain.HandshakeMessage{}, err
	}
	h.Salt = append([]byte(nil), r.Salt...)
	return h, nil
}

// MarshalHandshake encodes a handshake message as CBOR.
func MarshalHandshake(h domain.HandshakeMessage) ([]byte, error) {
	return marshalCBOR(newHandshakeRecord(h))
}

// UnmarshalHandshake decodes a CBOR handshake message.
func UnmarshalHandshake(data []byte) (domain.HandshakeMessage, error) {
	var r handshakeRecord
	if err := unmarshalCBOR(data, &r); err != nil {
		return domain.HandshakeMessage{}, err
	}
	return r.handshake()
}

// MarshalHandshakeJSON encodes a handshake message as JSON.
func MarshalHandshakeJSON(h domain.HandshakeMessage) ([]byte, error) {
	return marshalJSON(newHandshakeRecord(h))
}

// UnmarshalHandshakeJSON decodes a JSON handshake message.
func UnmarshalHandshakeJSON(data []byte) (domain.HandshakeMessage, error) {
	var r handshakeRecord
	if err := unmarshalJSON(data, &r); err != nil {
		return domain.HandshakeMessage{}, err
	}
	return r.handshake()
}
