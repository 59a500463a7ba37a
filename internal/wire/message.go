package wire

import (
	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

type messageRecord struct {
	Version             uint8  `json:"version" cbor:"0,keyasint"`
	Ciphertext          []byte `json:"ciphertext" cbor:"1,keyasint"`
	Nonce               []byte `json:"nonce" cbor:"2,keyasint"`
	SenderRatchetKey    []byte `json:"senderRatchetKey" cbor:"3,keyasint"`
	MessageNumber       uint32 `json:"messageNumber" cbor:"4,keyasint"`
	PreviousChainLength uint32 `json:"previousChainLength" cbor:"5,keyasint"`
}

func (r *messageRecord) version() uint8 { return r.Version }

func newMessageRecord(m domain.EncryptedMessage) *messageRecord {
	return &messageRecord{
		Version:             Version,
		Ciphertext:          m.Ciphertext,
		Nonce:               m.Nonce,
		SenderRatchetKey:    m.SenderRatchetKey.Slice(),
		MessageNumber:       m.MessageNumber,
		PreviousChainLength: m.PreviousChainLength,
	}
}

func (r *messageRecord) message() (domain.EncryptedMessage, error) {
	m := domain.EncryptedMessage{
		Ciphertext:          append([]byte(nil), r.Ciphertext...),
		Nonce:               make([]byte, crypto.NonceSize),
		MessageNumber:       r.MessageNumber,
		PreviousChainLength: r.PreviousChainLength,
	}
	if err := fixed(m.Nonce, r.Nonce, "nonce"); err != nil {
		return domain.EncryptedMessage{}, err
	}
	var err error
	if m.SenderRatchetKey, err = x25519Public(r.SenderRatchetKey, "senderRatchetKey"); err != nil {
		return domain.EncryptedMessage{}, err
	}
	return m, nil
}

// MarshalMessage encodes an encrypted message envelope as CBOR.
func MarshalMessage(m domain.EncryptedMessage) ([]byte, error) {
	return marshalCBOR(newMessageRecord(m))
}

// UnmarshalMessage decodes a CBOR encrypted message envelope.
func UnmarshalMessage(data []byte) (domain.EncryptedMessage, error) {
	var r messageRecord
	if err := unmarshalCBOR(data, &r); err != nil {
		return domain.EncryptedMessage{}, err
	}
	return r.message()
}

// MarshalMessageJSON encodes an encrypted message envelope as JSON.
func MarshalMessageJSON(m domain.EncryptedMessage) ([]byte, error) {
	return marshalJSON(newMessageRecord(m))
}

// UnmarshalMessageJSON decodes a JSON encrypted message envelope.
func UnmarshalMessageJSON(data []byte) (domain.EncryptedMessage, error) {
	var r messageRecord
	if err := unmarshalJSON(data, &r); err != nil {
		return domain.EncryptedMessage{}, err
	}
	return r.message()
}
