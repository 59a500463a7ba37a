package wire

import (
	"fmt"

	"cipherlink/internal/domain"
)

type skippedKeyRecord struct {
	RatchetKey    []byte `json:"ratchetKey" cbor:"1,keyasint"`
	MessageNumber uint32 `json:"messageNumber" cbor:"2,keyasint"`
	Key           []byte `json:"key" cbor:"3,keyasint"`
}

// stateRecord holds secrets. Callers are expected to store the encoding
// somewhere encrypted.
type stateRecord struct {
	Version                 uint8              `json:"version" cbor:"0,keyasint"`
	RootKey                 []byte             `json:"rootKey" cbor:"1,keyasint"`
	SendChainKey            []byte             `json:"sendChainKey" cbor:"2,keyasint"`
	ReceiveChainKey         []byte             `json:"receiveChainKey" cbor:"3,keyasint"`
	OwnRatchetPublic        []byte             `json:"ownRatchetPublic" cbor:"4,keyasint"`
	OwnRatchetPrivate       []byte             `json:"ownRatchetPrivate" cbor:"5,keyasint"`
	RemoteRatchetKey        []byte             `json:"remoteRatchetKey" cbor:"6,keyasint"`
	SendMessageNumber       uint32             `json:"sendMessageNumber" cbor:"7,keyasint"`
	ReceiveMessageNumber    uint32             `json:"receiveMessageNumber" cbor:"8,keyasint"`
	PreviousSendChainLength uint32             `json:"previousSendChainLength" cbor:"9,keyasint"`
	SkippedKeys             []skippedKeyRecord `json:"skippedKeys" cbor:"10,keyasint"`
}

func (r *stateRecord) version() uint8 { return r.Version }

func newStateRecord(st *domain.RatchetState) *stateRecord {
	r := &stateRecord{
		Version:                 Version,
		RootKey:                 st.RootKey.Slice(),
		SendChainKey:            st.SendChainKey.Slice(),
		ReceiveChainKey:         st.ReceiveChainKey.Slice(),
		OwnRatchetPublic:        st.OwnRatchetKey.Public.Slice(),
		OwnRatchetPrivate:       st.OwnRatchetKey.Private.Slice(),
		RemoteRatchetKey:        optionalBytes(st.RemoteRatchetKey),
		SendMessageNumber:       st.SendMessageNumber,
		ReceiveMessageNumber:    st.ReceiveMessageNumber,
		PreviousSendChainLength: st.PreviousSendChainLength,
	}
	if st.SkippedKeys != nil {
		r.SkippedKeys = make([]skippedKeyRecord, len(st.SkippedKeys))
		for i, sk := range st.SkippedKeys {
			r.SkippedKeys[i] = skippedKeyRecord{
				RatchetKey:    sk.RatchetKey.Slice(),
				MessageNumber: sk.MessageNumber,
				Key:           sk.Key.Slice(),
			}
		}
	}
	return r
}

func (r *stateRecord) state() (domain.RatchetState, error) {
	var st domain.RatchetState
	var err error
	for _, f := range []struct {
		dst  []byte
		src  []byte
		name string
	}{
		{st.RootKey[:], r.RootKey, "rootKey"},
		{st.SendChainKey[:], r.SendChainKey, "sendChainKey"},
		{st.ReceiveChainKey[:], r.ReceiveChainKey, "receiveChainKey"},
		{st.OwnRatchetKey.Public[:], r.OwnRatchetPublic, "ownRatchetPublic"},
		{st.OwnRatchetKey.Private[:], r.OwnRatchetPrivate, "ownRatchetPrivate"},
	} {
		if err = fixed(f.dst, f.src, f.name); err != nil {
			return domain.RatchetState{}, err
		}
	}
	if st.RemoteRatchetKey, err = optionalX25519Public(r.RemoteRatchetKey, "remoteRatchetKey"); err != nil {
		return domain.RatchetState{}, err
	}
	st.SendMessageNumber = r.SendMessageNumber
	st.ReceiveMessageNumber = r.ReceiveMessageNumber
	st.PreviousSendChainLength = r.PreviousSendChainLength

	if r.SkippedKeys != nil {
		st.SkippedKeys = make([]domain.SkippedMessageKey, len(r.SkippedKeys))
		for i, sk := range r.SkippedKeys {
			if err = fixed(st.SkippedKeys[i].RatchetKey[:], sk.RatchetKey,
				fmt.Sprintf("skippedKeys[%d].ratchetKey", i)); err != nil {
				return domain.RatchetState{}, err
			}
			if err = fixed(st.SkippedKeys[i].Key[:], sk.Key,
				fmt.Sprintf("skippedKeys[%d].key", i)); err != nil {
				return domain.RatchetState{}, err
			}
			st.SkippedKeys[i].MessageNumber = sk.MessageNumber
		}
	}
	return st, nil
}

// MarshalState encodes a ratchet state snapshot as CBOR. The output contains
// secret keys.
func MarshalState(st *domain.RatchetState) ([]byte, error) {
	return marshalCBOR(newStateRecord(st))
}

// UnmarshalState decodes a CBOR ratchet state snapshot.
func UnmarshalState(data []byte) (domain.RatchetState, error) {
	var r stateRecord
	if err := unmarshalCBOR(data, &r); err != nil {
		return domain.RatchetState{}, err
	}
	return r.state()
}

// MarshalStateJSON encodes a ratchet state snapshot as JSON. The output
// contains secret keys.
func MarshalStateJSON(st *domain.RatchetState) ([]byte, error) {
	return marshalJSON(newStateRecord(st))
}

// UnmarshalStateJSON decodes a JSON ratchet state snapshot.
func UnmarshalStateJSON(data []byte) (domain.RatchetState, error) {
	var r stateRecord
	if err := unmarshalJSON(data, &r); err != nil {
		return domain.RatchetState{}, err
	}
	return r.state()
}
