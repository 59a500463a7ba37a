package wire

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

// Version is the current record format.
const Version = 1

var (
	// ErrUnsupportedVersion is returned when a record's version is not Version.
	ErrUnsupportedVersion = errors.New("wire: unsupported format version")
	// ErrMissingField is returned when a required nested record is absent.
	ErrMissingField = errors.New("wire: missing field")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1 << 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

type versioned interface {
	version() uint8
}

func marshalCBOR(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	return b, errors.Wrap(err, "wire: cbor encode")
}

func unmarshalCBOR(b []byte, v versioned) error {
	if err := decMode.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "wire: cbor decode")
	}
	return checkVersion(v)
}

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	return b, errors.Wrap(err, "wire: json encode")
}

func unmarshalJSON(b []byte, v versioned) error {
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "wire: json decode")
	}
	return checkVersion(v)
}

func errMissingField(name string) error {
	return errors.Wrap(ErrMissingField, name)
}

func checkVersion(v versioned) error {
	if v.version() != Version {
		return errors.Wrapf(ErrUnsupportedVersion, "got %d", v.version())
	}
	return nil
}

// fixed copies b into dst, which must have exactly len(b) bytes.
func fixed(dst []byte, b []byte, field string) error {
	if len(b) != len(dst) {
		return errors.Wrapf(crypto.ErrInvalidKeyLength, "wire: %s is %d bytes, want %d",
			field, len(b), len(dst))
	}
	copy(dst, b)
	return nil
}

func x25519Public(b []byte, field string) (domain.X25519Public, error) {
	var k domain.X25519Public
	if err := fixed(k[:], b, field); err != nil {
		return domain.X25519Public{}, err
	}
	return k, nil
}

func optionalX25519Public(b []byte, field string) (*domain.X25519Public, error) {
	if len(b) == 0 {
		return nil, nil
	}
	k, err := x25519Public(b, field)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func optionalBytes(k *domain.X25519Public) []byte {
	if k == nil {
		return nil
	}
	return k.Slice()
}
