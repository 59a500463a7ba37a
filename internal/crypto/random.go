package crypto

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

// RandomBytes returns n bytes from the CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	if err := checkReady(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Errorf("crypto: negative length %d", n)
	}
	b := make([]byte, n)
	if err := readRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

func readRandom(b []byte) error {
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return errors.Wrap(err, "crypto: read random")
	}
	return nil
}
