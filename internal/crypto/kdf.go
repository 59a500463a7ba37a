package crypto

import (
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

// maxKDFOutput is the HKDF-SHA256 output limit (255 blocks).
const maxKDFOutput = 255 * sha256.Size

// KDF derives length bytes from ikm with HKDF-SHA256. The same inputs always
// yield the same output.
func KDF(ikm, salt []byte, info string, length int) ([]byte, error) {
	if err := checkReady(); err != nil {
		return nil, err
	}
	if length <= 0 || length > maxKDFOutput {
		return nil, errors.Errorf("crypto: kdf length %d out of range", length)
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(info)), out); err != nil {
		SecureErase(out)
		return nil, errors.Wrap(err, "crypto: kdf")
	}
	return out, nil
}
