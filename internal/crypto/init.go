package crypto

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

var (
	// ErrNotInitialized is returned by every primitive invoked before Init.
	ErrNotInitialized = errors.New("crypto: not initialized")

	initOnce sync.Once
	initErr  error
	ready    atomic.Bool
)

// Init performs the one-time process-wide initialisation: it checks that the
// CSPRNG is readable and that X25519 produces the expected public key for a
// fixed scalar. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		initErr = selfTest()
		if initErr == nil {
			ready.Store(true)
		}
	})
	return initErr
}

// Ready reports whether Init has completed successfully.
func Ready() bool { return ready.Load() }

func checkReady() error {
	if !ready.Load() {
		return ErrNotInitialized
	}
	return nil
}

// RFC 7748 §6.1 test vector (Alice).
var (
	selfTestScalar = [32]byte{
		0x77, 0x07, 0x6d, 0x0a, 0x73, 0x18, 0xa5, 0x7d,
		0x3c, 0x16, 0xc1, 0x72, 0x51, 0xb2, 0x66, 0x45,
		0xdf, 0x4c, 0x2f, 0x87, 0xeb, 0xc0, 0x99, 0x2a,
		0xb1, 0x77, 0xfb, 0xa5, 0x1d, 0xb9, 0x2c, 0x2a,
	}
	selfTestPublic = [32]byte{
		0x85, 0x20, 0xf0, 0x09, 0x89, 0x30, 0xa7, 0x54,
		0x74, 0x8b, 0x7d, 0xdc, 0xb4, 0x3e, 0xf7, 0x5a,
		0x0d, 0xbf, 0x3a, 0x0d, 0x26, 0x38, 0x1a, 0xf4,
		0xeb, 0xa4, 0xa9, 0x8e, 0xaa, 0x9b, 0x4e, 0x6a,
	}
)

func selfTest() error {
	sample := make([]byte, 32)
	if err := readRandom(sample); err != nil {
		return errors.Wrap(err, "crypto: csprng unavailable")
	}
	SecureErase(sample)

	pub, err := curve25519.X25519(selfTestScalar[:], curve25519.Basepoint)
	if err != nil {
		return errors.Wrap(err, "crypto: x25519 self-test")
	}
	if [32]byte(pub) != selfTestPublic {
		return errors.New("crypto: x25519 self-test mismatch")
	}
	return nil
}
