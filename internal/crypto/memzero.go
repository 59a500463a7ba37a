package crypto

import (
	"runtime"

	"cipherlink/internal/util/memzero"
)

// SecureErase overwrites b with zeroes. It is not gated by Init.
//
//go:noinline
func SecureErase(b []byte) {
	memzero.Zero(b)
	// Ensure b is considered live until after the write.
	runtime.KeepAlive(&b)
}
