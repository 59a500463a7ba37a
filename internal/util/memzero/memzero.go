// Package memzero erases secret buffers.
package memzero

import "crypto/subtle"

// Zero overwrites b with zeroes through a constant-time copy so the write is
// not elided as dead.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}

// ZeroAll erases every buffer in bufs.
func ZeroAll(bufs ...[]byte) {
	for _, b := range bufs {
		Zero(b)
	}
}
