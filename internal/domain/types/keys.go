package types

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is all zeroes.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is an Ed25519 signing private key (seed followed by public key).
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// Key is a 32-byte symmetric secret: root, chain or message key.
type Key [32]byte

// Slice returns the key as a []byte.
func (k Key) Slice() []byte { return k[:] }

// IsZero reports whether the key is all zeroes.
func (k Key) IsZero() bool { return k == Key{} }

// DHKeyPair is a Curve25519 key pair usable for Diffie-Hellman.
type DHKeyPair struct {
	Public  X25519Public  `json:"public"`
	Private X25519Private `json:"private"`
}

// SigningKeyPair is an Ed25519 key pair usable for signatures.
type SigningKeyPair struct {
	Public  Ed25519Public  `json:"public"`
	Private Ed25519Private `json:"private"`
}
