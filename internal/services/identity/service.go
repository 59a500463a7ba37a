package identity

import (
	"unicode"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = errors.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
	// ErrIdentityExists is returned when an identity is already stored.
	ErrIdentityExists = errors.New("identity already exists")
	// ErrNoIdentity is returned when no identity has been generated yet.
	ErrNoIdentity = errors.New("no identity; run keygen first")
)

// Service manages the local identity using a backing store.
//
// The identity is a single Ed25519 key pair. It signs the signed pre-key and,
// mapped to X25519, takes part in the X3DH handshake.
type Service struct {
	store domain.PreKeyStore
}

// New returns an identity service backed by the given store.
func New(s domain.PreKeyStore) *Service { return &Service{store: s} }

// GenerateIdentity creates and saves a new identity and returns its
// fingerprint. An existing identity is never overwritten.
func (s *Service) GenerateIdentity() (domain.Fingerprint, error) {
	_, ok, err := s.store.LoadIdentity()
	if err != nil {
		return "", err
	}
	if ok {
		return "", errors.WithStack(ErrIdentityExists)
	}

	id, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return "", err
	}
	defer crypto.SecureErase(id.Private[:])
	if err := s.store.SaveIdentity(id); err != nil {
		return "", err
	}

	fp := fingerprint(id.Public)
	jww.INFO.Printf("identity: generated %s", fp)
	return fp, nil
}

// FingerprintIdentity returns a short fingerprint of the identity public key.
func (s *Service) FingerprintIdentity() (domain.Fingerprint, error) {
	id, ok, err := s.store.LoadIdentity()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.WithStack(ErrNoIdentity)
	}
	crypto.SecureErase(id.Private[:])
	return fingerprint(id.Public), nil
}

// Fingerprint returns the fingerprint of any identity public key, e.g. a
// peer's from its bundle.
func Fingerprint(pub domain.Ed25519Public) domain.Fingerprint {
	return fingerprint(pub)
}

func fingerprint(pub domain.Ed25519Public) domain.Fingerprint {
	return domain.Fingerprint(crypto.Fingerprint(pub.Slice()))
}

// CheckPassphrase enforces a basic strength policy for new key stores.
func CheckPassphrase(passphrase string) error {
	if !isSecurePassphrase(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
