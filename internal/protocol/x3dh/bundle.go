package x3dh

import (
	"github.com/pkg/errors"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

// GenerateKeyBundle creates an identity key, a signed pre-key signed by it and
// oneTimePreKeyCount one-time pre-keys. It returns the public bundle and every
// private half; persisting the latter is the caller's job.
func GenerateKeyBundle(oneTimePreKeyCount int) (domain.KeyBundle, domain.PrivateKeyBundle, error) {
	if oneTimePreKeyCount < 0 {
		return domain.KeyBundle{}, domain.PrivateKeyBundle{},
			errors.Errorf("x3dh: negative one-time pre-key count %d", oneTimePreKeyCount)
	}

	identity, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return domain.KeyBundle{}, domain.PrivateKeyBundle{}, err
	}
	signedPreKey, signature, err := NewSignedPreKey(identity.Private)
	if err != nil {
		return domain.KeyBundle{}, domain.PrivateKeyBundle{}, err
	}
	oneTime, err := NewOneTimePreKeys(oneTimePreKeyCount)
	if err != nil {
		return domain.KeyBundle{}, domain.PrivateKeyBundle{}, err
	}

	bundle := domain.KeyBundle{
		IdentityKey: identity.Public,
		SignedPreKey: domain.SignedPreKey{
			PublicKey: signedPreKey.Public,
			Signature: signature,
		},
		OneTimePreKeys: PublicKeys(oneTime),
	}
	private := domain.PrivateKeyBundle{
		Identity:       identity,
		SignedPreKey:   signedPreKey,
		OneTimePreKeys: oneTime,
	}
	return bundle, private, nil
}

// NewSignedPreKey generates a DH key pair and signs its public bytes with the
// identity key.
func NewSignedPreKey(identity domain.Ed25519Private) (domain.DHKeyPair, []byte, error) {
	pair, err := crypto.GenerateKeyPair()
	if err != nil {
		return domain.DHKeyPair{}, nil, err
	}
	sig, err := crypto.Sign(pair.Public.Slice(), identity)
	if err != nil {
		crypto.SecureErase(pair.Private[:])
		return domain.DHKeyPair{}, nil, err
	}
	return pair, sig, nil
}

// NewOneTimePreKeys generates n one-time pre-key pairs.
func NewOneTimePreKeys(n int) ([]domain.DHKeyPair, error) {
	out := make([]domain.DHKeyPair, 0, n)
	for i := 0; i < n; i++ {
		pair, err := crypto.GenerateKeyPair()
		if err != nil {
			for j := range out {
				crypto.SecureErase(out[j].Private[:])
			}
			return nil, err
		}
		out = append(out, pair)
	}
	return out, nil
}

// PublicKeys projects key pairs onto their public halves.
func PublicKeys(pairs []domain.DHKeyPair) []domain.X25519Public {
	out := make([]domain.X25519Public, len(pairs))
	for i := range pairs {
		out[i] = pairs[i].Public
	}
	return out
}

// VerifyKeyBundle checks the identity key's signature over the signed
// pre-key's public bytes.
func VerifyKeyBundle(bundle domain.KeyBundle) bool {
	return crypto.Verify(
		bundle.SignedPreKey.PublicKey.Slice(),
		bundle.SignedPreKey.Signature,
		bundle.IdentityKey,
	)
}
