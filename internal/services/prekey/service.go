package prekey

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/protocol/x3dh"
)

var (
	// ErrNoIdentity is returned when no identity key is stored.
	ErrNoIdentity = errors.New("prekey: no identity key")
	// ErrNoSignedPreKey is returned when no signed pre-key is stored.
	ErrNoSignedPreKey = errors.New("prekey: no signed pre-key available")
)

// ReplenishThreshold is the number of unused one-time pre-keys below which
// TopUp adds a new batch.
const ReplenishThreshold = 20

// Service manages pre-key pairs and builds the public bundle.
type Service struct {
	store domain.PreKeyStore
}

// New returns a pre-key service backed by store.
func New(store domain.PreKeyStore) *Service {
	return &Service{store: store}
}

// Generate creates a complete key bundle with oneTimePreKeyCount one-time
// pre-keys and persists every private half. If an identity is already stored
// it is kept and only the pre-keys are created.
func (s *Service) Generate(oneTimePreKeyCount int) (domain.KeyBundle, error) {
	_, ok, err := s.store.LoadIdentity()
	if err != nil {
		return domain.KeyBundle{}, err
	}
	if ok {
		if _, err := s.RotateSignedPreKey(); err != nil {
			return domain.KeyBundle{}, err
		}
		if _, err := s.Replenish(oneTimePreKeyCount); err != nil {
			return domain.KeyBundle{}, err
		}
		return s.Bundle()
	}

	bundle, private, err := x3dh.GenerateKeyBundle(oneTimePreKeyCount)
	if err != nil {
		return domain.KeyBundle{}, err
	}
	defer erasePrivate(&private)

	if err := s.store.SaveIdentity(private.Identity); err != nil {
		return domain.KeyBundle{}, err
	}
	if err := s.store.SaveSignedPreKey(private.SignedPreKey, bundle.SignedPreKey.Signature); err != nil {
		return domain.KeyBundle{}, err
	}
	if err := s.store.SaveOneTimePreKeys(private.OneTimePreKeys); err != nil {
		return domain.KeyBundle{}, err
	}
	jww.INFO.Printf("prekey: generated bundle for %s with %d one-time pre-keys",
		crypto.Fingerprint(bundle.IdentityKey[:]), len(bundle.OneTimePreKeys))
	return bundle, nil
}

// Bundle builds the public bundle from the current signed pre-key and the
// remaining one-time pre-keys.
func (s *Service) Bundle() (domain.KeyBundle, error) {
	id, ok, err := s.store.LoadIdentity()
	if err != nil {
		return domain.KeyBundle{}, err
	}
	if !ok {
		return domain.KeyBundle{}, errors.WithStack(ErrNoIdentity)
	}
	crypto.SecureErase(id.Private[:])

	spk, ok, err := s.store.CurrentSignedPreKey()
	if err != nil {
		return domain.KeyBundle{}, err
	}
	if !ok {
		return domain.KeyBundle{}, errors.WithStack(ErrNoSignedPreKey)
	}

	oneTime, err := s.store.ListOneTimePreKeys()
	if err != nil {
		return domain.KeyBundle{}, err
	}

	return domain.KeyBundle{
		IdentityKey:    id.Public,
		SignedPreKey:   spk,
		OneTimePreKeys: oneTime,
	}, nil
}

// RotateSignedPreKey creates a new signed pre-key and marks it current. The
// previous one stays loadable for handshakes already in flight.
func (s *Service) RotateSignedPreKey() (domain.SignedPreKey, error) {
	id, ok, err := s.store.LoadIdentity()
	if err != nil {
		return domain.SignedPreKey{}, err
	}
	if !ok {
		return domain.SignedPreKey{}, errors.WithStack(ErrNoIdentity)
	}
	defer crypto.SecureErase(id.Private[:])

	pair, sig, err := x3dh.NewSignedPreKey(id.Private)
	if err != nil {
		return domain.SignedPreKey{}, err
	}
	defer crypto.SecureErase(pair.Private[:])
	if err := s.store.SaveSignedPreKey(pair, sig); err != nil {
		return domain.SignedPreKey{}, err
	}
	jww.INFO.Printf("prekey: rotated signed pre-key to %s", crypto.Fingerprint(pair.Public[:]))
	return domain.SignedPreKey{PublicKey: pair.Public, Signature: sig}, nil
}

// Replenish adds count fresh one-time pre-keys and returns their public
// halves.
func (s *Service) Replenish(count int) ([]domain.X25519Public, error) {
	if count < 0 {
		return nil, errors.Errorf("prekey: negative one-time pre-key count %d", count)
	}
	pairs, err := x3dh.NewOneTimePreKeys(count)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range pairs {
			crypto.SecureErase(pairs[i].Private[:])
		}
	}()
	if err := s.store.SaveOneTimePreKeys(pairs); err != nil {
		return nil, err
	}
	jww.DEBUG.Printf("prekey: added %d one-time pre-keys", count)
	return x3dh.PublicKeys(pairs), nil
}

// TopUp adds count one-time pre-keys if fewer than ReplenishThreshold are
// left, and reports how many it added.
func (s *Service) TopUp(count int) (int, error) {
	left, err := s.store.ListOneTimePreKeys()
	if err != nil {
		return 0, err
	}
	if len(left) >= ReplenishThreshold {
		jww.DEBUG.Printf("prekey: %d one-time pre-keys left, not replenishing", len(left))
		return 0, nil
	}
	added, err := s.Replenish(count)
	if err != nil {
		return 0, err
	}
	return len(added), nil
}

func erasePrivate(p *domain.PrivateKeyBundle) {
	crypto.SecureErase(p.Identity.Private[:])
	crypto.SecureErase(p.SignedPreKey.Private[:])
	for i := range p.OneTimePreKeys {
		crypto.SecureErase(p.OneTimePreKeys[i].Private[:])
	}
}

// Compile-time assertion that Service implements domain.PreKeyService.
var _ domain.PreKeyService = (*Service)(nil)
