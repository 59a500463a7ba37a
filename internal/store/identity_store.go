package store

import (
	"cipherlink/internal/domain"
)

// SaveIdentity seals the long-term identity key pair to disk, replacing any
// previous one.
func (s *FileStore) SaveIdentity(identity domain.SigningKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.writeSealed(identityFile, identity)
}

// LoadIdentity reads the identity key pair; ok is false when none was saved.
func (s *FileStore) LoadIdentity() (domain.SigningKeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return domain.SigningKeyPair{}, false, err
	}

	var id domain.SigningKeyPair
	found, err := s.readSealed(identityFile, &id)
	if err != nil || !found {
		return domain.SigningKeyPair{}, false, err
	}
	return id, true, nil
}

// Compile-time assertion that FileStore implements domain.PreKeyStore.
var _ domain.PreKeyStore = (*FileStore)(nil)
