package prekey_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"cipherlink/internal/crypto"
	"cipherlink/internal/protocol/x3dh"
	"cipherlink/internal/services/prekey"
	"cipherlink/internal/store"
)

func TestMain(m *testing.M) {
	if err := crypto.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newService(t *testing.T) (*prekey.Service, *store.FileStore) {
	t.Helper()
	fs, err := store.OpenFileStore(t.TempDir(), "pass", store.ScryptParams{N: 1 << 10, R: 8, P: 1})
	require.NoError(t, err)
	return prekey.New(fs), fs
}

func TestGenerate(t *testing.T) {
	svc, fs := newService(t)

	_, err := svc.Bundle()
	require.ErrorIs(t, err, prekey.ErrNoIdentity)

	bundle, err := svc.Generate(10)
	require.NoError(t, err)
	require.Len(t, bundle.OneTimePreKeys, 10)
	require.True(t, x3dh.VerifyKeyBundle(bundle))

	id, ok, err := fs.LoadIdentity()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bundle.IdentityKey, id.Public)

	stored, err := svc.Bundle()
	require.NoError(t, err)
	require.Equal(t, bundle, stored)
}

func TestGenerate_KeepsExistingIdentity(t *testing.T) {
	svc, _ := newService(t)

	first, err := svc.Generate(1)
	require.NoError(t, err)
	second, err := svc.Generate(2)
	require.NoError(t, err)

	require.Equal(t, first.IdentityKey, second.IdentityKey)
	require.NotEqual(t, first.SignedPreKey.PublicKey, second.SignedPreKey.PublicKey)
	require.Len(t, second.OneTimePreKeys, 3)
	require.True(t, x3dh.VerifyKeyBundle(second))
}

func TestRotateSignedPreKey(t *testing.T) {
	svc, fs := newService(t)
	before, err := svc.Generate(0)
	require.NoError(t, err)

	spk, err := svc.RotateSignedPreKey()
	require.NoError(t, err)
	require.NotEqual(t, before.SignedPreKey.PublicKey, spk.PublicKey)

	after, err := svc.Bundle()
	require.NoError(t, err)
	require.Equal(t, spk, after.SignedPreKey)
	require.True(t, x3dh.VerifyKeyBundle(after))

	// The replaced key still resolves for in-flight handshakes.
	_, ok, err := fs.LoadSignedPreKey(before.SignedPreKey.PublicKey)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReplenish(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Generate(2)
	require.NoError(t, err)

	added, err := svc.Replenish(3)
	require.NoError(t, err)
	require.Len(t, added, 3)

	bundle, err := svc.Bundle()
	require.NoError(t, err)
	require.Len(t, bundle.OneTimePreKeys, 5)
	require.Equal(t, added, bundle.OneTimePreKeys[2:])

	_, err = svc.Replenish(-1)
	require.Error(t, err)
}

func TestTopUp(t *testing.T) {
	svc, fs := newService(t)
	_, err := svc.Generate(prekey.ReplenishThreshold)
	require.NoError(t, err)

	added, err := svc.TopUp(5)
	require.NoError(t, err)
	require.Zero(t, added)

	bundle, err := svc.Bundle()
	require.NoError(t, err)
	_, ok, err := fs.ConsumeOneTimePreKey(bundle.OneTimePreKeys[0])
	require.NoError(t, err)
	require.True(t, ok)

	added, err = svc.TopUp(5)
	require.NoError(t, err)
	require.Equal(t, 5, added)

	bundle, err = svc.Bundle()
	require.NoError(t, err)
	require.Len(t, bundle.OneTimePreKeys, prekey.ReplenishThreshold-1+5)
}
