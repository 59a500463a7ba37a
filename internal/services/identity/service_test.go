package identity_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"cipherlink/internal/crypto"
	"cipherlink/internal/services/identity"
	"cipherlink/internal/store"
)

func TestMain(m *testing.M) {
	if err := crypto.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newService(t *testing.T) *identity.Service {
	t.Helper()
	fs, err := store.OpenFileStore(t.TempDir(), "pass", store.ScryptParams{N: 1 << 10, R: 8, P: 1})
	require.NoError(t, err)
	return identity.New(fs)
}

func TestGenerateIdentity(t *testing.T) {
	svc := newService(t)

	_, err := svc.FingerprintIdentity()
	require.ErrorIs(t, err, identity.ErrNoIdentity)

	fp, err := svc.GenerateIdentity()
	require.NoError(t, err)
	require.Len(t, fp.String(), 20)

	again, err := svc.FingerprintIdentity()
	require.NoError(t, err)
	require.Equal(t, fp, again)

	_, err = svc.GenerateIdentity()
	require.ErrorIs(t, err, identity.ErrIdentityExists)
}

func TestCheckPassphrase(t *testing.T) {
	for _, c := range []struct {
		pass string
		ok   bool
	}{
		{"short", false},
		{"alllowercaseletters", false},
		{"NoDigitsOrSymbols", false},
		{"N0Symbols4567", false},
		{"Correct-Horse-9", true},
	} {
		err := identity.CheckPassphrase(c.pass)
		if c.ok {
			require.NoError(t, err, c.pass)
		} else {
			require.ErrorIs(t, err, identity.ErrWeakPassphrase, c.pass)
		}
	}
}
