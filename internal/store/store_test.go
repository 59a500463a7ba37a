package store_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/protocol/ratchet"
	"cipherlink/internal/protocol/x3dh"
	"cipherlink/internal/store"
)

// testParams keep scrypt cheap in tests.
var testParams = store.ScryptParams{N: 1 << 10, R: 8, P: 1}

func TestMain(m *testing.M) {
	if err := crypto.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func openStore(t *testing.T, dir, pass string) *store.FileStore {
	t.Helper()
	fs, err := store.OpenFileStore(dir, pass, testParams)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	return fs
}

func TestIdentity_SaveLoad(t *testing.T) {
	home := t.TempDir()
	fs := openStore(t, home, "pass")

	_, ok, err := fs.LoadIdentity()
	require.NoError(t, err)
	require.False(t, ok)

	id, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	require.NoError(t, fs.SaveIdentity(id))

	// A second handle on the same directory sees the identity.
	got, ok, err := openStore(t, home, "pass").LoadIdentity()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestOpen_WrongPassphrase(t *testing.T) {
	home := t.TempDir()
	openStore(t, home, "correct")

	_, err := store.OpenFileStore(home, "wrong", testParams)
	require.ErrorIs(t, err, store.ErrWrongPassphrase)
}

func TestIdentity_NotStoredInClear(t *testing.T) {
	home := t.TempDir()
	fs := openStore(t, home, "pass")
	id, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	require.NoError(t, fs.SaveIdentity(id))

	b, err := os.ReadFile(filepath.Join(home, "identity.enc"))
	require.NoError(t, err)
	require.NotContains(t, string(b), "private")
}

func TestClosedStore(t *testing.T) {
	fs, err := store.OpenFileStore(t.TempDir(), "pass", testParams)
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	_, _, err = fs.LoadIdentity()
	require.Error(t, err)
}

func TestSignedPreKey_CurrentAndStale(t *testing.T) {
	fs := openStore(t, t.TempDir(), "pass")
	id, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)

	_, ok, err := fs.CurrentSignedPreKey()
	require.NoError(t, err)
	require.False(t, ok)

	var pairs []domain.DHKeyPair
	for i := 0; i < store.MaxStaleSignedPreKeys+2; i++ {
		pair, sig, err := x3dh.NewSignedPreKey(id.Private)
		require.NoError(t, err)
		require.NoError(t, fs.SaveSignedPreKey(pair, sig))
		pairs = append(pairs, pair)

		cur, ok, err := fs.CurrentSignedPreKey()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, pair.Public, cur.PublicKey)
		require.Equal(t, sig, cur.Signature)
	}

	// The oldest key fell off; the rest are still loadable.
	_, ok, err = fs.LoadSignedPreKey(pairs[0].Public)
	require.NoError(t, err)
	require.False(t, ok)
	for _, p := range pairs[1:] {
		priv, ok, err := fs.LoadSignedPreKey(p.Public)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, p.Private, priv)
	}
}

func TestOneTimePreKey_ConsumedOnce(t *testing.T) {
	fs := openStore(t, t.TempDir(), "pass")
	pairs, err := x3dh.NewOneTimePreKeys(3)
	require.NoError(t, err)
	require.NoError(t, fs.SaveOneTimePreKeys(pairs))

	pubs, err := fs.ListOneTimePreKeys()
	require.NoError(t, err)
	require.Equal(t, x3dh.PublicKeys(pairs), pubs)

	priv, ok, err := fs.ConsumeOneTimePreKey(pairs[1].Public)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pairs[1].Private, priv)

	_, ok, err = fs.ConsumeOneTimePreKey(pairs[1].Public)
	require.NoError(t, err)
	require.False(t, ok)

	pubs, err = fs.ListOneTimePreKeys()
	require.NoError(t, err)
	require.Equal(t, []domain.X25519Public{pairs[0].Public, pairs[2].Public}, pubs)
}

func TestOneTimePreKey_ConcurrentConsume(t *testing.T) {
	fs := openStore(t, t.TempDir(), "pass")
	pairs, err := x3dh.NewOneTimePreKeys(1)
	require.NoError(t, err)
	require.NoError(t, fs.SaveOneTimePreKeys(pairs))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		hits int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := fs.ConsumeOneTimePreKey(pairs[0].Public)
			if err == nil && ok {
				mu.Lock()
				hits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, hits)
}

func newSession(t *testing.T) domain.RatchetState {
	t.Helper()
	var rk domain.Key
	rk[0] = 3
	alice, err := ratchet.InitSender(rk)
	require.NoError(t, err)
	bob, err := ratchet.InitReceiver(rk, alice.OwnRatchetKey.Public)
	require.NoError(t, err)
	return bob
}

func TestKVStore_SaveLoadDelete(t *testing.T) {
	kv := store.NewKVStore(ekv.MakeMemstore())
	id := domain.ConversationID("alice")

	_, ok, err := kv.LoadState(id)
	require.NoError(t, err)
	require.False(t, ok)

	st := newSession(t)
	require.NoError(t, kv.SaveState(id, st))

	got, ok, err := kv.LoadState(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, st, got)

	// Loading twice yields the same snapshot.
	again, _, err := kv.LoadState(id)
	require.NoError(t, err)
	require.Equal(t, st, again)

	require.NoError(t, kv.DeleteState(id))
	_, ok, err = kv.LoadState(id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVStore_Filestore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	kv, err := store.OpenKVStore(dir, "pass")
	require.NoError(t, err)

	st := newSession(t)
	require.NoError(t, kv.SaveState("bob", st))

	got, ok, err := kv.LoadState("bob")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, st, got)
}

func TestKVStore_PendingHandshake(t *testing.T) {
	kv := store.NewKVStore(ekv.MakeMemstore())

	_, ok, err := kv.LoadPendingHandshake("bob")
	require.NoError(t, err)
	require.False(t, ok)

	opk := domain.X25519Public{9}
	hs := domain.HandshakeMessage{
		IdentityKey:   domain.Ed25519Public{1},
		EphemeralKey:  domain.X25519Public{2},
		SignedPreKey:  domain.X25519Public{3},
		OneTimePreKey: &opk,
		Salt:          make([]byte, x3dh.SaltSize),
		RatchetKey:    domain.X25519Public{4},
	}
	require.NoError(t, kv.SavePendingHandshake("bob", hs))

	got, ok, err := kv.LoadPendingHandshake("bob")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hs, got)

	// Sessions and handshakes live under separate keys.
	_, ok, err = kv.LoadState("bob")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.DeletePendingHandshake("bob"))
	_, ok, err = kv.LoadPendingHandshake("bob")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBundleDir(t *testing.T) {
	d, err := store.NewBundleDir(filepath.Join(t.TempDir(), "peers"))
	require.NoError(t, err)

	_, err = d.FetchBundle("bob")
	require.ErrorIs(t, err, store.ErrUnknownPeer)

	bundle, _, err := x3dh.GenerateKeyBundle(3)
	require.NoError(t, err)
	require.NoError(t, d.AddBundle("bob", bundle))

	got, err := d.FetchBundle("bob")
	require.NoError(t, err)
	require.Equal(t, bundle, got)

	bundle.SignedPreKey.Signature[0] ^= 1
	require.ErrorIs(t, d.AddBundle("mallory", bundle), x3dh.ErrInvalidBundleSignature)

	require.Error(t, d.AddBundle("../escape", got))
}

func TestBundleDir_MarkOneTimePreKeyUsed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "peers")
	d, err := store.NewBundleDir(dir)
	require.NoError(t, err)

	require.ErrorIs(t, d.MarkOneTimePreKeyUsed("bob", domain.X25519Public{1}), store.ErrUnknownPeer)

	bundle, _, err := x3dh.GenerateKeyBundle(3)
	require.NoError(t, err)
	require.NoError(t, d.AddBundle("bob", bundle))

	used := bundle.OneTimePreKeys[0]
	require.NoError(t, d.MarkOneTimePreKeyUsed("bob", used))
	require.NoError(t, d.MarkOneTimePreKeyUsed("bob", domain.X25519Public{1}))

	// A reopened directory sees the same bundle.
	d, err = store.NewBundleDir(dir)
	require.NoError(t, err)
	got, err := d.FetchBundle("bob")
	require.NoError(t, err)
	require.Equal(t, bundle.OneTimePreKeys[1:], got.OneTimePreKeys)
	require.Equal(t, bundle.SignedPreKey, got.SignedPreKey)
	require.True(t, x3dh.VerifyKeyBundle(got))
}

func TestKVStore_AcceptedHandshakes(t *testing.T) {
	kv := store.NewKVStore(ekv.MakeMemstore())

	seen, err := kv.AcceptedHandshakes("alice")
	require.NoError(t, err)
	require.Empty(t, seen)

	var want []domain.X25519Public
	for i := 0; i < store.MaxAcceptedHandshakes+8; i++ {
		k := domain.X25519Public{byte(i), 0xaa}
		want = append(want, k)
		require.NoError(t, kv.RecordAcceptedHandshake("alice", k))
	}

	seen, err = kv.AcceptedHandshakes("alice")
	require.NoError(t, err)
	require.Equal(t, want[len(want)-store.MaxAcceptedHandshakes:], seen)

	other, err := kv.AcceptedHandshakes("bob")
	require.NoError(t, err)
	require.Empty(t, other)
}
