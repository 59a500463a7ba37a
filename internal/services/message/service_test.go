package message_test

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/services/message"
	"cipherlink/internal/services/prekey"
	"cipherlink/internal/services/session"
	"cipherlink/internal/store"
)

func TestMain(m *testing.M) {
	if err := crypto.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// directory serves bundles straight from each peer's pre-key service,
// leaving out the one-time pre-keys initiators already used.
type directory struct {
	peers map[domain.ConversationID]*prekey.Service
	used  map[domain.X25519Public]bool
}

func newDirectory() *directory {
	return &directory{
		peers: make(map[domain.ConversationID]*prekey.Service),
		used:  make(map[domain.X25519Public]bool),
	}
}

func (d *directory) FetchBundle(peer domain.ConversationID) (domain.KeyBundle, error) {
	svc, ok := d.peers[peer]
	if !ok {
		return domain.KeyBundle{}, errors.Errorf("no bundle for %s", peer)
	}
	b, err := svc.Bundle()
	if err != nil {
		return domain.KeyBundle{}, err
	}
	var left []domain.X25519Public
	for _, k := range b.OneTimePreKeys {
		if !d.used[k] {
			left = append(left, k)
		}
	}
	b.OneTimePreKeys = left
	return b, nil
}

func (d *directory) MarkOneTimePreKeyUsed(_ domain.ConversationID, pub domain.X25519Public) error {
	d.used[pub] = true
	return nil
}

type user struct {
	prekeys  *prekey.Service
	kv       *store.KVStore
	sessions *session.Service
	messages *message.Service
}

func newUsers(t *testing.T) (alice, bob *user) {
	t.Helper()
	dir := newDirectory()
	mk := func(name domain.ConversationID, opks int) *user {
		fs, err := store.OpenFileStore(t.TempDir(), "pass", store.ScryptParams{N: 1 << 10, R: 8, P: 1})
		require.NoError(t, err)
		u := &user{prekeys: prekey.New(fs)}
		_, err = u.prekeys.Generate(opks)
		require.NoError(t, err)
		u.kv = store.NewKVStore(ekv.MakeMemstore())
		u.sessions = session.New(fs, u.kv, nil)
		u.messages = message.New(u.sessions, dir, u.kv)
		dir.peers[name] = u.prekeys
		return u
	}
	return mk("alice", 2), mk("bob", 5)
}

func TestMessage_Conversation(t *testing.T) {
	alice, bob := newUsers(t)

	p1, err := alice.messages.Send("bob", []byte("Message 1"))
	require.NoError(t, err)
	require.NotNil(t, p1.Handshake)

	p2, err := alice.messages.Send("bob", []byte("Message 2"))
	require.NoError(t, err)
	require.NotNil(t, p2.Handshake)
	require.Equal(t, *p1.Handshake, *p2.Handshake)

	pt, err := bob.messages.Receive("alice", p1)
	require.NoError(t, err)
	require.Equal(t, "Message 1", string(pt))
	pt, err = bob.messages.Receive("alice", p2)
	require.NoError(t, err)
	require.Equal(t, "Message 2", string(pt))

	reply, err := bob.messages.Send("alice", []byte("Reply"))
	require.NoError(t, err)
	require.Nil(t, reply.Handshake)

	_, ok, err := alice.kv.LoadPendingHandshake("bob")
	require.NoError(t, err)
	require.True(t, ok)

	pt, err = alice.messages.Receive("bob", reply)
	require.NoError(t, err)
	require.Equal(t, "Reply", string(pt))

	_, ok, err = alice.kv.LoadPendingHandshake("bob")
	require.NoError(t, err)
	require.False(t, ok)

	p3, err := alice.messages.Send("bob", []byte("Message 3"))
	require.NoError(t, err)
	require.Nil(t, p3.Handshake)
	pt, err = bob.messages.Receive("alice", p3)
	require.NoError(t, err)
	require.Equal(t, "Message 3", string(pt))
}

func TestMessage_FirstPacketsOutOfOrder(t *testing.T) {
	alice, bob := newUsers(t)

	p1, err := alice.messages.Send("bob", []byte("one"))
	require.NoError(t, err)
	p2, err := alice.messages.Send("bob", []byte("two"))
	require.NoError(t, err)

	pt, err := bob.messages.Receive("alice", p2)
	require.NoError(t, err)
	require.Equal(t, "two", string(pt))
	pt, err = bob.messages.Receive("alice", p1)
	require.NoError(t, err)
	require.Equal(t, "one", string(pt))

	// Only one one-time pre-key was consumed.
	left, err := bob.prekeys.Bundle()
	require.NoError(t, err)
	require.Len(t, left.OneTimePreKeys, 4)
}

func TestMessage_TamperedPacket(t *testing.T) {
	alice, bob := newUsers(t)

	p, err := alice.messages.Send("bob", []byte("hi"))
	require.NoError(t, err)
	p.Message.Ciphertext[0] ^= 0x80

	_, err = bob.messages.Receive("alice", p)
	require.ErrorIs(t, err, crypto.ErrAuthenticationFailure)
}

func TestMessage_UnknownPeer(t *testing.T) {
	alice, _ := newUsers(t)

	_, err := alice.messages.Send("carol", []byte("hi"))
	require.Error(t, err)

	ok, err := alice.sessions.HasSession("carol")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMessage_ReceiveWithoutSession(t *testing.T) {
	_, bob := newUsers(t)

	_, err := bob.messages.Receive("alice", domain.Packet{})
	require.ErrorIs(t, err, session.ErrNoSession)
}

// exchange runs one message each way so both sides hold a confirmed session.
func exchange(t *testing.T, alice, bob *user) domain.Packet {
	t.Helper()
	first, err := alice.messages.Send("bob", []byte("hello"))
	require.NoError(t, err)
	require.NotNil(t, first.Handshake)
	_, err = bob.messages.Receive("alice", first)
	require.NoError(t, err)

	reply, err := bob.messages.Send("alice", []byte("hi"))
	require.NoError(t, err)
	_, err = alice.messages.Receive("bob", reply)
	require.NoError(t, err)
	return first
}

func TestMessage_StartOverAfterExchange(t *testing.T) {
	alice, bob := newUsers(t)
	first := exchange(t, alice, bob)

	require.NoError(t, alice.messages.Start("bob"))
	p, err := alice.messages.Send("bob", []byte("new session"))
	require.NoError(t, err)
	require.NotNil(t, p.Handshake)
	require.NotEqual(t, first.Handshake.EphemeralKey, p.Handshake.EphemeralKey)
	require.NotNil(t, p.Handshake.OneTimePreKey)
	require.NotEqual(t, *first.Handshake.OneTimePreKey, *p.Handshake.OneTimePreKey)

	pt, err := bob.messages.Receive("alice", p)
	require.NoError(t, err)
	require.Equal(t, "new session", string(pt))

	reply, err := bob.messages.Send("alice", []byte("welcome back"))
	require.NoError(t, err)
	pt, err = alice.messages.Receive("bob", reply)
	require.NoError(t, err)
	require.Equal(t, "welcome back", string(pt))

	left, err := bob.prekeys.Bundle()
	require.NoError(t, err)
	require.Len(t, left.OneTimePreKeys, 3)

	seen, err := bob.kv.AcceptedHandshakes("alice")
	require.NoError(t, err)
	require.Equal(t, []domain.X25519Public{first.Handshake.EphemeralKey, p.Handshake.EphemeralKey}, seen)
}

func TestMessage_ResponderStartsOver(t *testing.T) {
	alice, bob := newUsers(t)
	exchange(t, alice, bob)

	require.NoError(t, bob.messages.Start("alice"))
	p, err := bob.messages.Send("alice", []byte("from bob"))
	require.NoError(t, err)
	require.NotNil(t, p.Handshake)

	pt, err := alice.messages.Receive("bob", p)
	require.NoError(t, err)
	require.Equal(t, "from bob", string(pt))

	next, err := alice.messages.Send("bob", []byte("from alice"))
	require.NoError(t, err)
	require.Nil(t, next.Handshake)
	pt, err = bob.messages.Receive("alice", next)
	require.NoError(t, err)
	require.Equal(t, "from alice", string(pt))
}

func TestMessage_OldHandshakeRefused(t *testing.T) {
	alice, bob := newUsers(t)
	first := exchange(t, alice, bob)

	require.NoError(t, alice.messages.Start("bob"))
	p, err := alice.messages.Send("bob", []byte("new session"))
	require.NoError(t, err)
	_, err = bob.messages.Receive("alice", p)
	require.NoError(t, err)

	_, err = bob.messages.Receive("alice", first)
	require.ErrorIs(t, err, message.ErrStaleHandshake)
}

func TestMessage_UnauthenticatedNewHandshakeKeepsSession(t *testing.T) {
	alice, bob := newUsers(t)
	exchange(t, alice, bob)

	before, _, err := bob.kv.LoadState("alice")
	require.NoError(t, err)

	require.NoError(t, alice.messages.Start("bob"))
	p, err := alice.messages.Send("bob", []byte("new session"))
	require.NoError(t, err)
	p.Message.Ciphertext[0] ^= 1

	_, err = bob.messages.Receive("alice", p)
	require.ErrorIs(t, err, crypto.ErrAuthenticationFailure)

	after, _, err := bob.kv.LoadState("alice")
	require.NoError(t, err)
	require.Equal(t, before, after)
	seen, err := bob.kv.AcceptedHandshakes("alice")
	require.NoError(t, err)
	require.Len(t, seen, 1)
}
