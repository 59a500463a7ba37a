package session_test

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/protocol/x3dh"
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

type party struct {
	keys     *store.FileStore
	sessions *store.KVStore
	prekeys  *prekey.Service
	svc      *session.Service

	mu     sync.Mutex
	events []domain.Event
}

func newParty(t *testing.T) *party {
	t.Helper()
	fs, err := store.OpenFileStore(t.TempDir(), "pass", store.ScryptParams{N: 1 << 10, R: 8, P: 1})
	require.NoError(t, err)
	p := &party{
		keys:     fs,
		sessions: store.NewKVStore(ekv.MakeMemstore()),
		prekeys:  prekey.New(fs),
	}
	p.svc = session.New(p.keys, p.sessions, func(e domain.Event) {
		p.mu.Lock()
		p.events = append(p.events, e)
		p.mu.Unlock()
	})
	return p
}

func (p *party) kinds() []domain.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventKind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

// establish sets up alice -> bob with bob's fresh 10-OPK bundle.
func establish(t *testing.T) (alice, bob *party, bundle domain.KeyBundle, hs domain.HandshakeMessage) {
	t.Helper()
	alice, bob = newParty(t), newParty(t)
	_, err := alice.prekeys.Generate(0)
	require.NoError(t, err)
	bundle, err = bob.prekeys.Generate(10)
	require.NoError(t, err)

	hs, err = alice.svc.Initiate("bob", bundle, true)
	require.NoError(t, err)
	require.NoError(t, bob.svc.Accept("alice", hs))
	return alice, bob, bundle, hs
}

func TestSession_EndToEnd(t *testing.T) {
	alice, bob, bundle, hs := establish(t)

	require.NotNil(t, hs.OneTimePreKey)
	require.Equal(t, bundle.OneTimePreKeys[0], *hs.OneTimePreKey)

	// The used one-time pre-key is gone from Bob's bundle.
	left, err := bob.prekeys.Bundle()
	require.NoError(t, err)
	require.Len(t, left.OneTimePreKeys, 9)
	require.NotContains(t, left.OneTimePreKeys, *hs.OneTimePreKey)

	for i := 1; i <= 3; i++ {
		msg, err := alice.svc.Encrypt("bob", []byte(fmt.Sprintf("Message %d", i)))
		require.NoError(t, err)
		pt, err := bob.svc.Decrypt("alice", msg)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("Message %d", i), string(pt))
	}

	reply, err := bob.svc.Encrypt("alice", []byte("Reply"))
	require.NoError(t, err)
	before, _, err := alice.sessions.LoadState("bob")
	require.NoError(t, err)
	pt, err := alice.svc.Decrypt("bob", reply)
	require.NoError(t, err)
	require.Equal(t, "Reply", string(pt))

	next, err := alice.svc.Encrypt("bob", []byte("Message 4"))
	require.NoError(t, err)
	require.NotEqual(t, before.OwnRatchetKey.Public, next.SenderRatchetKey)
	pt, err = bob.svc.Decrypt("alice", next)
	require.NoError(t, err)
	require.Equal(t, "Message 4", string(pt))

	require.Equal(t, []domain.EventKind{
		domain.EventSessionEstablished,
		domain.EventRatchetTurn,
	}, alice.kinds())
	require.Equal(t, []domain.EventKind{
		domain.EventSessionEstablished,
		domain.EventRatchetTurn,
	}, bob.kinds())
}

func TestSession_ReplayedHandshakeRejected(t *testing.T) {
	_, bob, _, hs := establish(t)

	require.NoError(t, bob.svc.Close("alice"))
	err := bob.svc.Accept("alice", hs)
	require.ErrorIs(t, err, session.ErrOneTimePreKeyUnavailable)
}

func TestSession_WithoutOneTimePreKey(t *testing.T) {
	alice, bob := newParty(t), newParty(t)
	_, err := alice.prekeys.Generate(0)
	require.NoError(t, err)
	bundle, err := bob.prekeys.Generate(0)
	require.NoError(t, err)

	hs, err := alice.svc.Initiate("bob", bundle, true)
	require.NoError(t, err)
	require.Nil(t, hs.OneTimePreKey)
	require.NoError(t, bob.svc.Accept("alice", hs))

	msg, err := alice.svc.Encrypt("bob", []byte("hi"))
	require.NoError(t, err)
	pt, err := bob.svc.Decrypt("alice", msg)
	require.NoError(t, err)
	require.Equal(t, "hi", string(pt))
}

func TestSession_ResponderSpeaksFirst(t *testing.T) {
	alice, bob, _, _ := establish(t)

	msg, err := bob.svc.Encrypt("alice", []byte("hello first"))
	require.NoError(t, err)
	pt, err := alice.svc.Decrypt("bob", msg)
	require.NoError(t, err)
	require.Equal(t, "hello first", string(pt))
}

func TestSession_AcceptAfterRotation(t *testing.T) {
	alice, bob := newParty(t), newParty(t)
	_, err := alice.prekeys.Generate(0)
	require.NoError(t, err)
	bundle, err := bob.prekeys.Generate(1)
	require.NoError(t, err)

	hs, err := alice.svc.Initiate("bob", bundle, true)
	require.NoError(t, err)

	_, err = bob.prekeys.RotateSignedPreKey()
	require.NoError(t, err)
	require.NoError(t, bob.svc.Accept("alice", hs))
}

func TestSession_InvalidBundle(t *testing.T) {
	alice, bob := newParty(t), newParty(t)
	_, err := alice.prekeys.Generate(0)
	require.NoError(t, err)
	bundle, err := bob.prekeys.Generate(1)
	require.NoError(t, err)

	bundle.SignedPreKey.PublicKey[5] ^= 0x10
	_, err = alice.svc.Initiate("bob", bundle, true)
	require.ErrorIs(t, err, x3dh.ErrInvalidBundleSignature)

	ok, err := alice.svc.HasSession("bob")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, alice.kinds())
}

func TestSession_UnknownSignedPreKey(t *testing.T) {
	_, bob, _, hs := establish(t)

	hs.SignedPreKey[0] ^= 0xff
	err := bob.svc.Accept("mallory", hs)
	require.ErrorIs(t, err, session.ErrUnknownSignedPreKey)
}

func TestSession_TamperedMessageKeepsState(t *testing.T) {
	alice, bob, _, _ := establish(t)

	msg, err := alice.svc.Encrypt("bob", []byte("secret"))
	require.NoError(t, err)
	msg.Ciphertext[0] ^= 1

	before, _, err := bob.sessions.LoadState("alice")
	require.NoError(t, err)
	_, err = bob.svc.Decrypt("alice", msg)
	require.ErrorIs(t, err, crypto.ErrAuthenticationFailure)
	after, _, err := bob.sessions.LoadState("alice")
	require.NoError(t, err)
	require.Equal(t, before, after)

	require.Equal(t, domain.EventDecryptFailed, bob.kinds()[len(bob.kinds())-1])

	msg.Ciphertext[0] ^= 1
	pt, err := bob.svc.Decrypt("alice", msg)
	require.NoError(t, err)
	require.Equal(t, "secret", string(pt))
}

func TestSession_NoSession(t *testing.T) {
	p := newParty(t)

	_, err := p.svc.Encrypt("nobody", []byte("x"))
	require.ErrorIs(t, err, session.ErrNoSession)
	_, err = p.svc.Decrypt("nobody", domain.EncryptedMessage{})
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestSession_NoIdentity(t *testing.T) {
	p := newParty(t)
	_, err := p.svc.Initiate("bob", domain.KeyBundle{}, false)
	require.ErrorIs(t, err, session.ErrNoIdentity)
}

func TestSession_Close(t *testing.T) {
	alice, _, _, _ := establish(t)

	require.NoError(t, alice.svc.Close("bob"))
	ok, err := alice.svc.HasSession("bob")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, domain.EventSessionClosed, alice.kinds()[len(alice.kinds())-1])
}

func TestSession_ConcurrentEncryptIsSerialised(t *testing.T) {
	alice, bob, _, _ := establish(t)

	const n = 32
	msgs := make([]domain.EncryptedMessage, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := alice.svc.Encrypt("bob", []byte(fmt.Sprint(i)))
			if err == nil {
				msgs[i] = msg
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]bool)
	for i, msg := range msgs {
		require.NotEmpty(t, msg.Ciphertext, "message %d", i)
		require.False(t, seen[msg.MessageNumber], "message number %d reused", msg.MessageNumber)
		seen[msg.MessageNumber] = true

		pt, err := bob.svc.Decrypt("alice", msg)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprint(i), string(pt))
	}
}

func TestSession_AcceptMessageReplacesOnlyWhenAuthenticated(t *testing.T) {
	alice, bob, _, _ := establish(t)

	// Alice starts over against Bob's current bundle.
	bundle, err := bob.prekeys.Bundle()
	require.NoError(t, err)
	hs, err := alice.svc.Initiate("bob", bundle, true)
	require.NoError(t, err)
	msg, err := alice.svc.Encrypt("bob", []byte("again"))
	require.NoError(t, err)

	before, _, err := bob.sessions.LoadState("alice")
	require.NoError(t, err)

	bad := msg
	bad.Ciphertext = append([]byte(nil), msg.Ciphertext...)
	bad.Ciphertext[0] ^= 1
	_, err = bob.svc.AcceptMessage("alice", hs, bad)
	require.ErrorIs(t, err, crypto.ErrAuthenticationFailure)

	after, _, err := bob.sessions.LoadState("alice")
	require.NoError(t, err)
	require.Equal(t, before, after)
	kinds := bob.kinds()
	require.Equal(t, domain.EventDecryptFailed, kinds[len(kinds)-1])

	// The one-time pre-key was spent by the failed attempt.
	_, err = bob.svc.AcceptMessage("alice", hs, msg)
	require.ErrorIs(t, err, session.ErrOneTimePreKeyUnavailable)
}

func TestSession_AcceptMessage(t *testing.T) {
	alice, bob, _, _ := establish(t)

	bundle, err := bob.prekeys.Bundle()
	require.NoError(t, err)
	hs, err := alice.svc.Initiate("bob", bundle, true)
	require.NoError(t, err)
	msg, err := alice.svc.Encrypt("bob", []byte("again"))
	require.NoError(t, err)

	pt, err := bob.svc.AcceptMessage("alice", hs, msg)
	require.NoError(t, err)
	require.Equal(t, "again", string(pt))

	reply, err := bob.svc.Encrypt("alice", []byte("ok"))
	require.NoError(t, err)
	pt, err = alice.svc.Decrypt("bob", reply)
	require.NoError(t, err)
	require.Equal(t, "ok", string(pt))
}

func TestSession_FailedAcceptBurnsOneTimePreKey(t *testing.T) {
	alice, bob := newParty(t), newParty(t)
	_, err := alice.prekeys.Generate(0)
	require.NoError(t, err)
	bundle, err := bob.prekeys.Generate(2)
	require.NoError(t, err)

	hs, err := alice.svc.Initiate("bob", bundle, true)
	require.NoError(t, err)

	bad := hs
	bad.Salt = hs.Salt[:5]
	require.ErrorIs(t, bob.svc.Accept("alice", bad), x3dh.ErrInvalidSalt)

	ok, err := bob.svc.HasSession("alice")
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, bob.svc.Accept("alice", hs), session.ErrOneTimePreKeyUnavailable)
	left, err := bob.prekeys.Bundle()
	require.NoError(t, err)
	require.Len(t, left.OneTimePreKeys, 1)
}
