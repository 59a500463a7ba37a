package ratchet

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

const (
	// MaxSkip bounds how many message keys a single incoming message may
	// force the receiver to derive ahead.
	MaxSkip = 1000
	// MaxSkippedKeys bounds the skipped-key cache. The oldest entry is
	// evicted and erased first.
	MaxSkippedKeys = 1000

	initialChainInfo = "SEND_CHAIN"
	messageKeyInfo   = "MESSAGE_KEY"
	chainKeyInfo     = "CHAIN_KEY"
	rootKeyInfo      = "ROOT_KEY"

	headerSize = crypto.DHKeySize + 8
)

var (
	// ErrSessionNotInitialized is returned by Encrypt and Decrypt on a state
	// that did not come from InitSender or InitReceiver.
	ErrSessionNotInitialized = errors.New("ratchet: session not initialized")
	// ErrTooManySkippedMessages is returned when a message lies more than
	// MaxSkip keys ahead of the receive chain.
	ErrTooManySkippedMessages = errors.New("ratchet: too many skipped messages")
	// ErrDuplicateMessage is returned for a message number that was already
	// consumed and has no cached key.
	ErrDuplicateMessage = errors.New("ratchet: duplicate or expired message")
	// ErrChainExhausted is returned when a message counter would overflow.
	ErrChainExhausted = errors.New("ratchet: chain exhausted")
)

// InitSender creates the initiator's state from an X3DH root key.
func InitSender(rootKey domain.Key) (domain.RatchetState, error) {
	own, err := crypto.GenerateKeyPair()
	if err != nil {
		return domain.RatchetState{}, err
	}
	sendCK, err := initialChain(rootKey)
	if err != nil {
		crypto.SecureErase(own.Private[:])
		return domain.RatchetState{}, err
	}
	return domain.RatchetState{
		RootKey:       rootKey,
		SendChainKey:  sendCK,
		OwnRatchetKey: own,
	}, nil
}

// InitReceiver creates the responder's state from an X3DH root key and the
// initiator's first ratchet public key.
func InitReceiver(rootKey domain.Key, remoteRatchetKey domain.X25519Public) (domain.RatchetState, error) {
	recvCK, err := initialChain(rootKey)
	if err != nil {
		return domain.RatchetState{}, err
	}
	own, err := crypto.GenerateKeyPair()
	if err != nil {
		crypto.SecureErase(recvCK[:])
		return domain.RatchetState{}, err
	}
	root, sendCK, err := DHRatchetStep(rootKey, own.Private, remoteRatchetKey)
	if err != nil {
		crypto.SecureErase(recvCK[:])
		crypto.SecureErase(own.Private[:])
		return domain.RatchetState{}, err
	}
	remote := remoteRatchetKey
	return domain.RatchetState{
		RootKey:          root,
		SendChainKey:     sendCK,
		ReceiveChainKey:  recvCK,
		OwnRatchetKey:    own,
		RemoteRatchetKey: &remote,
	}, nil
}

// DeriveMessageKey is the symmetric-key ratchet step. The caller replaces its
// chain key with nextChainKey and erases messageKey after use.
func DeriveMessageKey(chainKey domain.Key) (messageKey, nextChainKey domain.Key, err error) {
	if err = derive(&messageKey, chainKey.Slice(), chainKey.Slice(), messageKeyInfo); err != nil {
		return domain.Key{}, domain.Key{}, err
	}
	if err = derive(&nextChainKey, chainKey.Slice(), chainKey.Slice(), chainKeyInfo); err != nil {
		crypto.SecureErase(messageKey[:])
		return domain.Key{}, domain.Key{}, err
	}
	return messageKey, nextChainKey, nil
}

// DHRatchetStep mixes DH(localPrivate, remotePublic) into the root key and
// returns the new root key and a new chain key.
func DHRatchetStep(rootKey domain.Key, localPrivate domain.X25519Private, remotePublic domain.X25519Public) (newRootKey, newChainKey domain.Key, err error) {
	dh, err := crypto.DH(localPrivate.Slice(), remotePublic.Slice())
	if err != nil {
		return domain.Key{}, domain.Key{}, err
	}
	combined := make([]byte, 0, len(rootKey)+len(dh))
	combined = append(combined, rootKey[:]...)
	combined = append(combined, dh...)
	defer crypto.SecureErase(combined)
	crypto.SecureErase(dh)

	if err = derive(&newRootKey, combined, rootKey.Slice(), rootKeyInfo); err != nil {
		return domain.Key{}, domain.Key{}, err
	}
	if err = derive(&newChainKey, combined, rootKey.Slice(), chainKeyInfo); err != nil {
		crypto.SecureErase(newRootKey[:])
		return domain.Key{}, domain.Key{}, err
	}
	return newRootKey, newChainKey, nil
}

// Encrypt seals plaintext under the next send-chain key. st is only advanced
// when sealing succeeds.
func Encrypt(st *domain.RatchetState, plaintext []byte) (domain.EncryptedMessage, error) {
	if !st.Initialized() || st.SendChainKey.IsZero() {
		return domain.EncryptedMessage{}, errors.WithStack(ErrSessionNotInitialized)
	}
	if st.SendMessageNumber == math.MaxUint32 {
		return domain.EncryptedMessage{}, errors.WithStack(ErrChainExhausted)
	}

	mk, nextCK, err := DeriveMessageKey(st.SendChainKey)
	if err != nil {
		return domain.EncryptedMessage{}, err
	}
	defer crypto.SecureErase(mk[:])

	msg := domain.EncryptedMessage{
		SenderRatchetKey:    st.OwnRatchetKey.Public,
		MessageNumber:       st.SendMessageNumber,
		PreviousChainLength: st.PreviousSendChainLength,
	}
	msg.Ciphertext, msg.Nonce, err = crypto.AEADEncrypt(mk[:], plaintext, nil, header(msg))
	if err != nil {
		crypto.SecureErase(nextCK[:])
		return domain.EncryptedMessage{}, err
	}

	st.SendChainKey = nextCK
	crypto.SecureErase(nextCK[:])
	st.SendMessageNumber++
	return msg, nil
}

// Decrypt opens msg, performing a DH ratchet turn when it carries a new
// ratchet key. On any error st is left exactly as it was.
func Decrypt(st *domain.RatchetState, msg domain.EncryptedMessage) ([]byte, error) {
	if !st.Initialized() {
		return nil, errors.WithStack(ErrSessionNotInitialized)
	}
	if msg.MessageNumber == math.MaxUint32 {
		return nil, errors.WithStack(ErrChainExhausted)
	}

	next := st.Clone()
	committed := false
	defer func() {
		if !committed {
			eraseState(&next)
		}
	}()

	if mk, ok := takeSkipped(&next, msg.SenderRatchetKey, msg.MessageNumber); ok {
		pt, err := crypto.AEADDecrypt(mk[:], msg.Ciphertext, msg.Nonce, header(msg))
		crypto.SecureErase(mk[:])
		if err != nil {
			return nil, err
		}
		commit(st, &next)
		committed = true
		return pt, nil
	}

	if next.RemoteRatchetKey == nil || *next.RemoteRatchetKey != msg.SenderRatchetKey {
		if err := skipMessageKeys(&next, msg.PreviousChainLength); err != nil {
			return nil, err
		}
		if err := turn(&next, msg.SenderRatchetKey); err != nil {
			return nil, err
		}
	}

	if msg.MessageNumber < next.ReceiveMessageNumber {
		return nil, errors.Wrapf(ErrDuplicateMessage, "message %d", msg.MessageNumber)
	}
	if err := skipMessageKeys(&next, msg.MessageNumber); err != nil {
		return nil, err
	}

	mk, nextCK, err := DeriveMessageKey(next.ReceiveChainKey)
	if err != nil {
		return nil, err
	}
	pt, err := crypto.AEADDecrypt(mk[:], msg.Ciphertext, msg.Nonce, header(msg))
	crypto.SecureErase(mk[:])
	if err != nil {
		crypto.SecureErase(nextCK[:])
		return nil, err
	}

	next.ReceiveChainKey = nextCK
	crypto.SecureErase(nextCK[:])
	next.ReceiveMessageNumber = msg.MessageNumber + 1
	commit(st, &next)
	committed = true
	return pt, nil
}

// turn is the two-step DH ratchet: receive chain with the current ratchet
// key, then send chain with a fresh one.
func turn(st *domain.RatchetState, remote domain.X25519Public) error {
	root, recvCK, err := DHRatchetStep(st.RootKey, st.OwnRatchetKey.Private, remote)
	if err != nil {
		return err
	}
	st.PreviousSendChainLength = st.SendMessageNumber
	st.RootKey = root
	st.ReceiveChainKey = recvCK
	st.RemoteRatchetKey = &remote
	st.ReceiveMessageNumber = 0

	own, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	root, sendCK, err := DHRatchetStep(st.RootKey, own.Private, remote)
	if err != nil {
		crypto.SecureErase(own.Private[:])
		return err
	}
	crypto.SecureErase(st.OwnRatchetKey.Private[:])
	st.OwnRatchetKey = own
	st.RootKey = root
	st.SendChainKey = sendCK
	st.SendMessageNumber = 0

	jww.TRACE.Printf("ratchet: turn to remote %s, own %s",
		crypto.Fingerprint(remote[:]), crypto.Fingerprint(own.Public[:]))
	return nil
}

// skipMessageKeys advances the receive chain up to (excluding) until, caching
// each derived key.
func skipMessageKeys(st *domain.RatchetState, until uint32) error {
	if st.RemoteRatchetKey == nil || until <= st.ReceiveMessageNumber {
		return nil
	}
	if uint64(until)-uint64(st.ReceiveMessageNumber) > MaxSkip {
		return errors.Wrapf(ErrTooManySkippedMessages, "%d ahead of %d",
			until, st.ReceiveMessageNumber)
	}
	for st.ReceiveMessageNumber < until {
		mk, nextCK, err := DeriveMessageKey(st.ReceiveChainKey)
		if err != nil {
			return err
		}
		st.SkippedKeys = append(st.SkippedKeys, domain.SkippedMessageKey{
			RatchetKey:    *st.RemoteRatchetKey,
			MessageNumber: st.ReceiveMessageNumber,
			Key:           mk,
		})
		crypto.SecureErase(mk[:])
		st.ReceiveChainKey = nextCK
		crypto.SecureErase(nextCK[:])
		st.ReceiveMessageNumber++
	}
	if over := len(st.SkippedKeys) - MaxSkippedKeys; over > 0 {
		keys := st.SkippedKeys
		for i := 0; i < over; i++ {
			crypto.SecureErase(keys[i].Key[:])
		}
		kept := copy(keys, keys[over:])
		for i := kept; i < len(keys); i++ {
			keys[i] = domain.SkippedMessageKey{}
		}
		st.SkippedKeys = keys[:kept]
	}
	return nil
}

// takeSkipped removes and returns the cached key for (ratchetKey, n).
func takeSkipped(st *domain.RatchetState, ratchetKey domain.X25519Public, n uint32) (domain.Key, bool) {
	for i, sk := range st.SkippedKeys {
		if sk.MessageNumber != n || sk.RatchetKey != ratchetKey {
			continue
		}
		mk := sk.Key
		crypto.SecureErase(st.SkippedKeys[i].Key[:])
		st.SkippedKeys = append(st.SkippedKeys[:i], st.SkippedKeys[i+1:]...)
		return mk, true
	}
	return domain.Key{}, false
}

// commit replaces *st with next, erasing secrets only the old state held.
func commit(st, next *domain.RatchetState) {
	for i := range st.SkippedKeys {
		crypto.SecureErase(st.SkippedKeys[i].Key[:])
	}
	if st.OwnRatchetKey.Public != next.OwnRatchetKey.Public {
		crypto.SecureErase(st.OwnRatchetKey.Private[:])
	}
	*st = *next
}

func eraseState(st *domain.RatchetState) {
	crypto.SecureErase(st.RootKey[:])
	crypto.SecureErase(st.SendChainKey[:])
	crypto.SecureErase(st.ReceiveChainKey[:])
	crypto.SecureErase(st.OwnRatchetKey.Private[:])
	for i := range st.SkippedKeys {
		crypto.SecureErase(st.SkippedKeys[i].Key[:])
	}
}

// header is the associated data bound to every message:
// sender ratchet key ‖ message number ‖ previous chain length.
func header(msg domain.EncryptedMessage) []byte {
	out := make([]byte, headerSize)
	copy(out, msg.SenderRatchetKey[:])
	binary.BigEndian.PutUint32(out[crypto.DHKeySize:], msg.MessageNumber)
	binary.BigEndian.PutUint32(out[crypto.DHKeySize+4:], msg.PreviousChainLength)
	return out
}

func initialChain(rootKey domain.Key) (domain.Key, error) {
	var ck domain.Key
	err := derive(&ck, rootKey.Slice(), rootKey.Slice(), initialChainInfo)
	return ck, err
}

func derive(dst *domain.Key, ikm, salt []byte, info string) error {
	out, err := crypto.KDF(ikm, salt, info, len(dst))
	if err != nil {
		return err
	}
	copy(dst[:], out)
	crypto.SecureErase(out)
	return nil
}
