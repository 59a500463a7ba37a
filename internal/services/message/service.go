package message

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/domain"
)

// ErrStaleHandshake is returned for a packet carrying a handshake that was
// already accepted and superseded.
var ErrStaleHandshake = errors.New("message: stale handshake")

// Service sends and receives packets using the session service.
//
// High-level flow:
//   - Send: if no session exists, fetch the peer's bundle and initiate one.
//     Until the peer replies, the handshake rides along on every packet so
//     whichever arrives first can bootstrap the peer's side.
//   - Receive: if the packet carries a handshake this side has not accepted
//     yet, accept it; then decrypt.
type Service struct {
	sessions domain.SessionService
	bundles  domain.BundleDirectory
	pending  domain.HandshakeStore
}

// New constructs a message service. bundles may be nil when every session is
// established by accepting the peer's handshake.
func New(
	sessions domain.SessionService,
	bundles domain.BundleDirectory,
	pending domain.HandshakeStore,
) *Service {
	return &Service{
		sessions: sessions,
		bundles:  bundles,
		pending:  pending,
	}
}

// Send encrypts plaintext for peer, creating the session first if needed.
func (s *Service) Send(peer domain.ConversationID, plaintext []byte) (domain.Packet, error) {
	ok, err := s.sessions.HasSession(peer)
	if err != nil {
		return domain.Packet{}, err
	}
	if !ok {
		if err := s.Start(peer); err != nil {
			return domain.Packet{}, err
		}
	}

	msg, err := s.sessions.Encrypt(peer, plaintext)
	if err != nil {
		return domain.Packet{}, err
	}

	packet := domain.Packet{Message: msg}
	hs, ok, err := s.pending.LoadPendingHandshake(peer)
	if err != nil {
		return domain.Packet{}, err
	}
	if ok {
		packet.Handshake = &hs
	}
	return packet, nil
}

// Start fetches the peer's bundle and initiates a new session, replacing any
// existing one. The handshake is attached to every packet sent to peer until
// the first reply arrives. The one-time pre-key it used is marked in the
// directory so a later Start picks a fresh one.
func (s *Service) Start(peer domain.ConversationID) error {
	if s.bundles == nil {
		return errors.Errorf("message: no session with %s and no bundle directory", peer)
	}
	bundle, err := s.bundles.FetchBundle(peer)
	if err != nil {
		return errors.Wrapf(err, "message: fetch bundle for %s", peer)
	}
	hs, err := s.sessions.Initiate(peer, bundle, true)
	if err != nil {
		return err
	}

	if err := s.pending.SavePendingHandshake(peer, hs); err != nil {
		return err
	}
	if hs.OneTimePreKey != nil {
		if err := s.bundles.MarkOneTimePreKeyUsed(peer, *hs.OneTimePreKey); err != nil {
			jww.WARN.Printf("message: mark one-time pre-key of %s used: %v", peer, err)
		}
	} else {
		jww.INFO.Printf("message: %s has no one-time pre-keys left", peer)
	}
	jww.DEBUG.Printf("message: handshake with %s pending", peer)
	return nil
}

// Receive decrypts a packet from peer. An attached handshake is accepted when
// there is no session yet, or when it is newer than the one the current
// session came from (the peer started over). Handshakes accepted before are
// refused with ErrStaleHandshake.
func (s *Service) Receive(peer domain.ConversationID, packet domain.Packet) ([]byte, error) {
	var pt []byte
	var err error
	if packet.Handshake != nil {
		pt, err = s.receiveHandshake(peer, *packet.Handshake, packet.Message)
	} else {
		pt, err = s.sessions.Decrypt(peer, packet.Message)
	}
	if err != nil {
		return nil, err
	}

	// Any authenticated message from the peer proves it holds the session.
	if _, ok, err := s.pending.LoadPendingHandshake(peer); err == nil && ok {
		if err := s.pending.DeletePendingHandshake(peer); err != nil {
			jww.WARN.Printf("message: forget handshake with %s: %v", peer, err)
		} else {
			jww.DEBUG.Printf("message: handshake with %s confirmed", peer)
		}
	}
	return pt, nil
}

func (s *Service) receiveHandshake(
	peer domain.ConversationID,
	hs domain.HandshakeMessage,
	msg domain.EncryptedMessage,
) ([]byte, error) {
	seen, err := s.pending.AcceptedHandshakes(peer)
	if err != nil {
		return nil, err
	}
	if n := len(seen); n > 0 && seen[n-1] == hs.EphemeralKey {
		return s.sessions.Decrypt(peer, msg)
	}
	for _, k := range seen {
		if k == hs.EphemeralKey {
			jww.WARN.Printf("message: %s replayed an old handshake", peer)
			return nil, errors.Wrapf(ErrStaleHandshake, "%s", peer)
		}
	}

	ok, err := s.sessions.HasSession(peer)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.sessions.Accept(peer, hs); err != nil {
			return nil, err
		}
		if err := s.pending.RecordAcceptedHandshake(peer, hs.EphemeralKey); err != nil {
			return nil, err
		}
		return s.sessions.Decrypt(peer, msg)
	}

	// The peer started a new session; keep the current one unless the new
	// one authenticates.
	pt, err := s.sessions.AcceptMessage(peer, hs, msg)
	if err != nil {
		return nil, err
	}
	if err := s.pending.RecordAcceptedHandshake(peer, hs.EphemeralKey); err != nil {
		return nil, err
	}
	jww.INFO.Printf("message: %s started a new session", peer)
	return pt, nil
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
