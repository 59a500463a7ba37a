package x3dh

import (
	"github.com/pkg/errors"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
	"cipherlink/internal/util/memzero"
)

const (
	// SaltSize is the length of the random KDF salt drawn by the initiator.
	SaltSize = 32
	// NoOneTimePreKey is the OneTimePreKeyIndex reported when none was used.
	NoOneTimePreKey = -1

	rootKeyInfo = "X3DH_ROOT_KEY"
)

var (
	// ErrInvalidBundleSignature is returned when the signed pre-key signature
	// does not verify under the bundle's identity key. No secret is derived.
	ErrInvalidBundleSignature = errors.New("x3dh: invalid key bundle signature")
	// ErrInvalidSalt is returned when the responder is given a salt of the
	// wrong length.
	ErrInvalidSalt = errors.New("x3dh: invalid salt")
)

// Result is the initiator's view of a completed handshake.
type Result struct {
	RootKey domain.Key
	// Salt must reach the responder unchanged.
	Salt []byte
	// OneTimePreKeyIndex is the index into the bundle's one-time pre-keys, or
	// NoOneTimePreKey.
	OneTimePreKeyIndex int
	// OneTimePreKey is the public key at OneTimePreKeyIndex, nil if none.
	OneTimePreKey *domain.X25519Public
}

// Initiate runs the initiator side of X3DH against remote. The bundle is
// verified first; on failure no DH is computed.
func Initiate(
	localIdentity domain.Ed25519Private,
	localEphemeral domain.X25519Private,
	remote domain.KeyBundle,
	useOneTimePreKey bool,
) (Result, error) {
	if !VerifyKeyBundle(remote) {
		return Result{}, errors.WithStack(ErrInvalidBundleSignature)
	}

	identityDH, err := crypto.SigningPrivateToDH(localIdentity)
	if err != nil {
		return Result{}, err
	}
	defer memzero.Zero(identityDH[:])

	remoteIdentityDH, err := crypto.SigningPublicToDH(remote.IdentityKey)
	if err != nil {
		return Result{}, errors.Wrap(err, "x3dh: remote identity key")
	}

	res := Result{OneTimePreKeyIndex: NoOneTimePreKey}
	pairs := [][2][]byte{
		{identityDH.Slice(), remote.SignedPreKey.PublicKey.Slice()},     // DH(IKa, SPKb)
		{localEphemeral.Slice(), remoteIdentityDH.Slice()},              // DH(EKa, IKb)
		{localEphemeral.Slice(), remote.SignedPreKey.PublicKey.Slice()}, // DH(EKa, SPKb)
	}
	if useOneTimePreKey && len(remote.OneTimePreKeys) > 0 {
		opk := remote.OneTimePreKeys[0]
		res.OneTimePreKeyIndex = 0
		res.OneTimePreKey = &opk
		pairs = append(pairs, [2][]byte{localEphemeral.Slice(), opk.Slice()}) // DH(EKa, OPKb)
	}

	salt, err := crypto.RandomBytes(SaltSize)
	if err != nil {
		return Result{}, err
	}
	root, err := deriveRoot(pairs, salt)
	if err != nil {
		return Result{}, err
	}
	res.RootKey = root
	res.Salt = salt
	return res, nil
}

// Accept runs the responder side of X3DH. oneTimePreKey is nil when the
// initiator did not use one. salt is the initiator's Result.Salt.
func Accept(
	localIdentity domain.Ed25519Private,
	signedPreKey domain.X25519Private,
	oneTimePreKey *domain.X25519Private,
	remoteIdentity domain.Ed25519Public,
	remoteEphemeral domain.X25519Public,
	salt []byte,
) (domain.Key, error) {
	if len(salt) != SaltSize {
		return domain.Key{}, errors.Wrapf(ErrInvalidSalt, "%d bytes", len(salt))
	}

	identityDH, err := crypto.SigningPrivateToDH(localIdentity)
	if err != nil {
		return domain.Key{}, err
	}
	defer memzero.Zero(identityDH[:])

	remoteIdentityDH, err := crypto.SigningPublicToDH(remoteIdentity)
	if err != nil {
		return domain.Key{}, errors.Wrap(err, "x3dh: remote identity key")
	}

	pairs := [][2][]byte{
		{signedPreKey.Slice(), remoteIdentityDH.Slice()}, // DH(SPKb, IKa)
		{identityDH.Slice(), remoteEphemeral.Slice()},    // DH(IKb, EKa)
		{signedPreKey.Slice(), remoteEphemeral.Slice()},  // DH(SPKb, EKa)
	}
	if oneTimePreKey != nil {
		pairs = append(pairs, [2][]byte{oneTimePreKey.Slice(), remoteEphemeral.Slice()}) // DH(OPKb, EKa)
	}
	return deriveRoot(pairs, salt)
}

// deriveRoot concatenates the DH outputs of pairs and runs the root KDF. Every
// intermediate is erased before returning, on success and on error.
func deriveRoot(pairs [][2][]byte, salt []byte) (domain.Key, error) {
	secret := make([]byte, 0, len(pairs)*crypto.DHKeySize)
	defer func() { memzero.Zero(secret[:cap(secret)]) }()

	for i, p := range pairs {
		dh, err := crypto.DH(p[0], p[1])
		if err != nil {
			return domain.Key{}, errors.Wrapf(err, "x3dh: dh%d", i+1)
		}
		secret = append(secret, dh...)
		memzero.Zero(dh)
	}

	out, err := crypto.KDF(secret, salt, rootKeyInfo, len(domain.Key{}))
	if err != nil {
		return domain.Key{}, err
	}
	var root domain.Key
	copy(root[:], out)
	memzero.Zero(out)
	return root, nil
}
