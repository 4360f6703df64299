package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// DHKeyPair is a Curve25519 Diffie-Hellman key pair.
type DHKeyPair struct {
	Private [X25519PrivateSize]byte
	Public  [X25519PublicSize]byte
}

// GenerateDHKeyPair creates a fresh, correctly clamped X25519 key pair.
func GenerateDHKeyPair() (*DHKeyPair, error) {
	var kp DHKeyPair
	if _, err := io.ReadFull(rand.Reader, kp.Private[:]); err != nil {
		return nil, fmt.Errorf("keys: generate dh private key: %w", err)
	}
	clamp(kp.Private[:])
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("keys: derive dh public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return &kp, nil
}

// DH computes the shared Diffie-Hellman secret between a local private
// scalar and a peer's public point.
func DH(priv [X25519PrivateSize]byte, pub [X25519PublicSize]byte) ([]byte, error) {
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return nil, fmt.Errorf("keys: dh: %w", err)
	}
	return out, nil
}

// SignedPrekey is a medium-term DH key pair plus a detached Ed25519
// signature by the identity signing key over the DH public key. Exactly
// one is live per account at a time; it is rotated periodically.
type SignedPrekey struct {
	ID        uint32
	KeyPair   *DHKeyPair
	Signature []byte
}

// GenerateSignedPrekey creates a new signed prekey, signing its public
// half with the account's identity signing key.
func GenerateSignedPrekey(id uint32, identitySecret ed25519.PrivateKey) (*SignedPrekey, error) {
	kp, err := GenerateDHKeyPair()
	if err != nil {
		return nil, err
	}
	sig := Sign(identitySecret, kp.Public[:])
	return &SignedPrekey{ID: id, KeyPair: kp, Signature: sig}, nil
}

// RotateSignedPrekey generates the next signed prekey in sequence,
// signed under identitySecret, following spec's "rotated periodically"
// guidance for signed-prekey freshness.
func RotateSignedPrekey(current *SignedPrekey, identitySecret ed25519.PrivateKey) (*SignedPrekey, error) {
	return GenerateSignedPrekey(current.ID+1, identitySecret)
}

// ResignPrekey re-signs an existing signed prekey's DH key pair under a
// new identity signing key, without rotating the DH key pair itself.
// An identity key rotation must call this rather than RotateSignedPrekey
// for its current prekey: any peer holding a cached bundle with the old
// signature still agrees on the same DH public key, so only the
// signature (and therefore the identity it traces back to) changes.
func ResignPrekey(current *SignedPrekey, identitySecret ed25519.PrivateKey) *SignedPrekey {
	sig := Sign(identitySecret, current.KeyPair.Public[:])
	return &SignedPrekey{ID: current.ID, KeyPair: current.KeyPair, Signature: sig}
}

// VerifySignedPrekey checks a signed prekey's signature against the
// peer's identity public key, returning e2eerr.ErrBadSignature on
// failure (per spec.md §4.2's dedicated error for this check).
func VerifySignedPrekey(identityPub ed25519.PublicKey, spkPub [X25519PublicSize]byte, sig []byte) error {
	return VerifyOrBadSig(identityPub, spkPub[:], sig)
}

// OneTimePrekey is a single-use DH key pair. Public halves are uploaded
// in batches to the server directory; each is consumed at most once.
type OneTimePrekey struct {
	ID      uint32
	KeyPair *DHKeyPair
}

// GenerateOneTimePrekeys creates n fresh one-time prekeys, numbered
// startID, startID+1, ....
func GenerateOneTimePrekeys(n int, startID uint32) ([]*OneTimePrekey, error) {
	out := make([]*OneTimePrekey, 0, n)
	for i := 0; i < n; i++ {
		kp, err := GenerateDHKeyPair()
		if err != nil {
			return nil, fmt.Errorf("keys: generate one-time prekey %d: %w", i, err)
		}
		out = append(out, &OneTimePrekey{ID: startID + uint32(i), KeyPair: kp})
	}
	return out, nil
}

// PrekeyBundle is what a peer fetches from the server directory to
// begin X3DH with this account: identity + signed prekey + (optionally)
// one consumed one-time prekey.
type PrekeyBundle struct {
	IdentityPub     ed25519.PublicKey
	SignedPrekeyID  uint32
	SignedPrekeyPub [X25519PublicSize]byte
	Signature       []byte
	OneTimePrekeyID *uint32
	OneTimePrekey   *[X25519PublicSize]byte
}
