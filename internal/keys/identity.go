// Package keys implements identity, signed-prekey, and one-time-prekey
// generation and the documented Ed25519 -> X25519 conversion that lets a
// single long-term signing key also serve as a Diffie-Hellman identity.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/jaydenbeard/e2ecore/e2eerr"
)

// IdentityKeyPair is the user's long-term signature key pair. Created
// once at registration and persisted for the lifetime of the account;
// its DH form is always derivable from it without a round trip through
// the server (see ConvertPublic/ConvertPrivate in convert.go).
type IdentityKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateIdentity creates a new Ed25519 identity key pair.
func GenerateIdentity() (*IdentityKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate identity: %w", err)
	}
	return &IdentityKeyPair{Public: pub, Private: priv}, nil
}

// Sign signs msg with the identity's private signing key.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg by
// pub. It never returns an error for a bad signature — callers that
// need the dedicated BadSignature sentinel should use VerifyOrBadSig.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pub, msg, sig)
}

// VerifyOrBadSig is Verify but returns e2eerr.ErrBadSignature on
// failure, matching the error surface spec.md §4.2/§4.3 require of
// prekey-bundle verification.
func VerifyOrBadSig(pub ed25519.PublicKey, msg, sig []byte) error {
	if !ed25519.Verify(pub, msg, sig) {
		return e2eerr.ErrBadSignature
	}
	return nil
}

// Fingerprint returns a short hex fingerprint of an identity public key,
// for out-of-band verification between two accounts.
func Fingerprint(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}

// X25519PublicSize and X25519PrivateSize are the fixed sizes of the DH
// form of an identity key, matching curve25519's scalar/point sizes.
const (
	X25519PublicSize  = curve25519.PointSize
	X25519PrivateSize = curve25519.ScalarSize
)
