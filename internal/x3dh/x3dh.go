// Package x3dh implements the X3DH handshake that bootstraps a pairwise
// Double Ratchet session: three (or four, with a one-time prekey) DH
// outputs folded through the root-key KDF with an all-zero root.
package x3dh

import (
	"crypto/ed25519"
	"fmt"

	"github.com/jaydenbeard/e2ecore/internal/keys"
	"github.com/jaydenbeard/e2ecore/internal/primitives"
)

// Result is the output of a completed handshake: the shared secret that
// seeds the Double Ratchet's initial root key, and the associated-data
// blob the ratchet mixes into every AEAD call for this session.
type Result struct {
	SharedSecret [32]byte
	AD           [64]byte
}

// Initiate runs the initiator side of X3DH against a peer's prekey
// bundle. It verifies the bundle's signed-prekey signature before doing
// any key agreement, generates a fresh ephemeral DH key pair, and
// returns the shared secret plus the ephemeral key pair the caller must
// retain and send with the session's first message.
func Initiate(ownIdentity *keys.IdentityKeyPair, peerBundle *keys.PrekeyBundle) (*Result, *keys.DHKeyPair, error) {
	if err := keys.VerifySignedPrekey(peerBundle.IdentityPub, peerBundle.SignedPrekeyPub, peerBundle.Signature); err != nil {
		return nil, nil, fmt.Errorf("x3dh: initiate: %w", err)
	}

	ownIdentityDHPriv, err := identityDHPrivate(ownIdentity.Private)
	if err != nil {
		return nil, nil, err
	}
	ownIdentityDHPub, err := identityDHPublic(ownIdentity.Public)
	if err != nil {
		return nil, nil, err
	}
	peerIdentityDHPub, err := identityDHPublic(peerBundle.IdentityPub)
	if err != nil {
		return nil, nil, err
	}

	ephemeral, err := keys.GenerateDHKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("x3dh: generate ephemeral: %w", err)
	}

	dh1, err := keys.DH(ownIdentityDHPriv, peerBundle.SignedPrekeyPub)
	if err != nil {
		return nil, nil, fmt.Errorf("x3dh: dh1: %w", err)
	}
	dh2, err := keys.DH(ephemeral.Private, peerIdentityDHPub)
	if err != nil {
		return nil, nil, fmt.Errorf("x3dh: dh2: %w", err)
	}
	dh3, err := keys.DH(ephemeral.Private, peerBundle.SignedPrekeyPub)
	if err != nil {
		return nil, nil, fmt.Errorf("x3dh: dh3: %w", err)
	}

	concat := make([]byte, 0, 32*4)
	concat = append(concat, dh1...)
	concat = append(concat, dh2...)
	concat = append(concat, dh3...)
	if peerBundle.OneTimePrekey != nil {
		dh4, err := keys.DH(ephemeral.Private, *peerBundle.OneTimePrekey)
		if err != nil {
			return nil, nil, fmt.Errorf("x3dh: dh4: %w", err)
		}
		concat = append(concat, dh4[:]...)
	}

	result := deriveResult(concat, ownIdentityDHPub, peerIdentityDHPub)
	return result, ephemeral, nil
}

// Respond runs the responder side of X3DH. It is given its own identity,
// the signed prekey and (if one was consumed) the one-time prekey that
// the initiator's bundle request used, and the initiator's identity and
// ephemeral public keys carried on the first inbound message.
func Respond(
	ownIdentity *keys.IdentityKeyPair,
	ownSignedPrekey *keys.SignedPrekey,
	ownOneTimePrekey *keys.OneTimePrekey,
	peerIdentityPub ed25519.PublicKey,
	peerEphemeralPub [32]byte,
) (*Result, error) {
	ownIdentityDHPriv, err := identityDHPrivate(ownIdentity.Private)
	if err != nil {
		return nil, err
	}
	ownIdentityDHPub, err := identityDHPublic(ownIdentity.Public)
	if err != nil {
		return nil, err
	}
	peerIdentityDHPub, err := identityDHPublic(peerIdentityPub)
	if err != nil {
		return nil, err
	}

	dh1, err := keys.DH(ownSignedPrekey.KeyPair.Private, peerIdentityDHPub)
	if err != nil {
		return nil, fmt.Errorf("x3dh: respond dh1: %w", err)
	}
	dh2, err := keys.DH(ownIdentityDHPriv, peerEphemeralPub)
	if err != nil {
		return nil, fmt.Errorf("x3dh: respond dh2: %w", err)
	}
	dh3, err := keys.DH(ownSignedPrekey.KeyPair.Private, peerEphemeralPub)
	if err != nil {
		return nil, fmt.Errorf("x3dh: respond dh3: %w", err)
	}

	concat := make([]byte, 0, 32*4)
	concat = append(concat, dh1...)
	concat = append(concat, dh2...)
	concat = append(concat, dh3...)
	if ownOneTimePrekey != nil {
		dh4, err := keys.DH(ownOneTimePrekey.KeyPair.Private, peerEphemeralPub)
		if err != nil {
			return nil, fmt.Errorf("x3dh: respond dh4: %w", err)
		}
		concat = append(concat, dh4...)
	}

	return deriveResult(concat, peerIdentityDHPub, ownIdentityDHPub), nil
}

// deriveResult folds the concatenated DH outputs through the root-key
// KDF with an all-zero root, keeping the resulting root key as the
// shared secret and discarding the chain key: the ratchet derives its
// own first chain separately at session initialization.
func deriveResult(concatDH []byte, initiatorIdentityDHPub, responderIdentityDHPub [32]byte) *Result {
	zeroRoot := make([]byte, primitives.KeySize)
	sharedSecret, _ := primitives.RootKDF(zeroRoot, concatDH)

	var result Result
	copy(result.SharedSecret[:], sharedSecret)
	copy(result.AD[:32], initiatorIdentityDHPub[:])
	copy(result.AD[32:], responderIdentityDHPub[:])
	return &result
}

func identityDHPublic(pub ed25519.PublicKey) ([32]byte, error) {
	var out [32]byte
	dh, err := keys.ConvertPublic(pub)
	if err != nil {
		return out, fmt.Errorf("x3dh: convert identity public: %w", err)
	}
	copy(out[:], dh)
	return out, nil
}

func identityDHPrivate(priv ed25519.PrivateKey) ([32]byte, error) {
	var out [32]byte
	dh, err := keys.ConvertPrivate(priv)
	if err != nil {
		return out, fmt.Errorf("x3dh: convert identity private: %w", err)
	}
	copy(out[:], dh)
	return out, nil
}
