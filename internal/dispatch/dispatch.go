// Package dispatch implements the envelope dispatcher named by §4.8:
// routing inbound bytes by a single leading type byte to the pairwise
// ratchet, the sender-key installer, or the group decryption engine.
package dispatch

import (
	"fmt"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/keys"
	"github.com/jaydenbeard/e2ecore/internal/ratchet"
	"github.com/jaydenbeard/e2ecore/internal/senderkey"
	"github.com/jaydenbeard/e2ecore/internal/store"
	"github.com/jaydenbeard/e2ecore/internal/x3dh"
)

// Envelope type bytes. Group frames reuse senderkey.FrameType so the
// two constant spaces can never silently drift apart.
const (
	TypePairwise byte = 0x01
	TypeSKDM     byte = 0x02
	TypeGroup    byte = senderkey.FrameType
)

// BundleFetcher lazily downloads a peer's prekey bundle through the
// caller's transport adapter, consuming one one-time prekey
// atomically. It is only called when no local session exists yet for
// the peer.
type BundleFetcher func(peerID string) (*keys.PrekeyBundle, error)

// Dispatcher owns the identity and store a client needs to route and
// decrypt any inbound envelope.
type Dispatcher struct {
	identity       *keys.IdentityKeyPair
	identityDHPriv [32]byte
	identityDHPub  [32]byte
	signedPrekey   *keys.SignedPrekey
	oneTimePrekeys map[uint32]*keys.OneTimePrekey
	store          store.Store
	fetchBundle    BundleFetcher

	// previousIdentity is the identity key pair this account retired on
	// its last RotateIdentityKey call, if any. A responder handshake
	// that fails to decrypt under the current identity is retried under
	// this one before giving up, so a peer who still addresses this
	// account by its old identity can complete its first message during
	// the transition window.
	previousIdentity *keys.IdentityKeyPair
}

// New creates a Dispatcher for one local account.
func New(identity *keys.IdentityKeyPair, signedPrekey *keys.SignedPrekey, st store.Store, fetchBundle BundleFetcher) (*Dispatcher, error) {
	dhPriv, err := keys.ConvertPrivate(identity.Private)
	if err != nil {
		return nil, fmt.Errorf("dispatch: convert identity private: %w", err)
	}
	dhPub, err := keys.ConvertPublic(identity.Public)
	if err != nil {
		return nil, fmt.Errorf("dispatch: convert identity public: %w", err)
	}
	d := &Dispatcher{
		identity:       identity,
		signedPrekey:   signedPrekey,
		oneTimePrekeys: make(map[uint32]*keys.OneTimePrekey),
		store:          st,
		fetchBundle:    fetchBundle,
	}
	copy(d.identityDHPriv[:], dhPriv)
	copy(d.identityDHPub[:], dhPub)
	return d, nil
}

// SetPreviousIdentity restores a previously retired identity key pair,
// for example one loaded back from store.LoadIdentityTransition after
// reconstructing a Client, without touching the current identity.
func (d *Dispatcher) SetPreviousIdentity(previous *keys.IdentityKeyPair) {
	d.previousIdentity = previous
}

// UpdateSignedPrekey swaps in a freshly rotated signed prekey so the
// next responder handshake verifies against it instead of the retired
// one.
func (d *Dispatcher) UpdateSignedPrekey(sp *keys.SignedPrekey) {
	d.signedPrekey = sp
}

// RotateIdentity swaps in a freshly rotated identity key pair, signed
// prekey included, while retaining the retired identity for the
// transition window establishAsResponder falls back to.
func (d *Dispatcher) RotateIdentity(identity *keys.IdentityKeyPair, signedPrekey *keys.SignedPrekey, previous *keys.IdentityKeyPair) error {
	dhPriv, err := keys.ConvertPrivate(identity.Private)
	if err != nil {
		return fmt.Errorf("dispatch: convert identity private: %w", err)
	}
	dhPub, err := keys.ConvertPublic(identity.Public)
	if err != nil {
		return fmt.Errorf("dispatch: convert identity public: %w", err)
	}
	d.identity = identity
	d.signedPrekey = signedPrekey
	copy(d.identityDHPriv[:], dhPriv)
	copy(d.identityDHPub[:], dhPub)
	d.previousIdentity = previous
	return nil
}

// AddOneTimePrekeys registers locally generated one-time prekeys by id.
// The registered prekeys are not consulted by establishAsResponder,
// which always calls x3dh.Respond with no one-time prekey, and the
// handshake prefix carries no one-time prekey id. Consumption
// bookkeeping against the server directory is the caller's
// responsibility; this is purely local state.
func (d *Dispatcher) AddOneTimePrekeys(otks []*keys.OneTimePrekey) {
	for _, otk := range otks {
		d.oneTimePrekeys[otk.ID] = otk
	}
}

// Dispatch routes one inbound envelope from senderID on channelID (the
// peer id itself, for a DM) and returns the decrypted plaintext.
func (d *Dispatcher) Dispatch(senderID, channelID string, wire []byte) ([]byte, error) {
	if len(wire) == 0 {
		return nil, e2eerr.ErrMalformed
	}
	switch wire[0] {
	case TypePairwise:
		return d.dispatchPairwise(senderID, wire[1:])
	case TypeSKDM:
		return nil, d.dispatchSKDM(senderID, channelID, wire[1:])
	case TypeGroup:
		return d.dispatchGroup(senderID, channelID, wire)
	default:
		return nil, e2eerr.ErrMalformed
	}
}

// handshakePrefixSize is the initiator's DH-form identity public (32
// bytes) plus its X3DH ephemeral public (32 bytes), prepended only to
// the first pairwise envelope of a new session.
const handshakePrefixSize = 64

func (d *Dispatcher) dispatchPairwise(peerID string, rest []byte) ([]byte, error) {
	serialized, err := d.store.LoadPairwiseSession(peerID)
	if err != nil {
		if err != e2eerr.ErrNotFound {
			return nil, err
		}
		if len(rest) < handshakePrefixSize {
			return nil, e2eerr.ErrMalformed
		}
		sess, establishErr := d.establishAsResponder(peerID, rest[:handshakePrefixSize], d.identity)
		if establishErr != nil {
			return nil, e2eerr.ErrNoSession
		}
		plaintext, decErr := sess.Decrypt(rest[handshakePrefixSize:])
		if decErr != nil && d.previousIdentity != nil {
			if retrySess, retryErr := d.establishAsResponder(peerID, rest[:handshakePrefixSize], d.previousIdentity); retryErr == nil {
				if retryPlaintext, retryDecErr := retrySess.Decrypt(rest[handshakePrefixSize:]); retryDecErr == nil {
					sess, plaintext, decErr = retrySess, retryPlaintext, nil
				}
			}
		}
		if decErr != nil {
			return nil, decErr
		}
		if saveErr := d.store.SavePairwiseSession(peerID, sess.Serialize()); saveErr != nil {
			return nil, saveErr
		}
		return plaintext, nil
	}

	sess := ratchet.Deserialize(serialized)
	plaintext, err := sess.Decrypt(rest)
	if err != nil {
		return nil, err
	}
	if err := d.store.DeletePairwiseSession(peerID); err != nil {
		return nil, err
	}
	if err := d.store.SavePairwiseSession(peerID, sess.Serialize()); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// establishAsResponder handles a pairwise envelope for a peer with no
// local session: this must be the first message of a new handshake, so
// the envelope's lead bytes carry the initiator's identity public and
// ephemeral public ahead of the ratchet envelope proper. The
// initiator's Ed25519 identity comes from the bundle fetcher. An
// envelope too short to carry that framing is reported as Malformed by
// dispatchPairwise; any failure here (including no fetcher or a failed
// fetch) is signaled to the caller as NoSession by dispatchPairwise.
func (d *Dispatcher) establishAsResponder(peerID string, rest []byte, respondingIdentity *keys.IdentityKeyPair) (*ratchet.Session, error) {
	if len(rest) < 32+32 {
		return nil, e2eerr.ErrMalformed
	}
	// rest[:32] carries the initiator's DH-form identity public, kept on
	// the wire for transport-layer routing; the handshake itself only
	// needs the peer's Ed25519 identity, resolved below.
	var peerEphemeralPub [32]byte
	copy(peerEphemeralPub[:], rest[32:64])

	peerIdentityPub, err := d.peerIdentityFor(peerID)
	if err != nil {
		return nil, err
	}

	result, err := x3dh.Respond(respondingIdentity, d.signedPrekey, nil, peerIdentityPub, peerEphemeralPub)
	if err != nil {
		return nil, fmt.Errorf("dispatch: respond: %w", err)
	}
	return ratchet.NewResponder(result.SharedSecret, result.AD, d.signedPrekey.KeyPair)
}

// peerIdentityFor resolves a peer id to its Ed25519 identity public key
// via the bundle fetcher, which the caller is expected to have cached
// from the server directory at first contact.
func (d *Dispatcher) peerIdentityFor(peerID string) (peerIdentityPub []byte, err error) {
	if d.fetchBundle == nil {
		return nil, e2eerr.ErrNoSession
	}
	bundle, err := d.fetchBundle(peerID)
	if err != nil {
		return nil, err
	}
	return bundle.IdentityPub, nil
}

func (d *Dispatcher) dispatchSKDM(senderID, channelID string, sealed []byte) error {
	payload, err := senderkey.Unseal(sealed, d.identityDHPriv, d.identityDHPub)
	if err != nil {
		return err
	}
	received := senderkey.InstallFromDistribution(payload)
	return d.store.SaveReceivedSenderKey(channelID, senderID, *received)
}

func (d *Dispatcher) dispatchGroup(senderID, channelID string, frame []byte) ([]byte, error) {
	received, err := d.store.LoadReceivedSenderKey(channelID, senderID)
	if err != nil {
		return nil, err
	}
	plaintext, err := senderkey.Decrypt(&received, frame)
	if err != nil {
		return nil, err
	}
	if saveErr := d.store.SaveReceivedSenderKey(channelID, senderID, received); saveErr != nil {
		return nil, saveErr
	}
	return plaintext, nil
}
