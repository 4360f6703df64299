package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/e2ecore/internal/dispatch"
	"github.com/jaydenbeard/e2ecore/internal/keys"
	"github.com/jaydenbeard/e2ecore/internal/ratchet"
	"github.com/jaydenbeard/e2ecore/internal/senderkey"
	"github.com/jaydenbeard/e2ecore/internal/store"
	"github.com/jaydenbeard/e2ecore/internal/x3dh"
)

type account struct {
	identity     *keys.IdentityKeyPair
	signedPrekey *keys.SignedPrekey
	dispatcher   *dispatch.Dispatcher
	store        store.Store
}

func newAccount(t *testing.T) *account {
	t.Helper()
	identity, err := keys.GenerateIdentity()
	require.NoError(t, err)
	spk, err := keys.GenerateSignedPrekey(1, identity.Private)
	require.NoError(t, err)
	st := store.NewMemory()
	d, err := dispatch.New(identity, spk, st, nil)
	require.NoError(t, err)
	return &account{identity: identity, signedPrekey: spk, dispatcher: d, store: st}
}

func (a *account) bundle() *keys.PrekeyBundle {
	return &keys.PrekeyBundle{
		IdentityPub:     a.identity.Public,
		SignedPrekeyID:  a.signedPrekey.ID,
		SignedPrekeyPub: a.signedPrekey.KeyPair.Public,
		Signature:       a.signedPrekey.Signature,
	}
}

// TestPairwiseHandshakeThroughDispatch exercises the lazy-X3DH path: the
// first envelope the responder ever sees for a peer carries the
// initiator's DH-form identity public and ephemeral public ahead of the
// ratchet envelope, and the dispatcher must bootstrap a session from it,
// fetching the initiator's bundle for its identity key.
func TestPairwiseHandshakeThroughDispatch(t *testing.T) {
	alice := newAccount(t)
	bob := newAccount(t)

	bobDispatcher, err := dispatch.New(bob.identity, bob.signedPrekey, bob.store, func(string) (*keys.PrekeyBundle, error) {
		return alice.bundle(), nil
	})
	require.NoError(t, err)

	result, ephemeral, err := x3dh.Initiate(alice.identity, bob.bundle())
	require.NoError(t, err)

	aliceIdentityDHPub, err := keys.ConvertPublic(alice.identity.Public)
	require.NoError(t, err)

	sess, err := ratchet.NewInitiator(result.SharedSecret, result.AD, bob.signedPrekey.KeyPair.Public)
	require.NoError(t, err)
	ciphertext, err := sess.Encrypt([]byte("hello bob"))
	require.NoError(t, err)

	wire := make([]byte, 0, 1+64+len(ciphertext))
	wire = append(wire, dispatch.TypePairwise)
	wire = append(wire, aliceIdentityDHPub...)
	wire = append(wire, ephemeral.Public[:]...)
	wire = append(wire, ciphertext...)

	plaintext, err := bobDispatcher.Dispatch("alice", "alice", wire)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(plaintext))
}

func TestUnknownEnvelopeTypeIsMalformed(t *testing.T) {
	bob := newAccount(t)
	_, err := bob.dispatcher.Dispatch("alice", "alice", []byte{0xFF, 1, 2, 3})
	require.Error(t, err)
}

func TestEmptyEnvelopeIsMalformed(t *testing.T) {
	bob := newAccount(t)
	_, err := bob.dispatcher.Dispatch("alice", "alice", nil)
	require.Error(t, err)
}

// TestGroupMessageThroughDispatch exercises the SKDM-then-group path: a
// sealed distribution installs the receiving chain state, then a group
// frame decrypts against it.
func TestGroupMessageThroughDispatch(t *testing.T) {
	alice := newAccount(t)
	bob := newAccount(t)

	senderState, err := senderkey.New()
	require.NoError(t, err)

	bobDHPub, err := keys.ConvertPublic(bob.identity.Public)
	require.NoError(t, err)
	var bobDHPubArr [32]byte
	copy(bobDHPubArr[:], bobDHPub)

	sealed, err := senderkey.Seal(senderkey.DistributionPayloadFor(senderState), bobDHPubArr)
	require.NoError(t, err)

	skdmWire := append([]byte{dispatch.TypeSKDM}, sealed...)
	_, err = bob.dispatcher.Dispatch("alice", "channel-1", skdmWire)
	require.NoError(t, err)

	frame, err := senderkey.Encrypt(senderState, []byte("hello channel"))
	require.NoError(t, err)

	plaintext, err := bob.dispatcher.Dispatch("alice", "channel-1", frame)
	require.NoError(t, err)
	require.Equal(t, "hello channel", string(plaintext))
}
