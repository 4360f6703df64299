package ratchet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/keys"
	"github.com/jaydenbeard/e2ecore/internal/ratchet"
)

// establishedPair returns an initiator and responder session seeded
// from the same X3DH-style shared secret and AD, with the responder's
// signed-prekey key pair known to both sides, matching §4.4's described
// initialization without going through the full x3dh package.
func establishedPair(t *testing.T) (*ratchet.Session, *ratchet.Session) {
	t.Helper()
	var shared [32]byte
	copy(shared[:], []byte("0123456789abcdef0123456789abcdef"))
	var ad [64]byte
	copy(ad[:], []byte("associated-data-blob-64-bytes-long-for-session-xxxxxxxxxxxxxxxx"))

	responderSPK, err := keys.GenerateDHKeyPair()
	require.NoError(t, err)

	alice, err := ratchet.NewInitiator(shared, ad, responderSPK.Public)
	require.NoError(t, err)
	bob, err := ratchet.NewResponder(shared, ad, responderSPK)
	require.NoError(t, err)
	return alice, bob
}

func TestAliceSendsBobReceives(t *testing.T) {
	alice, bob := establishedPair(t)

	env1, err := alice.Encrypt([]byte("hello"))
	require.NoError(t, err)
	env2, err := alice.Encrypt([]byte("world"))
	require.NoError(t, err)

	pt1, err := bob.Decrypt(env1)
	require.NoError(t, err)
	pt2, err := bob.Decrypt(env2)
	require.NoError(t, err)

	assert.Equal(t, "hello", string(pt1))
	assert.Equal(t, "world", string(pt2))

	reply, err := bob.Encrypt([]byte("hi back"))
	require.NoError(t, err)
	pt3, err := alice.Decrypt(reply)
	require.NoError(t, err)
	assert.Equal(t, "hi back", string(pt3))

	assert.Equal(t, ratchet.Established, alice.State())
	assert.Equal(t, ratchet.Established, bob.State())
}

func TestOutOfOrderDelivery(t *testing.T) {
	alice, bob := establishedPair(t)

	env1, err := alice.Encrypt([]byte("one"))
	require.NoError(t, err)
	env2, err := alice.Encrypt([]byte("two"))
	require.NoError(t, err)
	env3, err := alice.Encrypt([]byte("three"))
	require.NoError(t, err)

	pt3, err := bob.Decrypt(env3)
	require.NoError(t, err)
	pt1, err := bob.Decrypt(env1)
	require.NoError(t, err)
	pt2, err := bob.Decrypt(env2)
	require.NoError(t, err)

	assert.Equal(t, "three", string(pt3))
	assert.Equal(t, "one", string(pt1))
	assert.Equal(t, "two", string(pt2))
}

func TestDHRatchetAfterReply(t *testing.T) {
	alice, bob := establishedPair(t)

	env1, err := alice.Encrypt([]byte("hello"))
	require.NoError(t, err)
	_, err = bob.Decrypt(env1)
	require.NoError(t, err)

	beforeDH := alice.DHPublic()

	reply, err := bob.Encrypt([]byte("hi"))
	require.NoError(t, err)
	_, err = alice.Decrypt(reply)
	require.NoError(t, err)

	nextEnv, err := alice.Encrypt([]byte("next"))
	require.NoError(t, err)
	assert.NotEqual(t, beforeDH, alice.DHPublic())

	_, err = bob.Decrypt(nextEnv)
	require.NoError(t, err)
}

func TestSkippingExactly256Succeeds(t *testing.T) {
	alice, bob := establishedPair(t)

	var last []byte
	for i := 0; i < 257; i++ {
		env, err := alice.Encrypt([]byte("msg"))
		require.NoError(t, err)
		last = env
	}
	_, err := bob.Decrypt(last)
	require.NoError(t, err)
}

func TestSkipping257FailsWithTooManySkipped(t *testing.T) {
	alice, bob := establishedPair(t)

	var last []byte
	for i := 0; i < 258; i++ {
		env, err := alice.Encrypt([]byte("msg"))
		require.NoError(t, err)
		last = env
	}
	_, err := bob.Decrypt(last)
	require.ErrorIs(t, err, e2eerr.ErrTooManySkipped)
}

func TestDecryptFailureDoesNotPoisonSession(t *testing.T) {
	alice, bob := establishedPair(t)

	env, err := alice.Encrypt([]byte("hello"))
	require.NoError(t, err)
	tampered := append([]byte(nil), env...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = bob.Decrypt(tampered)
	require.Error(t, err)
	assert.NotEqual(t, ratchet.Poisoned, bob.State())

	env2, err := alice.Encrypt([]byte("world"))
	require.NoError(t, err)
	pt, err := bob.Decrypt(env2)
	require.NoError(t, err)
	assert.Equal(t, "world", string(pt))
}

func TestEncryptRequiresSendingChain(t *testing.T) {
	var shared [32]byte
	var ad [64]byte
	responderSPK, err := keys.GenerateDHKeyPair()
	require.NoError(t, err)
	bob, err := ratchet.NewResponder(shared, ad, responderSPK)
	require.NoError(t, err)

	_, err = bob.Encrypt([]byte("too early"))
	assert.ErrorIs(t, err, e2eerr.ErrNotInitialized)
}

func TestSerializeRoundTripIsObservationallyIdentical(t *testing.T) {
	alice, bob := establishedPair(t)

	env1, err := alice.Encrypt([]byte("one"))
	require.NoError(t, err)
	_, err = bob.Decrypt(env1)
	require.NoError(t, err)

	serialized := bob.Serialize()
	restored := ratchet.Deserialize(serialized)

	reply, err := alice.Encrypt([]byte("two"))
	require.NoError(t, err)
	pt, err := restored.Decrypt(reply)
	require.NoError(t, err)
	assert.Equal(t, "two", string(pt))
}

func TestSessionWithNoOneTimePrekeyStillEstablishes(t *testing.T) {
	alice, bob := establishedPair(t)
	env, err := alice.Encrypt([]byte("no otk needed"))
	require.NoError(t, err)
	pt, err := bob.Decrypt(env)
	require.NoError(t, err)
	assert.Equal(t, "no otk needed", string(pt))
}
