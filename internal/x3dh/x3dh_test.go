package x3dh_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/keys"
	"github.com/jaydenbeard/e2ecore/internal/x3dh"
)

func makeResponderBundle(t *testing.T, withOTK bool) (*keys.IdentityKeyPair, *keys.SignedPrekey, *keys.OneTimePrekey, *keys.PrekeyBundle) {
	t.Helper()
	identity, err := keys.GenerateIdentity()
	require.NoError(t, err)
	spk, err := keys.GenerateSignedPrekey(1, identity.Private)
	require.NoError(t, err)

	bundle := &keys.PrekeyBundle{
		IdentityPub:     identity.Public,
		SignedPrekeyID:  spk.ID,
		SignedPrekeyPub: spk.KeyPair.Public,
		Signature:       spk.Signature,
	}

	var otk *keys.OneTimePrekey
	if withOTK {
		otks, err := keys.GenerateOneTimePrekeys(1, 1)
		require.NoError(t, err)
		otk = otks[0]
		id := otk.ID
		bundle.OneTimePrekeyID = &id
		bundle.OneTimePrekey = &otk.KeyPair.Public
	}

	return identity, spk, otk, bundle
}

func TestHandshakeAgreesWithOneTimePrekey(t *testing.T) {
	alice, err := keys.GenerateIdentity()
	require.NoError(t, err)
	bobIdentity, bobSPK, bobOTK, bundle := makeResponderBundle(t, true)

	initResult, ephemeral, err := x3dh.Initiate(alice, bundle)
	require.NoError(t, err)

	respResult, err := x3dh.Respond(bobIdentity, bobSPK, bobOTK, alice.Public, ephemeral.Public)
	require.NoError(t, err)

	assert.Equal(t, initResult.SharedSecret, respResult.SharedSecret)
	assert.Equal(t, initResult.AD, respResult.AD)
}

func TestHandshakeAgreesWithoutOneTimePrekey(t *testing.T) {
	alice, err := keys.GenerateIdentity()
	require.NoError(t, err)
	bobIdentity, bobSPK, _, bundle := makeResponderBundle(t, false)

	initResult, ephemeral, err := x3dh.Initiate(alice, bundle)
	require.NoError(t, err)

	respResult, err := x3dh.Respond(bobIdentity, bobSPK, nil, alice.Public, ephemeral.Public)
	require.NoError(t, err)

	assert.Equal(t, initResult.SharedSecret, respResult.SharedSecret)
}

func TestHandshakeRejectsBadSignedPrekeySignature(t *testing.T) {
	alice, err := keys.GenerateIdentity()
	require.NoError(t, err)
	_, _, _, bundle := makeResponderBundle(t, false)

	bundle.Signature[0] ^= 0xFF

	_, _, err = x3dh.Initiate(alice, bundle)
	require.Error(t, err)
	assert.ErrorIs(t, err, e2eerr.ErrBadSignature)
}

func TestHandshakeProducesDifferentSecretsForDifferentEphemerals(t *testing.T) {
	alice, err := keys.GenerateIdentity()
	require.NoError(t, err)
	_, _, _, bundle := makeResponderBundle(t, false)

	r1, _, err := x3dh.Initiate(alice, bundle)
	require.NoError(t, err)
	r2, _, err := x3dh.Initiate(alice, bundle)
	require.NoError(t, err)

	assert.NotEqual(t, r1.SharedSecret, r2.SharedSecret, "fresh ephemeral per handshake must change the secret")
}
