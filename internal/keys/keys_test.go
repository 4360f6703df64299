package keys_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/keys"
)

func TestGenerateIdentityAndSignVerify(t *testing.T) {
	id, err := keys.GenerateIdentity()
	require.NoError(t, err)
	require.Len(t, id.Public, 32)

	msg := []byte("prekey bundle payload")
	sig := keys.Sign(id.Private, msg)
	assert.True(t, keys.Verify(id.Public, msg, sig))
	assert.NoError(t, keys.VerifyOrBadSig(id.Public, msg, sig))

	other, err := keys.GenerateIdentity()
	require.NoError(t, err)
	assert.False(t, keys.Verify(other.Public, msg, sig))
	assert.ErrorIs(t, keys.VerifyOrBadSig(other.Public, msg, sig), e2eerr.ErrBadSignature)
}

func TestConvertedIdentityKeysAgreeOnSharedSecret(t *testing.T) {
	alice, err := keys.GenerateIdentity()
	require.NoError(t, err)
	bob, err := keys.GenerateIdentity()
	require.NoError(t, err)

	aliceDHPriv, err := keys.ConvertPrivate(alice.Private)
	require.NoError(t, err)
	aliceDHPub, err := keys.ConvertPublic(alice.Public)
	require.NoError(t, err)

	bobDHPriv, err := keys.ConvertPrivate(bob.Private)
	require.NoError(t, err)
	bobDHPub, err := keys.ConvertPublic(bob.Public)
	require.NoError(t, err)

	var aPriv, bPub, bPriv, aPub [32]byte
	copy(aPriv[:], aliceDHPriv)
	copy(bPub[:], bobDHPub)
	copy(bPriv[:], bobDHPriv)
	copy(aPub[:], aliceDHPub)

	secretFromAlice, err := keys.DH(aPriv, bPub)
	require.NoError(t, err)
	secretFromBob, err := keys.DH(bPriv, aPub)
	require.NoError(t, err)

	assert.Equal(t, secretFromAlice, secretFromBob)
	assert.NotEqual(t, make([]byte, 32), secretFromAlice)
}

func TestConvertPublicIsDeterministic(t *testing.T) {
	id, err := keys.GenerateIdentity()
	require.NoError(t, err)

	u1, err := keys.ConvertPublic(id.Public)
	require.NoError(t, err)
	u2, err := keys.ConvertPublic(id.Public)
	require.NoError(t, err)
	assert.Equal(t, u1, u2)
}

func TestConvertRejectsWrongSizes(t *testing.T) {
	_, err := keys.ConvertPublic([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = keys.ConvertPrivate(make([]byte, 10))
	assert.Error(t, err)
}

func TestGenerateSignedPrekeyVerifies(t *testing.T) {
	id, err := keys.GenerateIdentity()
	require.NoError(t, err)

	spk, err := keys.GenerateSignedPrekey(1, id.Private)
	require.NoError(t, err)
	require.NotNil(t, spk.KeyPair)

	err = keys.VerifySignedPrekey(id.Public, spk.KeyPair.Public, spk.Signature)
	assert.NoError(t, err)

	other, err := keys.GenerateIdentity()
	require.NoError(t, err)
	err = keys.VerifySignedPrekey(other.Public, spk.KeyPair.Public, spk.Signature)
	assert.ErrorIs(t, err, e2eerr.ErrBadSignature)
}

func TestGenerateOneTimePrekeysAreUniqueAndSequential(t *testing.T) {
	otks, err := keys.GenerateOneTimePrekeys(10, 100)
	require.NoError(t, err)
	require.Len(t, otks, 10)

	seen := map[[32]byte]bool{}
	for i, otk := range otks {
		assert.Equal(t, uint32(100+i), otk.ID)
		assert.False(t, seen[otk.KeyPair.Public], "one-time prekeys must not repeat")
		seen[otk.KeyPair.Public] = true
	}
}

func TestGenerateDHKeyPairProducesUsableKeys(t *testing.T) {
	a, err := keys.GenerateDHKeyPair()
	require.NoError(t, err)
	b, err := keys.GenerateDHKeyPair()
	require.NoError(t, err)

	s1, err := keys.DH(a.Private, b.Public)
	require.NoError(t, err)
	s2, err := keys.DH(b.Private, a.Public)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}
