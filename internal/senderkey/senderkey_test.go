package senderkey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/keys"
	"github.com/jaydenbeard/e2ecore/internal/senderkey"
)

func TestGroupOfThree(t *testing.T) {
	alice, err := senderkey.New()
	require.NoError(t, err)

	bob := senderkey.InstallFromDistribution(senderkey.DistributionPayloadFor(alice))
	carol := senderkey.InstallFromDistribution(senderkey.DistributionPayloadFor(alice))

	f1, err := senderkey.Encrypt(alice, []byte("m1"))
	require.NoError(t, err)
	f2, err := senderkey.Encrypt(alice, []byte("m2"))
	require.NoError(t, err)
	f3, err := senderkey.Encrypt(alice, []byte("m3"))
	require.NoError(t, err)

	pt1, err := senderkey.Decrypt(bob, f1)
	require.NoError(t, err)
	pt2, err := senderkey.Decrypt(bob, f2)
	require.NoError(t, err)
	pt3, err := senderkey.Decrypt(bob, f3)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{string(pt1), string(pt2), string(pt3)})

	cpt3, err := senderkey.Decrypt(carol, f3)
	require.NoError(t, err)
	cpt2, err := senderkey.Decrypt(carol, f2)
	require.NoError(t, err)
	cpt1, err := senderkey.Decrypt(carol, f1)
	require.NoError(t, err)
	assert.Equal(t, "m3", string(cpt3))
	assert.Equal(t, "m2", string(cpt2))
	assert.Equal(t, "m1", string(cpt1))
}

func TestMembershipChangeRotatesAndBlocksRemovedMember(t *testing.T) {
	alice, err := senderkey.New()
	require.NoError(t, err)
	bob := senderkey.InstallFromDistribution(senderkey.DistributionPayloadFor(alice))
	carol := senderkey.InstallFromDistribution(senderkey.DistributionPayloadFor(alice))

	f1, err := senderkey.Encrypt(alice, []byte("before removal"))
	require.NoError(t, err)
	_, err = senderkey.Decrypt(carol, f1)
	require.NoError(t, err)

	rotated, err := senderkey.New()
	require.NoError(t, err)
	bob = senderkey.InstallFromDistribution(senderkey.DistributionPayloadFor(rotated))

	f2, err := senderkey.Encrypt(rotated, []byte("m4"))
	require.NoError(t, err)
	pt, err := senderkey.Decrypt(bob, f2)
	require.NoError(t, err)
	assert.Equal(t, "m4", string(pt))

	_, err = senderkey.Decrypt(carol, f2)
	assert.ErrorIs(t, err, e2eerr.ErrDistributionMismatch)
}

func TestReplayBoundary(t *testing.T) {
	alice, err := senderkey.New()
	require.NoError(t, err)
	bob := senderkey.InstallFromDistribution(senderkey.DistributionPayloadFor(alice))

	f0, err := senderkey.Encrypt(alice, []byte("zero"))
	require.NoError(t, err)
	f1, err := senderkey.Encrypt(alice, []byte("one"))
	require.NoError(t, err)

	_, err = senderkey.Decrypt(bob, f0)
	require.NoError(t, err)

	_, err = senderkey.Decrypt(bob, f0)
	assert.ErrorIs(t, err, e2eerr.ErrReplay, "resending the just-consumed index must be rejected as replay")

	pt1, err := senderkey.Decrypt(bob, f1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(pt1))
}

func TestTooManySkippedBoundary(t *testing.T) {
	alice, err := senderkey.New()
	require.NoError(t, err)
	bob := senderkey.InstallFromDistribution(senderkey.DistributionPayloadFor(alice))

	var frames [][]byte
	for i := 0; i < 258; i++ {
		f, err := senderkey.Encrypt(alice, []byte("x"))
		require.NoError(t, err)
		frames = append(frames, f)
	}

	_, err = senderkey.Decrypt(bob, frames[256])
	require.NoError(t, err, "skipping exactly 256 must succeed")

	bob2 := senderkey.InstallFromDistribution(senderkey.DistributionPayloadFor(alice))
	bob2.ChainIndex = 0
	_, err = senderkey.Decrypt(bob2, frames[257])
	assert.ErrorIs(t, err, e2eerr.ErrTooManySkipped)
}

func TestDecryptFailureDoesNotAdvanceState(t *testing.T) {
	alice, err := senderkey.New()
	require.NoError(t, err)
	bob := senderkey.InstallFromDistribution(senderkey.DistributionPayloadFor(alice))

	f, err := senderkey.Encrypt(alice, []byte("hello"))
	require.NoError(t, err)
	tampered := append([]byte(nil), f...)
	tampered[len(tampered)-1] ^= 0xFF

	before := bob.ChainIndex
	_, err = senderkey.Decrypt(bob, tampered)
	require.Error(t, err)
	assert.Equal(t, before, bob.ChainIndex)

	pt, err := senderkey.Decrypt(bob, f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))
}

func TestSealUnsealRoundTrip(t *testing.T) {
	alice, err := senderkey.New()
	require.NoError(t, err)
	payload := senderkey.DistributionPayloadFor(alice)

	recipientIdentity, err := keys.GenerateIdentity()
	require.NoError(t, err)
	dhPriv, err := keys.ConvertPrivate(recipientIdentity.Private)
	require.NoError(t, err)
	dhPub, err := keys.ConvertPublic(recipientIdentity.Public)
	require.NoError(t, err)
	var priv, pub [32]byte
	copy(priv[:], dhPriv)
	copy(pub[:], dhPub)

	sealed, err := senderkey.Seal(payload, pub)
	require.NoError(t, err)

	opened, err := senderkey.Unseal(sealed, priv, pub)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)
}

func TestUnsealRejectsWrongRecipient(t *testing.T) {
	alice, err := senderkey.New()
	require.NoError(t, err)
	payload := senderkey.DistributionPayloadFor(alice)

	recipient, err := keys.GenerateIdentity()
	require.NoError(t, err)
	dhPub, err := keys.ConvertPublic(recipient.Public)
	require.NoError(t, err)
	var pub [32]byte
	copy(pub[:], dhPub)
	sealed, err := senderkey.Seal(payload, pub)
	require.NoError(t, err)

	wrong, err := keys.GenerateIdentity()
	require.NoError(t, err)
	wrongPriv, err := keys.ConvertPrivate(wrong.Private)
	require.NoError(t, err)
	var wPriv [32]byte
	copy(wPriv[:], wrongPriv)

	_, err = senderkey.Unseal(sealed, wPriv, pub)
	assert.Error(t, err)
}
