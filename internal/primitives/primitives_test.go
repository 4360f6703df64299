package primitives_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/e2ecore/internal/primitives"
)

func TestRootKDFDeterministicAndSeparated(t *testing.T) {
	root := bytes.Repeat([]byte{0x01}, 32)
	dh := bytes.Repeat([]byte{0x02}, 32)

	r1, c1 := primitives.RootKDF(root, dh)
	r2, c2 := primitives.RootKDF(root, dh)
	assert.Equal(t, r1, r2, "root kdf must be deterministic")
	assert.Equal(t, c1, c2)
	assert.NotEqual(t, r1, c1, "root and chain outputs must be domain separated")
	assert.Len(t, r1, primitives.KeySize)
	assert.Len(t, c1, primitives.KeySize)
}

func TestChainKDFAdvancesAndSeparates(t *testing.T) {
	ck := bytes.Repeat([]byte{0x03}, 32)

	next1, mk1 := primitives.ChainKDF(ck)
	next2, mk2 := primitives.ChainKDF(next1)

	assert.NotEqual(t, ck, next1)
	assert.NotEqual(t, next1, next2)
	assert.NotEqual(t, mk1, mk2, "message keys must differ at each step")
	assert.NotEqual(t, next1, mk1, "next chain and message key must be domain separated")
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x09}, 32)
	ad := []byte("associated-data")
	plaintext := []byte("hello world")

	nonce, ct, err := primitives.Seal(key, plaintext, ad)
	require.NoError(t, err)
	assert.Len(t, nonce, primitives.NonceSize)

	got, err := primitives.Open(key, nonce, ct, ad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x09}, 32)
	ad := []byte("ad")
	nonce, ct, err := primitives.Seal(key, []byte("msg"), ad)
	require.NoError(t, err)

	tampered := append([]byte(nil), ct...)
	tampered[0] ^= 0xFF

	_, err = primitives.Open(key, nonce, tampered, ad)
	require.Error(t, err)
}

func TestOpenRejectsWrongAD(t *testing.T) {
	key := bytes.Repeat([]byte{0x09}, 32)
	nonce, ct, err := primitives.Seal(key, []byte("msg"), []byte("ad1"))
	require.NoError(t, err)

	_, err = primitives.Open(key, nonce, ct, []byte("ad2"))
	require.Error(t, err)
}

func TestNoncesAreRandomPerCall(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 32)
	n1, _, err := primitives.Seal(key, []byte("a"), nil)
	require.NoError(t, err)
	n2, _, err := primitives.Seal(key, []byte("a"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)
}
