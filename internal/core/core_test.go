package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/config"
	"github.com/jaydenbeard/e2ecore/internal/core"
	"github.com/jaydenbeard/e2ecore/internal/keys"
)

func newTestClient(t *testing.T, opts ...core.Option) *core.Client {
	t.Helper()
	cfg := &config.Config{StoreBackend: config.StoreBackendMemory}
	c, err := core.New(cfg, opts...)
	require.NoError(t, err)
	return c
}

// directoryFetcher stands in for the server directory: it serves the
// current bundle of whichever client is registered under a peer id.
func directoryFetcher(directory map[string]*core.Client) core.Option {
	return core.WithBundleFetcher(func(peerID string) (*keys.PrekeyBundle, error) {
		c, ok := directory[peerID]
		if !ok {
			return nil, e2eerr.ErrNoSession
		}
		return c.Bundle(), nil
	})
}

// TestPairwiseConversationThroughCore exercises the full lifecycle a
// caller drives: handshake, first message (carrying the handshake
// prefix), and a reply in the other direction.
func TestPairwiseConversationThroughCore(t *testing.T) {
	directory := map[string]*core.Client{}
	alice := newTestClient(t)
	bob := newTestClient(t, directoryFetcher(directory))
	directory["alice"] = alice

	_, err := bob.GenerateOneTimePrekeys(1, 1)
	require.NoError(t, err)

	err = alice.StartPairwiseSession("bob", bob.Bundle())
	require.NoError(t, err)

	wire, err := alice.SendPairwise("bob", []byte("hi bob"))
	require.NoError(t, err)

	plaintext, err := bob.ReceiveEnvelope("alice", "alice", wire)
	require.NoError(t, err)
	require.Equal(t, "hi bob", string(plaintext))

	// Bob replies on the session the dispatcher already bootstrapped from
	// Alice's first envelope; no second handshake is needed.
	reply, err := bob.SendPairwise("alice", []byte("hi alice"))
	require.NoError(t, err)

	plaintext, err = alice.ReceiveEnvelope("bob", "bob", reply)
	require.NoError(t, err)
	require.Equal(t, "hi alice", string(plaintext))
}

// TestGroupConversationThroughCore exercises sender-key distribution and
// group messaging between two clients in a shared channel.
func TestGroupConversationThroughCore(t *testing.T) {
	alice := newTestClient(t)
	bob := newTestClient(t)

	_, err := alice.CreateChannelSenderKey("general")
	require.NoError(t, err)

	sealed, err := alice.SealSenderKeyFor("general", bob.Identity.Public)
	require.NoError(t, err)
	_, err = bob.ReceiveEnvelope("alice", "general", sealed)
	require.NoError(t, err)

	frame, err := alice.SendGroup("general", []byte("hello general"))
	require.NoError(t, err)

	plaintext, err := bob.ReceiveEnvelope("alice", "general", frame)
	require.NoError(t, err)
	require.Equal(t, "hello general", string(plaintext))
}

// TestBackupRoundTripAfterConversation mirrors the backup-round-trip
// scenario: after a pairwise exchange, back up Bob's full state,
// restore into a fresh client from the same identity, and confirm the
// restored client can still decrypt the next inbound message from
// Alice, while a restore under the wrong passphrase fails.
func TestBackupRoundTripAfterConversation(t *testing.T) {
	directory := map[string]*core.Client{}
	alice := newTestClient(t)
	bob := newTestClient(t, directoryFetcher(directory))
	directory["alice"] = alice

	_, err := bob.GenerateOneTimePrekeys(1, 1)
	require.NoError(t, err)
	require.NoError(t, alice.StartPairwiseSession("bob", bob.Bundle()))
	wire, err := alice.SendPairwise("bob", []byte("message one"))
	require.NoError(t, err)
	_, err = bob.ReceiveEnvelope("alice", "alice", wire)
	require.NoError(t, err)

	ciphertext, nonce, salt, err := bob.CreateBackup("correct-horse-battery-staple", time.Unix(0, 0))
	require.NoError(t, err)

	cfg := &config.Config{StoreBackend: config.StoreBackendMemory}
	restored, err := core.Restore(cfg, bob.Identity, bob.SignedPrekey)
	require.NoError(t, err)
	require.NoError(t, restored.RestoreFromBackup(ciphertext, nonce, salt, "correct-horse-battery-staple"))

	wire2, err := alice.SendPairwise("bob", []byte("message two"))
	require.NoError(t, err)
	plaintext, err := restored.ReceiveEnvelope("alice", "alice", wire2)
	require.NoError(t, err)
	require.Equal(t, "message two", string(plaintext))

	_, _, _, err = bob.CreateBackup("wrong-is-fine-to-encrypt-with", time.Unix(0, 0))
	require.NoError(t, err) // encrypting never fails on passphrase choice

	_, err = core.Restore(cfg, bob.Identity, bob.SignedPrekey)
	require.NoError(t, err)

	badRestore, err := core.Restore(cfg, bob.Identity, bob.SignedPrekey)
	require.NoError(t, err)
	err = badRestore.RestoreFromBackup(ciphertext, nonce, salt, "wrong")
	require.Error(t, err)
}

func TestBackupPassphraseCellCaching(t *testing.T) {
	bob := newTestClient(t)
	bob.SetBackupPassphrase("correct-horse-battery-staple")

	ciphertext, nonce, salt, err := bob.CreateBackup("", time.Unix(0, 0))
	require.NoError(t, err)

	bob.ClearBackupPassphrase()
	_, _, _, err = bob.CreateBackup("", time.Unix(0, 0))
	require.Error(t, err)

	cfg := &config.Config{StoreBackend: config.StoreBackendMemory}
	restored, err := core.Restore(cfg, bob.Identity, bob.SignedPrekey)
	require.NoError(t, err)
	require.Error(t, restored.RestoreFromBackup(ciphertext, nonce, salt, ""))
}

// TestRotateSenderKeyLocksOutAHoldout exercises the membership-change
// rotation scenario: a channel has two members, one is dropped, the
// remaining member rotates the sender key and reseals only to who is
// left; the dropped member's received sender key is never updated and
// cannot decrypt anything sent on the new key.
func TestRotateSenderKeyLocksOutAHoldout(t *testing.T) {
	alice := newTestClient(t)
	bob := newTestClient(t)
	carol := newTestClient(t)

	_, err := alice.CreateChannelSenderKey("general")
	require.NoError(t, err)

	sealedForBob, err := alice.SealSenderKeyFor("general", bob.Identity.Public)
	require.NoError(t, err)
	_, err = bob.ReceiveEnvelope("alice", "general", sealedForBob)
	require.NoError(t, err)

	sealedForCarol, err := alice.SealSenderKeyFor("general", carol.Identity.Public)
	require.NoError(t, err)
	_, err = carol.ReceiveEnvelope("alice", "general", sealedForCarol)
	require.NoError(t, err)

	// Carol is dropped from the channel: Alice rotates her sender key and
	// reseals only to Bob.
	_, err = alice.RotateSenderKey("general")
	require.NoError(t, err)

	resealedForBob, err := alice.SealSenderKeyFor("general", bob.Identity.Public)
	require.NoError(t, err)
	_, err = bob.ReceiveEnvelope("alice", "general", resealedForBob)
	require.NoError(t, err)

	frame, err := alice.SendGroup("general", []byte("carol should not see this"))
	require.NoError(t, err)

	plaintext, err := bob.ReceiveEnvelope("alice", "general", frame)
	require.NoError(t, err)
	require.Equal(t, "carol should not see this", string(plaintext))

	_, err = carol.ReceiveEnvelope("alice", "general", frame)
	require.Error(t, err)
}

// TestRotateSignedPrekeyStillCompletesNewHandshakes confirms a fresh
// X3DH handshake verifies against the rotated signed prekey, not the
// retired one.
func TestRotateSignedPrekeyStillCompletesNewHandshakes(t *testing.T) {
	directory := map[string]*core.Client{}
	alice := newTestClient(t)
	bob := newTestClient(t, directoryFetcher(directory))
	directory["alice"] = alice

	originalID := bob.SignedPrekey.ID
	next, err := bob.RotateSignedPrekey()
	require.NoError(t, err)
	require.NotEqual(t, originalID, next.ID)
	require.Equal(t, next, bob.SignedPrekey)

	require.NoError(t, alice.StartPairwiseSession("bob", bob.Bundle()))
	wire, err := alice.SendPairwise("bob", []byte("hi after rotation"))
	require.NoError(t, err)

	plaintext, err := bob.ReceiveEnvelope("alice", "alice", wire)
	require.NoError(t, err)
	require.Equal(t, "hi after rotation", string(plaintext))
}

// TestRotateIdentityKeyHonorsTransitionWindow confirms a peer who
// started a handshake against this account's old identity (because it
// fetched the bundle before the rotation) can still complete its first
// message afterwards, instead of the session failing silently.
func TestRotateIdentityKeyHonorsTransitionWindow(t *testing.T) {
	directory := map[string]*core.Client{}
	alice := newTestClient(t)
	bob := newTestClient(t, directoryFetcher(directory))
	directory["alice"] = alice

	staleBundle := bob.Bundle()
	require.NoError(t, alice.StartPairwiseSession("bob", staleBundle))

	_, err := bob.RotateIdentityKey()
	require.NoError(t, err)

	wire, err := alice.SendPairwise("bob", []byte("hello under the old bundle"))
	require.NoError(t, err)

	plaintext, err := bob.ReceiveEnvelope("alice", "alice", wire)
	require.NoError(t, err)
	require.Equal(t, "hello under the old bundle", string(plaintext))
}
