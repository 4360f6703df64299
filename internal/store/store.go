// Package store defines the session and key store abstraction named by
// §4.6: pairwise sessions, own and received sender-key state, the
// distributed-channel set, and the channel-to-peer convenience map. An
// in-memory implementation backs tests; SQLite and Postgres
// implementations back production deployments.
package store

import (
	"github.com/jaydenbeard/e2ecore/internal/ratchet"
	"github.com/jaydenbeard/e2ecore/internal/senderkey"
)

// Store is the full set of entities the core needs persisted. Each
// entity's save/load/delete is atomic with respect to crash recovery;
// no cross-entity transactions are required.
type Store interface {
	SavePairwiseSession(peerID string, session ratchet.Serialized) error
	LoadPairwiseSession(peerID string) (ratchet.Serialized, error)
	DeletePairwiseSession(peerID string) error

	SaveOwnSenderKey(channelID string, state senderkey.State) error
	LoadOwnSenderKey(channelID string) (senderkey.State, error)
	DeleteOwnSenderKey(channelID string) error

	SaveReceivedSenderKey(channelID, senderID string, state senderkey.ReceivedState) error
	LoadReceivedSenderKey(channelID, senderID string) (senderkey.ReceivedState, error)
	DeleteReceivedSenderKey(channelID, senderID string) error

	MarkDistributed(channelID string) error
	IsDistributed(channelID string) (bool, error)
	ClearDistributed(channelID string) error

	SaveChannelPeer(channelID, peerID string) error
	LoadChannelPeer(channelID string) (string, error)

	// SaveIdentityTransition records the identity key pair this account
	// just retired via a RotateIdentityKey call, mirroring the teacher's
	// SignalSession.PreviousIdentityKey field: a session a peer still
	// addresses to the old identity can complete during the transition
	// window instead of failing silently. Only one transition is kept
	// at a time; a later rotation overwrites it.
	SaveIdentityTransition(previousPub, previousPriv []byte) error
	LoadIdentityTransition() (pub, priv []byte, err error)
}
