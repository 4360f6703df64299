// Package backup implements the encrypted backup codec: serializing
// all long-term and session state into a versioned document, then
// encrypting it with a passphrase-derived key.
package backup

// CurrentVersion is the only backup payload version this codec writes
// or accepts.
const CurrentVersion = 1

// IdentityKeyMaterial carries the account's long-term identity key
// pair. PrivateKey is base64-encoded, unless Wrapped is set, in which
// case it is the opaque ciphertext token an IdentityWrapper produced
// and must be unwrapped through the same transit key before use.
type IdentityKeyMaterial struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
	Wrapped    bool   `json:"wrapped,omitempty"`
}

// SignedPrekeyMaterial carries the account's current signed prekey.
// PrivateKey follows the same Wrapped convention as
// IdentityKeyMaterial.PrivateKey.
type SignedPrekeyMaterial struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
	Signature  string `json:"signature"`
	Wrapped    bool   `json:"wrapped,omitempty"`
}

// SessionEntry is one pairwise session as stored in a backup: the
// serialized ratchet state and its X3DH associated-data blob, each
// base64-encoded.
type SessionEntry struct {
	State string `json:"state"`
	AD    string `json:"ad"`
}

// SenderKeyEntry is a sender-key chain state, base64-encoded.
type SenderKeyEntry struct {
	DistributionID string `json:"distributionId"`
	ChainKey       string `json:"chainKey"`
	ChainIndex     uint32 `json:"chainIndex"`
}

// ReceivedSenderKeyEntry is one installed sender key, tagged with the
// user id it was received from.
type ReceivedSenderKeyEntry struct {
	FromUserID string         `json:"fromUserId"`
	Key        SenderKeyEntry `json:"key"`
}

// Payload is the full backup document named by §6's wire formats:
// every top-level field the codec persists.
type Payload struct {
	Version             int                               `json:"version"`
	Identity            IdentityKeyMaterial               `json:"identity"`
	SignedPrekey        SignedPrekeyMaterial              `json:"signedPreKey"`
	PreviousIdentity    *IdentityKeyMaterial              `json:"previousIdentity,omitempty"`
	Sessions            map[string]SessionEntry           `json:"sessions"`
	MySenderKeys        map[string]SenderKeyEntry         `json:"mySenderKeys"`
	ReceivedSenderKeys  map[string]ReceivedSenderKeyEntry `json:"receivedSenderKeys"`
	DistributedChannels []string                          `json:"distributedChannels"`
	ChannelPeerMap      map[string]string                 `json:"channelPeerMap"`
	Timestamp           string                            `json:"timestamp"`
}
