package core

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jaydenbeard/e2ecore/internal/backup"
	"github.com/jaydenbeard/e2ecore/internal/keys"
	"github.com/jaydenbeard/e2ecore/internal/obs"
	"github.com/jaydenbeard/e2ecore/internal/ratchet"
	"github.com/jaydenbeard/e2ecore/internal/senderkey"
	"github.com/jaydenbeard/e2ecore/internal/store"
)

// signedPrekeyBackupID is the fixed signed-prekey id backup material is
// tagged with on restore. The backup payload never stores the id
// itself (it only ever travels over X3DH bundles). New starts every
// account at id 1, but RotateSignedPrekey numbers later prekeys 2, 3,
// ...; a restored signed prekey is tagged 1 whatever id it had when
// the backup was made, so a rotated id does not survive a backup round
// trip (the key pair and signature do).
const signedPrekeyBackupID = 1

// SetBackupPassphrase caches passphrase in this client's PassphraseCell
// for reuse across CreateBackup/RestoreFromBackup calls. Callers that
// never want the passphrase cached between calls can pass it directly
// to CreateBackup/RestoreFromBackup instead and skip this entirely.
func (c *Client) SetBackupPassphrase(passphrase string) {
	c.passphrase.Set(passphrase)
}

// ClearBackupPassphrase wipes the cached passphrase. Call this on any
// authenticated session end.
func (c *Client) ClearBackupPassphrase() {
	c.passphrase.Clear()
}

// CreateBackup serializes every pairwise session, sender key, and
// received sender key this account has touched, plus the channel-to-peer
// map, into an encrypted backup blob under passphrase. An empty
// passphrase falls back to the cached PassphraseCell value.
func (c *Client) CreateBackup(passphrase string, now time.Time) (ciphertext, nonce, salt []byte, err error) {
	if passphrase == "" {
		cached, ok := c.passphrase.Get()
		if !ok {
			return nil, nil, nil, fmt.Errorf("core: no backup passphrase supplied or cached")
		}
		passphrase = cached
	}

	payload, err := c.buildBackupPayload(now)
	if err != nil {
		return nil, nil, nil, err
	}

	ciphertext, nonce, salt, err = backup.Encrypt(payload, passphrase)
	if err != nil {
		obs.BackupOperationsTotal.WithLabelValues("encrypt", "error").Inc()
		return nil, nil, nil, err
	}
	obs.BackupOperationsTotal.WithLabelValues("encrypt", "ok").Inc()
	return ciphertext, nonce, salt, nil
}

func (c *Client) buildBackupPayload(now time.Time) (backup.Payload, error) {
	c.known.mu.Lock()
	peerIDs := make([]string, 0, len(c.known.peers))
	for id := range c.known.peers {
		peerIDs = append(peerIDs, id)
	}
	channelIDs := make([]string, 0, len(c.known.channels))
	for id := range c.known.channels {
		channelIDs = append(channelIDs, id)
	}
	c.known.mu.Unlock()

	identityKey, err := c.sealPrivateKey(c.Identity.Private)
	if err != nil {
		return backup.Payload{}, fmt.Errorf("core: seal identity private key: %w", err)
	}
	signedPrekeyKey, err := c.sealPrivateKey(c.SignedPrekey.KeyPair.Private[:])
	if err != nil {
		return backup.Payload{}, fmt.Errorf("core: seal signed prekey private key: %w", err)
	}

	payload := backup.Payload{
		Version: backup.CurrentVersion,
		Identity: backup.IdentityKeyMaterial{
			PublicKey:  base64.StdEncoding.EncodeToString(c.Identity.Public),
			PrivateKey: identityKey,
			Wrapped:    c.wrapper != nil,
		},
		SignedPrekey: backup.SignedPrekeyMaterial{
			PublicKey:  base64.StdEncoding.EncodeToString(c.SignedPrekey.KeyPair.Public[:]),
			PrivateKey: signedPrekeyKey,
			Signature:  base64.StdEncoding.EncodeToString(c.SignedPrekey.Signature),
			Wrapped:    c.wrapper != nil,
		},
		Sessions:            map[string]backup.SessionEntry{},
		MySenderKeys:        map[string]backup.SenderKeyEntry{},
		ReceivedSenderKeys:  map[string]backup.ReceivedSenderKeyEntry{},
		DistributedChannels: []string{},
		ChannelPeerMap:      map[string]string{},
		Timestamp:           now.UTC().Format(time.RFC3339),
	}

	if prevPub, prevPriv, err := c.store.LoadIdentityTransition(); err == nil {
		sealedPrev, err := c.sealPrivateKey(prevPriv)
		if err != nil {
			return backup.Payload{}, fmt.Errorf("core: seal previous identity private key: %w", err)
		}
		payload.PreviousIdentity = &backup.IdentityKeyMaterial{
			PublicKey:  base64.StdEncoding.EncodeToString(prevPub),
			PrivateKey: sealedPrev,
			Wrapped:    c.wrapper != nil,
		}
	}

	for _, peerID := range peerIDs {
		serialized, err := c.store.LoadPairwiseSession(peerID)
		if err != nil {
			continue
		}
		stateJSON, err := json.Marshal(serialized)
		if err != nil {
			return backup.Payload{}, fmt.Errorf("core: marshal session for %s: %w", peerID, err)
		}
		payload.Sessions[peerID] = backup.SessionEntry{
			State: base64.StdEncoding.EncodeToString(stateJSON),
			AD:    base64.StdEncoding.EncodeToString(serialized.AD[:]),
		}
	}

	for _, channelID := range channelIDs {
		if own, err := c.store.LoadOwnSenderKey(channelID); err == nil {
			payload.MySenderKeys[channelID] = senderKeyEntryFromState(own)
		}
		if distributed, err := c.store.IsDistributed(channelID); err == nil && distributed {
			payload.DistributedChannels = append(payload.DistributedChannels, channelID)
		}
		if peerID, err := c.store.LoadChannelPeer(channelID); err == nil {
			payload.ChannelPeerMap[channelID] = peerID
		}
	}

	return payload, nil
}

// sealPrivateKey base64-encodes plaintext for storage, or, if this
// client has a Vault IdentityWrapper configured, wraps it through the
// transit key first and stores the resulting ciphertext token as-is.
func (c *Client) sealPrivateKey(plaintext []byte) (string, error) {
	if c.wrapper == nil {
		return base64.StdEncoding.EncodeToString(plaintext), nil
	}
	return c.wrapper.Wrap(context.Background(), plaintext)
}

func senderKeyEntryFromState(s senderkey.State) backup.SenderKeyEntry {
	return backup.SenderKeyEntry{
		DistributionID: base64.StdEncoding.EncodeToString(s.DistributionID[:]),
		ChainKey:       base64.StdEncoding.EncodeToString(s.ChainKey[:]),
		ChainIndex:     s.ChainIndex,
	}
}

// RestoreFromBackup decrypts a backup blob and reinstalls every session
// and sender key it contains into this client's store. An empty
// passphrase falls back to the cached PassphraseCell value.
func (c *Client) RestoreFromBackup(ciphertext, nonce, salt []byte, passphrase string) error {
	if passphrase == "" {
		cached, ok := c.passphrase.Get()
		if !ok {
			return fmt.Errorf("core: no backup passphrase supplied or cached")
		}
		passphrase = cached
	}

	payload, err := backup.Decrypt(ciphertext, nonce, salt, passphrase)
	if err != nil {
		obs.BackupOperationsTotal.WithLabelValues("decrypt", "error").Inc()
		return err
	}
	obs.BackupOperationsTotal.WithLabelValues("decrypt", "ok").Inc()

	return c.InstallBackupPayload(payload)
}

// InstallBackupPayload reinstalls every session and sender key in an
// already-decrypted payload into this client's store. Callers that
// need the identity and signed prekey before they can even construct
// the Client (for example a CLI reloading an account from disk) should
// call DecodeBackup once and pass its payload here, instead of paying
// a second Argon2id derivation through RestoreFromBackup.
func (c *Client) InstallBackupPayload(payload backup.Payload) error {
	if payload.PreviousIdentity != nil {
		pub, err := base64.StdEncoding.DecodeString(payload.PreviousIdentity.PublicKey)
		if err != nil {
			return fmt.Errorf("core: decode previous identity public key: %w", err)
		}
		priv, err := openPrivateKey(payload.PreviousIdentity.PrivateKey, payload.PreviousIdentity.Wrapped, c.wrapper)
		if err != nil {
			return fmt.Errorf("core: open previous identity private key: %w", err)
		}
		if err := c.store.SaveIdentityTransition(pub, priv); err != nil {
			return err
		}
		c.dispatcher.SetPreviousIdentity(&keys.IdentityKeyPair{
			Public:  ed25519.PublicKey(pub),
			Private: ed25519.PrivateKey(priv),
		})
	}

	for peerID, entry := range payload.Sessions {
		stateJSON, err := base64.StdEncoding.DecodeString(entry.State)
		if err != nil {
			return fmt.Errorf("core: decode session for %s: %w", peerID, err)
		}
		var serialized ratchet.Serialized
		if err := json.Unmarshal(stateJSON, &serialized); err != nil {
			return fmt.Errorf("core: unmarshal session for %s: %w", peerID, err)
		}
		if err := c.store.DeletePairwiseSession(peerID); err != nil {
			return err
		}
		if err := c.store.SavePairwiseSession(peerID, serialized); err != nil {
			return err
		}
		c.trackPeer(peerID)
	}

	for channelID, entry := range payload.MySenderKeys {
		state, err := senderKeyStateFromEntry(entry)
		if err != nil {
			return fmt.Errorf("core: decode sender key for %s: %w", channelID, err)
		}
		if err := c.store.DeleteOwnSenderKey(channelID); err != nil {
			return err
		}
		if err := c.store.SaveOwnSenderKey(channelID, state); err != nil {
			return err
		}
		c.trackChannel(channelID)
	}

	for channelID, entry := range payload.ReceivedSenderKeys {
		state, err := senderKeyStateFromEntry(entry.Key)
		if err != nil {
			return fmt.Errorf("core: decode received sender key for %s/%s: %w", channelID, entry.FromUserID, err)
		}
		received := senderkey.ReceivedState(state)
		if err := c.store.DeleteReceivedSenderKey(channelID, entry.FromUserID); err != nil {
			return err
		}
		if err := c.store.SaveReceivedSenderKey(channelID, entry.FromUserID, received); err != nil {
			return err
		}
		c.trackChannel(channelID)
	}

	for _, channelID := range payload.DistributedChannels {
		if err := c.store.MarkDistributed(channelID); err != nil {
			return err
		}
	}

	for channelID, peerID := range payload.ChannelPeerMap {
		if err := c.store.SaveChannelPeer(channelID, peerID); err != nil {
			return err
		}
	}

	return nil
}

func senderKeyStateFromEntry(entry backup.SenderKeyEntry) (senderkey.State, error) {
	var state senderkey.State
	distID, err := base64.StdEncoding.DecodeString(entry.DistributionID)
	if err != nil {
		return state, err
	}
	chainKey, err := base64.StdEncoding.DecodeString(entry.ChainKey)
	if err != nil {
		return state, err
	}
	copy(state.DistributionID[:], distID)
	copy(state.ChainKey[:], chainKey)
	state.ChainIndex = entry.ChainIndex
	return state, nil
}

// DecodeBackup decrypts a backup blob and returns both the decoded
// payload and the identity/signed-prekey pair it carries, so a caller
// can build a Client with Restore and then hand the same payload to
// InstallBackupPayload without deriving the passphrase key twice.
// wrapper must be the same IdentityWrapper (transit key) the backup was
// created with if its private key material is marked Wrapped; pass nil
// when the backup was never wrapped.
func DecodeBackup(ciphertext, nonce, salt []byte, passphrase string, wrapper *store.IdentityWrapper) (backup.Payload, *keys.IdentityKeyPair, *keys.SignedPrekey, error) {
	payload, err := backup.Decrypt(ciphertext, nonce, salt, passphrase)
	if err != nil {
		return backup.Payload{}, nil, nil, err
	}
	identity, signedPrekey, err := identityFromPayload(payload, wrapper)
	if err != nil {
		return backup.Payload{}, nil, nil, err
	}
	return payload, identity, signedPrekey, nil
}

// openPrivateKey reverses sealPrivateKey: base64-decodes plaintext
// material, or unwraps a Vault transit ciphertext token through
// wrapper when the field is marked Wrapped.
func openPrivateKey(encoded string, wrapped bool, wrapper *store.IdentityWrapper) ([]byte, error) {
	if !wrapped {
		return base64.StdEncoding.DecodeString(encoded)
	}
	if wrapper == nil {
		return nil, fmt.Errorf("core: backup private key material is Vault-wrapped but no IdentityWrapper was supplied")
	}
	return wrapper.Unwrap(context.Background(), encoded)
}

func identityFromPayload(payload backup.Payload, wrapper *store.IdentityWrapper) (*keys.IdentityKeyPair, *keys.SignedPrekey, error) {
	pub, err := base64.StdEncoding.DecodeString(payload.Identity.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("core: decode identity public key: %w", err)
	}
	priv, err := openPrivateKey(payload.Identity.PrivateKey, payload.Identity.Wrapped, wrapper)
	if err != nil {
		return nil, nil, fmt.Errorf("core: open identity private key: %w", err)
	}
	spkPub, err := base64.StdEncoding.DecodeString(payload.SignedPrekey.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("core: decode signed prekey public key: %w", err)
	}
	spkPriv, err := openPrivateKey(payload.SignedPrekey.PrivateKey, payload.SignedPrekey.Wrapped, wrapper)
	if err != nil {
		return nil, nil, fmt.Errorf("core: open signed prekey private key: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(payload.SignedPrekey.Signature)
	if err != nil {
		return nil, nil, fmt.Errorf("core: decode signed prekey signature: %w", err)
	}

	identity := &keys.IdentityKeyPair{
		Public:  ed25519.PublicKey(pub),
		Private: ed25519.PrivateKey(priv),
	}
	var kp keys.DHKeyPair
	copy(kp.Public[:], spkPub)
	copy(kp.Private[:], spkPriv)
	signedPrekey := &keys.SignedPrekey{ID: signedPrekeyBackupID, KeyPair: &kp, Signature: sig}
	return identity, signedPrekey, nil
}
