// Package core wires identity, handshake, ratchet, sender-key, store,
// backup, and dispatch together into the single facade a caller embeds:
// one Client per local account, analogous to the teacher's Wire/App
// wiring of its domain services over its store layer.
package core

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/jaydenbeard/e2ecore/internal/backup"
	"github.com/jaydenbeard/e2ecore/internal/config"
	"github.com/jaydenbeard/e2ecore/internal/dispatch"
	"github.com/jaydenbeard/e2ecore/internal/keys"
	"github.com/jaydenbeard/e2ecore/internal/obs"
	"github.com/jaydenbeard/e2ecore/internal/ratchet"
	"github.com/jaydenbeard/e2ecore/internal/senderkey"
	"github.com/jaydenbeard/e2ecore/internal/store"
	"github.com/jaydenbeard/e2ecore/internal/x3dh"
)

// Client is one local account's end-to-end encryption surface: identity
// material, the session/key store, and the dispatcher that routes
// inbound bytes to the right component.
type Client struct {
	Identity     *keys.IdentityKeyPair
	SignedPrekey *keys.SignedPrekey

	store      store.Store
	dispatcher *dispatch.Dispatcher
	passphrase *backup.PassphraseCell
	wrapper    *store.IdentityWrapper

	// known tracks every peer id and channel id this account has ever
	// touched, since Store is a pure key-value lookup with no listing
	// operation. Backup assembly walks these sets to find what to save.
	known struct {
		mu       sync.Mutex
		peers    map[string]bool
		channels map[string]bool
	}

	// pendingHandshakes holds the X3DH identity+ephemeral prefix still
	// owed to a peer's first outbound pairwise envelope. SendPairwise
	// consumes and clears the entry on the next call for that peer.
	pendingHandshakes struct {
		mu     sync.Mutex
		prefix map[string][]byte
	}
}

func (c *Client) trackPeer(peerID string) {
	c.known.mu.Lock()
	defer c.known.mu.Unlock()
	c.known.peers[peerID] = true
}

func (c *Client) trackChannel(channelID string) {
	c.known.mu.Lock()
	defer c.known.mu.Unlock()
	c.known.channels[channelID] = true
}

// Option configures a Client at construction time.
type Option func(*clientOptions)

type clientOptions struct {
	fetchBundle dispatch.BundleFetcher
	wrapper     *store.IdentityWrapper
}

// WithBundleFetcher supplies the transport adapter Dispatch uses to
// lazily fetch a peer's prekey bundle when no session exists yet.
func WithBundleFetcher(fn dispatch.BundleFetcher) Option {
	return func(o *clientOptions) { o.fetchBundle = fn }
}

// WithIdentityWrapper wraps the stored identity private key through
// Vault's transit engine instead of keeping it in the clear.
func WithIdentityWrapper(w *store.IdentityWrapper) Option {
	return func(o *clientOptions) { o.wrapper = w }
}

// New creates a fresh account: a new identity key pair, a freshly
// signed prekey, and a Store selected by cfg.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	identity, err := keys.GenerateIdentity()
	if err != nil {
		return nil, fmt.Errorf("core: generate identity: %w", err)
	}
	signedPrekey, err := keys.GenerateSignedPrekey(1, identity.Private)
	if err != nil {
		return nil, fmt.Errorf("core: generate signed prekey: %w", err)
	}

	return newClient(identity, signedPrekey, st, opts...)
}

// Restore reconstructs a Client from an existing identity and signed
// prekey, for example after loading a backup.
func Restore(cfg *config.Config, identity *keys.IdentityKeyPair, signedPrekey *keys.SignedPrekey, opts ...Option) (*Client, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(identity, signedPrekey, st, opts...)
}

func newClient(identity *keys.IdentityKeyPair, signedPrekey *keys.SignedPrekey, st store.Store, opts ...Option) (*Client, error) {
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	d, err := dispatch.New(identity, signedPrekey, st, options.fetchBundle)
	if err != nil {
		return nil, err
	}

	c := &Client{
		Identity:     identity,
		SignedPrekey: signedPrekey,
		store:        st,
		dispatcher:   d,
		passphrase:   backup.NewPassphraseCell(),
		wrapper:      options.wrapper,
	}
	c.known.peers = make(map[string]bool)
	c.known.channels = make(map[string]bool)
	c.pendingHandshakes.prefix = make(map[string][]byte)

	if prevPub, prevPriv, transitionErr := st.LoadIdentityTransition(); transitionErr == nil {
		d.SetPreviousIdentity(&keys.IdentityKeyPair{
			Public:  ed25519.PublicKey(prevPub),
			Private: ed25519.PrivateKey(prevPriv),
		})
	}

	return c, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendSQLite:
		return store.NewSQLite(cfg.SQLitePath)
	case config.StoreBackendPostgres:
		return store.NewPostgres(cfg.PostgresURL)
	default:
		return store.NewMemory(), nil
	}
}

// GenerateOneTimePrekeys creates a fresh batch of one-time prekeys,
// registers them with the dispatcher, and returns them for upload to
// the server directory. The dispatcher's responder bootstrap does not
// use them: it always completes X3DH without a one-time prekey.
func (c *Client) GenerateOneTimePrekeys(n int, startID uint32) ([]*keys.OneTimePrekey, error) {
	otks, err := keys.GenerateOneTimePrekeys(n, startID)
	if err != nil {
		return nil, err
	}
	c.dispatcher.AddOneTimePrekeys(otks)
	return otks, nil
}

// Bundle returns this account's current prekey bundle, without
// consuming a one-time prekey — upload-side bundle assembly (which
// one-time prekey to offer next) is the caller's server-directory
// concern.
func (c *Client) Bundle() *keys.PrekeyBundle {
	return &keys.PrekeyBundle{
		IdentityPub:     c.Identity.Public,
		SignedPrekeyID:  c.SignedPrekey.ID,
		SignedPrekeyPub: c.SignedPrekey.KeyPair.Public,
		Signature:       c.SignedPrekey.Signature,
	}
}

// RotateSignedPrekey replaces the current signed prekey with a freshly
// generated, freshly signed one, per spec §3's "rotated periodically"
// guidance. The caller is responsible for re-uploading the new bundle
// to the directory; the dispatcher adopts the new prekey immediately so
// the next inbound handshake verifies against it.
func (c *Client) RotateSignedPrekey() (*keys.SignedPrekey, error) {
	next, err := keys.RotateSignedPrekey(c.SignedPrekey, c.Identity.Private)
	if err != nil {
		return nil, err
	}
	c.SignedPrekey = next
	c.dispatcher.UpdateSignedPrekey(next)
	return next, nil
}

// RotateIdentityKey replaces this account's long-term identity key pair
// with a freshly generated one, re-signing the current signed prekey's
// existing DH key pair under it (the DH key itself does not change, so
// a peer's already-fetched bundle still names a key this account still
// holds). The retired identity is persisted as a transition record
// (store.SaveIdentityTransition) and kept live in the dispatcher, so a
// peer who still addresses a handshake to the old identity can complete
// it instead of the session failing silently.
func (c *Client) RotateIdentityKey() (*keys.IdentityKeyPair, error) {
	newIdentity, err := keys.GenerateIdentity()
	if err != nil {
		return nil, fmt.Errorf("core: generate rotated identity: %w", err)
	}
	newSignedPrekey := keys.ResignPrekey(c.SignedPrekey, newIdentity.Private)
	if err := c.store.SaveIdentityTransition(c.Identity.Public, c.Identity.Private); err != nil {
		return nil, fmt.Errorf("core: save identity transition: %w", err)
	}

	previousIdentity := c.Identity
	c.Identity = newIdentity
	c.SignedPrekey = newSignedPrekey
	if err := c.dispatcher.RotateIdentity(newIdentity, newSignedPrekey, previousIdentity); err != nil {
		return nil, err
	}
	return newIdentity, nil
}

// StartPairwiseSession runs the initiator side of X3DH against a peer's
// bundle and persists the resulting ratchet session. The handshake
// prefix (this account's DH-form identity public plus the fresh
// ephemeral public) is stashed and automatically prepended by the next
// SendPairwise call for this peer, so the responder's dispatcher can
// bootstrap its side from that first envelope plus this account's
// identity key, which it obtains through its bundle fetcher.
func (c *Client) StartPairwiseSession(peerID string, peerBundle *keys.PrekeyBundle) error {
	result, ephemeral, err := x3dh.Initiate(c.Identity, peerBundle)
	if err != nil {
		return err
	}
	sess, err := ratchet.NewInitiator(result.SharedSecret, result.AD, peerBundle.SignedPrekeyPub)
	if err != nil {
		return err
	}
	if err := c.store.SavePairwiseSession(peerID, sess.Serialize()); err != nil {
		return err
	}

	identityDHPub, err := keys.ConvertPublic(c.Identity.Public)
	if err != nil {
		return err
	}
	prefix := make([]byte, 0, 64)
	prefix = append(prefix, identityDHPub...)
	prefix = append(prefix, ephemeral.Public[:]...)
	c.pendingHandshakes.mu.Lock()
	c.pendingHandshakes.prefix[peerID] = prefix
	c.pendingHandshakes.mu.Unlock()

	c.trackPeer(peerID)
	obs.X3DHHandshakesTotal.WithLabelValues("initiator").Inc()
	return nil
}

// SendPairwise encrypts plaintext for an established pairwise session,
// prepending the pending X3DH handshake prefix if this is the session's
// first outbound envelope.
func (c *Client) SendPairwise(peerID string, plaintext []byte) ([]byte, error) {
	serialized, err := c.store.LoadPairwiseSession(peerID)
	if err != nil {
		return nil, err
	}
	sess := ratchet.Deserialize(serialized)
	ciphertext, err := sess.Encrypt(plaintext)
	if err != nil {
		obs.RatchetMessagesTotal.WithLabelValues("send", "error").Inc()
		return nil, err
	}
	if err := c.store.DeletePairwiseSession(peerID); err != nil {
		return nil, err
	}
	if err := c.store.SavePairwiseSession(peerID, sess.Serialize()); err != nil {
		return nil, err
	}
	obs.RatchetMessagesTotal.WithLabelValues("send", "ok").Inc()

	c.pendingHandshakes.mu.Lock()
	prefix, pending := c.pendingHandshakes.prefix[peerID]
	if pending {
		delete(c.pendingHandshakes.prefix, peerID)
	}
	c.pendingHandshakes.mu.Unlock()

	wire := make([]byte, 0, 1+len(prefix)+len(ciphertext))
	wire = append(wire, dispatch.TypePairwise)
	wire = append(wire, prefix...)
	wire = append(wire, ciphertext...)
	return wire, nil
}

// ReceiveEnvelope routes one inbound envelope via the dispatcher.
func (c *Client) ReceiveEnvelope(senderID, channelID string, wire []byte) ([]byte, error) {
	plaintext, err := c.dispatcher.Dispatch(senderID, channelID, wire)
	if err == nil && len(wire) > 0 && wire[0] == dispatch.TypePairwise {
		c.trackPeer(senderID)
	}
	if err == nil && len(wire) > 0 && (wire[0] == dispatch.TypeSKDM || wire[0] == dispatch.TypeGroup) {
		c.trackChannel(channelID)
	}
	return plaintext, err
}

// CreateChannelSenderKey generates this account's sending sender key for
// a group channel, to be sealed and distributed to every member.
func (c *Client) CreateChannelSenderKey(channelID string) (*senderkey.State, error) {
	s, err := senderkey.New()
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveOwnSenderKey(channelID, *s); err != nil {
		return nil, err
	}
	c.trackChannel(channelID)
	obs.SenderKeyRotationsTotal.WithLabelValues(channelID).Inc()
	return s, nil
}

// RotateSenderKey replaces this account's sending sender key for a
// channel with a freshly generated one and clears the channel's
// distributed mark, so the caller knows to reseal and redistribute the
// new key to every remaining member. Unlike CreateChannelSenderKey,
// which establishes the first key for a channel, RotateSenderKey is the
// operation a membership change (a member leaving, or a scheduled
// rotation) should call: it never returns the key history, so a peer
// who is not resealed to is cryptographically locked out of future
// group traffic on this channel.
func (c *Client) RotateSenderKey(channelID string) (*senderkey.State, error) {
	s, err := senderkey.New()
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveOwnSenderKey(channelID, *s); err != nil {
		return nil, err
	}
	if err := c.store.ClearDistributed(channelID); err != nil {
		return nil, err
	}
	c.trackChannel(channelID)
	obs.SenderKeyRotationsTotal.WithLabelValues(channelID).Inc()
	return s, nil
}

// SealSenderKeyFor seals this account's current sender key for one
// recipient's DH-form identity public key.
func (c *Client) SealSenderKeyFor(channelID string, recipientIdentityPub ed25519.PublicKey) ([]byte, error) {
	s, err := c.store.LoadOwnSenderKey(channelID)
	if err != nil {
		return nil, err
	}
	recipientDHPub, err := keys.ConvertPublic(recipientIdentityPub)
	if err != nil {
		return nil, err
	}
	var recipientDHPubArr [32]byte
	copy(recipientDHPubArr[:], recipientDHPub)

	sealed, err := senderkey.Seal(senderkey.DistributionPayloadFor(&s), recipientDHPubArr)
	if err != nil {
		return nil, err
	}
	return append([]byte{dispatch.TypeSKDM}, sealed...), nil
}

// SendGroup encrypts plaintext on this account's channel sender key.
func (c *Client) SendGroup(channelID string, plaintext []byte) ([]byte, error) {
	s, err := c.store.LoadOwnSenderKey(channelID)
	if err != nil {
		return nil, err
	}
	frame, err := senderkey.Encrypt(&s, plaintext)
	if err != nil {
		obs.GroupMessagesTotal.WithLabelValues("send", "error").Inc()
		return nil, err
	}
	if err := c.store.SaveOwnSenderKey(channelID, s); err != nil {
		return nil, err
	}
	obs.GroupMessagesTotal.WithLabelValues("send", "ok").Inc()
	return frame, nil
}
