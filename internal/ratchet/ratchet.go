// Package ratchet implements the Double Ratchet session machine: the
// combined DH-ratchet and symmetric-chain ratchet that gives a pairwise
// session forward secrecy and post-compromise recovery after X3DH has
// produced the initial shared secret.
package ratchet

import (
	"fmt"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/keys"
	"github.com/jaydenbeard/e2ecore/internal/obs"
	"github.com/jaydenbeard/e2ecore/internal/primitives"
)

// State names the session's lifecycle stage. Sessions never go
// backwards except into Poisoned, which is terminal.
type State int

const (
	Uninitialized State = iota
	InitiatorPreFirstRecv
	ResponderPreFirstSend
	Established
	Poisoned
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case InitiatorPreFirstRecv:
		return "INITIATOR_PRE_FIRST_RECV"
	case ResponderPreFirstSend:
		return "RESPONDER_PRE_FIRST_SEND"
	case Established:
		return "ESTABLISHED"
	case Poisoned:
		return "POISONED"
	default:
		return "UNKNOWN"
	}
}

// MaxSkip is the maximum number of message keys the skipped-key cache
// retains per direction before older entries are evicted, and the
// maximum single skip distance a decrypt call will walk.
const MaxSkip = 256

type skippedEntry struct {
	dhPub [32]byte
	n     uint32
	key   []byte
}

// Session is a single pairwise Double Ratchet session.
type Session struct {
	state State

	dhSend *keys.DHKeyPair
	dhRecv *[32]byte

	rootKey    [32]byte
	chainSend  *[32]byte
	chainRecv  *[32]byte
	sendIndex  uint32
	recvIndex  uint32
	prevSendLn uint32

	ad      [64]byte
	skipped []skippedEntry
}

// State reports the session's current lifecycle stage.
func (s *Session) State() State { return s.state }

// NewInitiator starts a session as the X3DH initiator: the signed
// prekey the handshake used becomes the peer's first remote DH, and a
// fresh sending DH key pair is generated immediately so the first
// outbound message already carries a new ratchet header.
func NewInitiator(sharedSecret [32]byte, ad [64]byte, peerSignedPrekeyPub [32]byte) (*Session, error) {
	sendKP, err := keys.GenerateDHKeyPair()
	if err != nil {
		return nil, fmt.Errorf("ratchet: new initiator: %w", err)
	}
	dh, err := keys.DH(sendKP.Private, peerSignedPrekeyPub)
	if err != nil {
		return nil, fmt.Errorf("ratchet: new initiator dh: %w", err)
	}
	newRoot, chainSend := primitives.RootKDF(sharedSecret[:], dh)

	s := &Session{
		state:  InitiatorPreFirstRecv,
		dhSend: sendKP,
		dhRecv: &peerSignedPrekeyPub,
		ad:     ad,
	}
	copy(s.rootKey[:], newRoot)
	var cs [32]byte
	copy(cs[:], chainSend)
	s.chainSend = &cs
	return s, nil
}

// NewResponder starts a session as the X3DH responder: the root key is
// seeded directly from the shared secret and the signed-prekey key pair
// becomes the current sending DH. No chain keys exist yet; they are
// derived on the first inbound message's DH ratchet step.
func NewResponder(sharedSecret [32]byte, ad [64]byte, signedPrekeyPair *keys.DHKeyPair) (*Session, error) {
	s := &Session{
		state:  ResponderPreFirstSend,
		dhSend: signedPrekeyPair,
		ad:     ad,
	}
	copy(s.rootKey[:], sharedSecret[:])
	return s, nil
}

// DHPublic returns the session's current sending DH public key, the
// value a peer needs to address a reply to.
func (s *Session) DHPublic() [32]byte { return s.dhSend.Public }

// Encrypt advances the sending chain and returns the wire-encoded
// envelope. Requires a live sending chain.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	if s.state == Poisoned {
		return nil, e2eerr.ErrNotInitialized
	}
	if s.chainSend == nil {
		return nil, e2eerr.ErrNotInitialized
	}

	nextChain, msgKey := primitives.ChainKDF(s.chainSend[:])

	header := Header{
		DHPub:       s.dhSend.Public,
		PrevSendLen: s.prevSendLn,
		N:           s.sendIndex,
	}
	ad := buildAD(s.ad, header)

	nonce, ciphertext, err := primitives.Seal(msgKey, plaintext, ad)
	if err != nil {
		return nil, fmt.Errorf("ratchet: encrypt: %w", err)
	}

	var cs [32]byte
	copy(cs[:], nextChain)
	s.chainSend = &cs
	s.sendIndex++

	env := Envelope{Header: header, Nonce: nonce, Ciphertext: ciphertext}
	s.updateState()
	return env.Encode(), nil
}

// Decrypt parses and decrypts a wire-encoded envelope, performing a DH
// ratchet step and/or walking skipped receiving-chain keys as needed.
// On AEAD failure or TooManySkipped, the session state is left
// unchanged and the message is simply dropped; malformed input poisons
// the session.
func (s *Session) Decrypt(wire []byte) ([]byte, error) {
	if s.state == Poisoned {
		return nil, e2eerr.ErrMalformed
	}
	obs.SkippedKeyCacheDepth.Observe(float64(len(s.skipped)))

	env, err := DecodeEnvelope(wire)
	if err != nil {
		s.state = Poisoned
		return nil, err
	}

	if key, idx, found := s.findSkipped(env.Header.DHPub, env.Header.N); found {
		ad := buildAD(s.ad, env.Header)
		plaintext, err := primitives.Open(key, env.Nonce, env.Ciphertext, ad)
		if err != nil {
			return nil, err
		}
		s.removeSkipped(idx)
		return plaintext, nil
	}

	tmp := s.clone()

	needsRatchet := tmp.dhRecv == nil || *tmp.dhRecv != env.Header.DHPub
	if needsRatchet {
		if err := tmp.skip(env.Header.PrevSendLen); err != nil {
			return nil, err
		}
		if err := tmp.dhRatchet(env.Header.DHPub); err != nil {
			return nil, fmt.Errorf("ratchet: decrypt: %w", err)
		}
	}

	if err := tmp.skip(env.Header.N); err != nil {
		return nil, err
	}

	nextChain, msgKey := primitives.ChainKDF(tmp.chainRecv[:])
	var cr [32]byte
	copy(cr[:], nextChain)
	tmp.chainRecv = &cr
	tmp.recvIndex++

	ad := buildAD(s.ad, env.Header)
	plaintext, err := primitives.Open(msgKey, env.Nonce, env.Ciphertext, ad)
	if err != nil {
		return nil, err
	}

	*s = *tmp
	s.updateState()
	return plaintext, nil
}

// skip derives and caches receiving-chain message keys for positions
// [recvIndex, until), honoring the 256-key bound. If the chain has not
// been derived yet (tmp.chainRecv == nil) there is nothing to skip.
func (s *Session) skip(until uint32) error {
	if s.chainRecv == nil {
		return nil
	}
	if until < s.recvIndex {
		return nil
	}
	if until-s.recvIndex > MaxSkip {
		return e2eerr.ErrTooManySkipped
	}
	for s.recvIndex < until {
		nextChain, msgKey := primitives.ChainKDF(s.chainRecv[:])
		var cr [32]byte
		copy(cr[:], nextChain)
		s.addSkipped(skippedEntry{dhPub: *s.dhRecv, n: s.recvIndex, key: msgKey})
		s.chainRecv = &cr
		s.recvIndex++
	}
	return nil
}

// dhRatchet performs a DH ratchet step: it saves the current send
// index, resets both indices, adopts the new remote DH, and derives
// fresh receiving and sending chains.
func (s *Session) dhRatchet(newRemoteDH [32]byte) error {
	s.prevSendLn = s.sendIndex
	s.sendIndex = 0
	s.recvIndex = 0
	s.dhRecv = &newRemoteDH

	dh1, err := keys.DH(s.dhSend.Private, *s.dhRecv)
	if err != nil {
		return fmt.Errorf("dh ratchet recv: %w", err)
	}
	newRoot, chainRecv := primitives.RootKDF(s.rootKey[:], dh1)
	copy(s.rootKey[:], newRoot)
	var cr [32]byte
	copy(cr[:], chainRecv)
	s.chainRecv = &cr

	newSendKP, err := keys.GenerateDHKeyPair()
	if err != nil {
		return fmt.Errorf("dh ratchet generate: %w", err)
	}
	s.dhSend = newSendKP

	dh2, err := keys.DH(s.dhSend.Private, *s.dhRecv)
	if err != nil {
		return fmt.Errorf("dh ratchet send: %w", err)
	}
	newRoot2, chainSend := primitives.RootKDF(s.rootKey[:], dh2)
	copy(s.rootKey[:], newRoot2)
	var cs [32]byte
	copy(cs[:], chainSend)
	s.chainSend = &cs

	return nil
}

func (s *Session) findSkipped(dhPub [32]byte, n uint32) ([]byte, int, bool) {
	for i, e := range s.skipped {
		if e.dhPub == dhPub && e.n == n {
			return e.key, i, true
		}
	}
	return nil, 0, false
}

func (s *Session) removeSkipped(idx int) {
	s.skipped = append(s.skipped[:idx], s.skipped[idx+1:]...)
}

func (s *Session) addSkipped(e skippedEntry) {
	s.skipped = append(s.skipped, e)
	if len(s.skipped) > MaxSkip {
		s.skipped = s.skipped[1:]
	}
}

func (s *Session) clone() *Session {
	c := &Session{
		state:      s.state,
		dhSend:     s.dhSend,
		rootKey:    s.rootKey,
		sendIndex:  s.sendIndex,
		recvIndex:  s.recvIndex,
		prevSendLn: s.prevSendLn,
		ad:         s.ad,
		skipped:    append([]skippedEntry(nil), s.skipped...),
	}
	if s.dhRecv != nil {
		v := *s.dhRecv
		c.dhRecv = &v
	}
	if s.chainSend != nil {
		v := *s.chainSend
		c.chainSend = &v
	}
	if s.chainRecv != nil {
		v := *s.chainRecv
		c.chainRecv = &v
	}
	return c
}

func (s *Session) updateState() {
	if s.state == Poisoned {
		return
	}
	if s.chainSend != nil && s.chainRecv != nil {
		s.state = Established
	}
}
