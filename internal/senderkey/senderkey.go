// Package senderkey implements the sender-key group encryption engine:
// one forward-advancing chain per sender per channel, fanned out to
// every member via a sealed distribution message instead of a pairwise
// Double Ratchet per recipient.
//
// The AEAD associated data of a group frame is the 16-byte distribution
// id only; the channel id and sender id are not bound into it. A frame
// delivered under a different channel still decrypts for any member
// that has the same distribution id installed.
package senderkey

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/primitives"
)

// FrameType is the leading byte identifying a sender-key group frame on
// the wire.
const FrameType = 0x03

// MaxSkip bounds how far a receiver will walk a chain to catch up to an
// inbound frame's chain index.
const MaxSkip = 256

// distributionIDSize and chainKeySize are the fixed field widths in
// both the wire frame and the SKDM payload.
const (
	distributionIDSize = 16
	chainKeySize       = 32
	frameHeaderSize    = 1 + distributionIDSize + 4
)

// State is the sending side of a sender key: the chain a channel member
// advances on every outbound group message.
type State struct {
	DistributionID [distributionIDSize]byte
	ChainKey       [chainKeySize]byte
	ChainIndex     uint32
}

// New creates a fresh sender key with a random 128-bit distribution id
// and a random initial chain key.
func New() (*State, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("senderkey: generate distribution id: %w", err)
	}
	var chainKey [chainKeySize]byte
	if _, err := rand.Read(chainKey[:]); err != nil {
		return nil, fmt.Errorf("senderkey: generate chain key: %w", err)
	}
	s := &State{ChainKey: chainKey}
	copy(s.DistributionID[:], id[:])
	return s, nil
}

// ReceivedState is the receiving side of one sender's key as installed
// by a channel member: tracks how far that member has consumed the
// sender's chain.
type ReceivedState struct {
	DistributionID [distributionIDSize]byte
	ChainKey       [chainKeySize]byte
	ChainIndex     uint32
}

// InstallFromDistribution creates a ReceivedState from an unsealed SKDM
// payload.
func InstallFromDistribution(p Payload) *ReceivedState {
	return &ReceivedState{
		DistributionID: p.DistributionID,
		ChainKey:       p.ChainKey,
		ChainIndex:     p.ChainIndex,
	}
}

// Encrypt advances the sending chain by one step and emits the frame.
// The pre-increment chain index goes on the wire, and the message key
// used is the one produced by that same step, so the receiver reads
// the same position the sender used.
func Encrypt(s *State, plaintext []byte) ([]byte, error) {
	nextChainKey, msgKey := primitives.ChainKDF(s.ChainKey[:])

	frame := make([]byte, 0, frameHeaderSize+primitives.NonceSize+len(plaintext)+16)
	frame = append(frame, FrameType)
	frame = append(frame, s.DistributionID[:]...)
	frame = appendUint32LE(frame, s.ChainIndex)

	nonce, ciphertext, err := primitives.Seal(msgKey, plaintext, s.DistributionID[:])
	if err != nil {
		return nil, fmt.Errorf("senderkey: encrypt: %w", err)
	}
	frame = append(frame, nonce...)
	frame = append(frame, ciphertext...)

	copy(s.ChainKey[:], nextChainKey)
	s.ChainIndex++
	return frame, nil
}

// Decrypt parses a wire frame, checks it against the given received
// state, and decrypts it. On success the received state is advanced
// past the frame's chain index; on AEAD failure it is left unchanged so
// a single corrupted frame cannot poison the chain.
func Decrypt(s *ReceivedState, frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderSize+primitives.NonceSize {
		return nil, e2eerr.ErrMalformed
	}
	if frame[0] != FrameType {
		return nil, e2eerr.ErrMalformed
	}
	var distID [distributionIDSize]byte
	copy(distID[:], frame[1:1+distributionIDSize])
	if distID != s.DistributionID {
		return nil, e2eerr.ErrDistributionMismatch
	}
	chainIndex := binary.LittleEndian.Uint32(frame[1+distributionIDSize : frameHeaderSize])

	rest := frame[frameHeaderSize:]
	nonce := rest[:primitives.NonceSize]
	ciphertext := rest[primitives.NonceSize:]

	steps := int64(chainIndex) - int64(s.ChainIndex)
	if steps < 0 {
		return nil, e2eerr.ErrReplay
	}
	if steps > MaxSkip {
		return nil, e2eerr.ErrTooManySkipped
	}

	chainKey := s.ChainKey
	var msgKey []byte
	for i := int64(0); i <= steps; i++ {
		var next []byte
		next, msgKey = primitives.ChainKDF(chainKey[:])
		copy(chainKey[:], next)
	}

	plaintext, err := primitives.Open(msgKey, nonce, ciphertext, distID[:])
	if err != nil {
		return nil, err
	}

	s.ChainKey = chainKey
	s.ChainIndex = chainIndex + 1
	return plaintext, nil
}

func appendUint32LE(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}
