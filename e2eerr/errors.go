// Package e2eerr defines the sentinel errors surfaced by the e2ecore
// subsystems. Callers compare with errors.Is; none of these wrap key
// material.
package e2eerr

import "errors"

var (
	// ErrNotInitialized is returned when an operation requires a chain
	// that has not been derived yet (e.g. Encrypt before any DH ratchet).
	ErrNotInitialized = errors.New("e2ecore: chain not initialized")

	// ErrBadSignature is returned when a signed prekey's signature does
	// not verify against the advertised identity public key.
	ErrBadSignature = errors.New("e2ecore: signed prekey signature invalid")

	// ErrDecryptFailure is returned when an AEAD tag check fails. The
	// specific message is rejected; session state is left unchanged.
	ErrDecryptFailure = errors.New("e2ecore: decryption failed")

	// ErrTooManySkipped is returned when a required skip distance
	// exceeds the per-direction bound. The session is not poisoned.
	ErrTooManySkipped = errors.New("e2ecore: too many skipped messages")

	// ErrReplay is returned when an inbound group frame's chain index
	// is at or below the index of the last frame already consumed, i.e.
	// below the next index the received sender key expects.
	ErrReplay = errors.New("e2ecore: replayed or stale frame")

	// ErrDistributionMismatch is returned when a group frame's
	// distribution id differs from the installed received sender key.
	ErrDistributionMismatch = errors.New("e2ecore: distribution id mismatch")

	// ErrBadPassphrase is returned when a backup envelope's AEAD tag
	// check fails during decryption.
	ErrBadPassphrase = errors.New("e2ecore: incorrect backup passphrase")

	// ErrUnknownVersion is returned when a backup envelope's version
	// tag is not one this module understands.
	ErrUnknownVersion = errors.New("e2ecore: unknown backup version")

	// ErrMalformed is returned when wire bytes are too short or carry
	// an unrecognized leading type byte.
	ErrMalformed = errors.New("e2ecore: malformed wire data")

	// ErrNoSession is returned for inbound pairwise ciphertext when no
	// local session exists and no prekey bundle could be fetched.
	ErrNoSession = errors.New("e2ecore: no session and no reachable prekey bundle")

	// ErrSessionExists guards C6's invariant that a pairwise session
	// may never be silently overwritten by initialization.
	ErrSessionExists = errors.New("e2ecore: session already exists, delete first")

	// ErrNotFound is returned by store Load operations when no entity
	// exists under the given key.
	ErrNotFound = errors.New("e2ecore: entity not found in store")
)
