// Package primitives wraps the KDF and AEAD building blocks shared by
// the Double Ratchet (internal/ratchet) and sender-key (internal/senderkey)
// engines: HKDF-SHA256 chain derivations and XChaCha20-Poly1305 AEAD.
package primitives

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length in bytes of every root key, chain key, and
// message key this module derives.
const KeySize = 32

var (
	rootKDFInfo  = []byte("e2ecore|root-kdf")
	chainKDFInfo = []byte("e2ecore|chain-kdf")
)

// RootKDF implements the root-key KDF of spec §4.1: given the current
// root key and a fresh Diffie-Hellman output, it derives a new root key
// and the first chain key of the newly ratcheted chain. The two outputs
// are drawn from disjoint HKDF info strings so that leaking the chain
// key never reveals the next root key.
func RootKDF(rootKey, dhOutput []byte) (newRootKey, chainKey []byte) {
	r := hkdf.New(sha256.New, dhOutput, rootKey, rootKDFInfo)
	buf := make([]byte, 2*KeySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		// HKDF over a fixed-size SHA-256 output never fails to expand
		// 64 bytes; a failure here means the standard library broke.
		panic("e2ecore: root kdf expand failed: " + err.Error())
	}
	return buf[0:KeySize:KeySize], buf[KeySize : 2*KeySize : 2*KeySize]
}

// ChainKDF implements the chain-key KDF of spec §4.1: given a chain
// key, it derives the next chain key and a message key. The domain
// separation between "next chain" and "message" prevents a message key
// from being extended back into a chain.
func ChainKDF(chainKey []byte) (nextChainKey, messageKey []byte) {
	r := hkdf.New(sha256.New, chainKey, nil, chainKDFInfo)
	buf := make([]byte, 2*KeySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		panic("e2ecore: chain kdf expand failed: " + err.Error())
	}
	return buf[0:KeySize:KeySize], buf[KeySize : 2*KeySize : 2*KeySize]
}
