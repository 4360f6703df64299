package primitives

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jaydenbeard/e2ecore/e2eerr"
)

// NonceSize is the XChaCha20-Poly1305 nonce length used throughout this
// module. Nonces are always random, never counters — the 24-byte space
// makes random-nonce collision negligible even at high message volume.
const NonceSize = chacha20poly1305.NonceSizeX

// Seal encrypts and authenticates plaintext under key (which must be
// KeySize bytes), authenticating additionalData, and returns a fresh
// random nonce alongside the ciphertext.
func Seal(key, plaintext, additionalData []byte) (nonce, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, fmt.Errorf("primitives: new aead: %w", err)
	}
	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("primitives: generate nonce: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, additionalData)
	return nonce, ciphertext, nil
}

// Open decrypts and authenticates ciphertext under key and nonce,
// authenticating additionalData. A tag mismatch is reported as
// e2eerr.ErrDecryptFailure, never a raw crypto/cipher error, so callers
// never need to import the underlying AEAD package to compare errors.
func Open(key, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("primitives: new aead: %w", err)
	}
	if len(nonce) != NonceSize {
		return nil, e2eerr.ErrMalformed
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, e2eerr.ErrDecryptFailure
	}
	return plaintext, nil
}
