package backup

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/jaydenbeard/e2ecore/e2eerr"
)

// Argon2id parameters fixed by §4.7: time=3, memory=64 MiB,
// parallelism=1, 32-byte output.
const (
	saltSize       = 16
	nonceSize      = 24
	argonTime      = 3
	argonMemoryKiB = 64 * 1024
	argonThreads   = 1
	keySize        = 32
)

func deriveKey(passphrase string, salt []byte) [32]byte {
	k := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemoryKiB, argonThreads, keySize)
	var out [32]byte
	copy(out[:], k)
	return out
}

// Encrypt serializes payload and seals it with a key derived from
// passphrase. The caller must persist ciphertext, nonce, and salt
// together; all three are required to restore.
func Encrypt(payload Payload, passphrase string) (ciphertext, nonce, salt []byte, err error) {
	if payload.Version == 0 {
		payload.Version = CurrentVersion
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("backup: marshal payload: %w", err)
	}

	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, nil, fmt.Errorf("backup: generate salt: %w", err)
	}
	var nonceArr [nonceSize]byte
	if _, err := rand.Read(nonceArr[:]); err != nil {
		return nil, nil, nil, fmt.Errorf("backup: generate nonce: %w", err)
	}

	key := deriveKey(passphrase, salt)
	ciphertext = secretbox.Seal(nil, plaintext, &nonceArr, &key)
	return ciphertext, nonceArr[:], salt, nil
}

// Decrypt reverses Encrypt. A tag-check failure is the only
// authentication signal and is reported as e2eerr.ErrBadPassphrase;
// there is no separate password-check path. A payload whose version
// tag is not CurrentVersion is rejected even though it decrypted.
func Decrypt(ciphertext, nonce, salt []byte, passphrase string) (Payload, error) {
	if len(nonce) != nonceSize {
		return Payload{}, e2eerr.ErrMalformed
	}
	var nonceArr [nonceSize]byte
	copy(nonceArr[:], nonce)

	key := deriveKey(passphrase, salt)
	plaintext, ok := secretbox.Open(nil, ciphertext, &nonceArr, &key)
	if !ok {
		return Payload{}, e2eerr.ErrBadPassphrase
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return Payload{}, fmt.Errorf("backup: unmarshal payload: %w", err)
	}
	if payload.Version != CurrentVersion {
		return Payload{}, e2eerr.ErrUnknownVersion
	}
	return payload, nil
}
