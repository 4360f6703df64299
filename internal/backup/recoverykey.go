package backup

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// recoveryKeyEntropyBytes is 160 bits, encoding to exactly 32 base32
// characters.
const recoveryKeyEntropyBytes = 20

// GenerateRecoveryKey produces a 160-bit random recovery code, encoded
// as base32 in five-character groups separated by hyphens, usable as an
// alternative passphrase input to the same Argon2id derivation Encrypt
// and Decrypt use. No library in this module's dependency set performs
// this narrow grouped-encoding task, so it is built on the standard
// library's encoding/base32 directly.
func GenerateRecoveryKey() (string, error) {
	entropy := make([]byte, recoveryKeyEntropyBytes)
	if _, err := rand.Read(entropy); err != nil {
		return "", fmt.Errorf("backup: generate recovery key entropy: %w", err)
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(entropy)

	var groups []string
	for i := 0; i < len(encoded); i += 5 {
		end := i + 5
		if end > len(encoded) {
			end = len(encoded)
		}
		groups = append(groups, encoded[i:end])
	}
	return strings.Join(groups, "-"), nil
}
