package senderkey

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/keys"
	"github.com/jaydenbeard/e2ecore/internal/primitives"
)

// Payload is the unsealed contents of a sender-key distribution
// message: enough for a recipient to install a ReceivedState.
type Payload struct {
	DistributionID [distributionIDSize]byte
	ChainIndex     uint32
	ChainKey       [chainKeySize]byte
}

const payloadSize = distributionIDSize + 4 + chainKeySize

var skdmSealInfo = []byte("e2ecore|skdm-seal")

// EncodePayload serializes a Payload in the fixed 52-byte SKDM layout.
func EncodePayload(p Payload) []byte {
	buf := make([]byte, 0, payloadSize)
	buf = append(buf, p.DistributionID[:]...)
	buf = appendUint32LE(buf, p.ChainIndex)
	buf = append(buf, p.ChainKey[:]...)
	return buf
}

// DecodePayload parses the fixed 52-byte SKDM layout.
func DecodePayload(buf []byte) (Payload, error) {
	if len(buf) != payloadSize {
		return Payload{}, e2eerr.ErrMalformed
	}
	var p Payload
	copy(p.DistributionID[:], buf[0:distributionIDSize])
	p.ChainIndex = binary.LittleEndian.Uint32(buf[distributionIDSize : distributionIDSize+4])
	copy(p.ChainKey[:], buf[distributionIDSize+4:])
	return p, nil
}

// DistributionPayloadFor builds the Payload a sender distributes to a
// newly joined or existing member at the sender key's current position,
// per §4.5's "distributed at its current chain index" membership rule.
func DistributionPayloadFor(s *State) Payload {
	return Payload{
		DistributionID: s.DistributionID,
		ChainIndex:     s.ChainIndex,
		ChainKey:       s.ChainKey,
	}
}

// Seal encrypts an SKDM payload to a single recipient's DH-form
// identity public key using an ephemeral X25519 key pair, HKDF-SHA256
// key derivation, and the module's standard XChaCha20-Poly1305 AEAD —
// an X25519-based generalization of the sealed-sender one-shot box
// construction. The wire form is ephemeral_public(32) || nonce(24) ||
// ciphertext+tag.
func Seal(payload Payload, recipientDHPub [32]byte) ([]byte, error) {
	ephemeral, err := keys.GenerateDHKeyPair()
	if err != nil {
		return nil, fmt.Errorf("senderkey: seal: generate ephemeral: %w", err)
	}
	shared, err := keys.DH(ephemeral.Private, recipientDHPub)
	if err != nil {
		return nil, fmt.Errorf("senderkey: seal: dh: %w", err)
	}
	key, err := sealKey(shared, ephemeral.Public, recipientDHPub)
	if err != nil {
		return nil, err
	}

	plaintext := EncodePayload(payload)
	nonce, ciphertext, err := primitives.Seal(key, plaintext, ephemeral.Public[:])
	if err != nil {
		return nil, fmt.Errorf("senderkey: seal: %w", err)
	}

	out := make([]byte, 0, 32+primitives.NonceSize+len(ciphertext))
	out = append(out, ephemeral.Public[:]...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Unseal reverses Seal using the recipient's DH private key.
func Unseal(sealed []byte, recipientDHPriv, recipientDHPub [32]byte) (Payload, error) {
	if len(sealed) < 32+primitives.NonceSize {
		return Payload{}, e2eerr.ErrMalformed
	}
	var ephemeralPub [32]byte
	copy(ephemeralPub[:], sealed[:32])
	rest := sealed[32:]
	nonce := rest[:primitives.NonceSize]
	ciphertext := rest[primitives.NonceSize:]

	shared, err := keys.DH(recipientDHPriv, ephemeralPub)
	if err != nil {
		return Payload{}, fmt.Errorf("senderkey: unseal: dh: %w", err)
	}
	key, err := sealKey(shared, ephemeralPub, recipientDHPub)
	if err != nil {
		return Payload{}, err
	}

	plaintext, err := primitives.Open(key, nonce, ciphertext, ephemeralPub[:])
	if err != nil {
		return Payload{}, err
	}
	return DecodePayload(plaintext)
}

// sealKey derives the one-shot AEAD key for an SKDM envelope from the
// ECDH output, binding in both the ephemeral and recipient public keys
// so a key can never be reused across recipients or envelopes.
func sealKey(shared []byte, ephemeralPub, recipientPub [32]byte) ([]byte, error) {
	salt := make([]byte, 0, 64)
	salt = append(salt, ephemeralPub[:]...)
	salt = append(salt, recipientPub[:]...)

	r := hkdf.New(sha256.New, shared, salt, skdmSealInfo)
	key := make([]byte, primitives.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("senderkey: derive seal key: %w", err)
	}
	return key, nil
}
