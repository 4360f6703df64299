package keys

import (
	"crypto/ed25519"
	"crypto/sha512"
	"fmt"
	"math/big"
)

// ConvertPublic derives the X25519 Diffie-Hellman public key that
// corresponds to an Ed25519 identity public key, via the standard
// birational map between the twisted Edwards curve (Ed25519) and its
// Montgomery form (Curve25519):
//
//	u = (1 + y) / (1 - y)  (mod p),  p = 2^255 - 19
//
// where y is the Edwards y-coordinate encoded in the Ed25519 public key
// (the top bit of the last byte, which carries the sign of x, is not
// part of y and is masked off). No third-party library in this module's
// dependency set performs this conversion, so it is implemented directly
// with math/big; see DESIGN.md for why that is the one primitive built
// on the standard library rather than an imported curve package.
func ConvertPublic(pub ed25519.PublicKey) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keys: invalid ed25519 public key size %d", len(pub))
	}

	y := littleEndianToBigInt(pub, true)

	p := curve25519FieldPrime()
	one := big.NewInt(1)

	numerator := new(big.Int).Add(one, y)
	numerator.Mod(numerator, p)

	denominator := new(big.Int).Sub(one, y)
	denominator.Mod(denominator, p)

	denomInv := new(big.Int).ModInverse(denominator, p)
	if denomInv == nil {
		return nil, fmt.Errorf("keys: edwards point has no inverse (y=1), cannot convert")
	}

	u := new(big.Int).Mul(numerator, denomInv)
	u.Mod(u, p)

	return bigIntToLittleEndian(u, X25519PublicSize), nil
}

// ConvertPrivate derives the X25519 Diffie-Hellman private scalar that
// corresponds to an Ed25519 identity private key. EdDSA signs with the
// clamped scalar derived from SHA-512(seed)[0:32]; that same clamped
// scalar is, by construction of the birational map, the Montgomery
// private scalar whose public point is ConvertPublic's output. The
// upper half of the hash (the "prefix" used for deterministic nonces in
// EdDSA) plays no role here and is discarded.
func ConvertPrivate(priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keys: invalid ed25519 private key size %d", len(priv))
	}
	seed := priv.Seed()
	h := sha512.Sum512(seed)
	scalar := make([]byte, X25519PrivateSize)
	copy(scalar, h[:X25519PrivateSize])
	clamp(scalar)
	return scalar, nil
}

func clamp(k []byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

// curve25519FieldPrime returns 2^255 - 19.
func curve25519FieldPrime() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 255)
	p.Sub(p, big.NewInt(19))
	return p
}

// littleEndianToBigInt decodes a little-endian byte slice into a
// big.Int. When maskTopBit is true, the most-significant bit of the
// last byte (the Edwards sign bit) is cleared before decoding, as
// required to recover the bare y-coordinate from an Ed25519 encoding.
func littleEndianToBigInt(b []byte, maskTopBit bool) *big.Int {
	buf := make([]byte, len(b))
	copy(buf, b)
	if maskTopBit && len(buf) > 0 {
		buf[len(buf)-1] &= 0x7F
	}
	// big.Int.SetBytes expects big-endian input.
	reversed := make([]byte, len(buf))
	for i, v := range buf {
		reversed[len(buf)-1-i] = v
	}
	return new(big.Int).SetBytes(reversed)
}

// bigIntToLittleEndian encodes n into a little-endian byte slice of
// exactly size bytes, panicking if n does not fit (it always fits here:
// both operands are reduced mod the field prime before encoding).
func bigIntToLittleEndian(n *big.Int, size int) []byte {
	be := n.Bytes()
	if len(be) > size {
		panic("keys: field element does not fit in expected size")
	}
	out := make([]byte, size)
	for i, v := range be {
		out[len(be)-1-i] = v
	}
	return out
}
