package ratchet

import (
	"encoding/binary"
	"fmt"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/primitives"
)

// HeaderSize is the fixed wire size of a Double Ratchet header: the
// sender's DH public key, the previous sending chain length, and the
// current message index.
const HeaderSize = 32 + 4 + 4

// Header accompanies every encrypted message and carries what the
// receiver needs to keep its receiving chain in lockstep.
type Header struct {
	DHPub       [32]byte
	PrevSendLen uint32
	N           uint32
}

// Bytes encodes the header in the fixed layout mixed into the AEAD
// associated data and the wire envelope.
func (h Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:32], h.DHPub[:])
	binary.LittleEndian.PutUint32(buf[32:36], h.PrevSendLen)
	binary.LittleEndian.PutUint32(buf[36:40], h.N)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, e2eerr.ErrMalformed
	}
	var h Header
	copy(h.DHPub[:], buf[0:32])
	h.PrevSendLen = binary.LittleEndian.Uint32(buf[32:36])
	h.N = binary.LittleEndian.Uint32(buf[36:40])
	return h, nil
}

// Envelope is a header plus the nonce and AEAD ciphertext, encoded in
// the canonical wire layout from the external-interfaces wire format.
type Envelope struct {
	Header     Header
	Nonce      []byte
	Ciphertext []byte
}

// Encode serializes the envelope: header || nonce || ciphertext+tag.
func (e Envelope) Encode() []byte {
	buf := make([]byte, 0, HeaderSize+len(e.Nonce)+len(e.Ciphertext))
	buf = append(buf, e.Header.Bytes()...)
	buf = append(buf, e.Nonce...)
	buf = append(buf, e.Ciphertext...)
	return buf
}

// DecodeEnvelope parses the canonical wire layout.
func DecodeEnvelope(buf []byte) (Envelope, error) {
	h, err := decodeHeader(buf)
	if err != nil {
		return Envelope{}, err
	}
	rest := buf[HeaderSize:]
	if len(rest) < primitives.NonceSize {
		return Envelope{}, fmt.Errorf("ratchet: envelope: %w", e2eerr.ErrMalformed)
	}
	nonce := append([]byte(nil), rest[:primitives.NonceSize]...)
	ciphertext := append([]byte(nil), rest[primitives.NonceSize:]...)
	return Envelope{Header: h, Nonce: nonce, Ciphertext: ciphertext}, nil
}

// buildAD prepends the session's X3DH associated-data blob to the
// header bytes, matching §4.4's "session AD followed by the header
// fields in a fixed layout".
func buildAD(sessionAD [64]byte, h Header) []byte {
	ad := make([]byte, 0, 64+HeaderSize)
	ad = append(ad, sessionAD[:]...)
	ad = append(ad, h.Bytes()...)
	return ad
}
