package ratchet

import "github.com/jaydenbeard/e2ecore/internal/keys"

// SkippedKey is one exported entry of the skipped-key cache, keyed by
// the remote DH public that was live when the key was derived and the
// chain position it corresponds to.
type SkippedKey struct {
	DHPub [32]byte
	N     uint32
	Key   []byte
}

// Serialized is the flat, storage-ready form of a Session named by
// §4.4: round-tripping through Serialize/Deserialize must produce a
// session that is observationally identical for every subsequent
// encrypt/decrypt call.
type Serialized struct {
	State State

	DHSendPrivate [32]byte
	DHSendPublic  [32]byte
	DHRecv        *[32]byte

	RootKey   [32]byte
	ChainSend *[32]byte
	ChainRecv *[32]byte

	SendIndex   uint32
	RecvIndex   uint32
	PrevSendLen uint32

	AD      [64]byte
	Skipped []SkippedKey
}

// Serialize captures the session's full state.
func (s *Session) Serialize() Serialized {
	out := Serialized{
		State:       s.state,
		RootKey:     s.rootKey,
		SendIndex:   s.sendIndex,
		RecvIndex:   s.recvIndex,
		PrevSendLen: s.prevSendLn,
		AD:          s.ad,
	}
	out.DHSendPrivate = s.dhSend.Private
	out.DHSendPublic = s.dhSend.Public
	if s.dhRecv != nil {
		v := *s.dhRecv
		out.DHRecv = &v
	}
	if s.chainSend != nil {
		v := *s.chainSend
		out.ChainSend = &v
	}
	if s.chainRecv != nil {
		v := *s.chainRecv
		out.ChainRecv = &v
	}
	out.Skipped = make([]SkippedKey, len(s.skipped))
	for i, e := range s.skipped {
		out.Skipped[i] = SkippedKey{DHPub: e.dhPub, N: e.n, Key: append([]byte(nil), e.key...)}
	}
	return out
}

// Deserialize reconstructs a Session from its flat form.
func Deserialize(in Serialized) *Session {
	s := &Session{
		state:      in.State,
		rootKey:    in.RootKey,
		sendIndex:  in.SendIndex,
		recvIndex:  in.RecvIndex,
		prevSendLn: in.PrevSendLen,
		ad:         in.AD,
	}
	s.dhSend = &keys.DHKeyPair{Private: in.DHSendPrivate, Public: in.DHSendPublic}
	if in.DHRecv != nil {
		v := *in.DHRecv
		s.dhRecv = &v
	}
	if in.ChainSend != nil {
		v := *in.ChainSend
		s.chainSend = &v
	}
	if in.ChainRecv != nil {
		v := *in.ChainRecv
		s.chainRecv = &v
	}
	s.skipped = make([]skippedEntry, len(in.Skipped))
	for i, e := range in.Skipped {
		s.skipped[i] = skippedEntry{dhPub: e.DHPub, n: e.N, key: append([]byte(nil), e.Key...)}
	}
	return s
}
