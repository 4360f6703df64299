package store

import (
	"sync"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/ratchet"
	"github.com/jaydenbeard/e2ecore/internal/senderkey"
)

// Memory is an in-memory Store, used in tests and as the default when
// no persistent backend is configured.
type Memory struct {
	mu sync.Mutex

	sessions     map[string]ratchet.Serialized
	ownKeys      map[string]senderkey.State
	receivedKeys map[string]senderkey.ReceivedState
	distributed  map[string]bool
	channelPeers map[string]string

	identityTransitionPub  []byte
	identityTransitionPriv []byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions:     make(map[string]ratchet.Serialized),
		ownKeys:      make(map[string]senderkey.State),
		receivedKeys: make(map[string]senderkey.ReceivedState),
		distributed:  make(map[string]bool),
		channelPeers: make(map[string]string),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) SavePairwiseSession(peerID string, session ratchet.Serialized) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[peerID]; exists {
		return e2eerr.ErrSessionExists
	}
	m.sessions[peerID] = session
	return nil
}

func (m *Memory) LoadPairwiseSession(peerID string) (ratchet.Serialized, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[peerID]
	if !ok {
		return ratchet.Serialized{}, e2eerr.ErrNotFound
	}
	return s, nil
}

func (m *Memory) DeletePairwiseSession(peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, peerID)
	return nil
}

func (m *Memory) SaveOwnSenderKey(channelID string, state senderkey.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownKeys[channelID] = state
	return nil
}

func (m *Memory) LoadOwnSenderKey(channelID string) (senderkey.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.ownKeys[channelID]
	if !ok {
		return senderkey.State{}, e2eerr.ErrNotFound
	}
	return s, nil
}

func (m *Memory) DeleteOwnSenderKey(channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ownKeys, channelID)
	return nil
}

func (m *Memory) SaveReceivedSenderKey(channelID, senderID string, state senderkey.ReceivedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receivedKeys[receivedKey(channelID, senderID)] = state
	return nil
}

func (m *Memory) LoadReceivedSenderKey(channelID, senderID string) (senderkey.ReceivedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.receivedKeys[receivedKey(channelID, senderID)]
	if !ok {
		return senderkey.ReceivedState{}, e2eerr.ErrNotFound
	}
	return s, nil
}

func (m *Memory) DeleteReceivedSenderKey(channelID, senderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.receivedKeys, receivedKey(channelID, senderID))
	return nil
}

func (m *Memory) MarkDistributed(channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.distributed[channelID] = true
	return nil
}

func (m *Memory) IsDistributed(channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.distributed[channelID], nil
}

func (m *Memory) ClearDistributed(channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.distributed, channelID)
	return nil
}

func (m *Memory) SaveChannelPeer(channelID, peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelPeers[channelID] = peerID
	return nil
}

func (m *Memory) LoadChannelPeer(channelID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	peerID, ok := m.channelPeers[channelID]
	if !ok {
		return "", e2eerr.ErrNotFound
	}
	return peerID, nil
}

func (m *Memory) SaveIdentityTransition(previousPub, previousPriv []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identityTransitionPub = append([]byte(nil), previousPub...)
	m.identityTransitionPriv = append([]byte(nil), previousPriv...)
	return nil
}

func (m *Memory) LoadIdentityTransition() (pub, priv []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identityTransitionPub == nil {
		return nil, nil, e2eerr.ErrNotFound
	}
	return m.identityTransitionPub, m.identityTransitionPriv, nil
}

func receivedKey(channelID, senderID string) string {
	return channelID + "\x00" + senderID
}
