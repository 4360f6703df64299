package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jaydenbeard/e2ecore/e2eerr"
	"github.com/jaydenbeard/e2ecore/internal/ratchet"
	"github.com/jaydenbeard/e2ecore/internal/senderkey"
)

// sqlStore is a database/sql-backed Store shared by the SQLite and
// Postgres constructors below; only the placeholder style and driver
// name differ between them.
type sqlStore struct {
	db          *sql.DB
	placeholder func(n int) string
}

const schema = `
CREATE TABLE IF NOT EXISTS pairwise_sessions (
	peer_id TEXT PRIMARY KEY,
	state BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS own_sender_keys (
	channel_id TEXT PRIMARY KEY,
	state BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS received_sender_keys (
	channel_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	state BLOB NOT NULL,
	PRIMARY KEY (channel_id, sender_id)
);
CREATE TABLE IF NOT EXISTS distributed_channels (
	channel_id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS channel_peers (
	channel_id TEXT PRIMARY KEY,
	peer_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS identity_transition (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	previous_pub BLOB NOT NULL,
	previous_priv BLOB NOT NULL
);
`

func newSQLStore(db *sql.DB, placeholder func(n int) string) (*sqlStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &sqlStore{db: db, placeholder: placeholder}, nil
}

var _ Store = (*sqlStore)(nil)

func (s *sqlStore) ph(n int) string { return s.placeholder(n) }

func (s *sqlStore) SavePairwiseSession(peerID string, session ratchet.Serialized) error {
	var existing int
	row := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM pairwise_sessions WHERE peer_id = %s", s.ph(1)), peerID)
	if err := row.Scan(&existing); err != nil {
		return fmt.Errorf("store: check existing session: %w", err)
	}
	if existing > 0 {
		return e2eerr.ErrSessionExists
	}

	blob, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("store: marshal session: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO pairwise_sessions (peer_id, state) VALUES (%s, %s)", s.ph(1), s.ph(2))
	_, err = s.db.Exec(q, peerID, blob)
	if err != nil {
		return fmt.Errorf("store: save session: %w", err)
	}
	return nil
}

func (s *sqlStore) LoadPairwiseSession(peerID string) (ratchet.Serialized, error) {
	var blob []byte
	q := fmt.Sprintf("SELECT state FROM pairwise_sessions WHERE peer_id = %s", s.ph(1))
	err := s.db.QueryRow(q, peerID).Scan(&blob)
	if err == sql.ErrNoRows {
		return ratchet.Serialized{}, e2eerr.ErrNotFound
	}
	if err != nil {
		return ratchet.Serialized{}, fmt.Errorf("store: load session: %w", err)
	}
	var out ratchet.Serialized
	if err := json.Unmarshal(blob, &out); err != nil {
		return ratchet.Serialized{}, fmt.Errorf("store: unmarshal session: %w", err)
	}
	return out, nil
}

func (s *sqlStore) DeletePairwiseSession(peerID string) error {
	q := fmt.Sprintf("DELETE FROM pairwise_sessions WHERE peer_id = %s", s.ph(1))
	_, err := s.db.Exec(q, peerID)
	if err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}

func (s *sqlStore) SaveOwnSenderKey(channelID string, state senderkey.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: marshal own sender key: %w", err)
	}
	q := fmt.Sprintf(
		"INSERT INTO own_sender_keys (channel_id, state) VALUES (%s, %s) ON CONFLICT (channel_id) DO UPDATE SET state = excluded.state",
		s.ph(1), s.ph(2))
	if _, err := s.db.Exec(q, channelID, blob); err != nil {
		return fmt.Errorf("store: save own sender key: %w", err)
	}
	return nil
}

func (s *sqlStore) LoadOwnSenderKey(channelID string) (senderkey.State, error) {
	var blob []byte
	q := fmt.Sprintf("SELECT state FROM own_sender_keys WHERE channel_id = %s", s.ph(1))
	err := s.db.QueryRow(q, channelID).Scan(&blob)
	if err == sql.ErrNoRows {
		return senderkey.State{}, e2eerr.ErrNotFound
	}
	if err != nil {
		return senderkey.State{}, fmt.Errorf("store: load own sender key: %w", err)
	}
	var out senderkey.State
	if err := json.Unmarshal(blob, &out); err != nil {
		return senderkey.State{}, fmt.Errorf("store: unmarshal own sender key: %w", err)
	}
	return out, nil
}

func (s *sqlStore) DeleteOwnSenderKey(channelID string) error {
	q := fmt.Sprintf("DELETE FROM own_sender_keys WHERE channel_id = %s", s.ph(1))
	_, err := s.db.Exec(q, channelID)
	return err
}

func (s *sqlStore) SaveReceivedSenderKey(channelID, senderID string, state senderkey.ReceivedState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: marshal received sender key: %w", err)
	}
	q := fmt.Sprintf(
		"INSERT INTO received_sender_keys (channel_id, sender_id, state) VALUES (%s, %s, %s) ON CONFLICT (channel_id, sender_id) DO UPDATE SET state = excluded.state",
		s.ph(1), s.ph(2), s.ph(3))
	if _, err := s.db.Exec(q, channelID, senderID, blob); err != nil {
		return fmt.Errorf("store: save received sender key: %w", err)
	}
	return nil
}

func (s *sqlStore) LoadReceivedSenderKey(channelID, senderID string) (senderkey.ReceivedState, error) {
	var blob []byte
	q := fmt.Sprintf("SELECT state FROM received_sender_keys WHERE channel_id = %s AND sender_id = %s", s.ph(1), s.ph(2))
	err := s.db.QueryRow(q, channelID, senderID).Scan(&blob)
	if err == sql.ErrNoRows {
		return senderkey.ReceivedState{}, e2eerr.ErrNotFound
	}
	if err != nil {
		return senderkey.ReceivedState{}, fmt.Errorf("store: load received sender key: %w", err)
	}
	var out senderkey.ReceivedState
	if err := json.Unmarshal(blob, &out); err != nil {
		return senderkey.ReceivedState{}, fmt.Errorf("store: unmarshal received sender key: %w", err)
	}
	return out, nil
}

func (s *sqlStore) DeleteReceivedSenderKey(channelID, senderID string) error {
	q := fmt.Sprintf("DELETE FROM received_sender_keys WHERE channel_id = %s AND sender_id = %s", s.ph(1), s.ph(2))
	_, err := s.db.Exec(q, channelID, senderID)
	return err
}

func (s *sqlStore) MarkDistributed(channelID string) error {
	q := fmt.Sprintf("INSERT INTO distributed_channels (channel_id) VALUES (%s) ON CONFLICT (channel_id) DO NOTHING", s.ph(1))
	_, err := s.db.Exec(q, channelID)
	return err
}

func (s *sqlStore) IsDistributed(channelID string) (bool, error) {
	var count int
	q := fmt.Sprintf("SELECT COUNT(*) FROM distributed_channels WHERE channel_id = %s", s.ph(1))
	if err := s.db.QueryRow(q, channelID).Scan(&count); err != nil {
		return false, fmt.Errorf("store: check distributed: %w", err)
	}
	return count > 0, nil
}

func (s *sqlStore) ClearDistributed(channelID string) error {
	q := fmt.Sprintf("DELETE FROM distributed_channels WHERE channel_id = %s", s.ph(1))
	_, err := s.db.Exec(q, channelID)
	return err
}

func (s *sqlStore) SaveChannelPeer(channelID, peerID string) error {
	q := fmt.Sprintf(
		"INSERT INTO channel_peers (channel_id, peer_id) VALUES (%s, %s) ON CONFLICT (channel_id) DO UPDATE SET peer_id = excluded.peer_id",
		s.ph(1), s.ph(2))
	_, err := s.db.Exec(q, channelID, peerID)
	return err
}

func (s *sqlStore) LoadChannelPeer(channelID string) (string, error) {
	var peerID string
	q := fmt.Sprintf("SELECT peer_id FROM channel_peers WHERE channel_id = %s", s.ph(1))
	err := s.db.QueryRow(q, channelID).Scan(&peerID)
	if err == sql.ErrNoRows {
		return "", e2eerr.ErrNotFound
	}
	return peerID, err
}

func (s *sqlStore) SaveIdentityTransition(previousPub, previousPriv []byte) error {
	q := fmt.Sprintf(
		"INSERT INTO identity_transition (id, previous_pub, previous_priv) VALUES (1, %s, %s) ON CONFLICT (id) DO UPDATE SET previous_pub = excluded.previous_pub, previous_priv = excluded.previous_priv",
		s.ph(1), s.ph(2))
	_, err := s.db.Exec(q, previousPub, previousPriv)
	return err
}

func (s *sqlStore) LoadIdentityTransition() (pub, priv []byte, err error) {
	row := s.db.QueryRow("SELECT previous_pub, previous_priv FROM identity_transition WHERE id = 1")
	if scanErr := row.Scan(&pub, &priv); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return nil, nil, e2eerr.ErrNotFound
		}
		return nil, nil, fmt.Errorf("store: load identity transition: %w", scanErr)
	}
	return pub, priv, nil
}
