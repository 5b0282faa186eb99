package emotion

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"warden/pkg/protocol"
)

// Store persists EmotionalState snapshots in the warden SQLite database.
// The upsert runs inside a transaction, so the previous snapshot survives
// until the new one is durable.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle. The schema must already be
// initialized (protocol.SchemaDDL).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Load reads the snapshot for actorID. The second return value is false
// when no snapshot exists yet.
func (s *Store) Load(actorID string) (protocol.EmotionalState, bool, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT snapshot FROM emotional_state WHERE actor_id = ?`, actorID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.EmotionalState{}, false, nil
	}
	if err != nil {
		return protocol.EmotionalState{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	var state protocol.EmotionalState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return protocol.EmotionalState{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return state, true, nil
}

// Save writes the snapshot atomically.
func (s *Store) Save(state protocol.EmotionalState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO emotional_state (actor_id, snapshot, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(actor_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		state.ActorID, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return tx.Commit()
}
