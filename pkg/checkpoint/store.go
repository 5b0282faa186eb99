// Package checkpoint provides the recoverable-transaction primitive:
// content-addressed snapshots of resources taken before an action executes,
// and restore back to them afterwards. The mechanism is deliberately not
// tied to any version-control tool — any storage that can snapshot and
// restore a resource satisfies the contract.
package checkpoint

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"warden/pkg/protocol"
)

// Checkpoint is one durable pre/post-action snapshot reference.
type Checkpoint struct {
	ID        string
	ActionID  string
	Resource  string
	BlobSHA   string
	Existed   bool // resource existed when the snapshot was taken
	CreatedAt time.Time
}

// Store keeps checkpoint references and their content blobs in SQLite.
// Blobs are addressed by SHA-256, so identical snapshots share storage.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle. The schema must already be
// initialized (protocol.SchemaDDL).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Capture records a snapshot of a resource's content and returns the
// checkpoint ID. existed=false records the resource's absence, so restoring
// removes whatever the action created.
func (s *Store) Capture(actionID, resource string, content []byte, existed bool) (string, error) {
	if content == nil {
		// An absence snapshot still needs a blob row; nil would bind as
		// SQL NULL and trip the NOT NULL constraint on content.
		content = []byte{}
	}
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])
	id := uuid.New().String()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO checkpoint_blobs (sha, content) VALUES (?, ?)
		 ON CONFLICT(sha) DO NOTHING`, sha, content,
	); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO checkpoints (id, action_id, resource, blob_sha, existed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, actionID, resource, sha, boolToInt(existed),
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return "", fmt.Errorf("store checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Get returns the checkpoint reference and its content blob.
func (s *Store) Get(id string) (Checkpoint, []byte, error) {
	var cp Checkpoint
	var existed int
	var createdStr string

	err := s.db.QueryRow(
		`SELECT id, action_id, resource, blob_sha, existed, created_at
		 FROM checkpoints WHERE id = ?`, id,
	).Scan(&cp.ID, &cp.ActionID, &cp.Resource, &cp.BlobSHA, &existed, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, nil, &protocol.NotFoundError{Kind: "checkpoint", ID: id}
	}
	if err != nil {
		return Checkpoint{}, nil, fmt.Errorf("load checkpoint %s: %w", id, err)
	}
	cp.Existed = existed != 0
	cp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)

	var content []byte
	err = s.db.QueryRow(
		`SELECT content FROM checkpoint_blobs WHERE sha = ?`, cp.BlobSHA,
	).Scan(&content)
	if err != nil {
		return Checkpoint{}, nil, fmt.Errorf("load blob %s: %w", cp.BlobSHA, err)
	}

	return cp, content, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- File resources ---

// FileSnapshotter snapshots and restores filesystem resources rooted at a
// base directory. Resource identifiers are slash paths relative to the
// root.
type FileSnapshotter struct {
	Root string
}

// Read returns the resource content and whether it exists.
func (f FileSnapshotter) Read(resource string) ([]byte, bool, error) {
	path := filepath.Join(f.Root, filepath.FromSlash(resource))
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", resource, err)
	}
	return content, true, nil
}

// Restore writes the snapshot content back, or removes the resource when
// the snapshot recorded its absence. The write goes through a temp file and
// rename so a crash mid-restore never leaves a torn file.
func (f FileSnapshotter) Restore(resource string, content []byte, existed bool) error {
	path := filepath.Join(f.Root, filepath.FromSlash(resource))

	if !existed {
		err := os.Remove(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", resource, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", resource, err)
	}
	tmp := path + ".restore.tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", resource, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", resource, err)
	}
	return nil
}
