package protocol_test

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"warden/pkg/protocol"
)

func TestSchemaExecsCleanly(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(protocol.SchemaDDL)
	if err != nil {
		t.Fatalf("exec schema DDL: %v", err)
	}
}

func TestSchemaCreatesExpectedTables(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(protocol.SchemaDDL)
	if err != nil {
		t.Fatalf("exec schema DDL: %v", err)
	}

	expected := []string{
		"emotional_state", "actions", "rollbacks",
		"checkpoints", "checkpoint_blobs", "interactions", "events",
	}
	for _, table := range expected {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %q not found: %v", table, err)
		}
	}
}

func TestSchemaStateUpsert(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("exec schema DDL: %v", err)
	}

	// The snapshot write path relies on an idempotent upsert.
	upsert := `INSERT INTO emotional_state (actor_id, snapshot) VALUES (?, ?)
		ON CONFLICT(actor_id) DO UPDATE SET snapshot = excluded.snapshot`

	if _, err := db.Exec(upsert, "primary", `{"trust":0.4}`); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := db.Exec(upsert, "primary", `{"trust":0.5}`); err != nil {
		t.Fatalf("second upsert (idempotent): %v", err)
	}

	var snapshot string
	if err := db.QueryRow(
		`SELECT snapshot FROM emotional_state WHERE actor_id='primary'`,
	).Scan(&snapshot); err != nil {
		t.Fatalf("query snapshot: %v", err)
	}
	if snapshot != `{"trust":0.5}` {
		t.Errorf("expected latest snapshot, got %q", snapshot)
	}
}
