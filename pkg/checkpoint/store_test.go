package checkpoint_test

import (
	"bytes"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"warden/pkg/checkpoint"
	"warden/pkg/protocol"
)

func newTestStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return checkpoint.NewStore(db)
}

func TestCaptureAndGet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	id, err := store.Capture("act-1", "workspace/notes.md", []byte("hello"), true)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	cp, content, err := store.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cp.ActionID != "act-1" || cp.Resource != "workspace/notes.md" || !cp.Existed {
		t.Errorf("unexpected checkpoint: %+v", cp)
	}
	if !bytes.Equal(content, []byte("hello")) {
		t.Errorf("content mismatch: %q", content)
	}
}

func TestIdenticalContentSharesOneBlob(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	id1, err := store.Capture("act-1", "a.txt", []byte("same"), true)
	if err != nil {
		t.Fatalf("capture 1: %v", err)
	}
	id2, err := store.Capture("act-2", "b.txt", []byte("same"), true)
	if err != nil {
		t.Fatalf("capture 2: %v", err)
	}

	cp1, _, err := store.Get(id1)
	if err != nil {
		t.Fatalf("get 1: %v", err)
	}
	cp2, _, err := store.Get(id2)
	if err != nil {
		t.Fatalf("get 2: %v", err)
	}
	if cp1.BlobSHA != cp2.BlobSHA {
		t.Error("identical content must be content-addressed to one blob")
	}
	if cp1.ID == cp2.ID {
		t.Error("checkpoint references must remain distinct")
	}
}

func TestCaptureAbsentResource(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	// A not-yet-existing resource snapshots as nil content; the blob row
	// must still be written.
	id, err := store.Capture("act-1", "fresh.md", nil, false)
	if err != nil {
		t.Fatalf("capture absence: %v", err)
	}

	cp, content, err := store.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cp.Existed {
		t.Error("absence snapshot must record existed=false")
	}
	if len(content) != 0 {
		t.Errorf("absence snapshot content = %q, want empty", content)
	}
}

func TestGetUnknownCheckpoint(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, _, err := store.Get("nope")
	var nf *protocol.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Kind != "checkpoint" {
		t.Errorf("expected checkpoint kind, got %q", nf.Kind)
	}
}

func TestCaptureAbsenceRestoresByRemoval(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	snap := checkpoint.FileSnapshotter{Root: root}

	// Resource doesn't exist yet.
	content, existed, err := snap.Read("out/new.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if existed || content != nil {
		t.Fatal("expected absent resource")
	}

	// Action creates it.
	path := filepath.Join(root, "out", "new.txt")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("created"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Restoring the absence snapshot removes the file.
	if err := snap.Restore("out/new.txt", nil, false); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("restore of an absence snapshot must remove the file")
	}
}

func TestFileSnapshotterRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	snap := checkpoint.FileSnapshotter{Root: root}
	path := filepath.Join(root, "doc.md")

	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, existed, err := snap.Read("doc.md")
	if err != nil || !existed {
		t.Fatalf("read: existed=%v err=%v", existed, err)
	}

	// Overwrite, then restore.
	if err := os.WriteFile(path, []byte("mangled"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := snap.Restore("doc.md", content, true); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Errorf("expected restored content, got %q", got)
	}
}
