package rollback_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"warden/pkg/checkpoint"
	"warden/pkg/execution"
	"warden/pkg/ledger"
	"warden/pkg/protocol"
	"warden/pkg/rollback"
)

type stubTrust struct{}

func (stubTrust) Trust() float64 { return 0.9 }

type capturingAdjuster struct {
	mu        sync.Mutex
	penalties []float64
}

func (a *capturingAdjuster) PenalizeTrust(amount float64) (protocol.EmotionalState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.penalties = append(a.penalties, amount)
	return protocol.EmotionalState{}, nil
}

type capturingPub struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (p *capturingPub) Publish(ev protocol.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type fixture struct {
	ledger      *ledger.Ledger
	engine      *execution.Engine
	coordinator *rollback.Coordinator
	adjuster    *capturingAdjuster
	pub         *capturingPub
	workspace   string
	db          *sql.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "warden.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("schema: %v", err)
	}

	ws := t.TempDir()
	cps := checkpoint.NewStore(db)
	led := ledger.New(db, stubTrust{}, nil)
	eng := execution.NewEngine(cps, execution.Config{Workspace: ws})
	adjuster := &capturingAdjuster{}
	pub := &capturingPub{}
	coord := rollback.New(db, led, cps, checkpoint.FileSnapshotter{Root: ws}, adjuster, pub)
	return &fixture{
		ledger: led, engine: eng, coordinator: coord,
		adjuster: adjuster, pub: pub, workspace: ws, db: db,
	}
}

func (f *fixture) runWrite(t *testing.T, resource, content string) protocol.AgencyAction {
	t.Helper()
	action, err := f.ledger.RequestAction(protocol.ActionRequest{
		ActorID:    "ada",
		Type:       protocol.ActionFileWrite,
		Resource:   resource,
		Parameters: map[string]any{"content": content},
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	done, err := f.ledger.Execute(context.Background(), action.ID, true, f.engine)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return done
}

func TestRollbackRestoresOverwrittenFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	path := filepath.Join(f.workspace, "notes.md")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	action := f.runWrite(t, "notes.md", "overwritten")

	result, err := f.coordinator.Rollback(action.ID, "user asked", false)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !result.Success {
		t.Fatalf("rollback not successful: %+v", result)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Errorf("file = %q, want pre-execution content", got)
	}

	after, err := f.ledger.Get(action.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Status != protocol.StatusRolledBack {
		t.Errorf("status = %s, want rolled_back", after.Status)
	}
	if after.RollbackID != result.RollbackID {
		t.Error("action must reference the rollback audit entry")
	}
}

func TestRollbackRemovesCreatedFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	action := f.runWrite(t, "fresh.md", "new content")

	if _, err := f.coordinator.Rollback(action.ID, "undo creation", false); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.workspace, "fresh.md")); !errors.Is(err, os.ErrNotExist) {
		t.Error("rolling back a creation must remove the file")
	}
}

func TestRollbackAppliesOnePenalty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	action := f.runWrite(t, "notes.md", "x")

	if _, err := f.coordinator.Rollback(action.ID, "undo", false); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	f.adjuster.mu.Lock()
	penalties := f.adjuster.penalties
	f.adjuster.mu.Unlock()
	if len(penalties) != 1 {
		t.Fatalf("expected exactly one trust penalty, got %d", len(penalties))
	}
	if penalties[0] != rollback.TrustPenalty {
		t.Errorf("penalty = %v, want %v", penalties[0], rollback.TrustPenalty)
	}

	f.pub.mu.Lock()
	var rbEvents int
	for _, ev := range f.pub.events {
		if ev.Type == protocol.EventRollbackCompleted {
			rbEvents++
		}
	}
	f.pub.mu.Unlock()
	if rbEvents != 1 {
		t.Errorf("expected 1 ROLLBACK_COMPLETED event, got %d", rbEvents)
	}
}

func TestRollbackWritesAuditRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	action := f.runWrite(t, "notes.md", "x")

	result, err := f.coordinator.Rollback(action.ID, "audit me", false)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}

	var reason string
	var success, forced int
	err = f.db.QueryRow(
		`SELECT reason, success, forced FROM rollbacks WHERE id = ?`, result.RollbackID,
	).Scan(&reason, &success, &forced)
	if err != nil {
		t.Fatalf("audit row: %v", err)
	}
	if reason != "audit me" || success != 1 || forced != 0 {
		t.Errorf("audit row = (%q, %d, %d)", reason, success, forced)
	}
}

func TestRollbackWaitsForResourceKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	action := f.runWrite(t, "notes.md", "x")

	// Hold the same (actor, resource) key the execute path serializes on.
	release := f.ledger.LockResource("ada", "notes.md")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := f.coordinator.Rollback(action.ID, "serialized", false); err != nil {
			t.Errorf("rollback: %v", err)
		}
	}()

	select {
	case <-done:
		t.Fatal("rollback must block while the resource key is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rollback did not finish after the key was released")
	}
}

func TestRollbackAuditFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	action := f.runWrite(t, "notes.md", "x")

	if _, err := f.db.Exec(`DROP TABLE rollbacks`); err != nil {
		t.Fatal(err)
	}

	_, err := f.coordinator.Rollback(action.ID, "doomed", false)
	if err == nil || !strings.Contains(err.Error(), "rollback audit") {
		t.Fatalf("expected audit persistence error, got %v", err)
	}

	// The ledger row must not claim a rollback the audit never recorded.
	got, gerr := f.ledger.Get(action.ID)
	if gerr != nil {
		t.Fatalf("get: %v", gerr)
	}
	if got.Status != protocol.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestSecondRollbackIsInvalid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	action := f.runWrite(t, "notes.md", "x")

	if _, err := f.coordinator.Rollback(action.ID, "first", false); err != nil {
		t.Fatalf("first rollback: %v", err)
	}

	_, err := f.coordinator.Rollback(action.ID, "second", false)
	var invalid *protocol.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}

	// force does not bypass the already-rolled-back guard.
	_, err = f.coordinator.Rollback(action.ID, "forced", true)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError under force, got %v", err)
	}
}

func TestUnsettledActionNotRollbackable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	action, err := f.ledger.RequestAction(protocol.ActionRequest{
		ActorID: "ada", Type: protocol.ActionFileWrite, Resource: "p.md",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	_, err = f.coordinator.Rollback(action.ID, "too early", false)
	var nr *protocol.NotRollbackableError
	if !errors.As(err, &nr) {
		t.Fatalf("expected NotRollbackableError, got %v", err)
	}

	// force bypasses the status guard but there is no checkpoint yet.
	_, err = f.coordinator.Rollback(action.ID, "forced", true)
	if !errors.As(err, &nr) {
		t.Fatalf("expected NotRollbackableError for missing checkpoint, got %v", err)
	}
	if nr.Reason != "no checkpoint recorded" {
		t.Errorf("reason = %q", nr.Reason)
	}
}

func TestRollbackGuards(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if _, err := f.coordinator.Rollback("ghost", "why", false); err != nil {
		var nf *protocol.NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	} else {
		t.Error("expected error for unknown action")
	}

	action := f.runWrite(t, "notes.md", "x")
	if _, err := f.coordinator.Rollback(action.ID, "", false); err == nil {
		t.Error("empty reason must be rejected")
	}
}
