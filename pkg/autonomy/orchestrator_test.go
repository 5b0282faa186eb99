package autonomy_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"warden/pkg/autonomy"
	"warden/pkg/ledger"
	"warden/pkg/protocol"
)

type stubTrust struct{ v float64 }

func (s stubTrust) Trust() float64 { return s.v }

type scriptedRunner struct {
	// failOn maps resource names to the error their run returns.
	failOn map[string]error
	ran    []string
}

func (r *scriptedRunner) Run(_ context.Context, a protocol.AgencyAction) (ledger.Outcome, error) {
	r.ran = append(r.ran, a.Resource)
	if err, ok := r.failOn[a.Resource]; ok {
		return ledger.Outcome{}, err
	}
	return ledger.Outcome{Result: "ok"}, nil
}

func newOrchestrator(t *testing.T, trust float64, runner ledger.Runner) (*autonomy.Orchestrator, *ledger.Ledger) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "warden.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("schema: %v", err)
	}
	led := ledger.New(db, stubTrust{trust}, nil)
	return autonomy.New(led, runner), led
}

func proposals(resources ...string) []protocol.ActionRequest {
	out := make([]protocol.ActionRequest, 0, len(resources))
	for _, r := range resources {
		out = append(out, protocol.ActionRequest{Type: protocol.ActionFileWrite, Resource: r})
	}
	return out
}

func TestWheelRunsBatchInOrder(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{}
	orch, _ := newOrchestrator(t, 0.9, runner)

	result, err := orch.TakeTheWheel(context.Background(), protocol.WheelRequest{
		ActorID:   "ada",
		Trigger:   protocol.TriggerExplicit,
		Proposals: proposals("a.md", "b.md", "c.md"),
	})
	if err != nil {
		t.Fatalf("wheel: %v", err)
	}
	if !result.Confirmed || result.CompletedCount != 3 {
		t.Fatalf("result = %+v", result)
	}
	for i, want := range []string{"a.md", "b.md", "c.md"} {
		if runner.ran[i] != want {
			t.Errorf("run order[%d] = %s, want %s", i, runner.ran[i], want)
		}
	}
	for _, a := range result.Completed {
		if a.Metadata.Source != protocol.SourceAutonomous {
			t.Errorf("batch member source = %s, want autonomous", a.Metadata.Source)
		}
	}
}

func TestWheelStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{failOn: map[string]error{"b.md": errors.New("boom")}}
	orch, led := newOrchestrator(t, 0.9, runner)

	result, err := orch.TakeTheWheel(context.Background(), protocol.WheelRequest{
		ActorID:   "ada",
		Trigger:   protocol.TriggerHighConfidence,
		Proposals: proposals("a.md", "b.md", "c.md"),
	})
	if err != nil {
		t.Fatalf("wheel: %v", err)
	}
	if result.CompletedCount != 1 {
		t.Errorf("completed = %d, want 1", result.CompletedCount)
	}
	if result.StoppedAt == "" {
		t.Error("expected StoppedAt to name the failing action")
	}
	if len(runner.ran) != 2 {
		t.Errorf("ran %v, want stop after the failure", runner.ran)
	}

	// The untouched third proposal stays active in the ledger.
	active, err := led.Active("ada")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].Resource != "c.md" {
		t.Errorf("active = %+v", active)
	}
}

func TestWheelAllowPartialContinues(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{failOn: map[string]error{"b.md": errors.New("boom")}}
	orch, _ := newOrchestrator(t, 0.9, runner)

	result, err := orch.TakeTheWheel(context.Background(), protocol.WheelRequest{
		ActorID:      "ada",
		Trigger:      protocol.TriggerFatigue,
		Proposals:    proposals("a.md", "b.md", "c.md"),
		AllowPartial: true,
	})
	if err != nil {
		t.Fatalf("wheel: %v", err)
	}
	if result.CompletedCount != 2 {
		t.Errorf("completed = %d, want 2", result.CompletedCount)
	}
	if result.StoppedAt == "" {
		t.Error("StoppedAt must still record the first failure")
	}
	if len(runner.ran) != 3 {
		t.Errorf("ran %v, want all three attempted", runner.ran)
	}
}

func TestWheelScopeConfirmationHoldsBatch(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{}
	orch, _ := newOrchestrator(t, 0.9, runner)

	held, err := orch.TakeTheWheel(context.Background(), protocol.WheelRequest{
		ActorID:                   "ada",
		Trigger:                   protocol.TriggerExplicit,
		Proposals:                 proposals("a.md"),
		RequiresScopeConfirmation: true,
	})
	if err != nil {
		t.Fatalf("wheel: %v", err)
	}
	if held.Confirmed {
		t.Fatal("batch must be held, not run")
	}
	if len(runner.ran) != 0 {
		t.Fatal("nothing may execute before confirmation")
	}
	if orch.HeldCount() != 1 {
		t.Errorf("held count = %d", orch.HeldCount())
	}

	result, err := orch.Confirm(context.Background(), held.BatchID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !result.Confirmed || result.CompletedCount != 1 {
		t.Errorf("result = %+v", result)
	}

	// A batch is confirmable once.
	_, err = orch.Confirm(context.Background(), held.BatchID)
	var nf *protocol.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError on double confirm, got %v", err)
	}
}

func TestWheelConfirmExpires(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{}
	orch, _ := newOrchestrator(t, 0.9, runner)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	orch.SetNowFunc(func() time.Time { return now })

	held, err := orch.TakeTheWheel(context.Background(), protocol.WheelRequest{
		ActorID:                   "ada",
		Trigger:                   protocol.TriggerExplicit,
		Proposals:                 proposals("a.md"),
		RequiresScopeConfirmation: true,
	})
	if err != nil {
		t.Fatalf("wheel: %v", err)
	}

	now = now.Add(autonomy.HoldTTL + time.Minute)
	_, err = orch.Confirm(context.Background(), held.BatchID)
	var nf *protocol.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for expired batch, got %v", err)
	}
}

func TestWheelValidation(t *testing.T) {
	t.Parallel()

	orch, _ := newOrchestrator(t, 0.9, &scriptedRunner{})

	if _, err := orch.TakeTheWheel(context.Background(), protocol.WheelRequest{
		ActorID: "ada", Trigger: "vibes", Proposals: proposals("a.md"),
	}); err == nil {
		t.Error("unknown trigger must be rejected")
	}
	if _, err := orch.TakeTheWheel(context.Background(), protocol.WheelRequest{
		ActorID: "ada", Trigger: protocol.TriggerExplicit,
	}); err == nil {
		t.Error("empty batch must be rejected")
	}
}

func TestWheelDeniedProposalStopsBatch(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{}
	// Trust 0.5: file_write passes the gate, system_command does not.
	orch, _ := newOrchestrator(t, 0.5, runner)

	result, err := orch.TakeTheWheel(context.Background(), protocol.WheelRequest{
		ActorID: "ada",
		Trigger: protocol.TriggerExplicit,
		Proposals: []protocol.ActionRequest{
			{Type: protocol.ActionFileWrite, Resource: "a.md"},
			{Type: protocol.ActionSystemCommand, Resource: "reboot"},
			{Type: protocol.ActionFileWrite, Resource: "c.md"},
		},
	})
	if err != nil {
		t.Fatalf("wheel: %v", err)
	}
	if result.CompletedCount != 1 {
		t.Errorf("completed = %d, want only the first write", result.CompletedCount)
	}
	if result.StoppedAt == "" {
		t.Error("the rejected proposal must be the stopping point")
	}
}
