package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"warden/pkg/protocol"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestStatusCmd(t *testing.T) {
	startMockEngine(t, func(cmd protocol.Command) protocol.Response {
		if cmd.Op != protocol.OpStatsGet {
			return protocol.Response{Err: "unexpected op"}
		}
		return protocol.Response{OK: true, Stats: &protocol.Stats{
			ActorID:  "ada",
			Trust:    0.62,
			Tier:     2,
			TierName: "collaborator",
			ByStatus: map[protocol.ActionStatus]int{
				protocol.StatusCompleted: 4,
				protocol.StatusPending:   1,
			},
			SuccessRate:   0.8,
			RollbackCount: 1,
			ActiveCount:   1,
		}}
	})

	got, err := runCommand(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"0.620", "collaborator", "80%", "completed"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestStatusCmdEngineDown(t *testing.T) {
	t.Setenv("WARDEN_SOCKET", filepath.Join(t.TempDir(), "absent.sock"))

	_, err := runCommand(t, "status")
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Errorf("expected a not-running error, got %v", err)
	}
}

func TestTrustCmd(t *testing.T) {
	startMockEngine(t, func(cmd protocol.Command) protocol.Response {
		trust := 0.42
		tier := protocol.TrustTier{Tier: 1, Name: "assistant", TrustMin: 0.3, TrustMax: 0.6}
		return protocol.Response{OK: true, Trust: &trust, Tier: &tier}
	})

	got, err := runCommand(t, "trust")
	if err != nil {
		t.Fatalf("trust: %v", err)
	}
	if !strings.Contains(got, "0.420") || !strings.Contains(got, "assistant") {
		t.Errorf("output = %q", got)
	}
}

func TestActionsListCmd(t *testing.T) {
	startMockEngine(t, func(cmd protocol.Command) protocol.Response {
		return protocol.Response{OK: true, Actions: []protocol.AgencyAction{
			{ID: "a1", Type: protocol.ActionFileWrite, Resource: "notes.md", Status: protocol.StatusCompleted},
			{ID: "a2", Type: protocol.ActionFileDelete, Resource: "old.log", Status: protocol.StatusPending},
		}}
	})

	got, err := runCommand(t, "actions", "list")
	if err != nil {
		t.Fatalf("actions list: %v", err)
	}
	if !strings.Contains(got, "notes.md") || !strings.Contains(got, "old.log") {
		t.Errorf("output = %q", got)
	}
}

func TestActionsRequestCmdDenied(t *testing.T) {
	startMockEngine(t, func(cmd protocol.Command) protocol.Response {
		return protocol.Response{
			Err: "permission denied for system_command action a9: trust 0.30 below required 0.95",
			Action: &protocol.AgencyAction{
				ID: "a9", Type: protocol.ActionSystemCommand,
				Resource: "host", Status: protocol.StatusPending,
			},
		}
	})

	got, err := runCommand(t, "actions", "request", "system_command", "host")
	if err == nil {
		t.Fatal("expected the denial to surface as an error")
	}
	if !strings.Contains(got, "pending") {
		t.Errorf("output should show the still-pending action, got %q", got)
	}
}

func TestRollbackCmdRequiresReason(t *testing.T) {
	if _, err := runCommand(t, "rollback", "a1"); err == nil {
		t.Error("rollback without --reason must fail")
	}
}

func TestRollbackCmd(t *testing.T) {
	startMockEngine(t, func(cmd protocol.Command) protocol.Response {
		if cmd.Rollback == nil || cmd.Rollback.Reason != "bad result" {
			return protocol.Response{Err: "missing reason"}
		}
		return protocol.Response{OK: true, Rollback: &protocol.RollbackResult{
			Success:           true,
			RollbackID:        "rb-1",
			RestoredResources: []string{"notes.md"},
		}}
	})

	got, err := runCommand(t, "rollback", "a1", "--reason", "bad result")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !strings.Contains(got, "rb-1") || !strings.Contains(got, "notes.md") {
		t.Errorf("output = %q", got)
	}
}

func TestTiersCmd(t *testing.T) {
	startMockEngine(t, func(cmd protocol.Command) protocol.Response {
		return protocol.Response{OK: true, Tiers: []protocol.TrustTier{
			{Tier: 0, Name: "observer", TrustMin: 0, TrustMax: 0.3, Capabilities: []string{"file_read"}},
			{Tier: 1, Name: "assistant", TrustMin: 0.3, TrustMax: 0.6},
		}}
	})

	got, err := runCommand(t, "tiers")
	if err != nil {
		t.Fatalf("tiers: %v", err)
	}
	if !strings.Contains(got, "observer") || !strings.Contains(got, "file_read") {
		t.Errorf("output = %q", got)
	}
}
