package protocol_test

import (
	"testing"

	"warden/pkg/protocol"
)

func TestActionTypeValid(t *testing.T) {
	t.Parallel()

	for _, at := range protocol.ActionTypes() {
		if !at.Valid() {
			t.Errorf("ActionTypes() returned invalid type %q", at)
		}
	}

	if protocol.ActionType("teleport").Valid() {
		t.Error("unknown action type must not validate")
	}
}

func TestActionStatusActive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status protocol.ActionStatus
		active bool
	}{
		{protocol.StatusPending, true},
		{protocol.StatusApproved, true},
		{protocol.StatusInProgress, true},
		{protocol.StatusRejected, false},
		{protocol.StatusCompleted, false},
		{protocol.StatusFailed, false},
		{protocol.StatusRolledBack, false},
	}

	for _, tc := range tests {
		if got := tc.status.Active(); got != tc.active {
			t.Errorf("%s.Active() = %v, want %v", tc.status, got, tc.active)
		}
	}
}

func TestTriggerTypeValid(t *testing.T) {
	t.Parallel()

	valid := []protocol.TriggerType{
		protocol.TriggerExplicit,
		protocol.TriggerFatigue,
		protocol.TriggerRepeatedStall,
		protocol.TriggerHighConfidence,
	}
	for _, tr := range valid {
		if !tr.Valid() {
			t.Errorf("trigger %q must be valid", tr)
		}
	}
	if protocol.TriggerType("boredom").Valid() {
		t.Error("unknown trigger must not validate")
	}
}

func TestTierContains(t *testing.T) {
	t.Parallel()

	tier := protocol.TrustTier{Tier: 1, TrustMin: 0.3, TrustMax: 0.6}

	if !tier.Contains(0.3, false) {
		t.Error("lower bound must be inclusive")
	}
	if tier.Contains(0.6, false) {
		t.Error("upper bound must be exclusive for non-top tiers")
	}

	top := protocol.TrustTier{Tier: 3, TrustMin: 0.85, TrustMax: 1.0}
	if !top.Contains(1.0, true) {
		t.Error("top tier upper bound must be inclusive")
	}
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()

	got := protocol.FormatAlert("primary", "valence collapse", "arousal 0.91")
	want := "[WARDEN] CRISIS: primary — valence collapse. arousal 0.91."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	got = protocol.FormatAlert("primary", "valence collapse", "")
	want = "[WARDEN] CRISIS: primary — valence collapse."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
