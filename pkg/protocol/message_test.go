package protocol_test

import (
	"encoding/json"
	"testing"
	"time"

	"warden/pkg/protocol"
)

func TestEventTypes(t *testing.T) {
	t.Parallel()

	// All expected event type constants must be defined.
	types := []protocol.EventType{
		protocol.EventStateChanged,
		protocol.EventTierChanged,
		protocol.EventActionCompleted,
		protocol.EventActionFailed,
		protocol.EventRollbackCompleted,
		protocol.EventCrisisAlert,
		protocol.EventReunionSurge,
	}

	expected := []string{
		"STATE_CHANGED",
		"TIER_CHANGED",
		"ACTION_COMPLETED",
		"ACTION_FAILED",
		"ROLLBACK_COMPLETED",
		"CRISIS_ALERT",
		"REUNION_SURGE",
	}

	for i, et := range types {
		if string(et) != expected[i] {
			t.Errorf("expected %q, got %q", expected[i], et)
		}
	}
}

func TestEventJSON(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ev   protocol.Event
	}{
		{
			name: "STATE_CHANGED",
			ev: protocol.Event{
				Type:    protocol.EventStateChanged,
				ActorID: "primary",
				State: &protocol.EmotionalState{
					ActorID: "primary",
					Trust:   0.5,
					Warmth:  0.6,
					Posture: protocol.PostureCompanion,
					Mode:    protocol.ModeLive,
				},
				CreatedAt: now,
			},
		},
		{
			name: "TIER_CHANGED",
			ev: protocol.Event{
				Type:    protocol.EventTierChanged,
				ActorID: "primary",
				TierChange: &protocol.TierChange{
					OldTier: 1,
					NewTier: 2,
					Name:    "collaborator",
					Trust:   0.62,
				},
				CreatedAt: now,
			},
		},
		{
			name: "ACTION_COMPLETED",
			ev: protocol.Event{
				Type: protocol.EventActionCompleted,
				Action: &protocol.AgencyAction{
					ID:       "act-1",
					ActorID:  "primary",
					Type:     protocol.ActionFileWrite,
					Resource: "/tmp/notes.md",
					Status:   protocol.StatusCompleted,
				},
				CreatedAt: now,
			},
		},
		{
			name: "ROLLBACK_COMPLETED",
			ev: protocol.Event{
				Type: protocol.EventRollbackCompleted,
				Rollback: &protocol.RollbackResult{
					Success:           true,
					RollbackID:        "rb-1",
					CheckpointRef:     "cp-1",
					RestoredResources: []string{"/tmp/notes.md"},
					Timestamp:         now,
				},
				CreatedAt: now,
			},
		},
		{
			name: "CRISIS_ALERT",
			ev: protocol.Event{
				Type:      protocol.EventCrisisAlert,
				ActorID:   "primary",
				Alert:     protocol.FormatAlert("primary", "valence collapse", "arousal 0.91"),
				CreatedAt: now,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data, err := json.Marshal(tc.ev)
			if err != nil {
				t.Fatalf("marshal %s: %v", tc.name, err)
			}

			var got protocol.Event
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.name, err)
			}

			// Re-marshal both and compare JSON to verify round-trip equality.
			wantJSON, _ := json.Marshal(tc.ev)
			gotJSON, _ := json.Marshal(got)

			if string(wantJSON) != string(gotJSON) {
				t.Errorf("round-trip mismatch for %s:\n  want: %s\n  got:  %s", tc.name, wantJSON, gotJSON)
			}
		})
	}
}

func TestCommandJSONOmitsEmptyPayloads(t *testing.T) {
	t.Parallel()

	cmd := protocol.Command{Op: protocol.OpStateGet, ActorID: "primary"}
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"op":"state_get","actor_id":"primary"}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
