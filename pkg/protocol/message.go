package protocol

import "time"

// The engine speaks line-delimited JSON over a Unix domain socket. A client
// sends one Command per line and reads one Response per line, except after
// OpSubscribe, which upgrades the connection to a one-way Event stream.

// Op names the command a client is issuing.
type Op string

// Command operations.
const (
	OpTrustGet        Op = "trust_get"
	OpTierTable       Op = "tier_table"
	OpStateGet        Op = "state_get"
	OpStateReset      Op = "state_reset"
	OpPerceive        Op = "perceive"
	OpElasticSet      Op = "elastic_set"
	OpReunion         Op = "reunion"
	OpHistoryGet      Op = "history_get"
	OpActionRequest   Op = "action_request"
	OpActionExec      Op = "action_exec"
	OpActionGet       Op = "action_get"
	OpActionHistory   Op = "action_history"
	OpActionActive    Op = "action_active"
	OpActionReject    Op = "action_reject"
	OpRollback        Op = "rollback"
	OpWheel           Op = "wheel"
	OpWheelConfirm    Op = "wheel_confirm"
	OpStatsGet        Op = "stats_get"
	OpCapabilitiesGet Op = "capabilities_get"
	OpSubscribe       Op = "subscribe"
)

// PerceivePayload carries one raw interaction input.
type PerceivePayload struct {
	ActorID string `json:"actor_id"`
	Input   string `json:"input"`
	Context string `json:"context,omitempty"`
}

// RollbackPayload initiates a rollback. Reason is mandatory and
// human-readable; Force bypasses the terminal-status check only.
type RollbackPayload struct {
	ActionID string `json:"action_id"`
	Reason   string `json:"reason"`
	Force    bool   `json:"force,omitempty"`
}

// Command is the request envelope. Exactly one payload field is set,
// matching Op.
type Command struct {
	Op      Op     `json:"op"`
	ActorID string `json:"actor_id,omitempty"`

	Perceive *PerceivePayload `json:"perceive,omitempty"`
	Request  *ActionRequest   `json:"request,omitempty"`
	Rollback *RollbackPayload `json:"rollback,omitempty"`
	Wheel    *WheelRequest    `json:"wheel,omitempty"`

	ActionID string `json:"action_id,omitempty"`
	BatchID  string `json:"batch_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Elastic  *bool  `json:"elastic,omitempty"`

	// Approve marks an explicit human approval when executing a Pending
	// action that requires confirmation.
	Approve bool `json:"approve,omitempty"`
}

// PerceiveResult is returned from OpPerceive.
type PerceiveResult struct {
	Delta     EmotionalDelta `json:"delta"`
	Emotion   string         `json:"detected_emotion"`
	Urgency   Urgency        `json:"urgency"`
	Alignment float64        `json:"alignment_score"`
	State     EmotionalState `json:"state"`
}

// Interaction is one recorded perception turn.
type Interaction struct {
	ID        int64          `json:"id"`
	ActorID   string         `json:"actor_id"`
	Input     string         `json:"input"`
	Emotion   string         `json:"emotion"`
	Urgency   Urgency        `json:"urgency"`
	Alignment float64        `json:"alignment"`
	Delta     EmotionalDelta `json:"delta"`
	CreatedAt time.Time      `json:"created_at"`
}

// Response is the reply envelope. Err is set when OK is false; at most one
// result field is populated.
type Response struct {
	OK  bool   `json:"ok"`
	Err string `json:"error,omitempty"`

	Trust        *float64             `json:"trust,omitempty"`
	Tier         *TrustTier           `json:"tier,omitempty"`
	Tiers        []TrustTier          `json:"tiers,omitempty"`
	State        *EmotionalState      `json:"state,omitempty"`
	Perceive     *PerceiveResult      `json:"perceive,omitempty"`
	Interactions []Interaction        `json:"interactions,omitempty"`
	Action       *AgencyAction        `json:"action,omitempty"`
	Actions      []AgencyAction       `json:"actions,omitempty"`
	Rollback     *RollbackResult      `json:"rollback,omitempty"`
	Wheel        *WheelResult         `json:"wheel,omitempty"`
	Stats        *Stats               `json:"stats,omitempty"`
	Capabilities []CapabilityContract `json:"capabilities,omitempty"`
}

// EventType discriminates pushed events.
type EventType string

// Push event types.
const (
	EventStateChanged      EventType = "STATE_CHANGED"
	EventTierChanged       EventType = "TIER_CHANGED"
	EventActionCompleted   EventType = "ACTION_COMPLETED"
	EventActionFailed      EventType = "ACTION_FAILED"
	EventRollbackCompleted EventType = "ROLLBACK_COMPLETED"
	EventCrisisAlert       EventType = "CRISIS_ALERT"
	EventReunionSurge      EventType = "REUNION_SURGE"
)

// TierChange carries the old and new tier for an EventTierChanged.
type TierChange struct {
	OldTier int     `json:"old_tier"`
	NewTier int     `json:"new_tier"`
	Name    string  `json:"name"`
	Trust   float64 `json:"trust"`
}

// Event is the push envelope. Delivery is best-effort, at-most-once per
// observer; observers resynchronize with a full-state pull after
// reconnecting.
type Event struct {
	Type    EventType `json:"type"`
	ActorID string    `json:"actor_id,omitempty"`

	State      *EmotionalState `json:"state,omitempty"`
	TierChange *TierChange     `json:"tier_change,omitempty"`
	Action     *AgencyAction   `json:"action,omitempty"`
	Rollback   *RollbackResult `json:"rollback,omitempty"`
	Alert      string          `json:"alert,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
