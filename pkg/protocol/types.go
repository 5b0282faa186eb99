// Package protocol defines the shared domain types, typed errors, SQLite
// schema, and UDS message envelope for the warden engine. It has no
// dependencies on other warden packages so every component can import it.
package protocol

import (
	"fmt"
	"time"
)

// --- Emotional state ---

// EmotionalState is the continuous state vector for one actor scope.
// All nine scalars are bounded to [0,1]; mutation goes exclusively through
// the emotion.Core serialization point.
type EmotionalState struct {
	ActorID string `json:"actor_id"`

	Trust   float64 `json:"trust"`
	Warmth  float64 `json:"warmth"`
	Arousal float64 `json:"arousal"`
	Valence float64 `json:"valence"`

	Empathy    float64 `json:"empathy"`
	Intuition  float64 `json:"intuition"`
	Creativity float64 `json:"creativity"`
	Wisdom     float64 `json:"wisdom"`
	Humor      float64 `json:"humor"`

	Posture Posture  `json:"posture"`
	Mode    Mode     `json:"mode"`
	Flags   []string `json:"flags,omitempty"`

	InteractionCount int  `json:"interaction_count"`
	DoorSlamActive   bool `json:"door_slam_active"`
	CrisisActive     bool `json:"crisis_active"`
	ElasticMode      bool `json:"elastic_mode"`

	LastInteraction time.Time `json:"last_interaction"`
	LastDecay       time.Time `json:"last_decay"`
}

// EmotionalDelta is a signed adjustment to the state vector. Deltas are
// applied asymptotically so the scalars converge toward the bounds without
// ever leaving [0,1].
type EmotionalDelta struct {
	Trust   float64 `json:"trust,omitempty"`
	Warmth  float64 `json:"warmth,omitempty"`
	Arousal float64 `json:"arousal,omitempty"`
	Valence float64 `json:"valence,omitempty"`

	Empathy    float64 `json:"empathy,omitempty"`
	Intuition  float64 `json:"intuition,omitempty"`
	Creativity float64 `json:"creativity,omitempty"`
	Wisdom     float64 `json:"wisdom,omitempty"`
	Humor      float64 `json:"humor,omitempty"`
}

// IsZero reports whether every component of the delta is zero.
func (d EmotionalDelta) IsZero() bool {
	return d == EmotionalDelta{}
}

// Posture is the derived interaction style computed from trust and warmth.
type Posture string

// Posture constants, one per (trust, warmth) quadrant.
const (
	PostureCompanion Posture = "companion" // low trust, high warmth
	PostureCoPilot   Posture = "copilot"   // high trust, high warmth
	PosturePeer      Posture = "peer"      // low trust, low warmth
	PostureExpert    Posture = "expert"    // high trust, low warmth
)

// Mode is the engine's operating mode for an actor scope.
type Mode string

// Mode constants.
const (
	ModeLive    Mode = "live"
	ModeSlumber Mode = "slumber"
	ModeCrisis  Mode = "crisis"
)

// --- Trust tiers ---

// TrustTier is a discrete capability band derived from the trust scalar.
// Ranges are half-open [TrustMin, TrustMax) except the top tier, which is
// closed on the upper bound so the table covers all of [0,1].
type TrustTier struct {
	Tier         int          `json:"tier"`
	Name         string       `json:"name"`
	TrustMin     float64      `json:"trust_min"`
	TrustMax     float64      `json:"trust_max"`
	Capabilities []string     `json:"capabilities"`
	Permissions  []Permission `json:"permissions"`
}

// Contains reports whether t falls inside this tier's range. top marks the
// highest tier, whose upper bound is inclusive.
func (tt TrustTier) Contains(t float64, top bool) bool {
	if top {
		return t >= tt.TrustMin && t <= tt.TrustMax
	}
	return t >= tt.TrustMin && t < tt.TrustMax
}

// Permission grants an action over resources matching a pattern.
type Permission struct {
	Action           ActionType `json:"action"`
	ResourcePattern  string     `json:"resource_pattern"`
	Conditions       []string   `json:"conditions,omitempty"`
	Sandbox          bool       `json:"sandbox"`
	DryRunSupported  bool       `json:"dry_run_supported"`
	RollbackStrategy string     `json:"rollback_strategy,omitempty"`
}

// --- Actions ---

// ActionType is the closed enum of side-effecting operations the engine
// knows how to gate and execute.
type ActionType string

// Action type constants.
const (
	ActionFileRead         ActionType = "file_read"
	ActionFileWrite        ActionType = "file_write"
	ActionFileDelete       ActionType = "file_delete"
	ActionFileMove         ActionType = "file_move"
	ActionDirectoryCreate  ActionType = "directory_create"
	ActionEmailSend        ActionType = "email_send"
	ActionEmailDraft       ActionType = "email_draft"
	ActionCodeExecute      ActionType = "code_execute"
	ActionSystemCommand    ActionType = "system_command"
	ActionAPICall          ActionType = "api_call"
	ActionDatabaseQuery    ActionType = "database_query"
	ActionMemoryAccess     ActionType = "memory_access"
	ActionHeritageModify   ActionType = "heritage_modify"
	ActionAutoResearch     ActionType = "auto_research"
	ActionWorkflowAutomate ActionType = "workflow_automate"
	ActionScheduleTask     ActionType = "schedule_task"
	ActionBackupCreate     ActionType = "backup_create"
	ActionBackupRestore    ActionType = "backup_restore"
)

// ActionTypes lists every known action type, in declaration order.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionFileRead, ActionFileWrite, ActionFileDelete, ActionFileMove,
		ActionDirectoryCreate, ActionEmailSend, ActionEmailDraft,
		ActionCodeExecute, ActionSystemCommand, ActionAPICall,
		ActionDatabaseQuery, ActionMemoryAccess, ActionHeritageModify,
		ActionAutoResearch, ActionWorkflowAutomate, ActionScheduleTask,
		ActionBackupCreate, ActionBackupRestore,
	}
}

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	for _, known := range ActionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ActionStatus is the lifecycle state of an AgencyAction.
type ActionStatus string

// Lifecycle states. Pending → {Approved, Rejected} → InProgress →
// {Completed, Failed} → RolledBack. RolledBack is reachable only from
// Completed or Failed.
const (
	StatusPending    ActionStatus = "pending"
	StatusApproved   ActionStatus = "approved"
	StatusRejected   ActionStatus = "rejected"
	StatusInProgress ActionStatus = "in_progress"
	StatusCompleted  ActionStatus = "completed"
	StatusFailed     ActionStatus = "failed"
	StatusRolledBack ActionStatus = "rolled_back"
)

// Active reports whether the status counts as active (not yet terminal or
// settled): Pending, Approved, or InProgress.
func (s ActionStatus) Active() bool {
	switch s {
	case StatusPending, StatusApproved, StatusInProgress:
		return true
	default:
		return false
	}
}

// Source classifies who proposed an action.
type Source string

// Source constants.
const (
	SourceUserRequest Source = "user_request"
	SourceAutonomous  Source = "autonomous"
	SourceScheduled   Source = "scheduled"
	SourceDreamCycle  Source = "dream_cycle"
)

// Urgency classifies how quickly an input or action needs attention.
type Urgency string

// Urgency constants. UrgencyCrisis forces an immediate crisis flag
// re-evaluation in the emotional core.
const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
	UrgencyCrisis Urgency = "crisis"
)

// RiskLevel grades the blast radius of an action.
type RiskLevel string

// Risk level constants.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ActionMetadata rides along with an AgencyAction.
type ActionMetadata struct {
	Source               Source    `json:"source"`
	Context              string    `json:"context,omitempty"`
	Urgency              Urgency   `json:"urgency"`
	RiskLevel            RiskLevel `json:"risk_level"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	AutoRollback         bool      `json:"auto_rollback"`
	CheckpointBefore     string    `json:"checkpoint_before,omitempty"`
	CheckpointAfter      string    `json:"checkpoint_after,omitempty"`
}

// AgencyAction is one vetted, executable unit of agent agency. Rows are
// append-only: once a terminal status is recorded the action is immutable.
type AgencyAction struct {
	ID            string         `json:"id"`
	ActorID       string         `json:"actor_id"`
	Type          ActionType     `json:"action_type"`
	Resource      string         `json:"resource"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	TrustRequired float64        `json:"trust_required"`
	Status        ActionStatus   `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	RollbackID string         `json:"rollback_id,omitempty"`
	Metadata   ActionMetadata `json:"metadata"`
}

// ActionRequest is the input to ledger.RequestAction.
type ActionRequest struct {
	ActorID    string         `json:"actor_id"`
	Type       ActionType     `json:"action_type"`
	Resource   string         `json:"resource"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Source     Source         `json:"source"`
	Context    string         `json:"context,omitempty"`
	Urgency    Urgency        `json:"urgency,omitempty"`

	// AutoRollback requests an automatic rollback if execution fails.
	AutoRollback bool `json:"auto_rollback,omitempty"`
}

// RollbackResult reports the outcome of a rollback.
type RollbackResult struct {
	Success           bool      `json:"success"`
	RollbackID        string    `json:"rollback_id"`
	CheckpointRef     string    `json:"checkpoint_ref"`
	RestoredResources []string  `json:"restored_resources,omitempty"`
	Error             string    `json:"error,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// --- Capability contracts ---

// RiskAssessment grades a capability along the axes the confirmation policy
// cares about.
type RiskAssessment struct {
	DataRisk           RiskLevel `json:"data_risk"`
	SystemRisk         RiskLevel `json:"system_risk"`
	PrivacyRisk        RiskLevel `json:"privacy_risk"`
	RecoveryDifficulty RiskLevel `json:"recovery_difficulty"`
	PotentialImpact    []string  `json:"potential_impact,omitempty"`
}

// CapabilityContract is a static catalogue entry describing one capability.
// Read-only at runtime.
type CapabilityContract struct {
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	ActionTypes       []ActionType   `json:"action_types"`
	SandboxRoot       string         `json:"sandbox_root,omitempty"`
	DryRunAvailable   bool           `json:"dry_run_available"`
	RollbackAvailable bool           `json:"rollback_available"`
	MinTrust          float64        `json:"min_trust"`
	Risk              RiskAssessment `json:"risk"`
}

// --- Autonomy ---

// TriggerType classifies why a take-the-wheel request was issued.
type TriggerType string

// Trigger type constants.
const (
	TriggerExplicit       TriggerType = "explicit"
	TriggerFatigue        TriggerType = "fatigue"
	TriggerRepeatedStall  TriggerType = "repeated_stall"
	TriggerHighConfidence TriggerType = "high_confidence"
)

// Valid reports whether t is one of the four known trigger values.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerExplicit, TriggerFatigue, TriggerRepeatedStall, TriggerHighConfidence:
		return true
	default:
		return false
	}
}

// WheelRequest batches a set of proposed actions under one autonomous grant.
type WheelRequest struct {
	ActorID                   string          `json:"actor_id"`
	Trigger                   TriggerType     `json:"trigger_type"`
	Proposals                 []ActionRequest `json:"proposals"`
	RequiresScopeConfirmation bool            `json:"requires_scope_confirmation"`
	AllowPartial              bool            `json:"allow_partial"`
	Context                   string          `json:"context,omitempty"`
}

// WheelResult reports which proposals reached Completed.
type WheelResult struct {
	BatchID        string         `json:"batch_id"`
	Confirmed      bool           `json:"confirmed"`
	Completed      []AgencyAction `json:"completed,omitempty"`
	CompletedCount int            `json:"completed_count"`
	StoppedAt      string         `json:"stopped_at,omitempty"` // action ID of the first failure
}

// --- Introspection ---

// Stats aggregates ledger and state counters for the introspection surface.
type Stats struct {
	ActorID       string                 `json:"actor_id"`
	Trust         float64                `json:"trust"`
	Tier          int                    `json:"tier"`
	TierName      string                 `json:"tier_name"`
	ByStatus      map[ActionStatus]int   `json:"by_status"`
	ByType        map[ActionType]int     `json:"by_type"`
	SuccessRate   float64                `json:"success_rate"`
	RollbackCount int                    `json:"rollback_count"`
	ActiveCount   int                    `json:"active_count"`
	EventCount    int64                  `json:"event_count"`
}

// FormatAlert produces a structured crisis alert line in the form:
//
//	[WARDEN] CRISIS: <actor> — <summary>. <details>.
//
// If details is empty the trailing clause is omitted.
func FormatAlert(actorID, summary, details string) string {
	if details != "" {
		return fmt.Sprintf("[WARDEN] CRISIS: %s — %s. %s.", actorID, summary, details)
	}
	return fmt.Sprintf("[WARDEN] CRISIS: %s — %s.", actorID, summary)
}
