// Package ledger is the append-only agency action log and its lifecycle
// state machine. Every side-effecting action flows through RequestAction
// (the trust gate) and Execute (the serialized run path); terminal rows are
// immutable except for the single transition to RolledBack.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"warden/pkg/capability"
	"warden/pkg/protocol"
)

// ErrConfirmationRequired is returned by Execute when a pending action needs
// explicit approval and none was supplied.
var ErrConfirmationRequired = errors.New("action requires explicit confirmation")

// TrustSource reports the current trust scalar. Satisfied by emotion.Core.
type TrustSource interface {
	Trust() float64
}

// Publisher pushes events to observers without blocking.
type Publisher interface {
	Publish(ev protocol.Event)
}

// Outcome is what a successful run produces.
type Outcome struct {
	Result           string
	CheckpointBefore string
	CheckpointAfter  string
}

// Runner executes one approved action. Implementations must honor ctx
// cancellation; the ledger records whatever error they return verbatim.
type Runner interface {
	Run(ctx context.Context, action protocol.AgencyAction) (Outcome, error)
}

// RollbackFunc reverts a failed action. Injected by the composition root so
// the ledger does not depend on the rollback coordinator.
type RollbackFunc func(actionID, reason string) (protocol.RollbackResult, error)

// Ledger owns the actions table.
type Ledger struct {
	db    *sql.DB
	trust TrustSource
	pub   Publisher
	keys  *keyLocks

	autoRollback RollbackFunc

	nowFunc func() time.Time
	idFunc  func() string
}

// New builds a Ledger over an initialized database. pub may be nil.
func New(db *sql.DB, trust TrustSource, pub Publisher) *Ledger {
	return &Ledger{
		db:      db,
		trust:   trust,
		pub:     pub,
		keys:    newKeyLocks(),
		nowFunc: time.Now,
		idFunc:  uuid.NewString,
	}
}

// SetAutoRollback installs the rollback hook used when a failed action
// carries the auto_rollback flag.
func (l *Ledger) SetAutoRollback(fn RollbackFunc) { l.autoRollback = fn }

// SetNowFunc overrides the clock. Test hook.
func (l *Ledger) SetNowFunc(f func() time.Time) { l.nowFunc = f }

// SetIDFunc overrides ID generation. Test hook.
func (l *Ledger) SetIDFunc(f func() string) { l.idFunc = f }

// LockResource takes the same per-(actor, resource) key Execute serializes
// on, so callers outside the ledger (the rollback coordinator) can block
// against an in-flight run on the resource. The returned func releases it.
func (l *Ledger) LockResource(actorID, resource string) (release func()) {
	return l.keys.acquire(actorID, resource)
}

// RequestAction vets req against the current trust level. A request that
// clears the gate and needs no confirmation is recorded Approved and can run
// immediately; one that needs confirmation parks as Pending. A request below
// the trust threshold is also recorded Pending — the gate mutates nothing —
// and returned alongside a PermissionDeniedError; it becomes runnable once
// trust grows past the threshold.
func (l *Ledger) RequestAction(req protocol.ActionRequest) (protocol.AgencyAction, error) {
	if !req.Type.Valid() {
		return protocol.AgencyAction{}, fmt.Errorf("unknown action type %q", req.Type)
	}
	if req.Resource == "" {
		return protocol.AgencyAction{}, errors.New("action resource must not be empty")
	}

	trust := l.trust.Trust()
	required := capability.TrustRequired(req.Type)

	urgency := req.Urgency
	if urgency == "" {
		urgency = protocol.UrgencyMedium
	}
	source := req.Source
	if source == "" {
		source = protocol.SourceUserRequest
	}

	action := protocol.AgencyAction{
		ID:            l.idFunc(),
		ActorID:       req.ActorID,
		Type:          req.Type,
		Resource:      req.Resource,
		Parameters:    req.Parameters,
		TrustRequired: required,
		Status:        protocol.StatusPending,
		CreatedAt:     l.nowFunc().UTC(),
		Metadata: protocol.ActionMetadata{
			Source:               source,
			Context:              req.Context,
			Urgency:              urgency,
			RiskLevel:            capability.RiskFor(req.Type),
			RequiresConfirmation: capability.RequiresConfirmation(req.Type, trust),
			AutoRollback:         req.AutoRollback,
		},
	}

	var gateErr error
	switch {
	case trust < required:
		gateErr = &protocol.PermissionDeniedError{
			ActionID:      action.ID,
			Type:          action.Type,
			Trust:         trust,
			TrustRequired: required,
		}
	case !action.Metadata.RequiresConfirmation:
		action.Status = protocol.StatusApproved
	}

	if err := l.insert(action); err != nil {
		return protocol.AgencyAction{}, fmt.Errorf("record action: %w", err)
	}
	return action, gateErr
}

// Execute drives one action through Approved → InProgress → Completed or
// Failed, holding the per-(actor, resource) key lock for the whole run.
// approve carries the caller's explicit confirmation for gated actions.
func (l *Ledger) Execute(ctx context.Context, actionID string, approve bool, runner Runner) (protocol.AgencyAction, error) {
	action, err := l.Get(actionID)
	if err != nil {
		return protocol.AgencyAction{}, err
	}

	switch action.Status {
	case protocol.StatusPending, protocol.StatusApproved:
	default:
		return action, &protocol.InvalidStateError{ActionID: actionID, Status: action.Status, Op: "execute"}
	}
	// Re-check the trust gate at run time: a below-threshold request stays
	// Pending and must not become runnable until trust has grown.
	if trust := l.trust.Trust(); trust < action.TrustRequired {
		return action, &protocol.PermissionDeniedError{
			ActionID:      actionID,
			Type:          action.Type,
			Trust:         trust,
			TrustRequired: action.TrustRequired,
		}
	}
	if action.Metadata.RequiresConfirmation && !approve && action.Status == protocol.StatusPending {
		return action, fmt.Errorf("action %s: %w", actionID, ErrConfirmationRequired)
	}

	release := l.keys.acquire(action.ActorID, action.Resource)
	defer release()

	// Re-read under the lock; a concurrent Execute on the same key may have
	// advanced the action while we waited.
	action, err = l.Get(actionID)
	if err != nil {
		return protocol.AgencyAction{}, err
	}
	switch action.Status {
	case protocol.StatusPending, protocol.StatusApproved:
	default:
		return action, &protocol.InvalidStateError{ActionID: actionID, Status: action.Status, Op: "execute"}
	}

	if action.Status == protocol.StatusPending {
		if err := l.transition(actionID, protocol.StatusApproved, protocol.StatusPending); err != nil {
			return action, err
		}
		action.Status = protocol.StatusApproved
	}

	started := l.nowFunc().UTC()
	if err := l.startRun(actionID, started); err != nil {
		return action, err
	}
	action.Status = protocol.StatusInProgress
	action.StartedAt = &started

	outcome, runErr := runner.Run(ctx, action)
	completed := l.nowFunc().UTC()
	action.CompletedAt = &completed
	action.Metadata.CheckpointBefore = outcome.CheckpointBefore
	action.Metadata.CheckpointAfter = outcome.CheckpointAfter

	if runErr != nil {
		action.Status = protocol.StatusFailed
		action.Error = runErr.Error()
		if err := l.finishRun(action); err != nil {
			return action, err
		}
		l.publish(protocol.EventActionFailed, action)
		if action.Metadata.AutoRollback && l.autoRollback != nil {
			// The coordinator re-takes this key; holding it here would
			// deadlock.
			release()
			if _, rbErr := l.autoRollback(actionID, "automatic rollback after failure"); rbErr == nil {
				action.Status = protocol.StatusRolledBack
			}
		}
		if isExecutionShaped(runErr) {
			return action, runErr
		}
		return action, &protocol.ExecutionError{ActionID: actionID, Cause: runErr}
	}

	action.Status = protocol.StatusCompleted
	action.Result = outcome.Result
	if err := l.finishRun(action); err != nil {
		return action, err
	}
	l.publish(protocol.EventActionCompleted, action)
	return action, nil
}

// isExecutionShaped reports whether err already carries an action-scoped
// typed error and should not be wrapped again.
func isExecutionShaped(err error) bool {
	var execErr *protocol.ExecutionError
	var toErr *protocol.TimeoutError
	return errors.As(err, &execErr) || errors.As(err, &toErr)
}

// Reject declines a pending action. The write is guarded on the Pending
// status so a concurrent Execute that already claimed the action wins.
func (l *Ledger) Reject(actionID, reason string) (protocol.AgencyAction, error) {
	action, err := l.Get(actionID)
	if err != nil {
		return protocol.AgencyAction{}, err
	}
	if action.Status != protocol.StatusPending {
		return action, &protocol.InvalidStateError{ActionID: actionID, Status: action.Status, Op: "reject"}
	}
	now := l.nowFunc().UTC()
	res, err := l.db.Exec(
		`UPDATE actions SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`,
		protocol.StatusRejected, nullable(reason), formatTime(now), actionID, protocol.StatusPending,
	)
	if err != nil {
		return action, fmt.Errorf("reject action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return action, &protocol.InvalidStateError{ActionID: actionID, Status: action.Status, Op: "reject"}
	}
	action.Status = protocol.StatusRejected
	action.Error = reason
	action.CompletedAt = &now
	return action, nil
}

// MarkRolledBack records the single Completed/Failed → RolledBack
// transition. Called by the rollback coordinator.
func (l *Ledger) MarkRolledBack(actionID, rollbackID string) (protocol.AgencyAction, error) {
	action, err := l.Get(actionID)
	if err != nil {
		return protocol.AgencyAction{}, err
	}
	switch action.Status {
	case protocol.StatusCompleted, protocol.StatusFailed:
	default:
		return action, &protocol.InvalidStateError{ActionID: actionID, Status: action.Status, Op: "roll back"}
	}
	res, err := l.db.Exec(
		`UPDATE actions SET status = ?, rollback_id = ? WHERE id = ? AND status IN (?, ?)`,
		protocol.StatusRolledBack, rollbackID, actionID,
		protocol.StatusCompleted, protocol.StatusFailed,
	)
	if err != nil {
		return action, fmt.Errorf("mark rolled back: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return action, &protocol.InvalidStateError{ActionID: actionID, Status: action.Status, Op: "roll back"}
	}
	action.Status = protocol.StatusRolledBack
	action.RollbackID = rollbackID
	return action, nil
}

// Get loads one action by ID.
func (l *Ledger) Get(actionID string) (protocol.AgencyAction, error) {
	row := l.db.QueryRow(selectActions+` WHERE id = ?`, actionID)
	action, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.AgencyAction{}, &protocol.NotFoundError{Kind: "action", ID: actionID}
	}
	return action, err
}

// History returns the actor's actions newest-first, capped at limit
// (defaulting to 50).
func (l *Ledger) History(actorID string, limit int) ([]protocol.AgencyAction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(
		selectActions+` WHERE actor_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		actorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return collectActions(rows)
}

// Active returns the actor's Pending, Approved, and InProgress actions,
// oldest-first.
func (l *Ledger) Active(actorID string) ([]protocol.AgencyAction, error) {
	rows, err := l.db.Query(
		selectActions+` WHERE actor_id = ? AND status IN (?, ?, ?) ORDER BY created_at, id`,
		actorID, protocol.StatusPending, protocol.StatusApproved, protocol.StatusInProgress,
	)
	if err != nil {
		return nil, fmt.Errorf("query active: %w", err)
	}
	return collectActions(rows)
}

// Stats aggregates the actor's ledger counters. The trust and tier fields of
// the result are left for the caller to fill.
func (l *Ledger) Stats(actorID string) (protocol.Stats, error) {
	stats := protocol.Stats{
		ActorID:  actorID,
		ByStatus: make(map[protocol.ActionStatus]int),
		ByType:   make(map[protocol.ActionType]int),
	}

	rows, err := l.db.Query(
		`SELECT status, action_type, COUNT(*) FROM actions WHERE actor_id = ? GROUP BY status, action_type`,
		actorID,
	)
	if err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status protocol.ActionStatus
		var typ protocol.ActionType
		var n int
		if err := rows.Scan(&status, &typ, &n); err != nil {
			return stats, err
		}
		stats.ByStatus[status] += n
		stats.ByType[typ] += n
		if status.Active() {
			stats.ActiveCount += n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	completed := stats.ByStatus[protocol.StatusCompleted]
	failed := stats.ByStatus[protocol.StatusFailed]
	rolledBack := stats.ByStatus[protocol.StatusRolledBack]
	if settled := completed + failed + rolledBack; settled > 0 {
		stats.SuccessRate = float64(completed) / float64(settled)
	}

	if err := l.db.QueryRow(
		`SELECT COUNT(*) FROM rollbacks r JOIN actions a ON a.id = r.action_id WHERE a.actor_id = ?`,
		actorID,
	).Scan(&stats.RollbackCount); err != nil {
		return stats, fmt.Errorf("count rollbacks: %w", err)
	}
	if err := l.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE actor_id = ?`, actorID,
	).Scan(&stats.EventCount); err != nil {
		return stats, fmt.Errorf("count events: %w", err)
	}
	return stats, nil
}

func (l *Ledger) publish(typ protocol.EventType, action protocol.AgencyAction) {
	if l.pub == nil {
		return
	}
	a := action
	l.pub.Publish(protocol.Event{
		Type:      typ,
		ActorID:   action.ActorID,
		Action:    &a,
		CreatedAt: l.nowFunc().UTC(),
	})
}

// --- persistence ---

const selectActions = `SELECT id, actor_id, action_type, resource, parameters,
    trust_required, status, created_at, started_at, completed_at,
    result, error, rollback_id, metadata FROM actions`

func (l *Ledger) insert(a protocol.AgencyAction) error {
	params, err := json.Marshal(a.Parameters)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(
		`INSERT INTO actions (id, actor_id, action_type, resource, parameters,
		    trust_required, status, created_at, completed_at, error, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ActorID, a.Type, a.Resource, string(params),
		a.TrustRequired, a.Status, formatTime(a.CreatedAt),
		formatTimePtr(a.CompletedAt), nullable(a.Error), string(meta),
	)
	return err
}

// transition moves status from one named state to another; it fails with
// InvalidStateError if a concurrent writer got there first.
func (l *Ledger) transition(actionID string, to, from protocol.ActionStatus) error {
	res, err := l.db.Exec(
		`UPDATE actions SET status = ? WHERE id = ? AND status = ?`,
		to, actionID, from,
	)
	if err != nil {
		return fmt.Errorf("transition action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &protocol.InvalidStateError{ActionID: actionID, Status: from, Op: "transition"}
	}
	return nil
}

func (l *Ledger) startRun(actionID string, started time.Time) error {
	res, err := l.db.Exec(
		`UPDATE actions SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		protocol.StatusInProgress, formatTime(started), actionID, protocol.StatusApproved,
	)
	if err != nil {
		return fmt.Errorf("start action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &protocol.InvalidStateError{ActionID: actionID, Status: protocol.StatusApproved, Op: "start"}
	}
	return nil
}

func (l *Ledger) finishRun(a protocol.AgencyAction) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(
		`UPDATE actions SET status = ?, completed_at = ?, result = ?, error = ?, metadata = ?
		 WHERE id = ?`,
		a.Status, formatTimePtr(a.CompletedAt), nullable(a.Result), nullable(a.Error),
		string(meta), a.ID,
	)
	if err != nil {
		return fmt.Errorf("finish action: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (protocol.AgencyAction, error) {
	var a protocol.AgencyAction
	var params, meta sql.NullString
	var created string
	var started, completedAt, result, errMsg, rollbackID sql.NullString
	err := row.Scan(&a.ID, &a.ActorID, &a.Type, &a.Resource, &params,
		&a.TrustRequired, &a.Status, &created, &started, &completedAt,
		&result, &errMsg, &rollbackID, &meta)
	if err != nil {
		return a, err
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return a, err
	}
	if started.Valid && started.String != "" {
		t, err := parseTime(started.String)
		if err != nil {
			return a, err
		}
		a.StartedAt = &t
	}
	if completedAt.Valid && completedAt.String != "" {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return a, err
		}
		a.CompletedAt = &t
	}
	a.Result = result.String
	a.Error = errMsg.String
	a.RollbackID = rollbackID.String
	if params.Valid && params.String != "" && params.String != "null" {
		if err := json.Unmarshal([]byte(params.String), &a.Parameters); err != nil {
			return a, fmt.Errorf("decode parameters for %s: %w", a.ID, err)
		}
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &a.Metadata); err != nil {
			return a, fmt.Errorf("decode metadata for %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func collectActions(rows *sql.Rows) ([]protocol.AgencyAction, error) {
	defer rows.Close()
	var out []protocol.AgencyAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
