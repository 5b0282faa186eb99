// Package rollback reverts settled actions to their pre-execution
// checkpoint. Each rollback is its own audit entry; the original action row
// stays immutable apart from the single transition to RolledBack.
package rollback

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"warden/pkg/checkpoint"
	"warden/pkg/ledger"
	"warden/pkg/protocol"
)

// TrustPenalty is the raw amount subtracted from the trust scalar once per
// rollback. A rollback means the engine acted and had to be unwound; the
// cost is linear, not asymptotic, so every unwind hurts the same.
const TrustPenalty = 0.02

// Snapshotter restores resource content. Satisfied by
// checkpoint.FileSnapshotter.
type Snapshotter interface {
	Restore(resource string, content []byte, existed bool) error
}

// StateAdjuster debits the trust scalar by a raw amount. Satisfied by
// emotion.Core.
type StateAdjuster interface {
	PenalizeTrust(amount float64) (protocol.EmotionalState, error)
}

// Publisher pushes events to observers without blocking.
type Publisher interface {
	Publish(ev protocol.Event)
}

// Coordinator drives rollbacks end to end.
type Coordinator struct {
	db          *sql.DB
	ledger      *ledger.Ledger
	checkpoints *checkpoint.Store
	snap        Snapshotter
	state       StateAdjuster
	pub         Publisher

	nowFunc func() time.Time
	idFunc  func() string
}

// New builds a Coordinator. state and pub may be nil.
func New(db *sql.DB, led *ledger.Ledger, cps *checkpoint.Store, snap Snapshotter, state StateAdjuster, pub Publisher) *Coordinator {
	return &Coordinator{
		db:          db,
		ledger:      led,
		checkpoints: cps,
		snap:        snap,
		state:       state,
		pub:         pub,
		nowFunc:     time.Now,
		idFunc:      uuid.NewString,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (c *Coordinator) SetNowFunc(f func() time.Time) { c.nowFunc = f }

// Rollback restores the action's resource from its pre-execution checkpoint.
// reason is mandatory. force bypasses the terminal-status guard only; an
// action without a checkpoint can never be rolled back, forced or not.
func (c *Coordinator) Rollback(actionID, reason string, force bool) (protocol.RollbackResult, error) {
	if reason == "" {
		return protocol.RollbackResult{}, errors.New("rollback reason must not be empty")
	}

	action, err := c.ledger.Get(actionID)
	if err != nil {
		return protocol.RollbackResult{}, err
	}

	// Block on the same per-(actor, resource) key the execute path holds, so
	// a restore never races a run touching the resource.
	release := c.ledger.LockResource(action.ActorID, action.Resource)
	defer release()

	// Re-read under the lock; the run we waited on may have settled or
	// rolled the action back.
	action, err = c.ledger.Get(actionID)
	if err != nil {
		return protocol.RollbackResult{}, err
	}

	if action.Status == protocol.StatusRolledBack {
		return protocol.RollbackResult{}, &protocol.InvalidStateError{
			ActionID: actionID, Status: action.Status, Op: "roll back",
		}
	}
	if !force {
		switch action.Status {
		case protocol.StatusCompleted, protocol.StatusFailed:
		default:
			return protocol.RollbackResult{}, &protocol.NotRollbackableError{
				ActionID: actionID,
				Status:   action.Status,
				Reason:   "action has not settled",
			}
		}
	}

	ref := action.Metadata.CheckpointBefore
	if ref == "" {
		return protocol.RollbackResult{}, &protocol.NotRollbackableError{
			ActionID: actionID,
			Status:   action.Status,
			Reason:   "no checkpoint recorded",
		}
	}

	cp, content, err := c.checkpoints.Get(ref)
	if err != nil {
		return protocol.RollbackResult{}, err
	}

	rbID := c.idFunc()
	now := c.nowFunc().UTC()
	result := protocol.RollbackResult{
		RollbackID:    rbID,
		CheckpointRef: ref,
		Timestamp:     now,
	}

	if err := c.snap.Restore(cp.Resource, content, cp.Existed); err != nil {
		result.Error = err.Error()
		if auditErr := c.audit(rbID, actionID, ref, reason, force, "", result); auditErr != nil {
			return result, auditErr
		}
		return result, fmt.Errorf("restore %s: %w", cp.Resource, err)
	}
	result.Success = true
	result.RestoredResources = []string{cp.Resource}

	if err := c.audit(rbID, actionID, ref, reason, force, cp.Resource, result); err != nil {
		return result, err
	}

	if _, err := c.ledger.MarkRolledBack(actionID, rbID); err != nil {
		return result, err
	}

	// One penalty per rollback regardless of how many resources restored.
	if c.state != nil {
		if _, err := c.state.PenalizeTrust(TrustPenalty); err != nil {
			return result, fmt.Errorf("apply trust penalty: %w", err)
		}
	}

	if c.pub != nil {
		r := result
		c.pub.Publish(protocol.Event{
			Type:      protocol.EventRollbackCompleted,
			ActorID:   action.ActorID,
			Rollback:  &r,
			CreatedAt: now,
		})
	}
	return result, nil
}

func (c *Coordinator) audit(rbID, actionID, ref, reason string, forced bool, restored string, result protocol.RollbackResult) error {
	success := 0
	if result.Success {
		success = 1
	}
	forcedInt := 0
	if forced {
		forcedInt = 1
	}
	if _, err := c.db.Exec(
		`INSERT INTO rollbacks (id, action_id, checkpoint_ref, reason, forced, restored, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rbID, actionID, ref, reason, forcedInt, restored, success,
		result.Error, result.Timestamp.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("record rollback audit: %w", err)
	}
	return nil
}
