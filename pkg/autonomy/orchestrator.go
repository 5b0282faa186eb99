// Package autonomy batches autonomous action proposals under one
// take-the-wheel grant. A batch is vetted up front, optionally held for a
// scope confirmation, then executed sequentially.
package autonomy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"warden/pkg/ledger"
	"warden/pkg/protocol"
)

// HoldTTL bounds how long an unconfirmed batch stays claimable.
const HoldTTL = 10 * time.Minute

// Orchestrator runs wheel batches through the ledger.
type Orchestrator struct {
	ledger *ledger.Ledger
	runner ledger.Runner

	mu   sync.Mutex
	held map[string]*heldBatch

	nowFunc func() time.Time
	idFunc  func() string
}

type heldBatch struct {
	actorID      string
	actionIDs    []string
	allowPartial bool
	heldAt       time.Time
}

// New builds an Orchestrator.
func New(led *ledger.Ledger, runner ledger.Runner) *Orchestrator {
	return &Orchestrator{
		ledger:  led,
		runner:  runner,
		held:    make(map[string]*heldBatch),
		nowFunc: time.Now,
		idFunc:  uuid.NewString,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (o *Orchestrator) SetNowFunc(f func() time.Time) { o.nowFunc = f }

// TakeTheWheel vets every proposal through the trust gate, then either runs
// the batch or holds it for an explicit scope confirmation. Vetting failures
// surface as failed batch members, not as request errors: the intent is
// recorded either way.
func (o *Orchestrator) TakeTheWheel(ctx context.Context, req protocol.WheelRequest) (protocol.WheelResult, error) {
	if !req.Trigger.Valid() {
		return protocol.WheelResult{}, fmt.Errorf("unknown trigger type %q", req.Trigger)
	}
	if len(req.Proposals) == 0 {
		return protocol.WheelResult{}, errors.New("wheel request carries no proposals")
	}

	batchID := o.idFunc()
	actionIDs := make([]string, 0, len(req.Proposals))
	for _, p := range req.Proposals {
		p.ActorID = req.ActorID
		p.Source = protocol.SourceAutonomous
		if p.Context == "" {
			p.Context = req.Context
		}
		action, err := o.ledger.RequestAction(p)
		if err != nil {
			var denied *protocol.PermissionDeniedError
			if !errors.As(err, &denied) {
				return protocol.WheelResult{}, fmt.Errorf("vet proposal %s: %w", p.Type, err)
			}
			// Denied proposals stay in the batch; the run-time trust gate
			// refuses them again and they become the stopping point.
		}
		actionIDs = append(actionIDs, action.ID)
	}

	if req.RequiresScopeConfirmation {
		o.mu.Lock()
		o.held[batchID] = &heldBatch{
			actorID:      req.ActorID,
			actionIDs:    actionIDs,
			allowPartial: req.AllowPartial,
			heldAt:       o.nowFunc(),
		}
		o.mu.Unlock()
		return protocol.WheelResult{BatchID: batchID, Confirmed: false}, nil
	}

	return o.run(ctx, batchID, actionIDs, req.AllowPartial), nil
}

// Confirm releases a held batch and executes it. A batch can be confirmed
// once; unknown or expired IDs return NotFoundError.
func (o *Orchestrator) Confirm(ctx context.Context, batchID string) (protocol.WheelResult, error) {
	o.mu.Lock()
	batch, ok := o.held[batchID]
	if ok {
		delete(o.held, batchID)
	}
	o.mu.Unlock()

	if !ok || o.nowFunc().Sub(batch.heldAt) > HoldTTL {
		return protocol.WheelResult{}, &protocol.NotFoundError{Kind: "batch", ID: batchID}
	}
	return o.run(ctx, batchID, batch.actionIDs, batch.allowPartial), nil
}

// HeldCount reports how many batches await confirmation.
func (o *Orchestrator) HeldCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.held)
}

// run executes the batch members in proposal order. The wheel grant stands
// in for per-action confirmation. The first failure stops the batch unless
// allowPartial is set.
func (o *Orchestrator) run(ctx context.Context, batchID string, actionIDs []string, allowPartial bool) protocol.WheelResult {
	result := protocol.WheelResult{BatchID: batchID, Confirmed: true}
	for _, id := range actionIDs {
		done, err := o.ledger.Execute(ctx, id, true, o.runner)
		if err != nil {
			if result.StoppedAt == "" {
				result.StoppedAt = id
			}
			if !allowPartial {
				break
			}
			continue
		}
		result.Completed = append(result.Completed, done)
	}
	result.CompletedCount = len(result.Completed)
	return result
}
