// Package emotion implements the emotional core: the single-writer owner of
// one actor scope's continuous state vector. All mutation goes through one
// mutex — the asymptotic update is not commutative, so concurrent applies
// must be serialized. Every successful mutation is durable in SQLite before
// the corresponding event is published.
package emotion

import (
	"fmt"
	"math"
	"sync"
	"time"

	"warden/pkg/protocol"
	"warden/pkg/tier"
)

// Publisher pushes events to observers. Implementations must never block;
// fan-out failures are swallowed.
type Publisher interface {
	Publish(ev protocol.Event)
}

// SnapshotStore persists EmotionalState snapshots.
type SnapshotStore interface {
	Load(actorID string) (protocol.EmotionalState, bool, error)
	Save(state protocol.EmotionalState) error
}

// Tuning holds the core's behavioral constants. Zero values fall back to
// defaults; the engine may hot-reload these from config.
type Tuning struct {
	ElasticityFactor float64       // delta multiplier in elastic mode (> 1)
	MaxTrustStep     float64       // trust delta cap per apply, elastic or not
	DecayHalfLife    time.Duration // arousal/valence half-life toward 0.5

	CrisisValenceMax float64 // crisis when valence below this...
	CrisisArousalMin float64 // ...and arousal above this
	DoorSlamDelta    float64 // door slam on raw trust delta at or below -this
	DoorSlamArousal  float64 // ...with arousal above this

	ReunionWarmth  float64 // fixed reunion surge deltas
	ReunionValence float64
}

func (t Tuning) withDefaults() Tuning {
	out := t
	if out.ElasticityFactor == 0 {
		out.ElasticityFactor = 1.5
	}
	if out.MaxTrustStep == 0 {
		out.MaxTrustStep = 0.05
	}
	if out.DecayHalfLife == 0 {
		out.DecayHalfLife = 6 * time.Hour
	}
	if out.CrisisValenceMax == 0 {
		out.CrisisValenceMax = 0.2
	}
	if out.CrisisArousalMin == 0 {
		out.CrisisArousalMin = 0.8
	}
	if out.DoorSlamDelta == 0 {
		out.DoorSlamDelta = 0.15
	}
	if out.DoorSlamArousal == 0 {
		out.DoorSlamArousal = 0.7
	}
	if out.ReunionWarmth == 0 {
		out.ReunionWarmth = 0.1
	}
	if out.ReunionValence == 0 {
		out.ReunionValence = 0.15
	}
	return out
}

// Default returns the state a brand-new actor scope starts from.
func Default(actorID string) protocol.EmotionalState {
	s := protocol.EmotionalState{
		ActorID:    actorID,
		Trust:      0.3,
		Warmth:     0.4,
		Arousal:    0.5,
		Valence:    0.5,
		Empathy:    0.5,
		Intuition:  0.5,
		Creativity: 0.5,
		Wisdom:     0.5,
		Humor:      0.5,
		Mode:       protocol.ModeLive,
	}
	s.Posture = derivePosture(s.Trust, s.Warmth)
	return s
}

// Core owns one actor scope's emotional state.
type Core struct {
	store SnapshotStore
	pub   Publisher

	mu     sync.Mutex
	state  protocol.EmotionalState
	tuning Tuning

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// NewCore loads the last persisted snapshot for actorID (or seeds the
// default) and returns the core that owns it.
func NewCore(actorID string, store SnapshotStore, pub Publisher, tuning Tuning) (*Core, error) {
	state, ok, err := store.Load(actorID)
	if err != nil {
		return nil, fmt.Errorf("load state for %s: %w", actorID, err)
	}
	if !ok {
		state = Default(actorID)
		if err := store.Save(state); err != nil {
			return nil, fmt.Errorf("seed state for %s: %w", actorID, err)
		}
	}
	c := &Core{
		store:   store,
		pub:     pub,
		state:   state,
		tuning:  tuning.withDefaults(),
		nowFunc: time.Now,
	}
	return c, nil
}

// SetNowFunc overrides the clock (for testing).
func (c *Core) SetNowFunc(f func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFunc = f
}

// SetTuning swaps the behavioral constants (config hot-reload).
func (c *Core) SetTuning(t Tuning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tuning = t.withDefaults()
}

// Snapshot returns a copy of the current state.
func (c *Core) Snapshot() protocol.EmotionalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Trust returns the current trust scalar.
func (c *Core) Trust() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Trust
}

// asymptotic applies a signed delta to a [0,1] scalar so that the effective
// step shrinks as the scalar approaches a bound: repeated strong inputs
// converge but never saturate instantly.
func asymptotic(old, delta float64) float64 {
	var next float64
	if delta >= 0 {
		next = old + delta*(1-old)
	} else {
		next = old + delta*old
	}
	return clamp01(next)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Apply folds a delta into the state. When elastic is true, delta
// magnitudes are multiplied by the elasticity factor first; the trust delta
// stays rate-limited to MaxTrustStep either way. When interaction is true
// the interaction counter and last-interaction timestamp advance.
//
// The updated snapshot is durable before Apply returns; events publish
// after the write commits.
func (c *Core) Apply(delta protocol.EmotionalDelta, elastic, interaction bool) (protocol.EmotionalState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(delta, elastic, interaction)
}

func (c *Core) applyLocked(delta protocol.EmotionalDelta, elastic, interaction bool) (protocol.EmotionalState, error) {
	old := c.state
	next := old
	now := c.nowFunc().UTC()

	if elastic {
		f := c.tuning.ElasticityFactor
		delta.Trust *= f
		delta.Warmth *= f
		delta.Arousal *= f
		delta.Valence *= f
		delta.Empathy *= f
		delta.Intuition *= f
		delta.Creativity *= f
		delta.Wisdom *= f
		delta.Humor *= f
	}

	// Trust changes slowly by design: cap the step after elasticity.
	rawTrustDelta := delta.Trust
	delta.Trust = math.Max(-c.tuning.MaxTrustStep, math.Min(c.tuning.MaxTrustStep, delta.Trust))

	next.Trust = asymptotic(old.Trust, delta.Trust)
	next.Warmth = asymptotic(old.Warmth, delta.Warmth)
	next.Arousal = asymptotic(old.Arousal, delta.Arousal)
	next.Valence = asymptotic(old.Valence, delta.Valence)
	next.Empathy = asymptotic(old.Empathy, delta.Empathy)
	next.Intuition = asymptotic(old.Intuition, delta.Intuition)
	next.Creativity = asymptotic(old.Creativity, delta.Creativity)
	next.Wisdom = asymptotic(old.Wisdom, delta.Wisdom)
	next.Humor = asymptotic(old.Humor, delta.Humor)

	if interaction {
		next.InteractionCount++
		next.LastInteraction = now
	}

	c.deriveFlags(&next, rawTrustDelta)

	if err := c.store.Save(next); err != nil {
		// No partial in-memory mutation: c.state is untouched.
		return old, fmt.Errorf("persist state: %w", err)
	}
	c.state = next

	c.publishChange(old, next)
	return next, nil
}

// deriveFlags recomputes posture, crisis, and door-slam from the updated
// scalars. Both flags auto-clear once their triggering condition no longer
// holds.
func (c *Core) deriveFlags(s *protocol.EmotionalState, rawTrustDelta float64) {
	s.Posture = derivePosture(s.Trust, s.Warmth)

	crisis := s.Valence < c.tuning.CrisisValenceMax && s.Arousal > c.tuning.CrisisArousalMin
	s.CrisisActive = crisis
	if crisis {
		s.Mode = protocol.ModeCrisis
	} else if s.Mode == protocol.ModeCrisis {
		s.Mode = protocol.ModeLive
	}

	switch {
	case rawTrustDelta <= -c.tuning.DoorSlamDelta && s.Arousal > c.tuning.DoorSlamArousal:
		s.DoorSlamActive = true
	case s.DoorSlamActive && (rawTrustDelta > 0 || s.Arousal <= c.tuning.DoorSlamArousal):
		s.DoorSlamActive = false
	}
}

// derivePosture picks the interaction style from the (trust, warmth)
// quadrant, split at 0.5.
func derivePosture(trust, warmth float64) protocol.Posture {
	highTrust := trust >= 0.5
	highWarmth := warmth >= 0.5
	switch {
	case highTrust && highWarmth:
		return protocol.PostureCoPilot
	case !highTrust && highWarmth:
		return protocol.PostureCompanion
	case highTrust && !highWarmth:
		return protocol.PostureExpert
	default:
		return protocol.PosturePeer
	}
}

// publishChange emits state-changed, plus tier-changed when the resolved
// tier index differs, plus crisis-alert on a rising crisis edge.
func (c *Core) publishChange(old, next protocol.EmotionalState) {
	if c.pub == nil {
		return
	}
	now := c.nowFunc().UTC()
	state := next
	c.pub.Publish(protocol.Event{
		Type:      protocol.EventStateChanged,
		ActorID:   next.ActorID,
		State:     &state,
		CreatedAt: now,
	})
	if change, changed := tier.Changed(old.Trust, next.Trust); changed {
		c.pub.Publish(protocol.Event{
			Type:       protocol.EventTierChanged,
			ActorID:    next.ActorID,
			TierChange: &change,
			CreatedAt:  now,
		})
	}
	if next.CrisisActive && !old.CrisisActive {
		c.pub.Publish(protocol.Event{
			Type:    protocol.EventCrisisAlert,
			ActorID: next.ActorID,
			Alert: protocol.FormatAlert(next.ActorID, "acute negative-affect episode",
				fmt.Sprintf("valence %.2f arousal %.2f", next.Valence, next.Arousal)),
			CreatedAt: now,
		})
	}
}

// PenalizeTrust subtracts a raw amount from the trust scalar, bypassing the
// asymptotic curve and the MaxTrustStep cap. Used for rollback penalties,
// where the cost is the same wherever trust sits.
func (c *Core) PenalizeTrust(amount float64) (protocol.EmotionalState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.state
	next := old
	next.Trust = clamp01(old.Trust - amount)
	c.deriveFlags(&next, -amount)

	if err := c.store.Save(next); err != nil {
		return old, fmt.Errorf("persist state: %w", err)
	}
	c.state = next
	c.publishChange(old, next)
	return next, nil
}

// Decay pulls arousal and valence toward 0.5 with an exponential half-life
// over the elapsed time since the last decay pass. Trust, warmth, and the
// extended traits decay only via explicit deltas. A persistence failure is
// returned to the caller; the decay loop logs and swallows it.
func (c *Core) Decay(elapsed time.Duration) (protocol.EmotionalState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elapsed <= 0 {
		return c.state, nil
	}

	old := c.state
	next := old
	now := c.nowFunc().UTC()

	factor := math.Pow(0.5, elapsed.Seconds()/c.tuning.DecayHalfLife.Seconds())
	next.Arousal = 0.5 + (old.Arousal-0.5)*factor
	next.Valence = 0.5 + (old.Valence-0.5)*factor
	next.LastDecay = now

	c.deriveFlags(&next, 0)

	if err := c.store.Save(next); err != nil {
		return old, fmt.Errorf("persist decayed state: %w", err)
	}
	c.state = next

	c.publishChange(old, next)
	return next, nil
}

// ReunionSurge applies the fixed reconnection delta to warmth and valence
// and emits a reunion-surge event.
func (c *Core) ReunionSurge() (protocol.EmotionalState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.applyLocked(protocol.EmotionalDelta{
		Warmth:  c.tuning.ReunionWarmth,
		Valence: c.tuning.ReunionValence,
	}, false, true)
	if err != nil {
		return next, err
	}

	if c.pub != nil {
		state := next
		c.pub.Publish(protocol.Event{
			Type:      protocol.EventReunionSurge,
			ActorID:   next.ActorID,
			State:     &state,
			CreatedAt: c.nowFunc().UTC(),
		})
	}
	return next, nil
}

// SetElastic toggles elastic mode on the persisted state.
func (c *Core) SetElastic(on bool) (protocol.EmotionalState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state
	next.ElasticMode = on
	if err := c.store.Save(next); err != nil {
		return c.state, fmt.Errorf("persist state: %w", err)
	}
	c.state = next
	return next, nil
}

// Elastic reports whether elastic mode is on.
func (c *Core) Elastic() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ElasticMode
}

// Reset restores the default state. Non-production use only.
func (c *Core) Reset() (protocol.EmotionalState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.state
	next := Default(old.ActorID)
	if err := c.store.Save(next); err != nil {
		return old, fmt.Errorf("persist reset state: %w", err)
	}
	c.state = next
	c.publishChange(old, next)
	return next, nil
}
