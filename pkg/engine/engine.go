// Package engine wires the emotional core, trust gate, ledger, execution,
// rollback, and autonomy components together and serves them over a Unix
// domain socket. Clients send one line-delimited JSON Command per line and
// read one Response, except subscribe, which upgrades the connection to a
// one-way Event stream.
package engine

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"warden/pkg/autonomy"
	"warden/pkg/capability"
	"warden/pkg/checkpoint"
	"warden/pkg/emotion"
	"warden/pkg/execution"
	"warden/pkg/fanout"
	"warden/pkg/ledger"
	"warden/pkg/perception"
	"warden/pkg/protocol"
	"warden/pkg/rollback"
	"warden/pkg/tier"
)

// Config holds the resolved runtime configuration.
type Config struct {
	ActorID    string
	SocketPath string
	DBPath     string
	Workspace  string

	DecayInterval time.Duration
	ActionTimeout time.Duration
	EventBuffer   int

	Tuning emotion.Tuning
}

func (c Config) withDefaults() Config {
	if c.ActorID == "" {
		c.ActorID = "primary"
	}
	if c.DecayInterval <= 0 {
		c.DecayInterval = time.Minute
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = execution.DefaultTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = fanout.DefaultBufferSize
	}
	return c
}

// openDB opens the engine database with WAL journaling and a busy timeout,
// and verifies the connection before returning.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}
	return db, nil
}

// durablePublisher writes each event to the events table before fanning it
// out, so the log survives even when no observer is connected.
type durablePublisher struct {
	db  *sql.DB
	hub *fanout.Hub
}

func (p *durablePublisher) Publish(ev protocol.Event) {
	payload, err := json.Marshal(ev)
	if err == nil {
		var actionID string
		if ev.Action != nil {
			actionID = ev.Action.ID
		}
		if _, err := p.db.Exec(
			`INSERT INTO events (type, actor_id, action_id, payload) VALUES (?, ?, ?, ?)`,
			ev.Type, ev.ActorID, actionID, string(payload),
		); err != nil {
			log.Printf("warden: log event %s: %v", ev.Type, err)
		}
	}
	p.hub.Publish(ev)
}

// Engine is the composed warden daemon.
type Engine struct {
	cfg Config
	db  *sql.DB
	hub *fanout.Hub
	pub *durablePublisher

	core        *emotion.Core
	perceive    *perception.Processor
	ledger      *ledger.Ledger
	exec        *execution.Engine
	rollback    *rollback.Coordinator
	autonomy    *autonomy.Orchestrator
	checkpoints *checkpoint.Store

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}

	nowFunc func() time.Time
}

// New opens the database, initializes the schema, and composes the engine.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	db, err := openDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	hub := fanout.NewHub(cfg.EventBuffer)
	pub := &durablePublisher{db: db, hub: hub}

	core, err := emotion.NewCore(cfg.ActorID, emotion.NewStore(db), pub, cfg.Tuning)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init emotional core: %w", err)
	}

	cps := checkpoint.NewStore(db)
	led := ledger.New(db, core, pub)
	exec := execution.NewEngine(cps, execution.Config{
		Workspace: cfg.Workspace,
		Timeout:   cfg.ActionTimeout,
	})
	snap := checkpoint.FileSnapshotter{Root: cfg.Workspace}
	rb := rollback.New(db, led, cps, snap, core, pub)
	led.SetAutoRollback(func(actionID, reason string) (protocol.RollbackResult, error) {
		return rb.Rollback(actionID, reason, false)
	})

	e := &Engine{
		cfg:         cfg,
		db:          db,
		hub:         hub,
		pub:         pub,
		core:        core,
		perceive:    perception.New(nil, 0),
		ledger:      led,
		exec:        exec,
		rollback:    rb,
		autonomy:    autonomy.New(led, exec),
		checkpoints: cps,
		conns:       make(map[net.Conn]struct{}),
		nowFunc:     time.Now,
	}
	return e, nil
}

// Core exposes the emotional core for embedding callers.
func (e *Engine) Core() *emotion.Core { return e.core }

// Ledger exposes the action ledger for embedding callers.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Executor exposes the execution engine so callers can register handlers
// for action types with no built-in (email, api_call, research).
func (e *Engine) Executor() *execution.Engine { return e.exec }

// Run serves the socket until ctx is cancelled, then shuts down gracefully.
func (e *Engine) Run(ctx context.Context) error {
	// A stale socket file from a crashed daemon blocks the bind.
	if err := removeStaleSocket(e.cfg.SocketPath); err != nil {
		return err
	}
	ln, err := net.Listen("unix", e.cfg.SocketPath) //nolint:noctx // UDS bind is instant
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", e.cfg.SocketPath, err)
	}
	e.mu.Lock()
	e.listener = ln
	e.mu.Unlock()

	go e.acceptLoop(ctx, ln)
	go e.decayLoop(ctx)

	<-ctx.Done()

	_ = ln.Close()
	e.mu.Lock()
	for conn := range e.conns {
		_ = conn.Close()
	}
	e.conns = make(map[net.Conn]struct{})
	e.mu.Unlock()
	_ = os.Remove(e.cfg.SocketPath)
	return e.db.Close()
}

func removeStaleSocket(path string) error {
	conn, err := net.DialTimeout("unix", path, 200*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is already served", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

func (e *Engine) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		e.mu.Lock()
		e.conns[conn] = struct{}{}
		e.mu.Unlock()
		go e.handleConn(ctx, conn)
	}
}

// handleConn reads line-delimited JSON commands until the client hangs up.
func (e *Engine) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		_ = conn.Close()
		e.mu.Lock()
		delete(e.conns, conn)
		e.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		var cmd protocol.Command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			_ = encoder.Encode(protocol.Response{Err: "malformed command"})
			continue
		}

		if cmd.Op == protocol.OpSubscribe {
			if err := encoder.Encode(protocol.Response{OK: true}); err != nil {
				return
			}
			e.streamEvents(ctx, encoder)
			return
		}

		resp := e.handle(ctx, cmd)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

// streamEvents turns the connection into a one-way event feed. Delivery is
// at-most-once; a reconnecting observer pulls full state to resynchronize.
func (e *Engine) streamEvents(ctx context.Context, encoder *json.Encoder) {
	sub := e.hub.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Events():
			for _, ev := range sub.Drain() {
				if err := encoder.Encode(ev); err != nil {
					return
				}
			}
		}
	}
}

// decayLoop applies exponential decay of arousal and valence toward
// baseline on a fixed cadence.
func (e *Engine) decayLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.DecayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.core.Decay(e.cfg.DecayInterval); err != nil {
				log.Printf("warden: decay: %v", err)
			}
		}
	}
}

// handle dispatches one command to the owning component.
func (e *Engine) handle(ctx context.Context, cmd protocol.Command) protocol.Response {
	switch cmd.Op {
	case protocol.OpTrustGet:
		trust := e.core.Trust()
		t := tier.Resolve(trust)
		return protocol.Response{OK: true, Trust: &trust, Tier: &t}

	case protocol.OpTierTable:
		return protocol.Response{OK: true, Tiers: tier.Table()}

	case protocol.OpStateGet:
		state := e.core.Snapshot()
		return protocol.Response{OK: true, State: &state}

	case protocol.OpStateReset:
		state, err := e.core.Reset()
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, State: &state}

	case protocol.OpPerceive:
		return e.handlePerceive(cmd)

	case protocol.OpElasticSet:
		if cmd.Elastic == nil {
			return errResponse(errors.New("elastic_set requires the elastic field"))
		}
		state, err := e.core.SetElastic(*cmd.Elastic)
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, State: &state}

	case protocol.OpReunion:
		state, err := e.core.ReunionSurge()
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, State: &state}

	case protocol.OpHistoryGet:
		interactions, err := e.interactionHistory(cmd.ActorID, cmd.Limit)
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, Interactions: interactions}

	case protocol.OpActionRequest:
		if cmd.Request == nil {
			return errResponse(errors.New("action_request requires the request field"))
		}
		req := *cmd.Request
		if req.ActorID == "" {
			req.ActorID = e.actor(cmd)
		}
		action, err := e.ledger.RequestAction(req)
		if err != nil {
			resp := errResponse(err)
			if action.ID != "" {
				resp.Action = &action
			}
			return resp
		}
		return protocol.Response{OK: true, Action: &action}

	case protocol.OpActionExec:
		action, err := e.ledger.Execute(ctx, cmd.ActionID, cmd.Approve, e.exec)
		if err != nil {
			resp := errResponse(err)
			if action.ID != "" {
				resp.Action = &action
			}
			return resp
		}
		return protocol.Response{OK: true, Action: &action}

	case protocol.OpActionGet:
		action, err := e.ledger.Get(cmd.ActionID)
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, Action: &action}

	case protocol.OpActionHistory:
		actions, err := e.ledger.History(e.actor(cmd), cmd.Limit)
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, Actions: actions}

	case protocol.OpActionActive:
		actions, err := e.ledger.Active(e.actor(cmd))
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, Actions: actions}

	case protocol.OpActionReject:
		action, err := e.ledger.Reject(cmd.ActionID, cmd.Reason)
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, Action: &action}

	case protocol.OpRollback:
		if cmd.Rollback == nil {
			return errResponse(errors.New("rollback requires the rollback field"))
		}
		result, err := e.rollback.Rollback(cmd.Rollback.ActionID, cmd.Rollback.Reason, cmd.Rollback.Force)
		if err != nil {
			resp := errResponse(err)
			if result.RollbackID != "" {
				resp.Rollback = &result
			}
			return resp
		}
		return protocol.Response{OK: true, Rollback: &result}

	case protocol.OpWheel:
		if cmd.Wheel == nil {
			return errResponse(errors.New("wheel requires the wheel field"))
		}
		req := *cmd.Wheel
		if req.ActorID == "" {
			req.ActorID = e.actor(cmd)
		}
		result, err := e.autonomy.TakeTheWheel(ctx, req)
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, Wheel: &result}

	case protocol.OpWheelConfirm:
		result, err := e.autonomy.Confirm(ctx, cmd.BatchID)
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, Wheel: &result}

	case protocol.OpStatsGet:
		stats, err := e.stats(e.actor(cmd))
		if err != nil {
			return errResponse(err)
		}
		return protocol.Response{OK: true, Stats: &stats}

	case protocol.OpCapabilitiesGet:
		return protocol.Response{OK: true, Capabilities: capability.Catalog()}

	default:
		return errResponse(fmt.Errorf("unknown op %q", cmd.Op))
	}
}

func (e *Engine) actor(cmd protocol.Command) string {
	if cmd.ActorID != "" {
		return cmd.ActorID
	}
	return e.cfg.ActorID
}

func errResponse(err error) protocol.Response {
	return protocol.Response{Err: err.Error()}
}

// handlePerceive runs one raw input through the perception processor,
// applies the resulting delta, and records the interaction.
func (e *Engine) handlePerceive(cmd protocol.Command) protocol.Response {
	if cmd.Perceive == nil || cmd.Perceive.Input == "" {
		return errResponse(errors.New("perceive requires a non-empty input"))
	}
	p := cmd.Perceive

	before := e.core.Snapshot()
	result := e.perceive.Process(p.Input, p.Context, before.Valence)

	state, err := e.core.Apply(result.Delta, before.ElasticMode, true)
	if err != nil {
		return errResponse(err)
	}

	if result.Urgency == protocol.UrgencyCrisis {
		e.pub.Publish(protocol.Event{
			Type:      protocol.EventCrisisAlert,
			ActorID:   state.ActorID,
			Alert:     protocol.FormatAlert(state.ActorID, "crisis language detected", p.Input),
			CreatedAt: e.nowFunc().UTC(),
		})
	}

	delta, marshalErr := json.Marshal(result.Delta)
	if marshalErr == nil {
		if _, err := e.db.Exec(
			`INSERT INTO interactions (actor_id, input, emotion, urgency, alignment, delta)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			state.ActorID, p.Input, result.Emotion, result.Urgency, result.Alignment, string(delta),
		); err != nil {
			log.Printf("warden: record interaction: %v", err)
		}
	}

	return protocol.Response{OK: true, Perceive: &protocol.PerceiveResult{
		Delta:     result.Delta,
		Emotion:   result.Emotion,
		Urgency:   result.Urgency,
		Alignment: result.Alignment,
		State:     state,
	}}
}

func (e *Engine) interactionHistory(actorID string, limit int) ([]protocol.Interaction, error) {
	if actorID == "" {
		actorID = e.cfg.ActorID
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := e.db.Query(
		`SELECT id, actor_id, input, emotion, urgency, alignment, delta, created_at
		 FROM interactions WHERE actor_id = ? ORDER BY id DESC LIMIT ?`,
		actorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []protocol.Interaction
	for rows.Next() {
		var it protocol.Interaction
		var delta, created string
		if err := rows.Scan(&it.ID, &it.ActorID, &it.Input, &it.Emotion,
			&it.Urgency, &it.Alignment, &delta, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(delta), &it.Delta); err != nil {
			return nil, fmt.Errorf("decode interaction delta: %w", err)
		}
		if t, err := time.Parse("2006-01-02 15:04:05", created); err == nil {
			it.CreatedAt = t
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (e *Engine) stats(actorID string) (protocol.Stats, error) {
	stats, err := e.ledger.Stats(actorID)
	if err != nil {
		return stats, err
	}
	trust := e.core.Trust()
	t := tier.Resolve(trust)
	stats.Trust = trust
	stats.Tier = t.Tier
	stats.TierName = t.Name
	return stats, nil
}
