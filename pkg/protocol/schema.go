package protocol

// SchemaDDL defines the SQLite schema for the warden engine database.
// Tables: emotional_state, actions, rollbacks, checkpoints, interactions,
// events. Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- One durable EmotionalState snapshot per actor scope.
-- The previous snapshot is only replaced inside a committed transaction,
-- so a crash never loses the last durable state.
CREATE TABLE IF NOT EXISTS emotional_state (
    actor_id   TEXT PRIMARY KEY,
    snapshot   TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Append-only agency action log. Terminal rows are immutable.
CREATE TABLE IF NOT EXISTS actions (
    id             TEXT PRIMARY KEY,
    actor_id       TEXT NOT NULL,
    action_type    TEXT NOT NULL,
    resource       TEXT NOT NULL,
    parameters     TEXT,
    trust_required REAL NOT NULL,
    status         TEXT NOT NULL,
    created_at     TEXT NOT NULL,
    started_at     TEXT,
    completed_at   TEXT,
    result         TEXT,
    error          TEXT,
    rollback_id    TEXT,
    metadata       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_actions_key
    ON actions (actor_id, resource, status);

CREATE INDEX IF NOT EXISTS idx_actions_created
    ON actions (created_at DESC);

-- Rollback audit entries, distinct from the original action rows.
CREATE TABLE IF NOT EXISTS rollbacks (
    id             TEXT PRIMARY KEY,
    action_id      TEXT NOT NULL,
    checkpoint_ref TEXT NOT NULL,
    reason         TEXT NOT NULL,
    forced         INTEGER NOT NULL DEFAULT 0,
    restored       TEXT,
    success        INTEGER NOT NULL,
    error          TEXT,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    FOREIGN KEY (action_id) REFERENCES actions(id)
);

-- Content-addressed checkpoint blobs. blob_sha is the SHA-256 of content;
-- identical snapshots share one row.
CREATE TABLE IF NOT EXISTS checkpoints (
    id         TEXT PRIMARY KEY,
    action_id  TEXT NOT NULL,
    resource   TEXT NOT NULL,
    blob_sha   TEXT NOT NULL,
    existed    INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS checkpoint_blobs (
    sha     TEXT PRIMARY KEY,
    content BLOB NOT NULL
);

-- Bounded interaction history: perception inputs and resulting deltas.
CREATE TABLE IF NOT EXISTS interactions (
    id         INTEGER PRIMARY KEY,
    actor_id   TEXT NOT NULL,
    input      TEXT NOT NULL,
    emotion    TEXT NOT NULL,
    urgency    TEXT NOT NULL,
    alignment  REAL NOT NULL,
    delta      TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Engine event log: every state/tier/action/rollback event, durable before
-- it is pushed to observers.
CREATE TABLE IF NOT EXISTS events (
    id         INTEGER PRIMARY KEY,
    type       TEXT NOT NULL,
    actor_id   TEXT,
    action_id  TEXT,
    payload    TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
