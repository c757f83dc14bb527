// Package store provides SQLite-based persistence for the coordinator:
// the reputation event log and compacted score snapshot, node metadata,
// and (optional, for observability) task history — the three schemas
// of the coordinator's persisted state.
//
// Uses WAL mode so reads don't block the single writer goroutine per
// table that each owning component maintains.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO required

	"github.com/iris-network/coordinator/internal/shared"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/iris.db.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "iris.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; keep one connection so WAL readers never
	// contend with a concurrent writer from this process.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error { return d.db.Close() }

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reputation_events (
			node_id   TEXT NOT NULL,
			kind      TEXT NOT NULL,
			points    INTEGER NOT NULL,
			ts        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reputation_events_node ON reputation_events(node_id)`,
		`CREATE TABLE IF NOT EXISTS reputation_snapshot (
			node_id      TEXT PRIMARY KEY,
			score        INTEGER NOT NULL,
			last_decay_ts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS node_metadata (
			node_id               TEXT PRIMARY KEY,
			account_ref           TEXT NOT NULL,
			last_seen_capabilities TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_history (
			task_id             TEXT PRIMARY KEY,
			mode                TEXT NOT NULL,
			difficulty          TEXT NOT NULL,
			created             INTEGER NOT NULL,
			terminal_status     TEXT NOT NULL,
			duration_ms         INTEGER NOT NULL,
			participating_nodes TEXT NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Reputation ────────────────────────────────────────────────────────────────

// AppendReputationEvent appends an event to the log. Events are
// append-only.
func (d *DB) AppendReputationEvent(e shared.ReputationEvent) error {
	_, err := d.db.Exec(
		`INSERT INTO reputation_events (node_id, kind, points, ts) VALUES (?, ?, ?, ?)`,
		e.NodeID, string(e.Kind), e.Points, e.Timestamp.UnixMilli(),
	)
	return err
}

// UpsertReputationSnapshot writes the compacted score snapshot.
func (d *DB) UpsertReputationSnapshot(nodeID string, score int, lastDecay time.Time) error {
	_, err := d.db.Exec(
		`INSERT INTO reputation_snapshot (node_id, score, last_decay_ts) VALUES (?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET score = excluded.score, last_decay_ts = excluded.last_decay_ts`,
		nodeID, score, lastDecay.UnixMilli(),
	)
	return err
}

// LoadReputationSnapshots returns every node's compacted score, keyed
// by node-id, for warming the in-memory reputation store on restart.
func (d *DB) LoadReputationSnapshots() (map[string]int, error) {
	rows, err := d.db.Query(`SELECT node_id, score FROM reputation_snapshot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var score int
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		out[id] = score
	}
	return out, rows.Err()
}

// ─── Node metadata ──────────────────────────────────────────────────────────────

// UpsertNodeMetadata records the account a node registered under and
// its last-seen capabilities, surviving restarts.
func (d *DB) UpsertNodeMetadata(nodeID, accountRef, capabilitiesJSON string) error {
	_, err := d.db.Exec(
		`INSERT INTO node_metadata (node_id, account_ref, last_seen_capabilities) VALUES (?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET account_ref = excluded.account_ref, last_seen_capabilities = excluded.last_seen_capabilities`,
		nodeID, accountRef, capabilitiesJSON,
	)
	return err
}

// AccountRefFor returns the account a node-id last registered under,
// as recorded by UpsertNodeMetadata. The registry's displace-or-reject
// decision on re-registration uses its in-memory entry, not this.
func (d *DB) AccountRefFor(nodeID string) (string, bool, error) {
	var ref string
	err := d.db.QueryRow(`SELECT account_ref FROM node_metadata WHERE node_id = ?`, nodeID).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ref, true, nil
}

// ─── Task history ───────────────────────────────────────────────────────────────

// RecordTaskHistory appends one terminal task's observability record.
func (d *DB) RecordTaskHistory(taskID, mode, difficulty string, created time.Time, terminalStatus string, duration time.Duration, participatingNodesJSON string) error {
	_, err := d.db.Exec(
		`INSERT INTO task_history (task_id, mode, difficulty, created, terminal_status, duration_ms, participating_nodes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET terminal_status = excluded.terminal_status, duration_ms = excluded.duration_ms`,
		taskID, mode, difficulty, created.UnixMilli(), terminalStatus, duration.Milliseconds(), participatingNodesJSON,
	)
	return err
}
