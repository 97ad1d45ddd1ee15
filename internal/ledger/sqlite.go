package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS decision_log (
	id             TEXT PRIMARY KEY,
	ts_unix        INTEGER NOT NULL,
	timestamp      TEXT NOT NULL,
	actor          TEXT NOT NULL,
	decision       TEXT NOT NULL,
	rationale      TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	coherence      REAL,
	context_json   TEXT,
	parent_entry   TEXT,
	gate_state     TEXT,
	hash           TEXT NOT NULL,
	previous_hash  TEXT,
	signature      TEXT
);

CREATE INDEX IF NOT EXISTS idx_decision_log_ts ON decision_log(ts_unix);
CREATE INDEX IF NOT EXISTS idx_decision_log_actor ON decision_log(actor);
CREATE INDEX IF NOT EXISTS idx_decision_log_gate ON decision_log(gate_state);
`
// #endregion schema

// #region sqlite-backend
// SQLiteBackend stores the trail in a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}
// #endregion sqlite-backend

// #region constructor
// NewSQLiteBackend opens a SQLite database and runs migrations.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// DB returns the underlying *sql.DB. Used by tests to simulate tampering.
func (b *SQLiteBackend) DB() *sql.DB {
	return b.db
}
// #endregion close

// #region insert
// Insert persists one entry.
func (b *SQLiteBackend) Insert(ctx context.Context, e DecisionEntry) error {
	var ctxJSON interface{}
	if len(e.Context) > 0 {
		raw, err := json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
		ctxJSON = string(raw)
	}

	var coherence interface{}
	if e.CoherenceScore != nil {
		coherence = *e.CoherenceScore
	}

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO decision_log (id, ts_unix, timestamp, actor, decision, rationale, outcome,
		 coherence, context_json, parent_entry, gate_state, hash, previous_hash, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().UnixNano(),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Actor,
		e.Decision,
		e.Rationale,
		e.Outcome,
		coherence,
		ctxJSON,
		nullIfEmpty(e.ParentEntry),
		nullIfEmpty(e.GateState),
		e.Hash,
		nullIfEmpty(e.PreviousHash),
		nullIfEmpty(e.Signature),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}
// #endregion insert

// #region get
// Get retrieves a single entry by id.
func (b *SQLiteBackend) Get(ctx context.Context, id string) (DecisionEntry, bool, error) {
	row := b.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return DecisionEntry{}, false, nil
	}
	if err != nil {
		return DecisionEntry{}, false, fmt.Errorf("get entry %s: %w", id, err)
	}
	return e, true, nil
}
// #endregion get

// #region query
// Query returns matching entries, newest first.
func (b *SQLiteBackend) Query(ctx context.Context, f Filter) ([]DecisionEntry, error) {
	var where []string
	var args []interface{}

	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.Since != nil {
		where = append(where, "ts_unix >= ?")
		args = append(args, f.Since.UTC().UnixNano())
	}
	if f.Until != nil {
		where = append(where, "ts_unix <= ?")
		args = append(args, f.Until.UTC().UnixNano())
	}
	if f.Contains != "" {
		where = append(where, "(decision LIKE ? OR outcome LIKE ?)")
		pat := "%" + f.Contains + "%"
		args = append(args, pat, pat)
	}
	if f.MinCoherence != nil {
		where = append(where, "coherence >= ?")
		args = append(args, *f.MinCoherence)
	}
	if f.MaxCoherence != nil {
		where = append(where, "coherence <= ?")
		args = append(args, *f.MaxCoherence)
	}
	if f.GateState != "" {
		where = append(where, "gate_state = ?")
		args = append(args, f.GateState)
	}
	if f.ParentEntry != "" {
		where = append(where, "parent_entry = ?")
		args = append(args, f.ParentEntry)
	}

	q := selectColumns
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts_unix DESC, rowid DESC"

	// SQLite requires a LIMIT clause before OFFSET; -1 means unbounded.
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		q += " LIMIT ? OFFSET ?"
		args = append(args, limit, f.Offset)
	}

	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}
// #endregion query

// #region all
// All returns every entry in insertion order.
func (b *SQLiteBackend) All(ctx context.Context) ([]DecisionEntry, error) {
	rows, err := b.db.QueryContext(ctx, selectColumns+" ORDER BY rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("scan trail: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}
// #endregion all

// #region scan-helpers

const selectColumns = `SELECT id, timestamp, actor, decision, rationale, outcome,
	coherence, context_json, parent_entry, gate_state, hash, previous_hash, signature
	FROM decision_log`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (DecisionEntry, error) {
	var e DecisionEntry
	var tsStr string
	var coherence sql.NullFloat64
	var ctxJSON, parent, gate, prevHash, sig sql.NullString

	err := row.Scan(&e.ID, &tsStr, &e.Actor, &e.Decision, &e.Rationale, &e.Outcome,
		&coherence, &ctxJSON, &parent, &gate, &e.Hash, &prevHash, &sig)
	if err != nil {
		return DecisionEntry{}, err
	}

	e.Timestamp, err = time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return DecisionEntry{}, fmt.Errorf("parse timestamp %q: %w", tsStr, err)
	}
	if coherence.Valid {
		v := coherence.Float64
		e.CoherenceScore = &v
	}
	if ctxJSON.Valid && ctxJSON.String != "" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &e.Context); err != nil {
			return DecisionEntry{}, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	if parent.Valid {
		e.ParentEntry = parent.String
	}
	if gate.Valid {
		e.GateState = gate.String
	}
	if prevHash.Valid {
		e.PreviousHash = prevHash.String
	}
	if sig.Valid {
		e.Signature = sig.String
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]DecisionEntry, error) {
	var entries []DecisionEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion scan-helpers
