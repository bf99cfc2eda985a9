// Package journal keeps an append-only SQLite record of sweep runs.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	started_at     INTEGER NOT NULL,
	finished_at    INTEGER NOT NULL,
	dry_run        INTEGER NOT NULL,
	spam_addresses INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS deletions (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq      INTEGER NOT NULL,
	event_id TEXT NOT NULL,
	outcome  TEXT NOT NULL,
	error    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

type Outcome string

const (
	OutcomeDeleted      Outcome = "deleted"
	OutcomeFailed       Outcome = "failed"
	OutcomeWouldDelete  Outcome = "would_delete"
	OutcomeNotAttempted Outcome = "not_attempted"
)

// Deletion is one event's fate within a run.
type Deletion struct {
	EventID string
	Outcome Outcome
	Error   string
}

// Entry is everything recorded for a single run.
type Entry struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	DryRun        bool
	SpamAddresses int
	Deletions     []Deletion
}

// Run summarizes a recorded run.
type Run struct {
	RunID         string          `json:"run_id"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	DryRun        bool            `json:"dry_run"`
	SpamAddresses int             `json:"spam_addresses"`
	Outcomes      map[Outcome]int `json:"outcomes"`
}

// DB wraps the journal database.
type DB struct {
	db *sql.DB
}

// Open opens or creates the journal at dsn. Use ":memory:" in tests.
func Open(dsn string) (*DB, error) {
	connStr := dsn + "?_journal_mode=WAL&_foreign_keys=on"
	if dsn == ":memory:" {
		connStr = ":memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// a single connection keeps :memory: databases alive across calls
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying connection.
func (j *DB) Close() error {
	return j.db.Close()
}

// Record stores e and its deletions in one transaction.
func (j *DB) Record(ctx context.Context, e Entry) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, dry_run, spam_addresses) VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.StartedAt.Unix(), e.FinishedAt.Unix(), e.DryRun, e.SpamAddresses,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", e.RunID, err)
	}
	for i, d := range e.Deletions {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO deletions (run_id, seq, event_id, outcome, error) VALUES (?, ?, ?, ?, ?)`,
			e.RunID, i, d.EventID, string(d.Outcome), d.Error,
		)
		if err != nil {
			return fmt.Errorf("insert deletion %s: %w", d.EventID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (j *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, dry_run, spam_addresses
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r               Run
			started, finish int64
		)
		if err := rows.Scan(&r.RunID, &started, &finish, &r.DryRun, &r.SpamAddresses); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		r.FinishedAt = time.Unix(finish, 0).UTC()
		r.Outcomes = map[Outcome]int{}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		if err := j.countOutcomes(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (j *DB) countOutcomes(ctx context.Context, r *Run) error {
	rows, err := j.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM deletions WHERE run_id = ? GROUP BY outcome`, r.RunID)
	if err != nil {
		return fmt.Errorf("count outcomes for %s: %w", r.RunID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return fmt.Errorf("scan outcome: %w", err)
		}
		r.Outcomes[Outcome(outcome)] = n
	}
	return rows.Err()
}

// Deletions returns the recorded deletions of a run in submission order.
func (j *DB) Deletions(ctx context.Context, runID string) ([]Deletion, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT event_id, outcome, error FROM deletions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list deletions for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Deletion
	for rows.Next() {
		var (
			d       Deletion
			outcome string
		)
		if err := rows.Scan(&d.EventID, &outcome, &d.Error); err != nil {
			return nil, fmt.Errorf("scan deletion: %w", err)
		}
		d.Outcome = Outcome(outcome)
		out = append(out, d)
	}
	return out, rows.Err()
}
