// Package spill implements the on-disk mirror of the in-memory task queue: a
// narrow embedded-sqlite seam that lets a restarted agent recover every
// task it had not yet finished submitting.
package spill

import (
	"context"
	"database/sql"
	"fmt"

	perr "auditor/internal/platform/errors"
	"auditor/internal/platform/logger"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	record_id         TEXT    NOT NULL,
	site_id           TEXT    NOT NULL,
	instruction       INTEGER NOT NULL,
	record_blob       BLOB    NOT NULL,
	retries_remaining INTEGER NOT NULL,
	scheduled_after   INTEGER,
	PRIMARY KEY (record_id, site_id, instruction)
);
`

// Row is the durable shape of one queued task. spill knows nothing of
// taskqueue.Task; callers translate between the two so this package stays a
// plain storage seam, the same narrowing platform/store applies to its own
// callers.
type Row struct {
	RecordID         string
	SiteID           string
	Instruction      int
	RecordBlob       []byte
	RetriesRemaining int
	ScheduledAfter   sql.NullInt64 // unix micros, NULL means "not delayed"
}

// Store is the sqlite-backed spill seam. Zero value is unusable; call Start.
type Store struct {
	Log logger.Logger

	path string
	db   *sql.DB
}

// New returns a Store that will open its database at path once Start is called.
func New(path string) *Store {
	return &Store{Log: *logger.Named("spill"), path: path}
}

// Start opens (and, if absent, creates) the sqlite database and schema.
func (s *Store) Start(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "spill: open %s", s.path)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return perr.Wrapf(err, perr.ErrorCodeDB, "spill: migrate schema")
	}

	s.db = db
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put durably upserts row, replacing any existing row with the same key.
func (s *Store) Put(ctx context.Context, row Row) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (record_id, site_id, instruction, record_blob, retries_remaining, scheduled_after)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (record_id, site_id, instruction) DO UPDATE SET
			record_blob = excluded.record_blob,
			retries_remaining = excluded.retries_remaining,
			scheduled_after = excluded.scheduled_after
	`, row.RecordID, row.SiteID, row.Instruction, row.RecordBlob, row.RetriesRemaining, row.ScheduledAfter)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "spill: put %s/%s", row.RecordID, row.SiteID)
	}
	return nil
}

// Delete removes the row for the given key, e.g. once a task has been
// claimed off the in-memory queue for submission ("delete at claim").
func (s *Store) Delete(ctx context.Context, recordID, siteID string, instruction int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE record_id = ? AND site_id = ? AND instruction = ?`,
		recordID, siteID, instruction)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "spill: delete %s/%s", recordID, siteID)
	}
	return nil
}

// GetAll returns every spilled row, for use at start-up to rehydrate the
// in-memory queue. A corrupted row is logged and skipped rather than
// aborting start-up.
func (s *Store) GetAll(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, site_id, instruction, record_blob, retries_remaining, scheduled_after FROM tasks`)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "spill: get all")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.RecordID, &r.SiteID, &r.Instruction, &r.RecordBlob, &r.RetriesRemaining, &r.ScheduledAfter); err != nil {
			s.Log.Warn().Err(err).Msg("spill: skipping corrupted row")
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return out, perr.Wrapf(err, perr.ErrorCodeDB, "spill: iterate rows")
	}
	return out, nil
}

// Ping reports whether the database handle is reachable (guard/health-check seam).
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("spill: not started")
	}
	return s.db.PingContext(ctx)
}
