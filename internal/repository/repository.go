// Package repository implements the data persistence layer using SQLite.
//
// EDUCATIONAL CONTEXT:
// The annotation session keeps its durable part (enabled flag, change requests,
// config, sidebar state) as one named record: it is read once at startup and
// rewritten after every transition that touches one of those fields. The record
// is stored as a JSON document because the session only ever loads and saves it
// whole; nothing queries inside it.
//
// Submission attempts are different: they are appended, listed newest first and
// paginated, so they get a proper table with columns.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bluefermion/annotator/internal/model"
	// Pure Go driver, no CGO required.
	_ "modernc.org/sqlite"
)

// SQLiteRepository encapsulates the SQL database connection. It satisfies
// session.Persister and session.HistoryRecorder.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens dbPath and ensures the schema exists.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets the history listing read while a state write is in progress.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// migrate is idempotent and runs on every boot.
func (r *SQLiteRepository) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS annotation_state (
		name TEXT PRIMARY KEY,
		-- JSON encoded model.PersistedState
		payload TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id TEXT NOT NULL,
		change_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
	CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
	`
	_, err := r.db.Exec(query)
	return err
}

// LoadState reads the named session record. A missing record is not an error:
// it returns nil, nil.
func (r *SQLiteRepository) LoadState(ctx context.Context, name string) (*model.PersistedState, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM annotation_state WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state %q: %w", name, err)
	}

	st := &model.PersistedState{}
	if err := json.Unmarshal([]byte(payload), st); err != nil {
		return nil, fmt.Errorf("failed to decode state %q: %w", name, err)
	}
	return st, nil
}

// SaveState replaces the named session record.
func (r *SQLiteRepository) SaveState(ctx context.Context, name string, st *model.PersistedState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state %q: %w", name, err)
	}

	query := `
	INSERT INTO annotation_state (name, payload, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, query, name, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save state %q: %w", name, err)
	}
	return nil
}

// DeleteState removes the named session record.
func (r *SQLiteRepository) DeleteState(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM annotation_state WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete state %q: %w", name, err)
	}
	return nil
}

// RecordSubmission appends one submission attempt to the history.
func (r *SQLiteRepository) RecordSubmission(ctx context.Context, rec *model.SubmissionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO submissions (submission_id, change_count, status, attempts, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		rec.SubmissionID, rec.ChangeCount, rec.Status, rec.Attempts, rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	rec.ID = id
	return nil
}

// ListSubmissions returns submission attempts, newest first.
func (r *SQLiteRepository) ListSubmissions(ctx context.Context, limit, offset int) ([]*model.SubmissionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
	SELECT id, submission_id, change_count, status, attempts, error, created_at
	FROM submissions
	ORDER BY created_at DESC, id DESC
	LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	records := []*model.SubmissionRecord{}
	for rows.Next() {
		rec := &model.SubmissionRecord{}
		var errText sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.SubmissionID, &rec.ChangeCount, &rec.Status,
			&rec.Attempts, &errText, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		rec.Error = errText.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Ping checks the database connection, for the health endpoint.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close terminates the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
