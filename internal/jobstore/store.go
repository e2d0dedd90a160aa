// Package jobstore provides a local SQLite-backed ledger of job records,
// standing in for the piece of the worker-host runtime that spec §6.4
// assumes exists but does not specify. One row per job, written at each
// orchestrator transition and queryable by the job API's status endpoint.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Status is a JobRecord's lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// JobRecord is one row of the job ledger (spec §3.1).
type JobRecord struct {
	JobID           string
	Status          Status
	SubmittedAt     time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ErrorCode       string
	ErrorMessage    string
	InfoMessages    []string
	ResultEntityIDs []string
}

// Config configures the ledger's SQLite connection.
type Config struct {
	DSN string
}

// DefaultConfig returns a WAL-mode file DSN matching the teacher's
// kag_test.go test fixture connection string.
func DefaultConfig() Config {
	return Config{DSN: "kgextractor-jobs.db?_journal_mode=WAL&_foreign_keys=ON"}
}

// Store is the job ledger.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the ledger database.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	db.SetMaxOpenConns(1) // WAL-mode single-writer friendliness, per the teacher's fixture DSN

	schema := `CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		error_code TEXT,
		error_message TEXT,
		info_messages TEXT,
		result_entity_ids TEXT
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate job store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Submit inserts a new job record in the queued state.
func (s *Store) Submit(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (job_id, status, submitted_at) VALUES (?, ?, ?)`,
		jobID, StatusQueued, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// MarkRunning transitions a job to running.
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE job_id = ?`,
		StatusRunning, time.Now().UTC().Format(time.RFC3339), jobID,
	)
	return err
}

// MarkDone transitions a job to done, recording its handoff and any
// info messages.
func (s *Store) MarkDone(ctx context.Context, jobID string, resultEntityIDs []string, infoMessages []string) error {
	resultJSON, err := json.Marshal(resultEntityIDs)
	if err != nil {
		return fmt.Errorf("marshal result entity ids: %w", err)
	}
	infoJSON, err := json.Marshal(infoMessages)
	if err != nil {
		return fmt.Errorf("marshal info messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, completed_at = ?, result_entity_ids = ?, info_messages = ? WHERE job_id = ?`,
		StatusDone, time.Now().UTC().Format(time.RFC3339), string(resultJSON), string(infoJSON), jobID,
	)
	return err
}

// MarkError transitions a job to error, recording the JobError's code and
// message (spec §7's {code, message} wire shape).
func (s *Store) MarkError(ctx context.Context, jobID, code, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, completed_at = ?, error_code = ?, error_message = ? WHERE job_id = ?`,
		StatusError, time.Now().UTC().Format(time.RFC3339), code, message, jobID,
	)
	return err
}

// Get fetches one job record.
func (s *Store) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, status, submitted_at, started_at, completed_at, error_code, error_message, info_messages, result_entity_ids FROM jobs WHERE job_id = ?`,
		jobID,
	)

	var (
		rec                             JobRecord
		submittedAt                     string
		startedAt, completedAt          sql.NullString
		errorCode, errorMessage         sql.NullString
		infoMessagesJSON, resultIDsJSON sql.NullString
	)
	rec.Status = Status("")
	if err := row.Scan(&rec.JobID, &rec.Status, &submittedAt, &startedAt, &completedAt, &errorCode, &errorMessage, &infoMessagesJSON, &resultIDsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get job record: %w", err)
	}

	rec.SubmittedAt, _ = time.Parse(time.RFC3339, submittedAt)
	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339, startedAt.String); err == nil {
			rec.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			rec.CompletedAt = &t
		}
	}
	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String
	if infoMessagesJSON.Valid && infoMessagesJSON.String != "" {
		json.Unmarshal([]byte(infoMessagesJSON.String), &rec.InfoMessages)
	}
	if resultIDsJSON.Valid && resultIDsJSON.String != "" {
		json.Unmarshal([]byte(resultIDsJSON.String), &rec.ResultEntityIDs)
	}

	return &rec, nil
}
