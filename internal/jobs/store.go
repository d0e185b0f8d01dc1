// Package jobs keeps a SQLite ledger of render jobs and the state each one reached.
package jobs

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Status is the coarse lifecycle of a job.
type Status string

// Job statuses.
const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

const (
	timeLayout         = time.RFC3339Nano
	interruptedMessage = "interrupted by restart"

	logFmtMigration   = "Applied jobs migration %s"
	logFmtInterrupted = "Marked %d interrupted jobs as failed"
)

var (
	// ErrNotFound is returned when no job has the requested id.
	ErrNotFound = errors.New("job not found")
	// ErrMissingID is returned when a job is created without an id.
	ErrMissingID = errors.New("job id is required")
)

// Job is one row of the ledger.
type Job struct {
	ID              string
	WorkflowID      string
	ScriptKey       string
	Status          Status
	State           string
	OutputKey       string
	ClipCount       int
	DurationSeconds float64
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store is the SQLite-backed job ledger.
type Store struct {
	conn *sql.DB
	log  *logger.Logger
	now  func() time.Time
}

// Open opens (creating if needed) the ledger at path and applies pending migrations.
func Open(path string, log *logger.Logger) (*Store, error) {
	mkdirErr := os.MkdirAll(filepath.Dir(path), 0o750)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", mkdirErr)
	}

	conn, openErr := sql.Open("sqlite", path)
	if openErr != nil {
		return nil, fmt.Errorf("failed to open database: %w", openErr)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	store := &Store{conn: conn, log: log, now: time.Now}

	initErr := store.init()
	if initErr != nil {
		_ = conn.Close()

		return nil, initErr
	}

	return store, nil
}

func (s *Store) init() error {
	pingErr := s.conn.Ping()
	if pingErr != nil {
		return fmt.Errorf("failed to ping database: %w", pingErr)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		_, pragmaErr := s.conn.Exec(pragma)
		if pragmaErr != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, pragmaErr)
		}
	}

	migrateErr := s.migrate()
	if migrateErr != nil {
		return fmt.Errorf("failed to run migrations: %w", migrateErr)
	}

	return nil
}

// MarkInterrupted fails every job still marked running. Only the service calls it at
// startup, when no render of its own can be in flight.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	result, markErr := s.conn.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE status = ?`,
		StatusFailed, interruptedMessage, s.timestamp(), StatusRunning,
	)
	if markErr != nil {
		return 0, fmt.Errorf("failed to mark interrupted jobs: %w", markErr)
	}

	count, _ := result.RowsAffected()
	if count > 0 {
		s.log.Warn(logFmtInterrupted, count)
	}

	return count, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations, readErr := migrationsFS.ReadDir("migrations")
	if readErr != nil {
		return fmt.Errorf("failed to read migrations: %w", readErr)
	}

	for _, migration := range migrations {
		name := migration.Name()
		if migration.IsDir() || s.isMigrationApplied(name) {
			continue
		}

		content, contentErr := migrationsFS.ReadFile("migrations/" + name)
		if contentErr != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, contentErr)
		}

		_, execErr := s.conn.Exec(string(content))
		if execErr != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, execErr)
		}

		_, recordErr := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name)
		if recordErr != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, recordErr)
		}

		s.log.Info(logFmtMigration, name)
	}

	return nil
}

func (s *Store) isMigrationApplied(name string) bool {
	var applied int

	queryErr := s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)

	return queryErr == nil && applied == 1
}

// Create records a new running job.
func (s *Store) Create(ctx context.Context, job Job) error {
	if job.ID == "" {
		return ErrMissingID
	}

	now := s.timestamp()

	_, execErr := s.conn.ExecContext(ctx,
		`INSERT INTO jobs (id, workflow_id, script_key, status, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.WorkflowID, job.ScriptKey, StatusRunning, orIdle(job.State), now, now,
	)
	if execErr != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, execErr)
	}

	return nil
}

// SetState records the render state a job has reached.
func (s *Store) SetState(ctx context.Context, id, state string) error {
	return s.update(ctx, id, `UPDATE jobs SET state = ?, updated_at = ? WHERE id = ?`, state, s.timestamp(), id)
}

// Finish marks a job done with its output.
func (s *Store) Finish(ctx context.Context, id, outputKey string, clipCount int, duration float64) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, output_key = ?, clip_count = ?, duration_seconds = ?, updated_at = ?
		 WHERE id = ?`,
		StatusDone, outputKey, clipCount, duration, s.timestamp(), id,
	)
}

// Fail marks a job failed with the given reason.
func (s *Store) Fail(ctx context.Context, id, reason string) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, reason, s.timestamp(), id,
	)
}

// Get returns the job with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.conn.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id)

	job, scanErr := scanJob(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if scanErr != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", id, scanErr)
	}

	return job, nil
}

// Recent returns up to limit jobs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Job, error) {
	rows, queryErr := s.conn.QueryContext(ctx, selectJob+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", queryErr)
	}
	defer rows.Close()

	var jobs []*Job

	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to read job: %w", scanErr)
		}

		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

const selectJob = `SELECT id, workflow_id, script_key, status, state, output_key, clip_count,
	duration_seconds, error, created_at, updated_at FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job                  Job
		status               string
		createdAt, updatedAt string
	)

	scanErr := row.Scan(&job.ID, &job.WorkflowID, &job.ScriptKey, &status, &job.State, &job.OutputKey,
		&job.ClipCount, &job.DurationSeconds, &job.Error, &createdAt, &updatedAt)
	if scanErr != nil {
		return nil, scanErr
	}

	job.Status = Status(status)
	job.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	job.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

	return &job, nil
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	result, execErr := s.conn.ExecContext(ctx, query, args...)
	if execErr != nil {
		return fmt.Errorf("failed to update job %s: %w", id, execErr)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func orIdle(state string) string {
	if state == "" {
		return "idle"
	}

	return state
}
