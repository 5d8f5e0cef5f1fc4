package queue

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Logger is the narrow logging surface this package depends on.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

type nopLogger struct{}

func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

// Store is the SQLite-backed print queue.
type Store struct {
	db  *sql.DB
	log Logger
}

// Open opens (creating if necessary) the print_queue and
// print_job_history tables at path.
func Open(path string, log Logger) (*Store, error) {
	if log == nil {
		log = nopLogger{}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening queue database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS print_queue (
			id TEXT PRIMARY KEY,
			printer_id TEXT NOT NULL,
			job_type TEXT NOT NULL,
			job_data TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			metadata TEXT,
			created_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_print_queue_dequeue
			ON print_queue(printer_id, status, priority DESC, created_at ASC);

		CREATE TABLE IF NOT EXISTS print_job_history (
			id TEXT PRIMARY KEY,
			printer_id TEXT NOT NULL,
			job_type TEXT NOT NULL,
			job_data TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			metadata TEXT,
			created_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_print_job_history_printer ON print_job_history(printer_id, completed_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating queue schema: %w", err)
	}
	return nil
}

// NewID returns a fresh job id. Callers that need a stable identity
// before a job is enqueued (splitting a submission, say) use the same
// generator the store itself assigns ids with.
func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction, so stored UTC
// timestamps sort chronologically as text in ORDER BY clauses.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Enqueue persists job bound to printerId, assigning an id and
// createdAt if absent, and starting at status=pending, retryCount=0.
func (s *Store) Enqueue(job PrintJob, printerID string) (string, error) {
	if printerID == "" {
		return "", fmt.Errorf("%w: printerId is required", ErrInvalid)
	}
	if job.ID == "" {
		job.ID = NewID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(job.Data)
	if err != nil {
		return "", err
	}
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return "", err
	}

	_, err = s.db.Exec(`
		INSERT INTO print_queue (id, printer_id, job_type, job_data, priority, status, retry_count, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID, printerID, string(job.Type), string(data), job.Priority, string(StatusPending), string(meta), formatTime(job.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("enqueuing job: %w", err)
	}
	s.log.Debug("job enqueued", "id", job.ID, "printerId", printerID, "type", string(job.Type))
	return job.ID, nil
}

const selectQueuedJobColumns = `id, printer_id, job_type, job_data, priority, status, retry_count, last_error, metadata, created_at, started_at, completed_at`

// Peek returns the head of the queue for printerId (or globally if empty)
// without mutating it.
func (s *Store) Peek(printerID string) (QueuedJob, error) {
	query := `SELECT ` + selectQueuedJobColumns + ` FROM print_queue WHERE status = 'pending'`
	args := []interface{}{}
	if printerID != "" {
		query += ` AND printer_id = ?`
		args = append(args, printerID)
	}
	query += ` ORDER BY priority DESC, created_at ASC LIMIT 1`

	return scanQueuedJob(s.db.QueryRow(query, args...))
}

// Dequeue atomically selects the pending head for printerId (breaking
// ties by priority desc then createdAt asc) and transitions it to
// printing, stamping startedAt, in one transaction.
func (s *Store) Dequeue(printerID string) (QueuedJob, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return QueuedJob{}, err
	}
	defer tx.Rollback()

	query := `SELECT ` + selectQueuedJobColumns + ` FROM print_queue WHERE status = 'pending'`
	args := []interface{}{}
	if printerID != "" {
		query += ` AND printer_id = ?`
		args = append(args, printerID)
	}
	query += ` ORDER BY priority DESC, created_at ASC LIMIT 1`

	job, err := scanQueuedJob(tx.QueryRow(query, args...))
	if err != nil {
		return QueuedJob{}, err
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(`UPDATE print_queue SET status = ?, started_at = ? WHERE id = ?`,
		string(StatusPrinting), formatTime(now), job.ID); err != nil {
		return QueuedJob{}, err
	}

	if err := tx.Commit(); err != nil {
		return QueuedJob{}, err
	}
	job.Status = StatusPrinting
	job.StartedAt = &now
	return job, nil
}

// MarkComplete computes durationMs from startedAt, moves the job into
// history with status=completed, and deletes it from the queue, all in
// one transaction.
func (s *Store) MarkComplete(jobID string) error {
	return s.finish(jobID, StatusCompleted, "")
}

// MarkFailed moves the job into history with status=failed and the given
// error, deleting it from the queue in the same transaction.
func (s *Store) MarkFailed(jobID string, lastErr string) error {
	return s.finish(jobID, StatusFailed, lastErr)
}

func (s *Store) finish(jobID string, finalStatus Status, lastErr string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	job, err := scanQueuedJob(tx.QueryRow(`SELECT `+selectQueuedJobColumns+` FROM print_queue WHERE id = ?`, jobID))
	if err != nil {
		return err
	}

	completedAt := time.Now().UTC()
	var durationMs int64
	if job.StartedAt != nil {
		durationMs = completedAt.Sub(*job.StartedAt).Milliseconds()
	}
	if lastErr != "" {
		job.LastError = lastErr
	}

	data, err := json.Marshal(job.Data)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO print_job_history
			(id, printer_id, job_type, job_data, priority, status, retry_count, last_error, metadata, created_at, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.PrinterID, string(job.Type), string(data), job.Priority, string(finalStatus), job.RetryCount,
		nullableString(job.LastError), string(meta), formatTime(job.CreatedAt), formatTimePtr(job.StartedAt), formatTime(completedAt), durationMs)
	if err != nil {
		return fmt.Errorf("inserting history row: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM print_queue WHERE id = ?`, jobID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info("job finished", "id", jobID, "status", string(finalStatus))
	return nil
}

// IncrementRetry resets the job to pending, clears startedAt, and bumps
// retryCount, returning the new count.
func (s *Store) IncrementRetry(jobID string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var retryCount int
	err = tx.QueryRow(`SELECT retry_count FROM print_queue WHERE id = ?`, jobID).Scan(&retryCount)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	retryCount++

	if _, err := tx.Exec(`UPDATE print_queue SET status = ?, started_at = NULL, retry_count = ? WHERE id = ?`,
		string(StatusPending), retryCount, jobID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return retryCount, nil
}

// SetLastError records the most recent error string for jobID without
// changing its status.
func (s *Store) SetLastError(jobID string, errMsg string) error {
	res, err := s.db.Exec(`UPDATE print_queue SET last_error = ? WHERE id = ?`, errMsg, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveJob deletes jobID from the queue unconditionally (used by
// cancelPrintJob after the pending check).
func (s *Store) RemoveJob(jobID string) error {
	res, err := s.db.Exec(`DELETE FROM print_queue WHERE id = ?`, jobID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob returns a single queued job by id.
func (s *Store) GetJob(jobID string) (QueuedJob, error) {
	return scanQueuedJob(s.db.QueryRow(`SELECT `+selectQueuedJobColumns+` FROM print_queue WHERE id = ?`, jobID))
}

// GetQueuedJobs returns every queued job, optionally filtered to printerID,
// ordered by the dequeue order (priority desc, createdAt asc).
func (s *Store) GetQueuedJobs(printerID string) ([]QueuedJob, error) {
	query := `SELECT ` + selectQueuedJobColumns + ` FROM print_queue`
	args := []interface{}{}
	if printerID != "" {
		query += ` WHERE printer_id = ?`
		args = append(args, printerID)
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQueuedJobs(rows)
}

// GetPendingJobs returns every job with status=pending, across all
// printers, in dequeue order.
func (s *Store) GetPendingJobs() ([]QueuedJob, error) {
	rows, err := s.db.Query(`SELECT `+selectQueuedJobColumns+` FROM print_queue WHERE status = ? ORDER BY priority DESC, created_at ASC`,
		string(StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQueuedJobs(rows)
}

// GetQueueLength counts queued jobs, optionally filtered by printerID
// and/or status (empty string means "any").
func (s *Store) GetQueueLength(printerID string, status Status) (int, error) {
	query := `SELECT COUNT(*) FROM print_queue WHERE 1=1`
	args := []interface{}{}
	if printerID != "" {
		query += ` AND printer_id = ?`
		args = append(args, printerID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	var n int
	err := s.db.QueryRow(query, args...).Scan(&n)
	return n, err
}

// ResetPrintingJobs flips every printing row back to pending and clears
// startedAt, used on startup to recover from an unclean shutdown.
// Returns the number of rows reset.
func (s *Store) ResetPrintingJobs() (int, error) {
	res, err := s.db.Exec(`UPDATE print_queue SET status = ?, started_at = NULL WHERE status = ?`,
		string(StatusPending), string(StatusPrinting))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Warn("reset printing jobs to pending on startup", "count", n)
	}
	return int(n), nil
}

// GetJobHistory returns the most recent terminal records for printerID
// (or for every printer if empty), newest first.
func (s *Store) GetJobHistory(printerID string, limit int) ([]JobHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, printer_id, job_type, job_data, priority, status, retry_count, last_error, metadata, created_at, started_at, completed_at, duration_ms
		FROM print_job_history`
	args := []interface{}{}
	if printerID != "" {
		query += ` WHERE printer_id = ?`
		args = append(args, printerID)
	}
	query += ` ORDER BY completed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobHistoryEntry
	for rows.Next() {
		var e JobHistoryEntry
		var jobType, data, status, createdAt, completedAt string
		var lastError, metadata, startedAt sql.NullString

		if err := rows.Scan(&e.ID, &e.PrinterID, &jobType, &data, &e.Priority, &status, &e.RetryCount,
			&lastError, &metadata, &createdAt, &startedAt, &completedAt, &e.DurationMs); err != nil {
			return nil, err
		}
		e.Type = JobType(jobType)
		e.Status = Status(status)
		e.LastError = lastError.String
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("decoding history job data: %w", err)
		}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decoding history metadata: %w", err)
			}
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		if e.StartedAt, err = parseTimePtr(startedAt); err != nil {
			return nil, err
		}
		if e.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetRecentJobStats summarizes the last limit history entries for
// printerID.
func (s *Store) GetRecentJobStats(printerID string, limit int) (JobStats, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT status FROM print_job_history
		WHERE printer_id = ?
		ORDER BY completed_at DESC
		LIMIT ?`, printerID, limit)
	if err != nil {
		return JobStats{}, err
	}
	defer rows.Close()

	var stats JobStats
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return JobStats{}, err
		}
		stats.Total++
		if status == string(StatusCompleted) {
			stats.Successful++
		} else if status == string(StatusFailed) {
			stats.Failed++
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueuedJob(row rowScanner) (QueuedJob, error) {
	var j QueuedJob
	var jobType, data, status, createdAt string
	var lastError, metadata sql.NullString
	var startedAt, completedAt sql.NullString

	err := row.Scan(&j.ID, &j.PrinterID, &jobType, &data, &j.Priority, &status, &j.RetryCount,
		&lastError, &metadata, &createdAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return QueuedJob{}, ErrNotFound
	}
	if err != nil {
		return QueuedJob{}, err
	}

	j.Type = JobType(jobType)
	j.Status = Status(status)
	j.LastError = lastError.String
	if err := json.Unmarshal([]byte(data), &j.Data); err != nil {
		return QueuedJob{}, fmt.Errorf("decoding job data: %w", err)
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &j.Metadata); err != nil {
			return QueuedJob{}, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	j.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return QueuedJob{}, err
	}
	if j.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return QueuedJob{}, err
	}
	if j.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return QueuedJob{}, err
	}
	return j, nil
}

func scanQueuedJobs(rows *sql.Rows) ([]QueuedJob, error) {
	var out []QueuedJob
	for rows.Next() {
		j, err := scanQueuedJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
