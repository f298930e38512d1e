// internal/archive/store.go
// SQLite archive of finished scan jobs

package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aspnmy/scanapi/internal/models"
)

// Store persists terminal jobs so outcomes survive retention eviction and
// restarts
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the archive database
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	// WAL lets the CLI read while the server writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close() //nolint:gosec // G104: secondary error, primary error returned
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		_ = db.Close() //nolint:gosec // G104: secondary error, primary error returned
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close() //nolint:gosec // G104: secondary error, primary error returned
		return nil, err
	}

	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		scan_type TEXT NOT NULL,
		custom_args TEXT,
		args_json TEXT,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		finished_at DATETIME,
		outcome_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_finished_at ON jobs(finished_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// Save inserts or replaces a job. Raw tool output is not archived.
func (s *Store) Save(ctx context.Context, job *models.ScanJob) error {
	argsJSON, err := json.Marshal(job.Args)
	if err != nil {
		return err
	}

	var outcomeJSON []byte
	if job.Outcome != nil {
		outcome := *job.Outcome
		outcome.RawOutput = ""
		if outcomeJSON, err = json.Marshal(&outcome); err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO jobs
		 (job_id, target, scan_type, custom_args, args_json, status, created_at, started_at, finished_at, outcome_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Request.ID, job.Request.Target, string(job.Request.Profile), job.Request.CustomArgs,
		string(argsJSON), string(job.Status), job.Request.CreatedAt,
		nullTime(job.StartedAt), nullTime(job.FinishedAt), string(outcomeJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to archive job %s: %w", job.Request.ID, err)
	}
	return nil
}

// Load returns one archived job, or an ErrNotFound ScanError
func (s *Store) Load(ctx context.Context, id string) (*models.ScanJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, target, scan_type, custom_args, args_json, status, created_at, started_at, finished_at, outcome_json
		 FROM jobs WHERE job_id = ?`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewError(models.ErrNotFound, "%s", id)
	}
	return job, err
}

// List returns archived jobs, newest first. An empty status matches all.
func (s *Store) List(ctx context.Context, status models.JobStatus, limit int) ([]models.ScanJob, error) {
	query := `SELECT job_id, target, scan_type, custom_args, args_json, status, created_at, started_at, finished_at, outcome_json
		 FROM jobs`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ScanJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Delete removes a job. Deleting a missing job is an ErrNotFound ScanError.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewError(models.ErrNotFound, "%s", id)
	}
	return nil
}

// Prune deletes jobs that finished before now-age
func (s *Store) Prune(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE finished_at IS NOT NULL AND finished_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.ScanJob, error) {
	var (
		job                   models.ScanJob
		profile, status       string
		customArgs            sql.NullString
		argsJSON, outcomeJSON sql.NullString
		startedAt, finishedAt sql.NullTime
	)

	err := row.Scan(&job.Request.ID, &job.Request.Target, &profile, &customArgs, &argsJSON,
		&status, &job.Request.CreatedAt, &startedAt, &finishedAt, &outcomeJSON)
	if err != nil {
		return nil, err
	}

	job.Request.Profile = models.ProfileID(profile)
	job.Request.CustomArgs = customArgs.String
	job.Status = models.JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}

	if argsJSON.String != "" {
		if err := json.Unmarshal([]byte(argsJSON.String), &job.Args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}
	if outcomeJSON.String != "" {
		job.Outcome = &models.ScanOutcome{}
		if err := json.Unmarshal([]byte(outcomeJSON.String), job.Outcome); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
		}
	}
	return &job, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
