package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mediaconv/internal/convert"
)

// SQLiteStore persists job records across restarts. Per-id update
// atomicity comes from running the read-modify-write inside an
// immediate transaction; concurrent writers queue on the busy timeout
// instead of deadlocking on a read-to-write lock upgrade.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access. txlock
	// makes transactions take the write lock up front, so Update never
	// starts as a deferred reader that cannot upgrade.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		input_file TEXT NOT NULL,
		output_file TEXT,
		target_format TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(job *Job) error {
	_, err := s.db.Exec(
		`INSERT INTO jobs (id, type, status, input_file, output_file, target_format, progress, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Type), string(job.Status), job.InputFile, nullable(job.OutputFile),
		job.TargetFormat, job.Progress, nullable(job.Error),
		job.CreatedAt.UTC().Format(time.RFC3339Nano), job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*Job, error) {
	return scanJob(s.db.QueryRow(selectJobSQL+` WHERE id = ?`, id))
}

func (s *SQLiteStore) Update(id string, mutate func(*Job) error) (*Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := scanJob(tx.QueryRow(selectJobSQL+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(
		`UPDATE jobs SET status = ?, output_file = ?, progress = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(job.Status), nullable(job.OutputFile), job.Progress, nullable(job.Error),
		job.UpdatedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) List() ([]*Job, error) {
	rows, err := s.db.Query(selectJobSQL)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectJobSQL = `SELECT id, type, status, input_file, output_file, target_format, progress, error, created_at, updated_at FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var jobType, status string
	var output, errMsg sql.NullString
	var created, updated string

	if err := row.Scan(&job.ID, &jobType, &status, &job.InputFile, &output,
		&job.TargetFormat, &job.Progress, &errMsg, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Type = convert.MediaType(jobType)
	job.Status = Status(status)
	if output.Valid {
		job.OutputFile = output.String
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		job.UpdatedAt = t
	}
	return &job, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
