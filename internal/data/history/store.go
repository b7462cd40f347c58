package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Record is one audited refactoring plan: what was requested, whether a
// plan came out and how big it was.
type Record struct {
	ProjectKey string
	PlanID     string
	Kind       string
	Target     string
	Outcome    string
	FileCount  int
	EditCount  int
	Reason     string
	Timestamp  time.Time
}

const (
	OutcomePlanned  = "planned"
	OutcomeRejected = "rejected"
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts during watch-mode churn.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveRecord(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(rec.ProjectKey) == "" {
		rec.ProjectKey = "default"
	}
	if strings.TrimSpace(rec.PlanID) == "" {
		return fmt.Errorf("history record needs a plan id")
	}
	if rec.Outcome != OutcomePlanned && rec.Outcome != OutcomeRejected {
		return fmt.Errorf("unsupported record outcome %q", rec.Outcome)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	query := `
INSERT INTO plans (
  project_key, plan_id, kind, target, outcome, file_count, edit_count, reason, ts_utc
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(plan_id) DO UPDATE SET
  outcome=excluded.outcome,
  file_count=excluded.file_count,
  edit_count=excluded.edit_count,
  reason=excluded.reason
`
	return s.withRetry("save plan record", func() error {
		_, err := s.db.Exec(
			query,
			rec.ProjectKey,
			rec.PlanID,
			rec.Kind,
			rec.Target,
			rec.Outcome,
			rec.FileCount,
			rec.EditCount,
			rec.Reason,
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

func (s *Store) LoadRecords(projectKey string, since time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projectKey = strings.TrimSpace(projectKey)
	if projectKey == "" {
		projectKey = "default"
	}

	base := `
SELECT project_key, plan_id, kind, target, outcome, file_count, edit_count, reason, ts_utc
FROM plans
WHERE project_key = ?`
	args := make([]any, 0, 2)
	args = append(args, projectKey)
	if !since.IsZero() {
		base += " AND ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	base += " ORDER BY ts_utc ASC, plan_id ASC"

	var rows *sql.Rows
	err := s.withRetry("load plan records", func() error {
		var qErr error
		rows, qErr = s.db.Query(base, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			tsRaw string
			rec   Record
		)
		if err := rows.Scan(
			&rec.ProjectKey,
			&rec.PlanID,
			&rec.Kind,
			&rec.Target,
			&rec.Outcome,
			&rec.FileCount,
			&rec.EditCount,
			&rec.Reason,
			&tsRaw,
		); err != nil {
			return nil, fmt.Errorf("scan plan record row: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse record timestamp %q: %w", tsRaw, err)
		}
		rec.Timestamp = ts.UTC()

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan record rows: %w", err)
	}

	return records, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
