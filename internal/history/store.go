// Package history persists final run reports in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/report"
)

// DefaultListLimit is the number of runs List returns when limit <= 0.
const DefaultListLimit = 20

// ErrRunNotFound is returned by Get when no stored run matches.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    workflow TEXT NOT NULL,
    started_at TEXT NOT NULL,
    duration_seconds REAL NOT NULL,
    reason TEXT NOT NULL,
    exit_code INTEGER NOT NULL,
    targets INTEGER NOT NULL,
    succeeded INTEGER NOT NULL,
    log_path TEXT,
    report TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow);
`

// Summary is one row of the run list.
type Summary struct {
	RunID           string
	Workflow        string
	StartedAt       time.Time
	DurationSeconds float64
	Reason          string
	ExitCode        int
	Targets         int
	Succeeded       int
	LogPath         string
}

// Duration returns the run duration.
func (s Summary) Duration() time.Duration {
	return time.Duration(s.DurationSeconds * float64(time.Second))
}

// Store is a SQLite-backed run history.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	return nil
}

// Save stores a final report. Saving the same run id twice replaces the
// earlier row.
func (s *Store) Save(ctx context.Context, r *report.Report) error {
	if r == nil || r.RunID == "" {
		return errors.NewValidationError("report has no run id").WithField("run_id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(run_id, workflow, started_at, duration_seconds, reason, exit_code, targets, succeeded, log_path, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID,
		r.Workflow,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.DurationSeconds,
		r.Reason,
		r.ExitCode(),
		len(r.Targets),
		r.Counts.Success,
		r.LogPath,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.RunID, err)
	}
	return nil
}

// List returns the most recent runs, newest first. A non-empty workflow
// restricts the list to that workflow.
func (s *Store) List(ctx context.Context, workflow string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT run_id, workflow, started_at, duration_seconds, reason, exit_code, targets, succeeded, COALESCE(log_path, '')
		FROM runs`
	args := []any{}
	if workflow != "" {
		query += ` WHERE workflow = ?`
		args = append(args, workflow)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var started string
		if err := rows.Scan(&sum.RunID, &sum.Workflow, &started, &sum.DurationSeconds, &sum.Reason,
			&sum.ExitCode, &sum.Targets, &sum.Succeeded, &sum.LogPath); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		sum.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return out, nil
}

// Get returns the stored report for a run id or an unambiguous prefix of
// one.
func (s *Store) Get(ctx context.Context, runID string) (*report.Report, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, errors.NewValidationError("run id is required").WithField("run_id")
	}

	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(runID) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, report FROM runs WHERE run_id LIKE ? ESCAPE '\' ORDER BY run_id LIMIT 2`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to look up run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var ids, payloads []string
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if id == runID {
			ids, payloads = []string{id}, []string{payload}
			break
		}
		ids = append(ids, id)
		payloads = append(payloads, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to look up run %s: %w", runID, err)
	}

	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	case 1:
		r, err := report.Decode([]byte(payloads[0]))
		if err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", ids[0], err)
		}
		return r, nil
	default:
		return nil, errors.NewValidationError("run id prefix is ambiguous").WithField("run_id").WithValue(runID)
	}
}
