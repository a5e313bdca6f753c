package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/fwmatrix/fwmatrix/pkg/runner"
	"github.com/fwmatrix/fwmatrix/pkg/toolchain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ runner.Store = (*SQLiteStore)(nil)

// SQLiteStore persists runs, outcomes and findings in SQLite. It
// implements runner.Store.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	cfg.applyDefaults()

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveRun inserts or updates a run record. The runner saves the run once
// at start and once with the final verdict.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *runner.Run) error {
	query := `
		INSERT INTO runs (
			id, matrix, status, started_at, completed_at, duration_ms,
			total, passed, failed_fatal, failed_tolerated, pending
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms,
			total = excluded.total,
			passed = excluded.passed,
			failed_fatal = excluded.failed_fatal,
			failed_tolerated = excluded.failed_tolerated,
			pending = excluded.pending,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Matrix,
		string(run.Status),
		run.StartedAt,
		run.CompletedAt,
		run.Duration.Milliseconds(),
		run.Summary.Total,
		run.Summary.Passed,
		run.Summary.FailedFatal,
		run.Summary.FailedTolerated,
		run.Summary.Pending,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// SaveOutcome inserts an outcome and its findings atomically.
func (s *SQLiteStore) SaveOutcome(ctx context.Context, o *runner.Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outcomes (
			id, run_id, config_id, feature_key, status, mcu, target,
			toolchain, exit_code, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID,
		o.RunID,
		o.ConfigID,
		o.FeatureKey,
		string(o.Status),
		o.MCU,
		o.Target,
		o.Toolchain,
		o.ExitCode,
		o.StartedAt,
		o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}

	for _, f := range o.Findings {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO findings (outcome_id, file, line, col, level, code, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, o.ID, f.File, f.Line, f.Column, string(f.Level), f.Code, f.Message)
		if err != nil {
			return fmt.Errorf("failed to save finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcome: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*runner.Run, error) {
	query := `
		SELECT id, matrix, status, started_at, completed_at, duration_ms,
		       total, passed, failed_fatal, failed_tolerated, pending
		FROM runs
		WHERE id = ?
	`
	return s.scanRun(s.db.QueryRowContext(ctx, query, id))
}

// LatestRun retrieves the most recently started run.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*runner.Run, error) {
	query := `
		SELECT id, matrix, status, started_at, completed_at, duration_ms,
		       total, passed, failed_fatal, failed_tolerated, pending
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1
	`
	return s.scanRun(s.db.QueryRowContext(ctx, query))
}

func (s *SQLiteStore) scanRun(row *sql.Row) (*runner.Run, error) {
	run := &runner.Run{}
	var status string
	var durationMS int64

	err := row.Scan(
		&run.ID,
		&run.Matrix,
		&status,
		&run.StartedAt,
		&run.CompletedAt,
		&durationMS,
		&run.Summary.Total,
		&run.Summary.Passed,
		&run.Summary.FailedFatal,
		&run.Summary.FailedTolerated,
		&run.Summary.Pending,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Status = runner.RunStatus(status)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}

// ListRuns lists runs newest-first with pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*runner.Run, error) {
	query := `
		SELECT id, matrix, status, started_at, completed_at, duration_ms,
		       total, passed, failed_fatal, failed_tolerated, pending
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*runner.Run{}
	for rows.Next() {
		run := &runner.Run{}
		var status string
		var durationMS int64
		err := rows.Scan(
			&run.ID,
			&run.Matrix,
			&status,
			&run.StartedAt,
			&run.CompletedAt,
			&durationMS,
			&run.Summary.Total,
			&run.Summary.Passed,
			&run.Summary.FailedFatal,
			&run.Summary.FailedTolerated,
			&run.Summary.Pending,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Status = runner.RunStatus(status)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// ListOutcomes lists all outcomes for a run in configuration order, with
// findings attached.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]runner.Outcome, error) {
	query := `
		SELECT id, run_id, config_id, feature_key, status, mcu, target,
		       toolchain, exit_code, started_at, duration_ms
		FROM outcomes
		WHERE run_id = ?
		ORDER BY config_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []runner.Outcome{}
	for rows.Next() {
		var o runner.Outcome
		var status string
		var tc sql.NullString
		var durationMS int64
		err := rows.Scan(
			&o.ID,
			&o.RunID,
			&o.ConfigID,
			&o.FeatureKey,
			&status,
			&o.MCU,
			&o.Target,
			&tc,
			&o.ExitCode,
			&o.StartedAt,
			&durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Status = runner.ConfigStatus(status)
		o.Toolchain = tc.String
		o.Duration = time.Duration(durationMS) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	for i := range outcomes {
		findings, err := s.listFindings(ctx, outcomes[i].ID)
		if err != nil {
			return nil, err
		}
		outcomes[i].Findings = findings
	}
	return outcomes, nil
}

// listFindings loads the findings for one outcome.
func (s *SQLiteStore) listFindings(ctx context.Context, outcomeID string) ([]toolchain.Finding, error) {
	query := `
		SELECT file, line, col, level, code, message
		FROM findings
		WHERE outcome_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, outcomeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	var findings []toolchain.Finding
	for rows.Next() {
		var f toolchain.Finding
		var level string
		var code sql.NullString
		if err := rows.Scan(&f.File, &f.Line, &f.Column, &level, &code, &f.Message); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.Level = toolchain.FindingLevel(level)
		f.Code = code.String
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating findings: %w", err)
	}
	return findings, nil
}

// DeleteRun deletes a run and, through foreign keys, its outcomes and
// findings.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
