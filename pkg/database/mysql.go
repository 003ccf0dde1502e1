package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"dev/bravebird/page-verifier/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

//go:embed schema.sql
var schema string

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// NewWithConn wraps an already opened connection
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// EnsureSchema creates the tables if they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ==================== Verification Runs ====================

const runColumns = `
	id, target_url, selector, screenshot_path, temporal_workflow_id, temporal_run_id,
	status, COALESCE(error_message, ''), started_at, completed_at
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner, run *models.VerificationRun) error {
	return s.Scan(
		&run.ID,
		&run.TargetURL,
		&run.Selector,
		&run.ScreenshotPath,
		&run.TemporalWorkflowID,
		&run.TemporalRunID,
		&run.Status,
		&run.ErrorMessage,
		&run.StartedAt,
		&run.CompletedAt,
	)
}

// CreateRun creates a new verification run
func (db *DB) CreateRun(ctx context.Context, run *models.VerificationRun) error {
	query := `
		INSERT INTO verification_runs (id, target_url, selector, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.TargetURL,
		run.Selector,
		run.Status,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a verification run by ID. A missing run returns nil, nil.
func (db *DB) GetRun(ctx context.Context, id string) (*models.VerificationRun, error) {
	query := `SELECT ` + runColumns + ` FROM verification_runs WHERE id = ?`

	var run models.VerificationRun
	err := scanRun(db.conn.QueryRowContext(ctx, query, id), &run)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// ListRuns retrieves the most recent runs, newest first
func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.VerificationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM verification_runs ORDER BY created_at DESC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.VerificationRun{}
	for rows.Next() {
		var run models.VerificationRun
		if err := scanRun(rows, &run); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// UpdateRunTemporalIDs records the Temporal execution a run was started as
func (db *DB) UpdateRunTemporalIDs(ctx context.Context, id, workflowID, runID string) error {
	query := `
		UPDATE verification_runs
		SET temporal_workflow_id = ?, temporal_run_id = ?, status = ?
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, workflowID, runID, models.StatusRunning, id)
	return err
}

// UpdateRunStatus updates the status of a verification run
func (db *DB) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE verification_runs
		SET status = ?, error_message = ?,
		    completed_at = CASE WHEN ? IN ('success', 'failed', 'canceled') THEN NOW() ELSE completed_at END
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, status, errorMsg, status, id)
	return err
}

// UpdateRunResult stores the final outcome of a workflow
func (db *DB) UpdateRunResult(ctx context.Context, id string, result models.VerificationResult) error {
	query := `
		UPDATE verification_runs
		SET status = ?, screenshot_path = ?, error_message = ?,
		    completed_at = CASE WHEN ? IN ('success', 'failed', 'canceled') THEN NOW() ELSE completed_at END
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query,
		result.Status,
		result.ScreenshotPath,
		result.ErrorMessage,
		result.Status,
		id,
	)
	return err
}
