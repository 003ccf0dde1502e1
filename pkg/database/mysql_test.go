package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/page-verifier/pkg/models"
)

var runCols = []string{
	"id", "target_url", "selector", "screenshot_path", "temporal_workflow_id", "temporal_run_id",
	"status", "error_message", "started_at", "completed_at",
}

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return NewWithConn(conn), mock
}

func TestEnsureSchema(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS verification_runs").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.EnsureSchema(context.Background()))
}

func TestCreateRun(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec("INSERT INTO verification_runs").
		WithArgs("run-1", "http://localhost:8080/", ".container", models.StatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := db.CreateRun(context.Background(), &models.VerificationRun{
		ID:        "run-1",
		TargetURL: "http://localhost:8080/",
		Selector:  ".container",
		Status:    models.StatusPending,
		StartedAt: &now,
	})
	require.NoError(t, err)
}

func TestCreateRunError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO verification_runs").WillReturnError(errors.New("duplicate"))

	err := db.CreateRun(context.Background(), &models.VerificationRun{ID: "run-1"})
	assert.ErrorContains(t, err, "duplicate")
}

func TestGetRun(t *testing.T) {
	db, mock := newMock(t)
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .* FROM verification_runs WHERE id = ?").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runCols).AddRow(
			"run-1", "http://localhost:8080/", ".container", "/tmp/screenshots/run-1.png",
			"verification-run-1", "temporal-run", "success", "", started, nil,
		))

	run, err := db.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, models.StatusSuccess, run.Status)
	assert.Equal(t, "/tmp/screenshots/run-1.png", run.ScreenshotPath)
	require.NotNil(t, run.StartedAt)
	assert.True(t, started.Equal(*run.StartedAt))
	assert.Nil(t, run.CompletedAt)
}

func TestGetRunMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT .* FROM verification_runs WHERE id = ?").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(runCols))

	run, err := db.GetRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestListRuns(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT .* FROM verification_runs ORDER BY created_at DESC LIMIT ?").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("b", "http://localhost:8080/", ".container", "", "", "", "running", "", nil, nil).
			AddRow("a", "http://localhost:8080/", ".container", "", "", "", "failed", "wait failed", nil, nil))

	runs, err := db.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.Equal(t, "wait failed", runs[1].ErrorMessage)
}

func TestUpdates(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE verification_runs SET temporal_workflow_id").
		WithArgs("wf", "rid", models.StatusRunning, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE verification_runs SET status = \\?, error_message").
		WithArgs(models.StatusCanceled, "Cancelled by user", models.StatusCanceled, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE verification_runs SET status = \\?, screenshot_path").
		WithArgs(models.StatusSuccess, "/tmp/x.png", "", models.StatusSuccess, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.UpdateRunTemporalIDs(ctx, "run-1", "wf", "rid"))
	require.NoError(t, db.UpdateRunStatus(ctx, "run-1", models.StatusCanceled, "Cancelled by user"))
	require.NoError(t, db.UpdateRunResult(ctx, "run-1", models.VerificationResult{
		Status:         models.StatusSuccess,
		ScreenshotPath: "/tmp/x.png",
	}))
}
