package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-compliance-tester/internal/compliance"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func sampleReport(runID, server string, score int) *compliance.HealthReport {
	return &compliance.HealthReport{
		RunID:  runID,
		Server: compliance.ServerInfo{Name: server, Version: "1.0", Transport: "stdio"},
		Summary: compliance.Summary{
			OverallScore: score,
			Status:       compliance.StatusPassed,
			TestResults:  compliance.Counts{Total: 3, Passed: 3},
		},
		Metadata: compliance.Metadata{Timestamp: time.Now().UTC(), TestCount: 3},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"), quietLogger())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleReport("run-1", "srv-a", 80)))
	require.NoError(t, store.Save(ctx, sampleReport("run-2", "srv-a", 95)))
	require.NoError(t, store.Save(ctx, sampleReport("run-3", "srv-b", 50)))

	records, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	report, err := store.Get(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, "run-2", report.RunID)
	assert.Equal(t, 95, report.Summary.OverallScore)
	assert.Equal(t, "srv-a", report.Server.Name)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPreviousScore(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"), quietLogger())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	_, err = store.PreviousScore(ctx, "srv-a")
	assert.ErrorIs(t, err, ErrNotFound)

	first := sampleReport("run-1", "srv-a", 70)
	first.Metadata.Timestamp = time.Now().Add(-time.Hour).UTC()
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, sampleReport("run-2", "srv-a", 85)))

	score, err := store.PreviousScore(ctx, "srv-a")
	require.NoError(t, err)
	assert.Equal(t, 85, score)
}

func TestSaveUsesExpectedStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", "srv-a", "1.0", "stdio", 80, "passed",
			3, 0, 0, 0, 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewStoreWithDB(db, quietLogger())
	require.NoError(t, store.Save(context.Background(), sampleReport("run-1", "srv-a", 80)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMapsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "server_name", "server_version", "transport", "score", "status",
		"passed", "failed", "warnings", "skipped", "total", "created_at",
	}).AddRow("run-1", "srv-a", "1.0", "stdio", 80, "passed", 3, 0, 0, 0, 3, now)

	mock.ExpectQuery("SELECT (.+) FROM runs ORDER BY created_at DESC").
		WithArgs(5).
		WillReturnRows(rows)

	store := NewStoreWithDB(db, quietLogger())
	records, err := store.List(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "run-1", records[0].ID)
	assert.Equal(t, 80, records[0].Score)
	assert.Equal(t, "passed", records[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
