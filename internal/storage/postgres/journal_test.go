package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/mirowlabs/analysis-service/internal/store"
)

func TestJournalRecordSubmitted(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	journal := NewJournalWithPool(mock)
	jobID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO job_journal").
		WithArgs(jobID, at, "pending").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, journal.RecordSubmitted(context.Background(), jobID, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalRecordLifecycle(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	journal := NewJournalWithPool(mock)
	jobID := uuid.New()
	started := time.Unix(1700000100, 0).UTC()
	finished := time.Unix(1700000200, 0).UTC()
	errMsg := "runner exploded"

	mock.ExpectExec("UPDATE job_journal").
		WithArgs(started, "running", jobID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE job_journal").
		WithArgs(finished, "failed", &errMsg, jobID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, journal.RecordStarted(context.Background(), jobID, started))
	require.NoError(t, journal.RecordFinished(context.Background(), jobID, finished, "failed", &errMsg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalGetEntryNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	journal := NewJournalWithPool(mock)
	jobID := uuid.New()

	mock.ExpectQuery("SELECT job_id, submitted_at").
		WithArgs(jobID).
		WillReturnRows(pgxmock.NewRows([]string{
			"job_id", "submitted_at", "started_at", "finished_at", "status", "error_message",
		}))

	_, err = journal.GetEntry(context.Background(), jobID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalListEntries(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	journal := NewJournalWithPool(mock)
	jobID := uuid.New()
	submitted := time.Unix(1700000000, 0).UTC()

	status := "completed"
	mock.ExpectQuery("SELECT job_id, submitted_at").
		WithArgs(&status, 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"job_id", "submitted_at", "started_at", "finished_at", "status", "error_message",
		}).AddRow(jobID, submitted, nil, nil, "completed", nil))

	entries, err := journal.ListEntries(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, jobID, entries[0].JobID)
	require.Equal(t, "completed", entries[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
