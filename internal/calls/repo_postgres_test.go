package calls

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var callColumnNames = []string{
	"id", "resident_id", "facility_id", "direction", "status", "provider_call_id", "call_number",
	"started_at", "ended_at", "duration_seconds", "end_reason", "transcript_raw", "transcript",
	"recording_url", "permanent_recording_url", "recording_object_key",
	"summary", "sentiment", "topics", "processed", "processed_at", "created_at", "updated_at",
}

func callRow(id string, status Status) *sqlmock.Rows {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(callColumnNames).AddRow(
		id, "r1", "f1", "outbound", string(status), "prov_1", 1,
		now, nil, 0, "", "", "",
		"", "", "",
		"", "", []byte(`["family"]`), false, nil, now, now,
	)
}

func TestPostgresRepo_UpdateLocksRowInTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM calls WHERE id = $1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(callRow("c1", StatusInitiating))
	mock.ExpectExec("UPDATE calls SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := NewPostgresRepo(db).Update(context.Background(), "c1", func(c *Call) error {
		c.Status = StatusInProgress
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)
	require.Equal(t, []string{"family"}, got.Topics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateRollsBackOnFnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(callRow("c1", StatusCompleted))
	mock.ExpectRollback()

	boom := errors.New("boom")
	_, err = NewPostgresRepo(db).Update(context.Background(), "c1", func(c *Call) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetByProviderCallIDMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE provider_call_id = $1")).
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows(callColumnNames))

	_, err = NewPostgresRepo(db).GetByProviderCallID(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrNotFound)
}
