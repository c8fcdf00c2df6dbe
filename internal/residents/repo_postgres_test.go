package residents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func residentRow(id string) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "facility_id", "name", "status", "call_consent", "phone_number",
		"target_calls_per_week", "min_days_between_calls", "max_days_between_calls", "preferred_call_times",
		"last_outbound_call_at", "last_inbound_call_at", "unavailable_until", "created_at", "updated_at",
	}).AddRow(
		id, "fac_1", "Ada", "active", true, "+15551234567",
		3, 2, 5, []byte(`{"days":["monday"],"windows":[{"start":"10:00","end":"12:00"}]}`),
		now, nil, nil, now, now,
	)
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM residents WHERE id = \\$1").
		WithArgs("res_1").
		WillReturnRows(residentRow("res_1"))

	repo := NewPostgresRepo(db)
	res, err := repo.Get(context.Background(), "res_1")
	require.NoError(t, err)
	require.Equal(t, StatusActive, res.Status)
	require.Equal(t, []string{"monday"}, res.PreferredCallTimes.Days)
	require.NotNil(t, res.LastOutboundCallAt)
	require.Nil(t, res.LastInboundCallAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM residents WHERE id = \\$1").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewPostgresRepo(db).Get(context.Background(), "nope")
	require.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestPostgresRepo_SetLastOutboundCall(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE residents SET last_outbound_call_at").
		WithArgs("res_1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresRepo(db).SetLastOutboundCall(context.Background(), "res_1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}
