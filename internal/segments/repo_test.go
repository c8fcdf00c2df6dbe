package segments

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestSegment_Validate(t *testing.T) {
	ok := Segment{ID: "s", CallID: "c", ResidentID: "r", StartTimeMs: 0, EndTimeMs: 1000}
	require.NoError(t, ok.Validate())

	degenerate := ok
	degenerate.StartTimeMs = 1000
	require.ErrorIs(t, degenerate.Validate(), ErrInvalidArgument)
}

func TestMemoryRepo_CompleteClipSetsURLAndStatusTogether(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateMany(ctx, []Segment{{ID: "s1", CallID: "c1", ResidentID: "r1", EndTimeMs: 5000}}))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, ClipPending, got.AudioClipStatus)

	require.ErrorIs(t, repo.SetClipStatus(ctx, "s1", ClipCompleted, ""), ErrInvalidArgument)
	require.ErrorIs(t, repo.CompleteClip(ctx, "s1", ""), ErrInvalidArgument)

	require.NoError(t, repo.CompleteClip(ctx, "s1", "https://cdn.example/clips/r1/s1.mp3"))
	got, _ = repo.Get(ctx, "s1")
	require.Equal(t, ClipCompleted, got.AudioClipStatus)
	require.NotEmpty(t, got.AudioClipURL)
}

func TestPostgresRepo_CreateManyInsertsInTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO story_segments")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO story_segments")).WillReturnError(errors.New("duplicate"))
	mock.ExpectRollback()

	err = NewPostgresRepo(db).CreateMany(context.Background(), []Segment{
		{ID: "s1", CallID: "c1", ResidentID: "r1", EndTimeMs: 1000},
		{ID: "s2", CallID: "c1", ResidentID: "r1", StartTimeMs: 1000, EndTimeMs: 2000},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CompleteClipMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("SET audio_clip_status = 'completed'")).
		WithArgs("missing", "https://cdn.example/x.mp3").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresRepo(db).CompleteClip(context.Background(), "missing", "https://cdn.example/x.mp3")
	require.ErrorIs(t, err, ErrNotFound)
}
