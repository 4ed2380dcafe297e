package registry

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexa-ai/vexa/pkg/models"
)

func newTestRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestCreateRequest_ValidatesNativeID(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.CreateRequest(context.Background(), "u1", models.PlatformGoogleMeet, "not-a-valid-id", "", models.MeetingConfig{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCreateRequest_ConcurrencyLimit(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT max_concurrent_bots FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"max_concurrent_bots"}).AddRow(1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM meetings`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := r.CreateRequest(context.Background(), "u1", models.PlatformGoogleMeet, "abc-defg-hij", "", models.MeetingConfig{})
	require.ErrorIs(t, err, ErrConcurrencyLimit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequest_Success(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT max_concurrent_bots FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"max_concurrent_bots"}).AddRow(2))
	mock.ExpectQuery(`SELECT count\(\*\) FROM meetings`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO meetings`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	m, err := r.CreateRequest(context.Background(), "u1", models.PlatformGoogleMeet, "abc-defg-hij", "", models.MeetingConfig{Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, m.Status)
	assert.Equal(t, "u1", m.Owner)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequest_UniqueViolationMapsToConflict(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT max_concurrent_bots FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"max_concurrent_bots"}).AddRow(2))
	mock.ExpectQuery(`SELECT count\(\*\) FROM meetings`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO meetings`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := r.CreateRequest(context.Background(), "u1", models.PlatformGoogleMeet, "abc-defg-hij", "", models.MeetingConfig{})
	require.ErrorIs(t, err, ErrConflict)
}

func TestTransition_NoRowsAffectedIsInvalidTransition(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectExec(`UPDATE meetings SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, owner, platform`).
		WithArgs("m1").
		WillReturnError(sqlmock.ErrCancelled)

	_, err := r.Transition(context.Background(), "m1", []models.MeetingStatus{models.StatusJoining}, models.StatusActive, TransitionPatch{})
	require.Error(t, err)
}
