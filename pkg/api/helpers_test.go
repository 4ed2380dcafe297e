package api

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

var errPingFailed = errors.New("connection refused")

func pgUniqueViolation() error {
	return &pgconn.PgError{Code: "23505"}
}

// newSQLMockDB returns a sqlmock-backed *sql.DB with ping monitoring enabled,
// for tests of healthHandler that need to control db.PingContext's outcome.
func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}
