package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexa-ai/vexa/pkg/models"
)

func TestDispatchBotHandler_Success(t *testing.T) {
	ts := newTestServer(t)
	owner := &models.User{ID: "u1"}

	engine := ts.server.engine
	engine.POST("/test/bots", withOwner(owner, ts.server.dispatchBotHandler))

	mock := ts.registryMock
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT max_concurrent_bots FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"max_concurrent_bots"}).AddRow(5))
	mock.ExpectQuery(`SELECT count\(\*\) FROM meetings`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO meetings`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`UPDATE meetings SET worker_ref`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE meetings SET status`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT id, owner, platform`).
		WillReturnRows(meetingRows("m1", "u1", models.StatusJoining))

	body := `{"platform":"google_meet","native_meeting_id":"abc-defg-hij"}`
	req := httptest.NewRequest(http.MethodPost, "/test/bots", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := newRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "m1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchBotHandler_RejectsUnknownPlatform(t *testing.T) {
	ts := newTestServer(t)
	owner := &models.User{ID: "u1"}
	engine := ts.server.engine
	engine.POST("/test/bots", withOwner(owner, ts.server.dispatchBotHandler))

	body := `{"platform":"carrier_pigeon","native_meeting_id":"abc-defg-hij"}`
	req := httptest.NewRequest(http.MethodPost, "/test/bots", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := newRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDispatchBotHandler_ConflictReturnsExistingMeetingID(t *testing.T) {
	ts := newTestServer(t)
	owner := &models.User{ID: "u1"}
	engine := ts.server.engine
	engine.POST("/test/bots", withOwner(owner, ts.server.dispatchBotHandler))

	mock := ts.registryMock
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT max_concurrent_bots FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"max_concurrent_bots"}).AddRow(5))
	mock.ExpectQuery(`SELECT count\(\*\) FROM meetings`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO meetings`).
		WillReturnError(pgUniqueViolation())
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT id, owner, platform`).
		WillReturnRows(meetingRows("existing-1", "u1", models.StatusActive))

	body := `{"platform":"google_meet","native_meeting_id":"abc-defg-hij"}`
	req := httptest.NewRequest(http.MethodPost, "/test/bots", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := newRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "existing-1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func meetingRows(id, owner string, status models.MeetingStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner", "platform", "native_meeting_id", "config", "status", "worker_ref", "session_uid",
		"start_time", "end_time", "created_at", "updated_at", "data", "completion_reason", "failure_stage", "error_message",
	}).AddRow(id, owner, "google_meet", "abc-defg-hij", []byte(`{}`), string(status), nil, "session-1",
		nil, nil, testTime, testTime, []byte(`{}`), "", "", "")
}
