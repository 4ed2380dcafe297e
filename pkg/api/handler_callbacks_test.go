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

func TestWorkerCallbackHandler_DuplicateIsNoop(t *testing.T) {
	ts := newTestServer(t)
	engine := ts.server.engine
	engine.POST("/internal/callbacks/:connection_id", ts.server.workerCallbackHandler)

	mock := ts.registryMock
	mock.ExpectExec(`INSERT INTO callback_receipts`).
		WithArgs("m1", "active").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM callback_receipts`).
		WithArgs("m1", "active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	body := `{"status":"active"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/callbacks/m1", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := newRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerCallbackHandler_JoiningAckTransitions(t *testing.T) {
	ts := newTestServer(t)
	engine := ts.server.engine
	engine.POST("/internal/callbacks/:connection_id", ts.server.workerCallbackHandler)

	mock := ts.registryMock
	mock.ExpectExec(`INSERT INTO callback_receipts`).
		WithArgs("m1", "joining_ack").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM callback_receipts`).
		WithArgs("m1", "joining_ack").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`UPDATE meetings SET status`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT id, owner, platform`).
		WillReturnRows(meetingRows("m1", "u1", models.StatusJoining))

	body := `{"status":"joining_ack"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/callbacks/m1", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := newRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "accepted")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerCallbackHandler_UnrecognizedStatusIs422(t *testing.T) {
	ts := newTestServer(t)
	engine := ts.server.engine
	engine.POST("/internal/callbacks/:connection_id", ts.server.workerCallbackHandler)

	mock := ts.registryMock
	mock.ExpectExec(`INSERT INTO callback_receipts`).
		WithArgs("m1", "on_fire").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM callback_receipts`).
		WithArgs("m1", "on_fire").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	body := `{"status":"on_fire"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/callbacks/m1", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := newRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
