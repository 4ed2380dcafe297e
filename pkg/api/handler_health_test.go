package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexa-ai/vexa/pkg/database"
)

func TestHealthHandler_HealthyWhenDBAndBusReachable(t *testing.T) {
	ts := newTestServer(t)
	db, mock := newSQLMockDB(t)
	ts.server.dbClient = database.NewClientFromDB(db)
	mock.ExpectPing()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := newRecorder()
	ts.server.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"healthy"`)
	require.Contains(t, rec.Body.String(), `"version":"vexa/`)
}

func TestHealthHandler_UnhealthyWhenDBPingFails(t *testing.T) {
	ts := newTestServer(t)
	db, mock := newSQLMockDB(t)
	ts.server.dbClient = database.NewClientFromDB(db)
	mock.ExpectPing().WillReturnError(errPingFailed)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := newRecorder()
	ts.server.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}
