package recordings

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeRange_FullObjectWithoutRangeHeader(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()
	data := []byte("0123456789")
	require.NoError(t, s.Put(ctx, "m1/a.wav", bytes.NewReader(data), int64(len(data)), "audio/wav"))

	req := httptest.NewRequest(http.MethodGet, "/recordings/m1/media/a.wav/raw", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, ServeRange(ctx, rec, req, s, "m1/a.wav", "a.wav"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
}

func TestServeRange_PartialContent(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()
	data := []byte("0123456789")
	require.NoError(t, s.Put(ctx, "m1/a.wav", bytes.NewReader(data), int64(len(data)), "audio/wav"))

	req := httptest.NewRequest(http.MethodGet, "/recordings/m1/media/a.wav/raw", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	require.NoError(t, ServeRange(ctx, rec, req, s, "m1/a.wav", "a.wav"))

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "234", rec.Body.String())
	assert.Equal(t, "bytes 2-4/10", rec.Header().Get("Content-Range"))
}

func TestServeRange_SuffixRange(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()
	data := []byte("0123456789")
	require.NoError(t, s.Put(ctx, "m1/a.wav", bytes.NewReader(data), int64(len(data)), "audio/wav"))

	req := httptest.NewRequest(http.MethodGet, "/recordings/m1/media/a.wav/raw", nil)
	req.Header.Set("Range", "bytes=-3")
	rec := httptest.NewRecorder()
	require.NoError(t, ServeRange(ctx, rec, req, s, "m1/a.wav", "a.wav"))

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "789", rec.Body.String())
}

func TestServeRange_UnsatisfiableRange(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()
	data := []byte("0123456789")
	require.NoError(t, s.Put(ctx, "m1/a.wav", bytes.NewReader(data), int64(len(data)), "audio/wav"))

	req := httptest.NewRequest(http.MethodGet, "/recordings/m1/media/a.wav/raw", nil)
	req.Header.Set("Range", "bytes=100-200")
	rec := httptest.NewRecorder()
	require.NoError(t, ServeRange(ctx, rec, req, s, "m1/a.wav", "a.wav"))

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
}

func TestServeRange_MissingObjectIs404(t *testing.T) {
	s := newTestLocalStore(t)
	req := httptest.NewRequest(http.MethodGet, "/recordings/m1/media/missing/raw", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, ServeRange(context.Background(), rec, req, s, "m1/missing.wav", "missing.wav"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
