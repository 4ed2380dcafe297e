package recordings

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalStore_PutStatOpenRange(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	data := []byte("hello recording world")
	require.NoError(t, s.Put(ctx, "m1/audio.wav", bytes.NewReader(data), int64(len(data)), "audio/wav"))

	size, contentType, _, err := s.Stat(ctx, "m1/audio.wav")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Equal(t, "audio/wav", contentType)

	rc, err := s.OpenRange(ctx, "m1/audio.wav", 6, 9)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "recording", string(got))
}

func TestLocalStore_StatMissingIsNotFound(t *testing.T) {
	s := newTestLocalStore(t)
	_, _, _, err := s.Stat(context.Background(), "nope")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStore_PathContainsTraversalAttempts(t *testing.T) {
	s := newTestLocalStore(t)
	require.NoError(t, s.Put(context.Background(), "../../etc/passwd", bytes.NewReader([]byte("x")), 1, "text/plain"))

	// Clean()-then-root-join neutralizes ".." before it ever reaches the
	// filesystem, so the write lands inside baseDir rather than escaping it.
	p, err := s.path("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, s.baseDir))
}

func TestLocalStore_DeleteIsIdempotent(t *testing.T) {
	s := newTestLocalStore(t)
	require.NoError(t, s.Delete(context.Background(), "never-existed"))
}
