package blob

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexpump/mediad/pkg/apperr"
)

func newStore(t *testing.T, levels int) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := New(
		filepath.Join(root, "originals"),
		filepath.Join(root, "optimized"),
		filepath.Join(root, "temp"),
		levels,
	)
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadLevels(t *testing.T) {
	root := t.TempDir()
	_, err := New(root, root, root, 5)
	assert.Error(t, err)
	_, err = New(root, root, root, -1)
	assert.Error(t, err)
}

func TestShardPathLayout(t *testing.T) {
	s := newStore(t, 2)
	id := uuid.MustParse("0a1b2c3d-0000-0000-0000-000000000000")

	p := s.OptimizedPath(id, "webp")
	// First two shard levels come from the dashless hex prefix.
	assert.Contains(t, p, filepath.Join("0a", "1b", id.String()+".webp"))
}

func TestFlatLayoutWithZeroLevels(t *testing.T) {
	s := newStore(t, 0)
	id := uuid.New()

	require.NoError(t, s.SaveOptimized(id, "webp", []byte("x")))
	assert.FileExists(t, filepath.Join(s.optimizedRoot, id.String()+".webp"))
}

func TestSaveReadDeleteRoundTrip(t *testing.T) {
	s := newStore(t, 2)
	id := uuid.New()
	payload := []byte("optimized bytes")

	require.NoError(t, s.SaveOptimized(id, "webp", payload))
	assert.True(t, s.ExistsOptimized(id, "webp"))

	got, err := s.ReadOptimized(id, "webp")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, s.DeleteOptimized(id, "webp"))
	assert.False(t, s.ExistsOptimized(id, "webp"))

	_, err = s.ReadOptimized(id, "webp")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Deleting again is not an error.
	require.NoError(t, s.DeleteOptimized(id, "webp"))
}

func TestOpenOptimizedStreams(t *testing.T) {
	s := newStore(t, 1)
	id := uuid.New()
	payload := []byte(strings.Repeat("stream", 100))

	require.NoError(t, s.SaveOptimized(id, "jpg", payload))

	r, size, err := s.OpenOptimized(id, "jpg")
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, int64(len(payload)), size)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestOriginalsIndependentFromOptimized(t *testing.T) {
	s := newStore(t, 2)
	id := uuid.New()

	require.NoError(t, s.SaveOriginal(id, "png", []byte("original")))
	require.NoError(t, s.SaveOptimized(id, "webp", []byte("optimized")))

	orig, err := s.ReadOriginal(id, "png")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), orig)

	require.NoError(t, s.DeleteOriginal(id, "png"))
	_, err = s.ReadOriginal(id, "png")
	assert.Error(t, err)

	// Optimized copy untouched.
	assert.True(t, s.ExistsOptimized(id, "webp"))
}

func TestTempAppendSizeRead(t *testing.T) {
	s := newStore(t, 2)
	sid := uuid.New()
	require.NoError(t, s.CreateTempSessionDir(sid))

	size, err := s.TempSize(sid)
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, s.AppendTemp(sid, []byte("aaa")))
	require.NoError(t, s.AppendTemp(sid, []byte("bbbb")))

	size, err = s.TempSize(sid)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), size)

	data, err := s.ReadTemp(sid)
	require.NoError(t, err)
	assert.Equal(t, []byte("aaabbbb"), data)

	require.NoError(t, s.DeleteTempSession(sid))
	_, err = s.ReadTemp(sid)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCleanupExpiredTemp(t *testing.T) {
	s := newStore(t, 2)

	oldSid := uuid.New()
	newSid := uuid.New()
	require.NoError(t, s.CreateTempSessionDir(oldSid))
	require.NoError(t, s.CreateTempSessionDir(newSid))

	// Age the first directory past the cutoff.
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(s.tempDir(oldSid), past, past))

	removed, err := s.CleanupExpiredTemp(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, s.tempDir(oldSid))
	assert.DirExists(t, s.tempDir(newSid))
}

func TestGetStats(t *testing.T) {
	s := newStore(t, 2)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.OptimizedFiles)

	require.NoError(t, s.SaveOptimized(uuid.New(), "webp", []byte("12345")))
	require.NoError(t, s.SaveOptimized(uuid.New(), "webp", []byte("123")))
	require.NoError(t, s.SaveOriginal(uuid.New(), "png", []byte("1234567890")))

	stats, err = s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.OptimizedFiles)
	assert.Equal(t, uint64(8), stats.OptimizedBytes)
	assert.Equal(t, uint64(1), stats.OriginalsFiles)
	assert.Equal(t, uint64(10), stats.OriginalsBytes)
}
