package upload

import (
	"bytes"
	stdimage "image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
	"github.com/rexpump/mediad/pkg/image"
	"github.com/rexpump/mediad/pkg/media"
	"github.com/rexpump/mediad/pkg/store/blob"
	"github.com/rexpump/mediad/pkg/store/kv"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.DataDir = t.TempDir()
	cfg.Upload.MaxSimpleUploadSize = 1 << 20
	cfg.Upload.MaxChunkedUploadSize = 4 << 20
	cfg.Upload.UploadSessionTimeoutSeconds = 3600
	return cfg
}

func newEngine(t *testing.T) (*Engine, *config.Config) {
	t.Helper()
	cfg := testConfig(t)

	kvStore, err := kv.Open(filepath.Join(cfg.Storage.DataDir, "kv"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })

	blobs, err := blob.New(cfg.OriginalsPath(), cfg.OptimizedPath(), cfg.TempPath(), cfg.Storage.DirectoryLevels)
	require.NoError(t, err)

	return NewEngine(kvStore, blobs, image.NewProcessor(cfg.Processing), cfg), cfg
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIngestSimpleStoresMedia(t *testing.T) {
	e, _ := newEngine(t)

	m, err := e.IngestSimple("test.png", pngBytes(t, 100, 100))
	require.NoError(t, err)

	assert.Equal(t, media.TypeImage, m.MediaType)
	assert.Equal(t, "image/png", m.OriginalMimeType)
	assert.Equal(t, "image/webp", m.OptimizedMimeType)
	assert.Equal(t, 100, m.Width)
	assert.Equal(t, 100, m.Height)

	// Optimized blob on disk, record and hash index in the KV.
	got, err := e.kv.GetMedia(m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ContentHash, got.ContentHash)
	assert.True(t, e.blobs.ExistsOptimized(m.ID, m.OptimizedExtension()))
}

func TestIngestSimpleDedup(t *testing.T) {
	e, _ := newEngine(t)
	data := pngBytes(t, 50, 50)

	first, err := e.IngestSimple("a.png", data)
	require.NoError(t, err)
	second, err := e.IngestSimple("b.png", data)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	count, err := e.kv.GetMediaCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestIngestSimpleSizeCap(t *testing.T) {
	e, cfg := newEngine(t)
	cfg.Upload.MaxSimpleUploadSize = 10

	_, err := e.IngestSimple("big.png", pngBytes(t, 100, 100))
	assert.Equal(t, apperr.KindPayloadTooLarge, apperr.KindOf(err))
}

func TestIngestRejectsEmptyAndGarbage(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.IngestSimple("empty", nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.IngestSimple("junk.bin", []byte("definitely not an image"))
	assert.Equal(t, apperr.KindUnsupportedMediaType, apperr.KindOf(err))
}

func TestDeleteMediaRemovesEverything(t *testing.T) {
	e, _ := newEngine(t)

	m, err := e.IngestSimple("test.png", pngBytes(t, 30, 30))
	require.NoError(t, err)

	require.NoError(t, e.DeleteMedia(m.ID))

	_, err = e.kv.GetMedia(m.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.False(t, e.blobs.ExistsOptimized(m.ID, m.OptimizedExtension()))

	byHash, err := e.kv.FindByHash(m.ContentHash)
	require.NoError(t, err)
	assert.Nil(t, byHash)
}

func TestChunkedUploadLifecycle(t *testing.T) {
	e, _ := newEngine(t)
	data := pngBytes(t, 200, 200)

	sess, err := e.InitSession(media.InitUploadRequest{
		Filename:  "big.png",
		MimeType:  "image/png",
		TotalSize: uint64(len(data)),
	})
	require.NoError(t, err)
	assert.Equal(t, media.SessionInProgress, sess.Status)

	// Three chunks at the right offsets.
	third := len(data) / 3
	chunks := [][]byte{data[:third], data[third : 2*third], data[2*third:]}
	var offset uint64
	for _, chunk := range chunks {
		start := offset
		sess, err = e.AppendChunk(sess.ID, chunk, &start)
		require.NoError(t, err)
		offset += uint64(len(chunk))
		assert.Equal(t, offset, sess.ReceivedBytes)
	}

	done, m, err := e.Complete(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, media.SessionCompleted, done.Status)
	require.NotNil(t, done.MediaID)
	assert.Equal(t, m.ID, *done.MediaID)
	assert.Equal(t, 200, m.Width)

	// Temp data is gone after successful completion.
	_, err = e.blobs.ReadTemp(sess.ID)
	assert.Error(t, err)
}

func TestAppendChunkOffsetMismatch(t *testing.T) {
	e, _ := newEngine(t)

	sess, err := e.InitSession(media.InitUploadRequest{
		Filename: "a.png", MimeType: "image/png", TotalSize: 1000,
	})
	require.NoError(t, err)

	wrong := uint64(500)
	got, err := e.AppendChunk(sess.ID, make([]byte, 500), &wrong)
	require.NoError(t, err, "offset mismatch is a recovery primitive, not an error")
	assert.Equal(t, uint64(0), got.ReceivedBytes)
	assert.Equal(t, media.SessionInProgress, got.Status)

	// Nothing was appended.
	size, err := e.blobs.TempSize(sess.ID)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestAppendChunkSameOffsetTwice(t *testing.T) {
	e, _ := newEngine(t)

	sess, err := e.InitSession(media.InitUploadRequest{
		Filename: "a.png", MimeType: "image/png", TotalSize: 1000,
	})
	require.NoError(t, err)

	zero := uint64(0)
	got, err := e.AppendChunk(sess.ID, make([]byte, 100), &zero)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got.ReceivedBytes)

	// Replay of the same offset: state unchanged.
	got, err = e.AppendChunk(sess.ID, make([]byte, 100), &zero)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got.ReceivedBytes)
}

func TestAppendChunkNilStartAppendsAtCurrentOffset(t *testing.T) {
	e, _ := newEngine(t)

	sess, err := e.InitSession(media.InitUploadRequest{
		Filename: "a.png", MimeType: "image/png", TotalSize: 200,
	})
	require.NoError(t, err)

	got, err := e.AppendChunk(sess.ID, make([]byte, 150), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), got.ReceivedBytes)

	got, err = e.AppendChunk(sess.ID, make([]byte, 50), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), got.ReceivedBytes)
}

func TestAppendChunkOverrun(t *testing.T) {
	e, _ := newEngine(t)

	sess, err := e.InitSession(media.InitUploadRequest{
		Filename: "a.png", MimeType: "image/png", TotalSize: 100,
	})
	require.NoError(t, err)

	_, err = e.AppendChunk(sess.ID, make([]byte, 101), nil)
	assert.Equal(t, apperr.KindUploadSession, apperr.KindOf(err))
}

func TestInitSessionValidation(t *testing.T) {
	e, cfg := newEngine(t)

	_, err := e.InitSession(media.InitUploadRequest{Filename: "a.png", MimeType: "image/png", TotalSize: 0})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.InitSession(media.InitUploadRequest{
		Filename: "a.png", MimeType: "image/png",
		TotalSize: cfg.Upload.MaxChunkedUploadSize.Uint64() + 1,
	})
	assert.Equal(t, apperr.KindPayloadTooLarge, apperr.KindOf(err))

	_, err = e.InitSession(media.InitUploadRequest{Filename: "a.exe", MimeType: "application/exe", TotalSize: 10})
	assert.Equal(t, apperr.KindUnsupportedMediaType, apperr.KindOf(err))
}

func TestCompleteIncomplete(t *testing.T) {
	e, _ := newEngine(t)

	sess, err := e.InitSession(media.InitUploadRequest{
		Filename: "a.png", MimeType: "image/png", TotalSize: 1000,
	})
	require.NoError(t, err)

	_, _, err = e.Complete(sess.ID)
	assert.Equal(t, apperr.KindUploadSession, apperr.KindOf(err))
}

func TestCompleteWithGarbageFails(t *testing.T) {
	e, _ := newEngine(t)
	garbage := []byte("this is not image data at all")

	sess, err := e.InitSession(media.InitUploadRequest{
		Filename: "fake.png", MimeType: "image/png", TotalSize: uint64(len(garbage)),
	})
	require.NoError(t, err)

	_, err = e.AppendChunk(sess.ID, garbage, nil)
	require.NoError(t, err)

	_, _, err = e.Complete(sess.ID)
	require.Error(t, err)

	got, err := e.Status(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, media.SessionFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
}

func TestSingleByteChunkedUpload(t *testing.T) {
	e, _ := newEngine(t)

	// total_size = 1 completes with one one-byte chunk; the pipeline
	// then rejects the byte as an image, which is the expected failure.
	sess, err := e.InitSession(media.InitUploadRequest{
		Filename: "one.png", MimeType: "image/png", TotalSize: 1,
	})
	require.NoError(t, err)

	got, err := e.AppendChunk(sess.ID, []byte{0x89}, nil)
	require.NoError(t, err)
	assert.True(t, got.IsComplete())
}

func TestCancelSession(t *testing.T) {
	e, _ := newEngine(t)

	sess, err := e.InitSession(media.InitUploadRequest{
		Filename: "a.png", MimeType: "image/png", TotalSize: 100,
	})
	require.NoError(t, err)
	_, err = e.AppendChunk(sess.ID, make([]byte, 10), nil)
	require.NoError(t, err)

	got, err := e.Cancel(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, media.SessionCancelled, got.Status)

	// Terminal; further chunks and cancels are rejected.
	_, err = e.AppendChunk(sess.ID, make([]byte, 10), nil)
	assert.Equal(t, apperr.KindUploadSession, apperr.KindOf(err))
	_, err = e.Cancel(sess.ID)
	assert.Equal(t, apperr.KindUploadSession, apperr.KindOf(err))
}

func TestExpiredSessionRejectsChunks(t *testing.T) {
	e, cfg := newEngine(t)
	cfg.Upload.UploadSessionTimeoutSeconds = 1

	sess, err := e.InitSession(media.InitUploadRequest{
		Filename: "a.png", MimeType: "image/png", TotalSize: 100,
	})
	require.NoError(t, err)

	// Force the deadline into the past.
	sess.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, e.kv.UpdateSession(sess))

	_, err = e.AppendChunk(sess.ID, make([]byte, 10), nil)
	assert.Equal(t, apperr.KindUploadSession, apperr.KindOf(err))

	got, err := e.Status(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, media.SessionExpired, got.Status)
}

func TestSweep(t *testing.T) {
	e, _ := newEngine(t)

	sess, err := e.InitSession(media.InitUploadRequest{
		Filename: "a.png", MimeType: "image/png", TotalSize: 100,
	})
	require.NoError(t, err)
	_, err = e.AppendChunk(sess.ID, make([]byte, 10), nil)
	require.NoError(t, err)

	// Expire it in the KV.
	sess.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, e.kv.UpdateSession(sess))

	result, err := e.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, result.SessionsCleaned)

	_, err = e.Status(sess.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = e.blobs.ReadTemp(sess.ID)
	assert.Error(t, err)
}

func TestStatusUnknownSession(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Status(uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
