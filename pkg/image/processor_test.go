package image

import (
	"bytes"
	stdimage "image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
)

func testUploadConfig() config.UploadConfig {
	return config.UploadConfig{
		AllowedImageTypes: []string{"image/png", "image/jpeg", "image/gif"},
	}
}

func testProcessor() *Processor {
	return NewProcessor(config.ProcessingConfig{
		OutputFormat:      "webp",
		OutputQuality:     85,
		MaxImageDimension: 2048,
		StripExif:         true,
	})
}

// pngBytes renders a w x h gradient PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectMime(t *testing.T) {
	mime, err := DetectMime(pngBytes(t, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
}

func TestDetectMimeRejectsEmpty(t *testing.T) {
	_, err := DetectMime(nil)
	assert.Equal(t, apperr.KindUnsupportedMediaType, apperr.KindOf(err))
}

func TestDetectMimeRejectsNonImage(t *testing.T) {
	_, err := DetectMime([]byte("{\"not\": \"an image\"}"))
	assert.Equal(t, apperr.KindUnsupportedMediaType, apperr.KindOf(err))
}

func TestProcessPNGToWebp(t *testing.T) {
	p := testProcessor()

	out, err := p.Process(pngBytes(t, 100, 100), testUploadConfig())
	require.NoError(t, err)

	assert.Equal(t, "image/png", out.OriginalMime)
	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 100, out.Height)
	assert.False(t, out.WasResized)
	assert.NotEmpty(t, out.OptimizedData)

	// webp magic: RIFF....WEBP
	require.Greater(t, len(out.OptimizedData), 12)
	assert.Equal(t, []byte("RIFF"), out.OptimizedData[:4])
	assert.Equal(t, []byte("WEBP"), out.OptimizedData[8:12])
}

func TestProcessRejectsDisallowedType(t *testing.T) {
	p := testProcessor()
	upload := config.UploadConfig{AllowedImageTypes: []string{"image/jpeg"}}

	_, err := p.Process(pngBytes(t, 10, 10), upload)
	assert.Equal(t, apperr.KindUnsupportedMediaType, apperr.KindOf(err))
}

func TestProcessResizesToBound(t *testing.T) {
	p := NewProcessor(config.ProcessingConfig{
		OutputFormat:      "png",
		OutputQuality:     85,
		MaxImageDimension: 50,
		StripExif:         false,
	})

	out, err := p.Process(pngBytes(t, 200, 100), testUploadConfig())
	require.NoError(t, err)

	assert.True(t, out.WasResized)
	assert.Equal(t, 50, out.Width)
	assert.Equal(t, 25, out.Height)
}

func TestFitWithinTruncates(t *testing.T) {
	w, h := fitWithin(1000, 333, 100)
	assert.Equal(t, 100, w)
	assert.Equal(t, 33, h) // 33.3 truncates toward zero

	w, h = fitWithin(333, 1000, 100)
	assert.Equal(t, 33, w)
	assert.Equal(t, 100, h)
}

func TestStripExifReencodesOriginal(t *testing.T) {
	input := pngBytes(t, 20, 20)

	stripped := testProcessor()
	out, err := stripped.Process(input, testUploadConfig())
	require.NoError(t, err)
	// Re-encode produces different bytes but the same format.
	detected, err := DetectMime(out.OriginalData)
	require.NoError(t, err)
	assert.Equal(t, "image/png", detected)

	passthrough := NewProcessor(config.ProcessingConfig{
		OutputFormat:      "webp",
		OutputQuality:     85,
		MaxImageDimension: 2048,
		StripExif:         false,
	})
	out, err = passthrough.Process(input, testUploadConfig())
	require.NoError(t, err)
	assert.Equal(t, input, out.OriginalData)
}

func TestProcessIsDeterministic(t *testing.T) {
	p := testProcessor()
	input := pngBytes(t, 64, 48)

	a, err := p.Process(input, testUploadConfig())
	require.NoError(t, err)
	b, err := p.Process(input, testUploadConfig())
	require.NoError(t, err)

	assert.Equal(t, a.OptimizedData, b.OptimizedData)
	assert.Equal(t, a.OriginalData, b.OriginalData)
}

func TestHash(t *testing.T) {
	a := Hash([]byte("same bytes"))
	b := Hash([]byte("same bytes"))
	c := Hash([]byte("other bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
